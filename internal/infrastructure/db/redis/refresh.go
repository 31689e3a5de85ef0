package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshRegistry records exchanged refresh tokens by their jti.
// Key format: refresh:used:<jti>
type RefreshRegistry struct {
	client redis.Cmdable
}

func NewRefreshRegistry(client redis.Cmdable) *RefreshRegistry {
	return &RefreshRegistry{client: client}
}

// Consume claims jti with SET NX. Only the first caller gets true, so
// concurrent exchanges of one refresh token yield a single new pair.
func (r *RefreshRegistry) Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := r.client.SetNX(ctx, "refresh:used:"+jti, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	return ok, nil
}

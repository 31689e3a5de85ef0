package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sipcard/dispense/internal/core/domain"
)

const tapsCollection = "taps"

// TapRepository persists the tap audit trail.
type TapRepository struct {
	col *mongo.Collection
}

// NewTapRepository creates a new TapRepository.
func NewTapRepository(db *mongo.Database) *TapRepository {
	return &TapRepository{col: db.Collection(tapsCollection)}
}

// Insert stores a charged tap. Re-inserting the same tap ID is a no-op.
func (r *TapRepository) Insert(ctx context.Context, tap *domain.Tap) error {
	doc := bson.M{
		"_id":          tap.ID,
		"card_guid":    tap.CardGUID,
		"dispenser_id": tap.DispenserID,
		"volume_ml":    tap.VolumeML,
		"amount_cents": tap.AmountCents,
		"timestamp":    tap.Timestamp.UTC(),
		"processed_at": time.Now().UTC(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert tap: %w", err)
	}
	return nil
}

// EnsureIndexes creates necessary indexes on the taps collection.
func (r *TapRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "card_guid", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	return err
}

package ports

import (
	"context"
	"time"

	"github.com/sipcard/dispense/internal/core/domain"
)

// CreateCardInput registers a card. Exactly one of GUID and TagHex is used;
// TagHex is the raw tag page read and is decoded to the GUID.
type CreateCardInput struct {
	GUID         string
	TagHex       string
	OwnerID      string
	BalanceCents int64
}

// GetCardInput carries the caller identity for ownership checks.
type GetCardInput struct {
	GUID   string
	UserID string
	Role   string
}

type CardService interface {
	CreateCard(ctx context.Context, in CreateCardInput) (*domain.Card, error)
	GetCard(ctx context.Context, in GetCardInput) (*domain.Card, error)
}

// TapInput is a dispense reported by a dispenser, after the card GUID has
// been resolved.
type TapInput struct {
	ID          string
	CardGUID    string
	DispenserID string
	VolumeML    int
	Timestamp   time.Time
}

// TapService charges taps to cards.
type TapService interface {
	Process(ctx context.Context, tap TapInput) error
}

package ports

import (
	"context"

	"github.com/sipcard/dispense/internal/core/domain"
)

// CardRepository handles card persistence and balance updates.
type CardRepository interface {
	// Create inserts a card. domain.ErrCardExists is returned for a known GUID.
	Create(ctx context.Context, card *domain.Card) error
	FindByGUID(ctx context.Context, guid string) (*domain.Card, error)
	// Debit atomically subtracts amount from an active card whose balance
	// covers it, returning the updated card. domain.ErrInsufficientBalance
	// is returned when no such card matches.
	Debit(ctx context.Context, guid string, amountCents int64) (*domain.Card, error)
}

// TapRepository persists the tap audit trail.
type TapRepository interface {
	Insert(ctx context.Context, tap *domain.Tap) error
}

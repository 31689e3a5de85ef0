package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sipcard/dispense/internal/core/domain"
	"github.com/sipcard/dispense/internal/core/ports"
)

// DedupChecker abstracts the idempotency store (Redis).
type DedupChecker interface {
	IsDuplicate(ctx context.Context, cardGUID, dispenserID string, ts time.Time) (bool, error)
	Mark(ctx context.Context, cardGUID, dispenserID string, ts time.Time) error
}

// TapRecorder receives the outcome of each processed tap.
type TapRecorder interface {
	TapCharged(amountCents int64)
	TapRejected(reason string)
	TapDuplicate()
}

type tapService struct {
	cards ports.CardRepository
	taps  ports.TapRepository
	dedup DedupChecker
	rec   TapRecorder
	price int64
	log   zerolog.Logger
}

type nopRecorder struct{}

func (nopRecorder) TapCharged(int64)   {}
func (nopRecorder) TapRejected(string) {}
func (nopRecorder) TapDuplicate()      {}

// NewTapService returns a TapService implementation. pricePerLitreCents is the
// price charged for 1000 ml.
func NewTapService(
	cards ports.CardRepository,
	taps ports.TapRepository,
	dedup DedupChecker,
	rec TapRecorder,
	pricePerLitreCents int64,
	log zerolog.Logger,
) ports.TapService {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &tapService{
		cards: cards,
		taps:  taps,
		dedup: dedup,
		rec:   rec,
		price: pricePerLitreCents,
		log:   log,
	}
}

// Price returns the charge for volumeML at pricePerLitreCents, rounded down.
func Price(volumeML int, pricePerLitreCents int64) int64 {
	return int64(volumeML) * pricePerLitreCents / 1000
}

// Process deduplicates, charges and records a single tap.
func (s *tapService) Process(ctx context.Context, in ports.TapInput) error {
	// 1. Idempotency check; silently skip duplicates.
	isDup, err := s.dedup.IsDuplicate(ctx, in.CardGUID, in.DispenserID, in.Timestamp)
	if err != nil {
		s.log.Warn().Err(err).Str("guid", in.CardGUID).Msg("dedup check failed, processing anyway")
	} else if isDup {
		s.log.Debug().Str("guid", in.CardGUID).Str("dispenser", in.DispenserID).Msg("duplicate tap skipped")
		s.rec.TapDuplicate()
		return nil
	}

	// 2. Card must exist and be usable.
	card, err := s.cards.FindByGUID(ctx, in.CardGUID)
	if err != nil {
		s.rec.TapRejected(domain.CodeOf(err))
		return fmt.Errorf("process tap: %w", err)
	}
	if !card.Usable() {
		s.rec.TapRejected(domain.CodeOf(domain.ErrCardBlocked))
		return fmt.Errorf("process tap %s: %w", in.CardGUID, domain.ErrCardBlocked)
	}

	amount := Price(in.VolumeML, s.price)

	// 3. Conditional debit.
	updated, err := s.cards.Debit(ctx, in.CardGUID, amount)
	if err != nil {
		s.rec.TapRejected(domain.CodeOf(err))
		return fmt.Errorf("process tap %s: %w", in.CardGUID, err)
	}

	// 4. Only a charged tap is marked; a rejected one may be retried after a
	// top-up. Same-card taps are serialised by the dispatcher shard.
	if markErr := s.dedup.Mark(ctx, in.CardGUID, in.DispenserID, in.Timestamp); markErr != nil {
		s.log.Warn().Err(markErr).Str("guid", in.CardGUID).Msg("failed to set dedup key")
	}

	// 5. Audit trail (non-fatal on failure).
	tap := &domain.Tap{
		ID:          in.ID,
		CardGUID:    in.CardGUID,
		DispenserID: in.DispenserID,
		VolumeML:    in.VolumeML,
		AmountCents: amount,
		Timestamp:   in.Timestamp,
	}
	if err := s.taps.Insert(ctx, tap); err != nil {
		s.log.Warn().Err(err).Str("guid", in.CardGUID).Msg("failed to insert tap audit record")
	}

	s.rec.TapCharged(amount)
	s.log.Info().
		Str("guid", in.CardGUID).
		Str("dispenser", in.DispenserID).
		Int("volume_ml", in.VolumeML).
		Int64("amount_cents", amount).
		Int64("balance_cents", updated.BalanceCents).
		Msg("tap charged")

	return nil
}

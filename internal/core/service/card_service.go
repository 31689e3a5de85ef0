package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sipcard/dispense/internal/core/domain"
	"github.com/sipcard/dispense/internal/core/ports"
	"github.com/sipcard/dispense/pkg/nfcguid"
)

type cardService struct {
	repo ports.CardRepository
	log  zerolog.Logger
}

// NewCardService returns a CardService implementation.
func NewCardService(repo ports.CardRepository, log zerolog.Logger) ports.CardService {
	return &cardService{repo: repo, log: log}
}

func (s *cardService) CreateCard(ctx context.Context, in ports.CreateCardInput) (*domain.Card, error) {
	guid, err := ResolveGUID(s.log, in.GUID, in.TagHex)
	if err != nil {
		return nil, fmt.Errorf("create card: %w", err)
	}
	if in.OwnerID == "" || in.BalanceCents < 0 {
		return nil, fmt.Errorf("create card: owner and a non-negative balance are required: %w", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	card := &domain.Card{
		GUID:         guid.String(),
		OwnerID:      in.OwnerID,
		BalanceCents: in.BalanceCents,
		Status:       domain.CardActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, card); err != nil {
		return nil, fmt.Errorf("create card: %w", err)
	}

	s.log.Info().Str("guid", card.GUID).Str("owner_id", card.OwnerID).Msg("card registered")
	return card, nil
}

// GetCard returns the card to its owner or to an admin. Anyone else gets
// domain.ErrCardNotFound so card GUIDs cannot be probed.
func (s *cardService) GetCard(ctx context.Context, in ports.GetCardInput) (*domain.Card, error) {
	guid, err := nfcguid.Parse(in.GUID)
	if err != nil {
		return nil, fmt.Errorf("get card: %w", domain.ErrInvalidInput)
	}

	card, err := s.repo.FindByGUID(ctx, guid.String())
	if err != nil {
		return nil, err
	}
	if in.Role != domain.RoleAdmin && card.OwnerID != in.UserID {
		return nil, domain.ErrCardNotFound
	}
	return card, nil
}

// ResolveGUID returns the card GUID from either its canonical form or the
// hex dump of the tag page read. Tag bytes that do not decode are an input
// error and never fall back to the hex dump; they are logged as a HexDump.
func ResolveGUID(log zerolog.Logger, guid, tagHex string) (nfcguid.Guid, error) {
	switch {
	case guid != "" && tagHex != "":
		return "", fmt.Errorf("both guid and tag hex given: %w", domain.ErrInvalidInput)
	case guid != "":
		g, err := nfcguid.Parse(guid)
		if err != nil {
			return "", fmt.Errorf("%w: %w", err, domain.ErrInvalidInput)
		}
		return g, nil
	case tagHex != "":
		b, err := nfcguid.TagBytes(tagHex)
		if err != nil {
			return "", fmt.Errorf("%w: %w", err, domain.ErrInvalidInput)
		}
		g, err := nfcguid.Decode(b)
		if err != nil {
			log.Warn().Err(err).Str("tag", nfcguid.HexDump(b)).Msg("tag read did not decode to a guid")
			return "", fmt.Errorf("%w: %w", err, domain.ErrInvalidInput)
		}
		return g, nil
	default:
		return "", fmt.Errorf("guid or tag hex required: %w", domain.ErrInvalidInput)
	}
}

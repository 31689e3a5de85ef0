package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sipcard/dispense/internal/core/domain"
	"github.com/sipcard/dispense/internal/core/ports"
	"github.com/sipcard/dispense/internal/core/service"
	"github.com/sipcard/dispense/internal/infrastructure/queue"
)

// TapQueue accepts taps for asynchronous charging.
type TapQueue interface {
	Enqueue(tap ports.TapInput) error
}

type TapHandler struct {
	queue TapQueue
	log   zerolog.Logger
	now   func() time.Time
}

func NewTapHandler(q TapQueue, log zerolog.Logger) *TapHandler {
	return &TapHandler{queue: q, log: log, now: time.Now}
}

type tapRequest struct {
	CardGUID    string    `json:"card_guid" validate:"required_without=TagHex,excluded_with=TagHex"`
	TagHex      string    `json:"tag_hex" validate:"required_without=CardGUID"`
	DispenserID string    `json:"dispenser_id" validate:"required,max=64"`
	VolumeML    int       `json:"volume_ml" validate:"gt=0,max=20000"`
	Timestamp   time.Time `json:"timestamp"`
}

type tapAccepted struct {
	ID       string `json:"id"`
	CardGUID string `json:"card_guid"`
}

// maxTapSkew bounds how far in the future a dispenser clock may report a tap.
const maxTapSkew = 5 * time.Minute

// Create queues a dispense for charging and answers before the card is debited.
//
// @Summary      Report a tap
// @Tags         taps
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      tapRequest  true  "Tap"
// @Success      202   {object}  envelope{data=tapAccepted}
// @Failure      422   {object}  ErrorBody
// @Failure      503   {object}  ErrorBody
// @Router       /mobile/taps [post]
func (h *TapHandler) Create(c echo.Context) error {
	var req tapRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	guid, err := service.ResolveGUID(h.log, req.CardGUID, req.TagHex)
	if err != nil {
		return err
	}
	now := h.now().UTC()
	switch {
	case req.Timestamp.IsZero():
		return fmt.Errorf("timestamp is required: %w", domain.ErrInvalidInput)
	case req.Timestamp.After(now.Add(maxTapSkew)):
		return fmt.Errorf("timestamp is in the future: %w", domain.ErrInvalidInput)
	}

	tap := ports.TapInput{
		ID:          uuid.NewString(),
		CardGUID:    guid.String(),
		DispenserID: req.DispenserID,
		VolumeML:    req.VolumeML,
		Timestamp:   req.Timestamp.UTC(),
	}
	if err := h.queue.Enqueue(tap); err != nil {
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrStopped) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "tap queue unavailable, retry later")
		}
		return err
	}
	return respond(c, http.StatusAccepted, tapAccepted{ID: tap.ID, CardGUID: tap.CardGUID})
}

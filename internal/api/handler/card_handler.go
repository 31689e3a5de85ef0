package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sipcard/dispense/internal/core/ports"
)

type CardHandler struct {
	cardService ports.CardService
}

func NewCardHandler(cardService ports.CardService) *CardHandler {
	return &CardHandler{cardService: cardService}
}

// createCardRequest identifies the card either by its GUID or by the hex dump
// of tag pages 4–7, never both.
type createCardRequest struct {
	GUID         string `json:"guid" validate:"required_without=TagHex,excluded_with=TagHex"`
	TagHex       string `json:"tag_hex" validate:"required_without=GUID"`
	OwnerID      string `json:"owner_id" validate:"required"`
	BalanceCents int64  `json:"balance_cents" validate:"gte=0"`
}

// Create registers a prepaid card.
//
// @Summary      Register a card
// @Tags         cards
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createCardRequest  true  "Card"
// @Success      201   {object}  envelope{data=domain.Card}
// @Failure      403   {object}  ErrorBody
// @Failure      409   {object}  ErrorBody
// @Failure      422   {object}  ErrorBody
// @Router       /mobile/cards [post]
func (h *CardHandler) Create(c echo.Context) error {
	var req createCardRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	card, err := h.cardService.CreateCard(c.Request().Context(), ports.CreateCardInput{
		GUID:         req.GUID,
		TagHex:       req.TagHex,
		OwnerID:      req.OwnerID,
		BalanceCents: req.BalanceCents,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, card)
}

// Get returns a card's balance and status to its owner or an admin.
//
// @Summary      Get a card
// @Tags         cards
// @Produce      json
// @Security     BearerAuth
// @Param        guid  path      string  true  "Card GUID"
// @Success      200   {object}  envelope{data=domain.Card}
// @Failure      404   {object}  ErrorBody
// @Router       /mobile/cards/{guid} [get]
func (h *CardHandler) Get(c echo.Context) error {
	userID, role, err := ctxClaims(c)
	if err != nil {
		return err
	}

	card, err := h.cardService.GetCard(c.Request().Context(), ports.GetCardInput{
		GUID:   c.Param("guid"),
		UserID: userID,
		Role:   role,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, card)
}

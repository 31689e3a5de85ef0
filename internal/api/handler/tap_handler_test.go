package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sipcard/dispense/internal/core/domain"
	"github.com/sipcard/dispense/internal/core/ports"
	"github.com/sipcard/dispense/internal/infrastructure/queue"
)

type stubQueue struct {
	err  error
	taps []ports.TapInput
}

func (q *stubQueue) Enqueue(tap ports.TapInput) error {
	if q.err != nil {
		return q.err
	}
	q.taps = append(q.taps, tap)
	return nil
}

type stubCardService struct {
	createFn func(ctx context.Context, in ports.CreateCardInput) (*domain.Card, error)
	getFn    func(ctx context.Context, in ports.GetCardInput) (*domain.Card, error)
}

func (s *stubCardService) CreateCard(ctx context.Context, in ports.CreateCardInput) (*domain.Card, error) {
	return s.createFn(ctx, in)
}

func (s *stubCardService) GetCard(ctx context.Context, in ports.GetCardInput) (*domain.Card, error) {
	return s.getFn(ctx, in)
}

const guid = "912b3a04-6655-8877-1122-334455667788"

func newTapHandler(q TapQueue) *TapHandler {
	h := NewTapHandler(q, zerolog.Nop())
	h.now = func() time.Time { return time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC) }
	return h
}

func TestTapHandler_Create_FromTagHex(t *testing.T) {
	e := newEcho()
	q := &stubQueue{}
	h := newTapHandler(q)

	rec := httptest.NewRecorder()
	body := `{"tag_hex":"043A2B91556677881122334455667788","dispenser_id":"disp-7","volume_ml":500,"timestamp":"2026-03-01T17:59:30Z"}`
	if err := h.Create(e.NewContext(jsonRequest(http.MethodPost, "/mobile/taps", body), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(q.taps) != 1 {
		t.Fatalf("expected one queued tap, got %d", len(q.taps))
	}
	tap := q.taps[0]
	if tap.CardGUID != guid || tap.DispenserID != "disp-7" || tap.VolumeML != 500 || tap.ID == "" {
		t.Fatalf("unexpected tap %+v", tap)
	}
	data := decodeData(t, rec)
	if data["id"] != tap.ID || data["card_guid"] != guid {
		t.Fatalf("unexpected body %+v", data)
	}
}

func TestTapHandler_Create_Invalid(t *testing.T) {
	e := newEcho()
	h := newTapHandler(&stubQueue{})

	for name, body := range map[string]string{
		"no card":        `{"dispenser_id":"d","volume_ml":500,"timestamp":"2026-03-01T17:59:30Z"}`,
		"both ids":       `{"card_guid":"` + guid + `","tag_hex":"043A2B91556677881122334455667788","dispenser_id":"d","volume_ml":500,"timestamp":"2026-03-01T17:59:30Z"}`,
		"short tag":      `{"tag_hex":"043A2B91","dispenser_id":"d","volume_ml":500,"timestamp":"2026-03-01T17:59:30Z"}`,
		"zero volume":    `{"card_guid":"` + guid + `","dispenser_id":"d","volume_ml":0,"timestamp":"2026-03-01T17:59:30Z"}`,
		"no timestamp":   `{"card_guid":"` + guid + `","dispenser_id":"d","volume_ml":500}`,
		"future tap":     `{"card_guid":"` + guid + `","dispenser_id":"d","volume_ml":500,"timestamp":"2026-03-01T19:00:00Z"}`,
		"no dispenser":   `{"card_guid":"` + guid + `","volume_ml":500,"timestamp":"2026-03-01T17:59:30Z"}`,
		"malformed guid": `{"card_guid":"nope","dispenser_id":"d","volume_ml":500,"timestamp":"2026-03-01T17:59:30Z"}`,
	} {
		err := h.Create(e.NewContext(jsonRequest(http.MethodPost, "/mobile/taps", body), httptest.NewRecorder()))
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestTapHandler_Create_QueueFull(t *testing.T) {
	e := newEcho()
	h := newTapHandler(&stubQueue{err: queue.ErrQueueFull})

	body := `{"card_guid":"` + guid + `","dispenser_id":"d","volume_ml":500,"timestamp":"2026-03-01T17:59:30Z"}`
	err := h.Create(e.NewContext(jsonRequest(http.MethodPost, "/mobile/taps", body), httptest.NewRecorder()))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
}

func TestCardHandler_Create(t *testing.T) {
	e := newEcho()
	h := NewCardHandler(&stubCardService{
		createFn: func(_ context.Context, in ports.CreateCardInput) (*domain.Card, error) {
			if in.TagHex == "" || in.OwnerID != "u1" || in.BalanceCents != 5000 {
				t.Fatalf("unexpected input %+v", in)
			}
			return &domain.Card{GUID: guid, OwnerID: in.OwnerID, BalanceCents: in.BalanceCents, Status: domain.CardActive}, nil
		},
	})

	rec := httptest.NewRecorder()
	body := `{"tag_hex":"04:3A:2B:91:55:66:77:88:11:22:33:44:55:66:77:88","owner_id":"u1","balance_cents":5000}`
	if err := h.Create(e.NewContext(jsonRequest(http.MethodPost, "/mobile/cards", body), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated || decodeData(t, rec)["guid"] != guid {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	err := h.Create(e.NewContext(jsonRequest(http.MethodPost, "/mobile/cards", `{"owner_id":"u1","balance_cents":-5}`), httptest.NewRecorder()))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCardHandler_Get(t *testing.T) {
	e := newEcho()
	h := NewCardHandler(&stubCardService{
		getFn: func(_ context.Context, in ports.GetCardInput) (*domain.Card, error) {
			if in.UserID != "u1" {
				return nil, domain.ErrCardNotFound
			}
			return &domain.Card{GUID: in.GUID, OwnerID: "u1", BalanceCents: 400, Status: domain.CardActive}, nil
		},
	})

	newCtx := func(user string) (echo.Context, *httptest.ResponseRecorder) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/mobile/cards/"+guid, nil), rec)
		c.SetPath("/mobile/cards/:guid")
		c.SetParamNames("guid")
		c.SetParamValues(guid)
		c.Set(CtxUserID, user)
		c.Set(CtxRole, domain.RoleMember)
		return c, rec
	}

	c, rec := newCtx("u1")
	if err := h.Get(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if decodeData(t, rec)["balance_cents"] != float64(400) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	c, _ = newCtx("u2")
	if err := h.Get(c); !errors.Is(err, domain.ErrCardNotFound) {
		t.Fatalf("expected ErrCardNotFound, got %v", err)
	}
}

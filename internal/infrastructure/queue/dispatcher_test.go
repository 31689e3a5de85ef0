package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sipcard/dispense/internal/core/ports"
)

type recordingService struct {
	mu    sync.Mutex
	seen  map[string][]string
	block chan struct{}
	err   error
}

func (s *recordingService) Process(_ context.Context, tap ports.TapInput) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string][]string)
	}
	s.seen[tap.CardGUID] = append(s.seen[tap.CardGUID], tap.ID)
	return s.err
}

func TestDispatcher_PreservesPerCardOrder(t *testing.T) {
	svc := &recordingService{}
	d := NewDispatcher(4, svc, zerolog.Nop())
	d.Start(context.Background())

	const cards, perCard = 10, 20
	for i := 0; i < perCard; i++ {
		for c := 0; c < cards; c++ {
			tap := ports.TapInput{ID: fmt.Sprintf("%d", i), CardGUID: fmt.Sprintf("card-%d", c)}
			if err := d.Enqueue(tap); err != nil {
				t.Fatalf("Enqueue returned error: %v", err)
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	for c := 0; c < cards; c++ {
		ids := svc.seen[fmt.Sprintf("card-%d", c)]
		if len(ids) != perCard {
			t.Fatalf("card-%d: expected %d taps, got %d", c, perCard, len(ids))
		}
		for i, id := range ids {
			if id != fmt.Sprintf("%d", i) {
				t.Fatalf("card-%d: out of order at %d: %v", c, i, ids)
			}
		}
	}
}

func TestDispatcher_ShardIsStable(t *testing.T) {
	d := NewDispatcher(0, &recordingService{}, zerolog.Nop())
	if len(d.workers) != defaultWorkers {
		t.Fatalf("expected %d workers, got %d", defaultWorkers, len(d.workers))
	}
	a := d.shardIndex("912b3a04-6655-8877-1122-334455667788")
	for i := 0; i < 10; i++ {
		if d.shardIndex("912b3a04-6655-8877-1122-334455667788") != a {
			t.Fatalf("shard index must be deterministic")
		}
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	svc := &recordingService{block: make(chan struct{})}
	d := NewDispatcher(1, svc, zerolog.Nop())
	// Workers not started: the channel fills up.
	for i := 0; i < channelBuffer; i++ {
		if err := d.Enqueue(ports.TapInput{CardGUID: "g"}); err != nil {
			t.Fatalf("Enqueue %d returned error: %v", i, err)
		}
	}
	if err := d.Enqueue(ports.TapInput{CardGUID: "g"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	close(svc.block)
}

func TestDispatcher_StopRejectsNewTaps(t *testing.T) {
	svc := &recordingService{err: errors.New("boom")}
	d := NewDispatcher(2, svc, zerolog.Nop())
	d.Start(context.Background())
	if err := d.Enqueue(ports.TapInput{ID: "1", CardGUID: "g"}); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	if err := d.Enqueue(ports.TapInput{CardGUID: "g"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if len(svc.seen["g"]) != 1 {
		t.Fatalf("queued tap should be drained even when it fails")
	}
}

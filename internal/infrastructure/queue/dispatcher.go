// Package queue fans taps out to sharded workers.
package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sipcard/dispense/internal/api/metrics"
	"github.com/sipcard/dispense/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// ErrQueueFull is returned by Enqueue when the card's worker is saturated.
var ErrQueueFull = errors.New("tap queue full")

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("tap queue stopped")

// Dispatcher routes taps to a fixed set of workers using consistent hashing
// on the card GUID, so taps on one card are charged in arrival order.
type Dispatcher struct {
	workers []chan ports.TapInput
	service ports.TapService
	log     zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, service ports.TapService, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.TapInput, numWorkers),
		service: service,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.TapInput, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers drain their queue and exit
// after Stop; ctx is passed to the tap service.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands a tap to the worker responsible for its card. It never
// blocks: a full worker queue yields ErrQueueFull.
func (d *Dispatcher) Enqueue(tap ports.TapInput) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	idx := d.shardIndex(tap.CardGUID)
	select {
	case d.workers[idx] <- tap:
		metrics.TapQueueDepth.WithLabelValues(strconv.Itoa(idx)).Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new taps and waits until queued ones are processed or ctx ends.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shardIndex maps a card GUID deterministically to a worker index.
func (d *Dispatcher) shardIndex(cardGUID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(cardGUID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.TapInput) {
	defer d.wg.Done()
	depth := metrics.TapQueueDepth.WithLabelValues(strconv.Itoa(id))

	for tap := range ch {
		depth.Dec()
		start := time.Now()
		result := "ok"
		if err := d.service.Process(ctx, tap); err != nil {
			result = "error"
			d.log.Error().Err(err).
				Str("tap_id", tap.ID).
				Str("guid", tap.CardGUID).
				Int("worker_id", id).
				Msg("tap processing failed")
		}
		metrics.TapProcessingDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
}

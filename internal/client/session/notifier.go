package session

import (
	"sync"
	"sync/atomic"
)

// Notifier broadcasts "session expired" to whoever subscribed, typically the
// UI layer that redirects to sign-in. It also keeps the expired flag so late
// subscribers can read the current state.
type Notifier struct {
	expired atomic.Bool
	sent    atomic.Int64

	mu   sync.Mutex
	next int
	subs map[int]chan struct{}
}

// NewNotifier returns a Notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan struct{})}
}

// Subscribe returns a channel that receives one value per expiry and a func
// that unsubscribes and closes it. Delivery never blocks: a subscriber that
// has not drained the previous signal misses nothing, the signal is already
// pending.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
}

// Expired reports whether the session is currently flagged as expired.
func (n *Notifier) Expired() bool { return n.expired.Load() }

// Sent returns how many expiry notifications were broadcast.
func (n *Notifier) Sent() int64 { return n.sent.Load() }

// claim flips the flag; only the caller that flipped it gets true.
func (n *Notifier) claim() bool { return n.expired.CompareAndSwap(false, true) }

func (n *Notifier) reset() { n.expired.Store(false) }

func (n *Notifier) broadcast() {
	n.sent.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Package metrics defines the custom Prometheus metrics of the dispense API.
// It is the single source of truth for metric names, labels, and help strings.
//
// Metrics register with the default registry on package init (promauto).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dispense"

// ── Auth metrics ──────────────────────────────────────────────────────────────

// SignInsTotal counts sign-in attempts.
// Label:
//   - result: "ok", "invalid_credentials" or "error"
var SignInsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sign_ins_total",
		Help:      "Total number of sign-in attempts, by result.",
	},
	[]string{"result"},
)

// RefreshesTotal counts refresh-token exchanges.
// Label:
//   - result: "ok", "invalid_token", "refresh_reuse" or "error"
var RefreshesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Total number of refresh-token exchanges, by result.",
	},
	[]string{"result"},
)

// ── Tap metrics ───────────────────────────────────────────────────────────────

// TapsChargedTotal counts taps that debited a card.
var TapsChargedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "taps_charged_total",
		Help:      "Total number of taps charged to a card.",
	},
)

// TapsChargedCents sums the amounts charged.
var TapsChargedCents = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "taps_charged_cents_total",
		Help:      "Total amount charged by taps, in cents.",
	},
)

// TapsRejectedTotal counts taps that were not charged.
// Label:
//   - reason: domain error code (e.g. "card_blocked", "insufficient_balance") or "error"
var TapsRejectedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "taps_rejected_total",
		Help:      "Total number of taps rejected, by reason.",
	},
	[]string{"reason"},
)

// TapsDuplicateTotal counts taps skipped by deduplication.
var TapsDuplicateTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "taps_duplicate_total",
		Help:      "Total number of duplicate taps skipped.",
	},
)

// TapQueueDepth tracks the taps waiting in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var TapQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tap_queue_depth",
		Help:      "Current number of taps pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// TapProcessingDuration measures a tap from dequeue to persistence.
// Label:
//   - result: "ok" or "error"
var TapProcessingDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tap_processing_duration_seconds",
		Help:      "Duration of tap processing from dequeue to persistence.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)

// TapRecorder feeds tap outcomes into the counters above.
type TapRecorder struct{}

func (TapRecorder) TapCharged(amountCents int64) {
	TapsChargedTotal.Inc()
	TapsChargedCents.Add(float64(amountCents))
}

func (TapRecorder) TapRejected(reason string) {
	if reason == "" {
		reason = "error"
	}
	TapsRejectedTotal.WithLabelValues(reason).Inc()
}

func (TapRecorder) TapDuplicate() { TapsDuplicateTotal.Inc() }

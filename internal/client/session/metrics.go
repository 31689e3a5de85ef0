package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sipcard_client"

// refreshTotal counts refresh attempts that reached the auth API.
// Label:
//   - result: "ok", "rejected", "network" or "superseded"
var refreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "Total number of token refresh calls, by result.",
	},
	[]string{"result"},
)

// sessionExpiredTotal counts session-expired transitions (after coalescing).
var sessionExpiredTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_expired_total",
		Help:      "Total number of session expiry transitions.",
	},
)

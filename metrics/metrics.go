// Package metrics defines the Prometheus metrics exported by walletauth.
//
// A Recorder is registered against a caller supplied registerer so that
// several clients in one process, or tests, do not collide on the default
// registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/layer-3/walletauth/core"
)

const namespace = "walletauth"

// Token request results
const (
	ResultCacheHit = "cache_hit"
	ResultAcquired = "acquired"
	ResultError    = "error"
)

// Auth flows
const (
	FlowFull     = "full"
	FlowRefresh  = "refresh"
	FlowFallback = "fallback"
)

// Recorder holds the walletauth collectors
type Recorder struct {
	tokenRequests *prometheus.CounterVec
	authFlows     *prometheus.CounterVec
	errors        *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		// Labels:
		//   - result: cache_hit, acquired or error
		tokenRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_requests_total",
				Help:      "Total number of access token requests, by result.",
			},
			[]string{"result"},
		),
		// Labels:
		//   - level: pseudonymous, owner or employee
		//   - flow: full, refresh or fallback
		authFlows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_flows_total",
				Help:      "Total number of successful session acquisitions, by auth level and flow.",
			},
			[]string{"level", "flow"},
		),
		// Labels:
		//   - code: error code or kind, e.g. "NetworkError" or "InvalidInput"
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors returned to callers, by code.",
			},
			[]string{"code"},
		),
	}
}

// TokenRequest counts a token request with the given result
func (r *Recorder) TokenRequest(result string) {
	if r == nil {
		return
	}
	r.tokenRequests.WithLabelValues(result).Inc()
}

// AuthFlow counts a successful session acquisition
func (r *Recorder) AuthFlow(level core.AuthLevel, flow string) {
	if r == nil {
		return
	}
	r.authFlows.WithLabelValues(level.String(), flow).Inc()
}

// Error counts err under its code
func (r *Recorder) Error(err error) {
	if r == nil || err == nil {
		return
	}
	r.errors.WithLabelValues(core.Label(err)).Inc()
}

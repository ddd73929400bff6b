package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "uikit", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "uikit", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	// SessionLogins counts login calls by result: created, merged, rejected, canceled.
	SessionLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "uikit", Subsystem: "session", Name: "logins_total", Help: "Login calls by result."},
		[]string{"result"},
	)
	SessionLogouts = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "uikit", Subsystem: "session", Name: "logouts_total", Help: "Logout calls."},
	)
	// SessionRestores counts startup restores by read outcome.
	SessionRestores = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "uikit", Subsystem: "session", Name: "restores_total", Help: "Session restores by outcome."},
		[]string{"outcome"},
	)
	ProfileUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "uikit", Subsystem: "session", Name: "profile_updates_total", Help: "Applied profile updates."},
	)
	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "uikit", Subsystem: "session", Name: "storage_errors_total", Help: "Swallowed storage failures by operation and backend."},
		[]string{"op", "backend"},
	)
	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "uikit", Subsystem: "session", Name: "active", Help: "1 while a user record is resident."},
	)
	LoginLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "uikit", Subsystem: "session", Name: "login_seconds", Help: "Login wall time including the simulated delay.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5}},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(SessionLogins)
	reg.MustRegister(SessionLogouts)
	reg.MustRegister(SessionRestores)
	reg.MustRegister(ProfileUpdates)
	reg.MustRegister(StorageErrors)
	reg.MustRegister(SessionActive)
	reg.MustRegister(LoginLatency)
}

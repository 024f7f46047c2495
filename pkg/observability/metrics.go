// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the termin gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termin_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "termin_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// DaemonTicksTotal counts publisher daemon ticks by outcome
	// (success, skipped, failed).
	DaemonTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termin_daemon_ticks_total",
			Help: "Publisher daemon ticks",
		},
		[]string{"outcome"},
	)

	// PostsPublishedTotal counts publication attempts by status
	// (published, failed).
	PostsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termin_posts_published_total",
			Help: "Publication attempts",
		},
		[]string{"status"},
	)

	// OAuthExchangesTotal counts upstream authorization-code exchanges
	// by status (ok, error).
	OAuthExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termin_oauth_exchanges_total",
			Help: "OAuth code exchanges",
		},
		[]string{"status"},
	)

	// SessionsIssuedTotal counts session tokens issued after a
	// completed OAuth flow.
	SessionsIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "termin_sessions_issued_total",
			Help: "Session tokens issued",
		},
	)

	// AuthFailuresTotal counts rejected bearer tokens on the request path.
	AuthFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "termin_auth_failures_total",
			Help: "Rejected session tokens",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		DaemonTicksTotal,
		PostsPublishedTotal,
		OAuthExchangesTotal,
		SessionsIssuedTotal,
		AuthFailuresTotal,
	)
}

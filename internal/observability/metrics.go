package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters below.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	SessionPathAccess          = "access"
	SessionPathRefresh         = "refresh"
	SessionPathUnauthenticated = "unauthenticated"
)

var (
	// LoginsTotal counts completed OAuth callbacks, labelled by the reason
	// code handed back to the browser ("ok" on success).
	LoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "logins_total",
		Help:      "OAuth callbacks processed, by outcome.",
	}, []string{"reason"})

	SessionValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "session_validations_total",
		Help:      "Session checks, by the path that decided them.",
	}, []string{"path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "provider_requests_total",
		Help:      "Requests made to the identity provider.",
	}, []string{"operation", "result"})

	CleanupAffectedRows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "cleanup_affected_rows_total",
		Help:      "Stale rows removed by the cleanup worker.",
	})

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(
		LoginsTotal,
		SessionValidationsTotal,
		ProviderRequestsTotal,
		CleanupAffectedRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// MetricsHandler serves the service's registry in the prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

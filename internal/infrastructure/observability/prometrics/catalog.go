package prometrics

import (
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

// Register creates every instrument the service emits on r and returns them
// keyed by name. Unknown keys resolve to no-ops.
func Register(r Registry) observability.Metrics {
	return &metrics{
		counters: map[observability.MetricKey]observability.Counter{
			observability.MUsecaseRequests: r.Counter(string(observability.MUsecaseRequests),
				"Total number of use case invocations.", "use_case", "outcome"),
			observability.MHTTPRequests: r.Counter(string(observability.MHTTPRequests),
				"Total number of HTTP requests.", "method", "route", "status"),
			observability.MExternalRequests: r.Counter(string(observability.MExternalRequests),
				"Calls to collaborators outside the process.", "peer", "endpoint", "outcome"),
			observability.MLowStockAlerts: r.Counter(string(observability.MLowStockAlerts),
				"Stock changes that left a medicine at or below the low-stock threshold.", "medicine_id"),
			observability.MEventPublishFailed: r.Counter(string(observability.MEventPublishFailed),
				"Domain events that could not be published.", "event"),
		},
		histograms: map[observability.MetricKey]observability.Histogram{
			observability.MUsecaseDuration: r.Histogram(string(observability.MUsecaseDuration),
				"Duration of use case execution in seconds.", prometheus.DefBuckets, "use_case"),
			observability.MHTTPRequestDuration: r.Histogram(string(observability.MHTTPRequestDuration),
				"Duration of HTTP requests in seconds.", prometheus.DefBuckets, "method", "route", "status"),
			observability.MExternalRequestDuration: r.Histogram(string(observability.MExternalRequestDuration),
				"Duration of calls to collaborators outside the process.", prometheus.DefBuckets, "peer", "endpoint"),
		},
	}
}

func (m *metrics) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := m.counters[name]; ok {
		return c
	}
	return observability.NopCounter()
}

func (m *metrics) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[name]; ok {
		return h
	}
	return observability.NopHistogram()
}

package opt

import "sync"

type metricsKey struct {
	Tenant   string
	PlanDate string
	Algo     string
}

var (
	metricsMu sync.Mutex
	metricsBy = map[metricsKey]Metrics{}
)

// RecordMetrics keeps the latest solver metrics per (tenant, planDate, algo)
// so the admin endpoints can serve them without a database round trip.
func RecordMetrics(tenant, planDate, algo string, m Metrics) {
	metricsMu.Lock()
	metricsBy[metricsKey{Tenant: tenant, PlanDate: planDate, Algo: algo}] = m
	metricsMu.Unlock()
}

// GetMetrics returns recorded metrics for a tenant and plan date, by algo.
func GetMetrics(tenant, planDate string) map[string]Metrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := map[string]Metrics{}
	for k, v := range metricsBy {
		if k.Tenant == tenant && k.PlanDate == planDate {
			out[k.Algo] = v
		}
	}
	return out
}

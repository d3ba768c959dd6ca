package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type stableMetrics struct {
	mints      *prometheus.CounterVec
	rebalances *prometheus.CounterVec
}

var (
	stableMetricsOnce sync.Once
	stableRegistry    *stableMetrics
)

// Stable returns the metrics registry tracking ledger and rebalancer
// activity.
func Stable() *stableMetrics {
	stableMetricsOnce.Do(func() {
		stableRegistry = &stableMetrics{
			mints: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ausd",
				Subsystem: "stable",
				Name:      "mints_total",
				Help:      "Count of collateral-backed mints segmented by oracle feed.",
			}, []string{"feed"}),
			rebalances: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ausd",
				Subsystem: "rebalance",
				Name:      "executions_total",
				Help:      "Count of corrective trades segmented by regime.",
			}, []string{"regime"}),
		}
		prometheus.MustRegister(stableRegistry.mints, stableRegistry.rebalances)
	})
	return stableRegistry
}

// RecordMint increments the mint counter for the supplied feed label.
func (m *stableMetrics) RecordMint(feed string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(feed))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	m.mints.WithLabelValues(normalized).Inc()
}

// RecordRebalance increments the rebalance counter for the supplied regime.
func (m *stableMetrics) RecordRebalance(regime string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(regime))
	if normalized == "" {
		normalized = "unknown"
	}
	m.rebalances.WithLabelValues(normalized).Inc()
}

package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MortgageMetrics records lifecycle engine activity.
type MortgageMetrics struct {
	operations *prometheus.CounterVec
}

// ConversionMetrics records settlement engine activity.
type ConversionMetrics struct {
	credits    *prometheus.CounterVec
	fills      *prometheus.CounterVec
	queueDepth *prometheus.GaugeVec
}

var (
	mortgageMetricsOnce sync.Once
	mortgageRegistry    *MortgageMetrics

	conversionMetricsOnce sync.Once
	conversionRegistry    *ConversionMetrics
)

// Mortgage returns the lazily-initialised mortgage metrics registry.
func Mortgage() *MortgageMetrics {
	mortgageMetricsOnce.Do(func() {
		mortgageRegistry = &MortgageMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lien",
				Subsystem: "mortgage",
				Name:      "operations_total",
				Help:      "Completed lifecycle operations segmented by operation.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(mortgageRegistry.operations)
	})
	return mortgageRegistry
}

// ObserveOperation records one completed lifecycle operation.
func (m *MortgageMetrics) ObserveOperation(operation string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation).Inc()
}

// Conversion returns the lazily-initialised settlement metrics registry.
func Conversion() *ConversionMetrics {
	conversionMetricsOnce.Do(func() {
		conversionRegistry = &ConversionMetrics{
			credits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lien",
				Subsystem: "conversion",
				Name:      "credits_spent_total",
				Help:      "Settlement credits spent segmented by collateral.",
			}, []string{"collateral"}),
			fills: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lien",
				Subsystem: "conversion",
				Name:      "fills_total",
				Help:      "Conversion fills segmented by collateral and completeness.",
			}, []string{"collateral", "kind"}),
			queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lien",
				Subsystem: "conversion",
				Name:      "queue_depth",
				Help:      "Current supply and demand queue depths.",
			}, []string{"collateral", "queue"}),
		}
		prometheus.MustRegister(
			conversionRegistry.credits,
			conversionRegistry.fills,
			conversionRegistry.queueDepth,
		)
	})
	return conversionRegistry
}

// ObserveCredit records one spent settlement credit.
func (m *ConversionMetrics) ObserveCredit(collateral string) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(collateral).Inc()
}

// ObserveFill records a conversion fill; kind is "full" or "partial".
func (m *ConversionMetrics) ObserveFill(collateral, kind string) {
	if m == nil {
		return
	}
	m.fills.WithLabelValues(collateral, kind).Inc()
}

// SetQueueDepth records the current depth of one queue side.
func (m *ConversionMetrics) SetQueueDepth(collateral, queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(collateral, queue).Set(float64(depth))
}

// Package metrics exposes Prometheus collectors for ledger writes and stock
// aggregation. Collectors live on a dedicated registry so tests can build as
// many instances as they like without clashing on the global one.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/stock-ledger/ledger"
)

// Outcome label values.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation"
	OutcomeNotFound   = "not_found"
	OutcomeConflict   = "conflict"
	OutcomeIntegrity  = "integrity"
	OutcomeTransient  = "transient"
	OutcomeError      = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	writes          *prometheus.CounterVec
	unitDuration    *prometheus.HistogramVec
	aggregationTime prometheus.Histogram
	skippedLines    prometheus.Counter
}

// New builds the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_writes_total",
			Help: "Ledger write attempts by operation, kind and outcome.",
		}, []string{"op", "kind", "outcome"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_unit_duration_seconds",
			Help:    "Duration of ledger write operations including validation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		aggregationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stock_aggregation_duration_seconds",
			Help:    "Time spent replaying the ledger into stock positions.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		skippedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_skipped_lines_total",
			Help: "Malformed lines skipped during stock aggregation.",
		}),
	}
	m.registry.MustRegister(
		m.writes,
		m.unitDuration,
		m.aggregationTime,
		m.skippedLines,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveWrite implements ledger.WriteObserver.
func (m *Metrics) ObserveWrite(op string, kind ledger.Kind, err error, elapsed time.Duration) {
	k := string(kind)
	if k == "" {
		k = "unknown"
	}
	m.writes.WithLabelValues(op, k, Outcome(err)).Inc()
	m.unitDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveAggregation implements stock.Observer.
func (m *Metrics) ObserveAggregation(elapsed time.Duration, skippedLines int) {
	m.aggregationTime.Observe(elapsed.Seconds())
	if skippedLines > 0 {
		m.skippedLines.Add(float64(skippedLines))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Outcome classifies err into a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ledger.ErrValidation):
		return OutcomeValidation
	case errors.Is(err, ledger.ErrIntegrity):
		return OutcomeIntegrity
	case errors.Is(err, ledger.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ledger.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, ledger.ErrTransientStorage):
		return OutcomeTransient
	default:
		return OutcomeError
	}
}

package telemetry

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "everstore"

var (
	registry atomic.Pointer[prometheus.Registry]
	initOnce sync.Once
)

// Histogram observes sampled values such as latencies.
type Histogram interface {
	Observe(float64)
}

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc()
	Add(float64)
}

// CounterVec resolves a Counter for one set of label values.
type CounterVec interface {
	With(labels ...string) Counter
}

// HistogramVec resolves a Histogram for one set of label values.
type HistogramVec interface {
	With(labels ...string) Histogram
}

// NoopStat discards every observation. It backs all metrics until
// InitializeTelemetry runs.
type NoopStat struct{}

type noopCounterVec struct{}
type noopHistogramVec struct{}

func (n noopCounterVec) With(labels ...string) Counter     { return NoopStat{} }
func (n noopHistogramVec) With(labels ...string) Histogram { return NoopStat{} }

func (n NoopStat) Observe(float64) {}
func (n NoopStat) Inc()            {}
func (n NoopStat) Add(float64)     {}

// The package-level metrics are never reassigned. InitMetrics swaps the
// implementation behind them, so callers may record from any goroutine
// while telemetry is being initialized.
type swapCounterVec struct {
	cur atomic.Pointer[CounterVec]
}

func (s *swapCounterVec) With(labels ...string) Counter {
	if v := s.cur.Load(); v != nil {
		return (*v).With(labels...)
	}
	return NoopStat{}
}

func (s *swapCounterVec) set(v CounterVec) { s.cur.Store(&v) }

type swapHistogramVec struct {
	cur atomic.Pointer[HistogramVec]
}

func (s *swapHistogramVec) With(labels ...string) Histogram {
	if v := s.cur.Load(); v != nil {
		return (*v).With(labels...)
	}
	return NoopStat{}
}

func (s *swapHistogramVec) set(v HistogramVec) { s.cur.Store(&v) }

type swapHistogram struct {
	cur atomic.Pointer[Histogram]
}

func (s *swapHistogram) Observe(v float64) {
	if h := s.cur.Load(); h != nil {
		(*h).Observe(v)
	}
}

func (s *swapHistogram) set(h Histogram) { s.cur.Store(&h) }

type prometheusCounterVec struct {
	vec *prometheus.CounterVec
}

func (p *prometheusCounterVec) With(labelValues ...string) Counter {
	return p.vec.WithLabelValues(labelValues...)
}

type prometheusHistogramVec struct {
	vec *prometheus.HistogramVec
}

func (p *prometheusHistogramVec) With(labelValues ...string) Histogram {
	return p.vec.WithLabelValues(labelValues...)
}

// NewCounterVec registers a labeled counter, or returns a no-op when
// telemetry is not initialized.
func NewCounterVec(name, help string, labels []string) CounterVec {
	reg := registry.Load()
	if reg == nil {
		return noopCounterVec{}
	}

	ret := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)

	reg.MustRegister(ret)
	return &prometheusCounterVec{vec: ret}
}

// NewHistogram registers a histogram, or returns a no-op when telemetry
// is not initialized.
func NewHistogram(name, help string, buckets []float64) Histogram {
	reg := registry.Load()
	if reg == nil {
		return NoopStat{}
	}

	ret := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})

	reg.MustRegister(ret)
	return ret
}

// NewHistogramVec registers a labeled histogram, or returns a no-op when
// telemetry is not initialized.
func NewHistogramVec(name, help string, labels []string, buckets []float64) HistogramVec {
	reg := registry.Load()
	if reg == nil {
		return noopHistogramVec{}
	}

	ret := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)

	reg.MustRegister(ret)
	return &prometheusHistogramVec{vec: ret}
}

// InitializeTelemetry creates the Prometheus registry and the metrics in it.
// Without it every metric is a no-op. Safe to call more than once.
func InitializeTelemetry() {
	initOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg.MustRegister(collectors.NewGoCollector())
		registry.Store(reg)

		InitMetrics()
		log.Info().Msg("Prometheus metrics enabled")
	})
}

// GetMetricsHandler returns the HTTP handler for Prometheus metrics.
// Returns nil if telemetry is not initialized.
func GetMetricsHandler() http.Handler {
	reg := registry.Load()
	if reg == nil {
		return nil
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

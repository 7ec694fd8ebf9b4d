// Tracks run-wide scheduler counters on a private Prometheus registry.

package sim

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics aggregates statistics about the run for final reporting.
// Each Metrics owns its registry so concurrent runs (and tests) never share collectors.
type Metrics struct {
	registry *prometheus.Registry

	Launched       prometheus.Counter
	Completed      prometheus.Counter
	LaunchFailures prometheus.Counter
	Exchanges      *prometheus.CounterVec // labelled by reply: continue | terminating
	ActiveWorkers  prometheus.Gauge
	ClockSeconds   prometheus.Gauge     // logical clock, fractional seconds
	Interactions   prometheus.Histogram // non-terminal replies per worker, observed at release
	Lifetimes      prometheus.Histogram // logical seconds between admission and release
}

// NewMetrics creates and registers the scheduler collectors, labelled with runID.
func NewMetrics(runID string) *Metrics {
	labels := prometheus.Labels{"run_id": runID}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Launched: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "oss_workers_launched_total",
			Help:        "Workers launched and admitted into the process table.",
			ConstLabels: labels,
		}),
		Completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "oss_workers_completed_total",
			Help:        "Workers reaped after their terminal reply.",
			ConstLabels: labels,
		}),
		LaunchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "oss_launch_failures_total",
			Help:        "Worker launches that failed and were retried.",
			ConstLabels: labels,
		}),
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "oss_exchanges_total",
			Help:        "Tick/reply round trips, by reply.",
			ConstLabels: labels,
		}, []string{"reply"}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "oss_active_workers",
			Help:        "Occupied process-table slots.",
			ConstLabels: labels,
		}),
		ClockSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "oss_logical_clock_seconds",
			Help:        "Current logical clock.",
			ConstLabels: labels,
		}),
		Interactions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "oss_worker_interactions",
			Help:        "Non-terminal replies per worker.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 8),
		}),
		Lifetimes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "oss_worker_lifetime_seconds",
			Help:        "Logical time between admission and release.",
			ConstLabels: labels,
			Buckets:     prometheus.LinearBuckets(1, 1, 10),
		}),
	}
	m.registry.MustRegister(m.Launched, m.Completed, m.LaunchFailures, m.Exchanges,
		m.ActiveWorkers, m.ClockSeconds, m.Interactions, m.Lifetimes)
	return m
}

// Registry exposes the private registry, e.g. for promhttp or testutil.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeClock(t Timestamp) {
	m.ClockSeconds.Set(float64(t.Seconds) + float64(t.Nanoseconds)/float64(NanosPerSecond))
}

func (m *Metrics) observeRelease(entry ProcessTableEntry, at Timestamp) {
	lived := at.Since(entry.AdmittedAt)
	m.Completed.Inc()
	m.Interactions.Observe(float64(entry.Interactions))
	m.Lifetimes.Observe(float64(lived.Seconds) + float64(lived.Nanoseconds)/float64(NanosPerSecond))
}

// WriteText dumps every collector in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encoding metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

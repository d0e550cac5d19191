// Package metrics records probe and sink outcomes for a single run. A one-shot
// job cannot be scraped, so the registry is pushed to a Pushgateway at exit.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Fallback reasons.
const (
	ReasonNoURI        = "no_uri"
	ReasonWriteFailed  = "write_failed"
	ReasonInvalidEntry = "invalid_entry"
)

// Metrics holds the collectors of one run. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	ProbeRuns     *prometheus.CounterVec
	ProbeDuration prometheus.Gauge
	LastSuccess   prometheus.Gauge
	SinkWrites    *prometheus.CounterVec
	SinkFailures  *prometheus.CounterVec
	FallbackLines *prometheus.CounterVec
}

// New creates Metrics registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ProbeRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pscprobe_probe_runs_total",
				Help: "Total number of probe runs by outcome",
			},
			[]string{"outcome"},
		),

		ProbeDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pscprobe_probe_duration_seconds",
				Help: "Duration of the last probe run in seconds",
			},
		),

		LastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pscprobe_probe_last_success_timestamp_seconds",
				Help: "Unix time of the last successful probe",
			},
		),

		SinkWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pscprobe_sink_writes_total",
				Help: "Total number of log entry writes by backend and result",
			},
			[]string{"backend", "result"},
		),

		SinkFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pscprobe_sink_failures_total",
				Help: "Total number of failed log entry writes by backend",
			},
			[]string{"backend"},
		),

		FallbackLines: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pscprobe_fallback_lines_total",
				Help: "Total number of log entries written to the fallback stream by reason",
			},
			[]string{"reason"},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveProbe records a finished probe run.
func (m *Metrics) ObserveProbe(outcome string, success bool, duration time.Duration, now time.Time) {
	if m == nil {
		return
	}
	m.ProbeRuns.WithLabelValues(outcome).Inc()
	m.ProbeDuration.Set(duration.Seconds())
	if success {
		m.LastSuccess.Set(float64(now.Unix()))
	}
}

// ObserveSinkWrite records one write attempt. backend may be empty when the
// connection string could not be mapped to a backend.
func (m *Metrics) ObserveSinkWrite(backend string, err error) {
	if m == nil {
		return
	}
	if backend == "" {
		backend = "unknown"
	}
	if err != nil {
		m.SinkWrites.WithLabelValues(backend, "failed").Inc()
		m.SinkFailures.WithLabelValues(backend).Inc()
		return
	}
	m.SinkWrites.WithLabelValues(backend, "ok").Inc()
}

// ObserveFallback records one line written to the fallback stream.
func (m *Metrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.FallbackLines.WithLabelValues(reason).Inc()
}

// PushConfig describes the Pushgateway target.
type PushConfig struct {
	URL      string
	Job      string
	Grouping map[string]string
	Timeout  time.Duration
}

// Push sends the registry to the Pushgateway, replacing the previous push of
// the same job and grouping.
func (m *Metrics) Push(ctx context.Context, cfg PushConfig) error {
	if m == nil {
		return nil
	}
	if cfg.URL == "" {
		return fmt.Errorf("pushgateway url is empty")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	pusher := push.New(cfg.URL, cfg.Job).
		Gatherer(m.registry).
		Client(&http.Client{Timeout: timeout})
	for name, value := range cfg.Grouping {
		pusher = pusher.Grouping(name, value)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

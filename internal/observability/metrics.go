// Package observability carries the build's metrics and traces.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fluxbase-eu/funcpack/internal/bundling"
)

// Metrics holds the Prometheus metrics of one funcpack process. It implements
// bundling.Observer.
type Metrics struct {
	registry *prometheus.Registry

	functionsTotal   *prometheus.CounterVec
	functionDuration *prometheus.HistogramVec
	outputBytes      *prometheus.HistogramVec
	warningsTotal    *prometheus.CounterVec

	buildsTotal    *prometheus.CounterVec
	buildDuration  prometheus.Histogram
	lastBuildStamp prometheus.Gauge
}

// NewMetrics creates the metrics on a registry of their own, so several
// builds in one process (watch mode, tests) never collide.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		functionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funcpack_functions_total",
				Help: "Functions processed, by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		functionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "funcpack_function_duration_seconds",
				Help:    "Time to resolve, select and transpile one function",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"strategy"},
		),
		outputBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "funcpack_function_output_bytes",
				Help:    "Size of the emitted code",
				Buckets: prometheus.ExponentialBuckets(256, 4, 10),
			},
			[]string{"strategy"},
		),
		warningsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funcpack_compiler_warnings_total",
				Help: "Warnings reported by the compiler backend",
			},
			[]string{"strategy"},
		),
		buildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funcpack_builds_total",
				Help: "Builds run, by status",
			},
			[]string{"status"},
		),
		buildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "funcpack_build_duration_seconds",
				Help:    "Wall time of a whole build",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		lastBuildStamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "funcpack_last_build_timestamp_seconds",
				Help: "Unix time the last build finished",
			},
		),
	}
}

// ObserveFunction records one finished function
func (m *Metrics) ObserveFunction(result bundling.FunctionResult) {
	strategy := strategyLabel(result.Decision.Strategy)

	m.functionsTotal.WithLabelValues(strategy, outcome(result)).Inc()
	m.functionDuration.WithLabelValues(strategy).Observe(result.Duration.Seconds())

	if result.Output != nil {
		m.outputBytes.WithLabelValues(strategy).Observe(float64(len(result.Output.Code)))
		if n := len(result.Output.Warnings); n > 0 {
			m.warningsTotal.WithLabelValues(strategy).Add(float64(n))
		}
	}
}

// RecordBuild records a finished build
func (m *Metrics) RecordBuild(report *bundling.BuildReport) {
	status := "success"
	if len(report.Failed()) > 0 {
		status = "failed"
	}
	m.buildsTotal.WithLabelValues(status).Inc()
	m.buildDuration.Observe(report.Duration.Seconds())
	m.lastBuildStamp.SetToCurrentTime()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the node_exporter textfile format. The
// file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func strategyLabel(s bundling.Strategy) string {
	if s == "" {
		return string(bundling.StrategyUnselected)
	}
	return string(s)
}

// outcome is "success" or the error class of a failure
func outcome(result bundling.FunctionResult) string {
	if result.Err == nil {
		return "success"
	}
	return string(bundling.Classify(result.Err))
}

package triage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/warden/internal/capability"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	PipelineRuns      *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	PipelineTokensIn  prometheus.Histogram
	PipelineTokensOut prometheus.Histogram
	Classifications   *prometheus.CounterVec
	ClassifyDuration  prometheus.Histogram
	ToolCallsTotal    *prometheus.CounterVec
	ToolDuration      *prometheus.HistogramVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_pipeline_runs_total",
			Help: "Total triage pipeline runs by outcome.",
		}, []string{"outcome"}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_pipeline_duration_seconds",
			Help:    "Duration of triage pipeline runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}, []string{"outcome"}),
		PipelineTokensIn: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_pipeline_tokens_input",
			Help:    "Input tokens consumed per pipeline run.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12), // 100 .. ~409600
		}),
		PipelineTokensOut: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_pipeline_tokens_output",
			Help:    "Output tokens consumed per pipeline run.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12), // 100 .. ~409600
		}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_classifications_total",
			Help: "Total classification runs by result.",
		}, []string{"result"}),
		ClassifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_classification_duration_seconds",
			Help:    "Duration of classification runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_tool_calls_total",
			Help: "Total capability executions by tool name and status.",
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_tool_duration_seconds",
			Help:    "Duration of capability executions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51.2s
		}, []string{"tool"}),
	}

	reg.MustRegister(
		m.PipelineRuns,
		m.PipelineDuration,
		m.PipelineTokensIn,
		m.PipelineTokensOut,
		m.Classifications,
		m.ClassifyDuration,
		m.ToolCallsTotal,
		m.ToolDuration,
	)

	return m
}

// Hooks returns pipeline callbacks that increment the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnAnalysis: func(outcome string, seconds float64, tokensIn, tokensOut int64) {
			m.PipelineRuns.WithLabelValues(outcome).Inc()
			m.PipelineDuration.WithLabelValues(outcome).Observe(seconds)
			m.PipelineTokensIn.Observe(float64(tokensIn))
			m.PipelineTokensOut.Observe(float64(tokensOut))
		},
		OnClassification: func(success bool, seconds float64) {
			result := "success"
			if !success {
				result = "error"
			}
			m.Classifications.WithLabelValues(result).Inc()
			m.ClassifyDuration.Observe(seconds)
		},
	}
}

// ToolObserver returns a capability.Observer that records per-call metrics.
func (m *Metrics) ToolObserver() capability.Observer {
	return func(tool string, durationMs int64, success bool) {
		status := "success"
		if !success {
			status = "error"
		}
		m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
		m.ToolDuration.WithLabelValues(tool).Observe(float64(durationMs) / 1000)
	}
}

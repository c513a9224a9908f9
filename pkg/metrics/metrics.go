// Package metrics exposes layer activation telemetry as Prometheus
// collectors. A Collector plugs into a contextl.Registry as its reporter and
// activation logger, and into rule sets as their evaluator logger.
package metrics

import (
	"context"

	contextl "github.com/goliatone/go-contextl"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector provides layer activation metrics collection.
type Collector struct {
	registry *prometheus.Registry

	activations       *prometheus.CounterVec
	activationLatency prometheus.Histogram
	stackDepth        prometheus.Histogram
	cacheHits         prometheus.Counter
	hookFailures      prometheus.Counter
	diagnostics       *prometheus.CounterVec
	ruleEvaluations   *prometheus.CounterVec
	ruleLatency       *prometheus.HistogramVec
}

var (
	_ contextl.Reporter         = (*Collector)(nil)
	_ contextl.ActivationLogger = (*Collector)(nil)
	_ contextl.EvaluatorLogger  = (*Collector)(nil)
)

// NewCollector creates a collector registered in its own Prometheus registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "contextl"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.activations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activation",
			Name:      "total",
			Help:      "Total number of activation requests",
		},
		[]string{"result"},
	)
	c.activationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "activation",
			Name:      "duration_seconds",
			Help:      "Time spent expanding an activation request",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10), // 1µs to ~260ms
		},
	)
	c.stackDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "activation",
			Name:      "stack_depth",
			Help:      "Number of active layers after a successful activation",
			Buckets:   prometheus.LinearBuckets(1, 2, 8),
		},
	)
	c.cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activation",
			Name:      "cache_hits_total",
			Help:      "Total number of expansions served from a layer cache",
		},
	)
	c.hookFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activation",
			Name:      "hook_failures_total",
			Help:      "Total number of activations whose activity hooks failed",
		},
	)
	c.diagnostics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "diagnostics_total",
			Help:      "Total number of ordering diagnostics by layer and kind",
		},
		[]string{"layer", "kind"},
	)
	c.ruleEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "evaluations_total",
			Help:      "Total number of activation rule evaluations",
		},
		[]string{"engine", "layer", "result"},
	)
	c.ruleLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating an activation rule",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
		},
		[]string{"engine"},
	)

	c.registry.MustRegister(
		c.activations,
		c.activationLatency,
		c.stackDepth,
		c.cacheHits,
		c.hookFailures,
		c.diagnostics,
		c.ruleEvaluations,
		c.ruleLatency,
	)
	return c
}

// Registry returns the Prometheus registry holding the collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Options returns the registry options that install the collector.
func (c *Collector) Options() []contextl.Option {
	return []contextl.Option{
		contextl.WithReporter(c),
		contextl.WithActivationLogger(c),
	}
}

// Report counts a resolver diagnostic.
func (c *Collector) Report(_ context.Context, diagnostic contextl.Diagnostic) {
	c.diagnostics.WithLabelValues(diagnostic.Layer, string(diagnostic.Kind)).Inc()
}

// LogActivation records an activation request.
func (c *Collector) LogActivation(event contextl.ActivationLogEvent) {
	c.activations.WithLabelValues(result(event.Err)).Inc()
	c.activationLatency.Observe(event.Duration.Seconds())
	c.cacheHits.Add(float64(event.CacheHits))
	if event.HookErr != nil {
		c.hookFailures.Inc()
	}
	if event.Err == nil {
		c.stackDepth.Observe(float64(len(event.Result)))
	}
}

// LogEvaluation records an activation rule evaluation.
func (c *Collector) LogEvaluation(event contextl.EvaluatorLogEvent) {
	c.ruleEvaluations.WithLabelValues(event.Engine, event.Layer, result(event.Err)).Inc()
	c.ruleLatency.WithLabelValues(event.Engine).Observe(event.Duration.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

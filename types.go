package contextl

import (
	"time"

	"github.com/goliatone/go-contextl/pkg/activity"
)

// Option configures a Registry.
type Option func(*registryConfig)

type registryConfig struct {
	reporter      Reporter
	logger        ActivationLogger
	activityHooks activity.Hooks
	channel       string
}

func applyOptions(opts []Option) registryConfig {
	cfg := registryConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (cfg registryConfig) reporterOrNoop() Reporter {
	if cfg.reporter != nil {
		return cfg.reporter
	}
	return noopReporter{}
}

func (cfg registryConfig) loggerOrNoop() ActivationLogger {
	if cfg.logger != nil {
		return cfg.logger
	}
	return noopActivationLogger{}
}

// WithReporter installs the sink that receives resolver diagnostics for
// layers defined in the registry.
func WithReporter(reporter Reporter) Option {
	return func(cfg *registryConfig) {
		cfg.reporter = reporter
	}
}

// RuleContext carries the inputs of one activation rule evaluation.
type RuleContext struct {
	Snapshot any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
	// Layers lists the names of the layers active when the rule runs, most
	// precedent first. Filled in by RuleSet when left empty.
	Layers []string
	// Layer names the layer the rule would activate.
	Layer string
}

func (rc RuleContext) withDefaults() RuleContext {
	if rc.Now == nil {
		now := time.Now()
		rc.Now = &now
	}
	if rc.Args == nil {
		rc.Args = map[string]any{}
	}
	if rc.Metadata == nil {
		rc.Metadata = map[string]any{}
	}
	if rc.Layers == nil {
		rc.Layers = []string{}
	}
	return rc
}

func (rc RuleContext) layerLabel() string {
	if rc.Layer != "" {
		return rc.Layer
	}
	return "unknown"
}

// Evaluator compiles activation rule expressions for one engine.
type Evaluator interface {
	// Engine names the expression language, e.g. "expr" or "cel".
	Engine() string
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule is a reusable expression program.
type CompiledRule interface {
	Evaluate(rc RuleContext) (any, error)
}

package contextl

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoEvaluator indicates no evaluator could be configured for a rule set.
var ErrNoEvaluator = errors.New("contextl: evaluator not configured")

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// Rule activates Layer whenever the When expression evaluates to true.
// Evaluator overrides the rule set's engine for this rule only.
type Rule struct {
	Layer     *Layer
	When      string
	Evaluator Evaluator
}

// RuleSetOption configures a RuleSet.
type RuleSetOption func(*ruleSetConfig)

type ruleSetConfig struct {
	evaluator    Evaluator
	programCache ProgramCache
	functions    *FunctionRegistry
	logger       EvaluatorLogger
	errs         []error
}

// WithEvaluator selects the expression engine. Defaults to expr.
func WithEvaluator(e Evaluator) RuleSetOption {
	return func(cfg *ruleSetConfig) {
		cfg.evaluator = e
	}
}

// WithProgramCache registers a program cache used by the default evaluator.
// It is ignored when WithEvaluator supplies the engine.
func WithProgramCache(cache ProgramCache) RuleSetOption {
	return func(cfg *ruleSetConfig) {
		cfg.programCache = cache
	}
}

// WithEvaluatorLogger attaches an evaluator logger to the rule set.
func WithEvaluatorLogger(logger EvaluatorLogger) RuleSetOption {
	return func(cfg *ruleSetConfig) {
		if logger == nil {
			cfg.logger = noopEvaluatorLogger{}
			return
		}
		cfg.logger = logger
	}
}

type compiledActivationRule struct {
	layer    *Layer
	expr     string
	engine   string
	compiled CompiledRule
}

// RuleSet decides which layers to activate from expressions evaluated against
// a RuleContext. Expressions see the snapshot keys plus now, args, metadata,
// layers (active names, most precedent first) and layer (the rule's target).
type RuleSet struct {
	rules     []compiledActivationRule
	evaluator Evaluator
	logger    EvaluatorLogger
}

// NewRuleSet compiles rules up front so syntax errors surface before any
// activation.
func NewRuleSet(rules []Rule, opts ...RuleSetOption) (*RuleSet, error) {
	cfg := ruleSetConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := errors.Join(cfg.errs...); err != nil {
		return nil, err
	}
	evaluator, err := resolveEvaluator(cfg)
	if err != nil {
		return nil, err
	}
	rs := &RuleSet{
		evaluator: evaluator,
		logger:    cfg.logger,
		rules:     make([]compiledActivationRule, 0, len(rules)),
	}
	if rs.logger == nil {
		rs.logger = noopEvaluatorLogger{}
	}
	for _, rule := range rules {
		if rule.Layer == nil {
			return nil, fmt.Errorf("contextl: rule %q: %w", rule.When, ErrNilLayer)
		}
		if rule.When == "" {
			return nil, fmt.Errorf("contextl: rule for layer %s: expression must not be empty", rule.Layer.Name())
		}
		ruleEvaluator := evaluator
		if rule.Evaluator != nil {
			ruleEvaluator = rule.Evaluator
		}
		engine := evaluatorEngineName(ruleEvaluator)
		compiled, err := ruleEvaluator.Compile(rule.When)
		if err != nil {
			return nil, wrapEvaluationError(engine, rule.When, rule.Layer.Name(), err)
		}
		rs.rules = append(rs.rules, compiledActivationRule{
			layer:    rule.Layer,
			expr:     rule.When,
			engine:   engine,
			compiled: compiled,
		})
	}
	return rs, nil
}

// Match returns the layers whose rule holds, in rule order. Layers already
// active in ctx are still returned when their rule holds.
func (rs *RuleSet) Match(ctx context.Context, rc RuleContext) ([]*Layer, error) {
	if rs == nil {
		return nil, nil
	}
	if rc.Layers == nil {
		rc.Layers = ActiveLayers(ctx).Names()
	}
	rc = rc.withDefaults()

	var matched []*Layer
	for _, rule := range rs.rules {
		rc.Layer = rule.layer.Name()
		start := time.Now()
		value, err := rule.compiled.Evaluate(rc)
		err = wrapEvaluationError(rule.engine, rule.expr, rc.layerLabel(), err)
		if err == nil {
			if _, ok := value.(bool); !ok {
				err = wrapEvaluationError(rule.engine, rule.expr, rc.layerLabel(), fmt.Errorf("expected bool result, got %T", value))
			}
		}
		rs.logger.LogEvaluation(EvaluatorLogEvent{
			Engine:   rule.engine,
			Expr:     rule.expr,
			Layer:    rc.layerLabel(),
			Duration: time.Since(start),
			Err:      err,
		})
		if err != nil {
			return nil, err
		}
		if value.(bool) && !containsLayer(matched, rule.layer) {
			matched = append(matched, rule.layer)
		}
	}
	return matched, nil
}

// Activate activates every matching layer on top of ctx. The first matching
// rule gets the highest precedence.
func (rs *RuleSet) Activate(ctx context.Context, rc RuleContext) (context.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	matched, err := rs.Match(ctx, rc)
	if err != nil {
		return ctx, err
	}
	if len(matched) == 0 {
		return ctx, nil
	}
	return Activate(ctx, matched...)
}

func resolveEvaluator(cfg ruleSetConfig) (Evaluator, error) {
	if cfg.evaluator != nil {
		return cfg.evaluator, nil
	}
	evaluator := NewExprEvaluator(EvaluatorCache(cfg.programCache), EvaluatorFunctions(cfg.functions))
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	return evaluator, nil
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	if engine := e.Engine(); engine != "" {
		return engine
	}
	return "custom"
}

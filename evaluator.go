package contextl

import (
	"slices"
)

// EvaluatorOption configures an expression engine.
type EvaluatorOption func(*evaluatorConfig)

type evaluatorConfig struct {
	cache     ProgramCache
	functions *FunctionRegistry
}

// EvaluatorCache stores compiled programs in cache. Keys are prefixed with
// the engine name so engines can share one cache.
func EvaluatorCache(cache ProgramCache) EvaluatorOption {
	return func(cfg *evaluatorConfig) {
		cfg.cache = cache
	}
}

// EvaluatorFunctions exposes the functions of registry to expressions. The
// registry is copied; later registrations are not seen.
func EvaluatorFunctions(registry *FunctionRegistry) EvaluatorOption {
	return func(cfg *evaluatorConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

func applyEvaluatorOptions(opts []EvaluatorOption) evaluatorConfig {
	cfg := evaluatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (cfg evaluatorConfig) cached(engine, expr string) (any, bool) {
	if cfg.cache == nil {
		return nil, false
	}
	return cfg.cache.Get(engine + ":" + expr)
}

func (cfg evaluatorConfig) store(engine, expr string, program any) {
	if cfg.cache != nil {
		cfg.cache.Set(engine+":"+expr, program)
	}
}

// Names bound by every engine. Snapshot keys and custom functions cannot
// shadow them.
var reservedBindings = []string{"now", "args", "metadata", "layers", "layer", "rank", "active", "precedes"}

func isReservedBinding(name string) bool {
	return slices.Contains(reservedBindings, name)
}

// ruleVariables returns the variables visible to an expression: snapshot
// keys first, then the rule context bindings.
func ruleVariables(rc RuleContext) map[string]any {
	vars := map[string]any{}
	if snapshot, ok := rc.Snapshot.(map[string]any); ok {
		for key, value := range snapshot {
			vars[key] = value
		}
	}
	vars["now"] = *rc.Now
	vars["args"] = rc.Args
	vars["metadata"] = rc.Metadata
	vars["layers"] = rc.Layers
	vars["layer"] = rc.Layer
	vars["rank"] = layerRanks(rc.Layers)
	return vars
}

// layerRanks maps each active layer name to its position; 0 is the most
// precedent layer.
func layerRanks(layers []string) map[string]int64 {
	ranks := make(map[string]int64, len(layers))
	for i, name := range layers {
		ranks[name] = int64(i)
	}
	return ranks
}

// layerPredicates returns active(name) and precedes(a, b) bound to layers.
func layerPredicates(layers []string) (func(string) bool, func(string, string) bool) {
	active := func(name string) bool {
		return slices.Contains(layers, name)
	}
	precedes := func(a, b string) bool {
		i, j := slices.Index(layers, a), slices.Index(layers, b)
		return i >= 0 && j >= 0 && i < j
	}
	return active, precedes
}

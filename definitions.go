package contextl

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-contextl/internal/hydrate"
	"gopkg.in/yaml.v3"
)

// ErrUnknownEngine indicates a rule definition names an expression engine
// that is not available in this build.
var ErrUnknownEngine = errors.New("contextl: unknown rule engine")

// LayerDefinition is the declarative form of a Define call.
type LayerDefinition struct {
	Name           string   `json:"name" yaml:"name"`
	RequiredBefore []string `json:"required_before,omitempty" yaml:"required_before,omitempty"`
	RequiredAfter  []string `json:"required_after,omitempty" yaml:"required_after,omitempty"`
	WarnOnOddities bool     `json:"warn_on_oddities" yaml:"warn_on_oddities"`
	// Cacheable defaults to true when omitted.
	Cacheable *bool `json:"cacheable,omitempty" yaml:"cacheable,omitempty"`
}

func (d LayerDefinition) descriptor() Descriptor {
	desc := DefaultDescriptor()
	desc.RequiredBefore = d.RequiredBefore
	desc.RequiredAfter = d.RequiredAfter
	desc.WarnOnOddities = d.WarnOnOddities
	if d.Cacheable != nil {
		desc.Cacheable = *d.Cacheable
	}
	return desc
}

// RuleDefinition is the declarative form of a Rule. Engine is one of "expr"
// (default), "cel" or "js".
type RuleDefinition struct {
	Layer  string `json:"layer" yaml:"layer"`
	When   string `json:"when" yaml:"when"`
	Engine string `json:"engine,omitempty" yaml:"engine,omitempty"`
}

// Definitions is a declarative set of layers and activation rules.
type Definitions struct {
	Layers []LayerDefinition `json:"layers" yaml:"layers"`
	Rules  []RuleDefinition  `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// Loaded is the outcome of loading definitions into a registry.
type Loaded struct {
	Layers []*Layer
	Rules  []Rule
}

// DecodeDefinitions converts a loosely typed payload (decoded JSON or YAML)
// into Definitions. source names the payload in error messages.
func DecodeDefinitions(source string, payload map[string]any) (Definitions, error) {
	decoder := hydrate.NewDecoder[Definitions](
		hydrate.Strict[Definitions](),
		hydrate.WithNormalizer[Definitions](normalizeRequirementKeys),
		hydrate.WithValidator[Definitions](validateDefinitions),
	)
	return decoder.Decode(hydrate.Origin{Source: source, Section: "definitions"}, payload)
}

// LoadDefinitions decodes payload and defines every layer in registry. All
// definitions are validated before the first layer is defined, so a rejected
// payload leaves the registry untouched.
func LoadDefinitions(registry *Registry, payload map[string]any) (Loaded, error) {
	defs, err := DecodeDefinitions("payload", payload)
	if err != nil {
		return Loaded{}, err
	}
	return registry.Load(defs)
}

// LoadDefinitionsJSON is LoadDefinitions for a JSON document.
func LoadDefinitionsJSON(registry *Registry, data []byte) (Loaded, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return Loaded{}, fmt.Errorf("contextl: parse json definitions: %w", err)
	}
	defs, err := DecodeDefinitions("json", payload)
	if err != nil {
		return Loaded{}, err
	}
	return registry.Load(defs)
}

// LoadDefinitionsYAML is LoadDefinitions for a YAML document.
func LoadDefinitionsYAML(registry *Registry, data []byte) (Loaded, error) {
	var payload map[string]any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return Loaded{}, fmt.Errorf("contextl: parse yaml definitions: %w", err)
	}
	defs, err := DecodeDefinitions("yaml", payload)
	if err != nil {
		return Loaded{}, err
	}
	return registry.Load(defs)
}

// Load defines the layers of defs and binds its rules to them. Rule engines
// are built without a program cache or custom functions; use NewRuleSet with
// options when those are needed.
func (r *Registry) Load(defs Definitions) (Loaded, error) {
	if r == nil {
		return Loaded{}, errors.New("contextl: registry is nil")
	}
	if err := validateDefinitions(hydrate.Origin{}, &defs); err != nil {
		return Loaded{}, err
	}
	defined := make(map[string]struct{}, len(defs.Layers))
	for _, def := range defs.Layers {
		if err := validateDescriptor(def.Name, def.descriptor()); err != nil {
			return Loaded{}, err
		}
		defined[def.Name] = struct{}{}
	}
	engines := map[string]Evaluator{}
	for _, rule := range defs.Rules {
		if _, ok := engines[rule.Engine]; ok {
			continue
		}
		evaluator, err := evaluatorForEngine(rule.Engine)
		if err != nil {
			return Loaded{}, err
		}
		engines[rule.Engine] = evaluator
	}

	// The name checks and the inserts happen under one lock so a concurrent
	// Define cannot leave a rejected payload half applied.
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range defs.Layers {
		if _, exists := r.layers[def.Name]; exists {
			return Loaded{}, fmt.Errorf("%w: %s", ErrDuplicateLayer, def.Name)
		}
	}
	for _, rule := range defs.Rules {
		if _, ok := defined[rule.Layer]; ok {
			continue
		}
		if _, ok := r.layers[rule.Layer]; !ok {
			return Loaded{}, fmt.Errorf("contextl: rule %q: %w: %q", rule.When, ErrUnknownLayer, rule.Layer)
		}
	}

	loaded := Loaded{Layers: make([]*Layer, 0, len(defs.Layers))}
	for _, def := range defs.Layers {
		loaded.Layers = append(loaded.Layers, r.insertLocked(def.Name, def.descriptor().clone()))
	}
	for _, rule := range defs.Rules {
		loaded.Rules = append(loaded.Rules, Rule{
			Layer:     r.layers[rule.Layer],
			When:      rule.When,
			Evaluator: engines[rule.Engine],
		})
	}
	return loaded, nil
}

func evaluatorForEngine(engine string) (Evaluator, error) {
	var evaluator Evaluator
	switch strings.ToLower(engine) {
	case "", "expr":
		evaluator = NewExprEvaluator()
	case "cel":
		evaluator = NewCELEvaluator()
	case "js", "javascript":
		if !jsEvaluatorAvailable() {
			return nil, fmt.Errorf("%w: %q requires the js_eval build tag", ErrUnknownEngine, engine)
		}
		evaluator = NewJSEvaluator()
	}
	if evaluator == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
	return evaluator, nil
}

// normalizeRequirementKeys accepts "before"/"after" as shorthands for the
// requirement lists.
func normalizeRequirementKeys(_ hydrate.Origin, payload map[string]any) error {
	raw, ok := payload["layers"].([]any)
	if !ok {
		return nil
	}
	for i, item := range raw {
		layer, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("layers[%d]: expected object, got %T", i, item)
		}
		for short, long := range map[string]string{"before": "required_before", "after": "required_after"} {
			value, ok := layer[short]
			if !ok {
				continue
			}
			if _, dup := layer[long]; dup {
				return fmt.Errorf("layers[%d]: both %q and %q set", i, short, long)
			}
			delete(layer, short)
			layer[long] = value
		}
	}
	return nil
}

func validateDefinitions(_ hydrate.Origin, defs *Definitions) error {
	if defs == nil {
		return errors.New("contextl: definitions are nil")
	}
	seen := make(map[string]struct{}, len(defs.Layers))
	for i, def := range defs.Layers {
		if def.Name == "" {
			return fmt.Errorf("layers[%d]: %w", i, ErrLayerNameRequired)
		}
		if _, dup := seen[def.Name]; dup {
			return fmt.Errorf("layers[%d]: %w: %s", i, ErrDuplicateLayer, def.Name)
		}
		seen[def.Name] = struct{}{}
	}
	for i, rule := range defs.Rules {
		if rule.Layer == "" {
			return fmt.Errorf("rules[%d]: %w", i, ErrLayerNameRequired)
		}
		if strings.TrimSpace(rule.When) == "" {
			return fmt.Errorf("rules[%d]: expression must not be empty", i)
		}
	}
	return nil
}

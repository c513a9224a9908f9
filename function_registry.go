package contextl

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrReservedFunction indicates a custom function name collides with a rule
// binding such as layers or active.
var ErrReservedFunction = errors.New("contextl: function name is reserved")

// Function is a custom helper callable from activation rules.
type Function func(args ...any) (any, error)

// FunctionRegistry holds the custom helpers available to rule expressions.
// Names are case-insensitive and stored lowercased.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry returns an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: make(map[string]Function)}
}

// Register adds fn under name. Reserved and duplicate names are rejected.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	key := strings.ToLower(strings.TrimSpace(name))
	switch {
	case key == "":
		return errors.New("contextl: function name must not be empty")
	case fn == nil:
		return fmt.Errorf("contextl: function %q is nil", name)
	case isReservedBinding(key):
		return fmt.Errorf("%w: %s", ErrReservedFunction, key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("contextl: function %q already registered", key)
	}
	r.functions[key] = fn
	return nil
}

// Clone returns an independent copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{functions: make(map[string]Function, len(r.functions))}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call runs the function registered under name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	fn, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("contextl: function %q not registered", name)
	}
	return fn(args...)
}

func (r *FunctionRegistry) lookup(name string) (Function, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[strings.ToLower(name)]
	return fn, ok
}

// Names returns the registered names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithFunctionRegistry exposes the functions of registry to the rule set's
// default engine.
func WithFunctionRegistry(registry *FunctionRegistry) RuleSetOption {
	return func(cfg *ruleSetConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn for the rule set's default engine. A
// rejected name surfaces from NewRuleSet.
func WithCustomFunction(name string, fn Function) RuleSetOption {
	return func(cfg *ruleSetConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		if err := cfg.functions.Register(name, fn); err != nil {
			cfg.errs = append(cfg.errs, err)
		}
	}
}

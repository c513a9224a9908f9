//go:build js_eval

package contextl

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

const engineJS = "js"

type jsEvaluator struct {
	cfg evaluatorConfig
}

// NewJSEvaluator returns a rule engine backed by goja. Each evaluation runs
// in a fresh runtime.
func NewJSEvaluator(opts ...EvaluatorOption) Evaluator {
	return &jsEvaluator{cfg: applyEvaluatorOptions(opts)}
}

func (e *jsEvaluator) Engine() string {
	return engineJS
}

func (e *jsEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluationError(engineJS, expression, "", errors.New("expression must not be empty"))
	}
	if cached, ok := e.cfg.cached(engineJS, expression); ok {
		if program, ok := cached.(*goja.Program); ok {
			return &jsRule{evaluator: e, expression: expression, program: program}, nil
		}
	}
	program, err := goja.Compile("rule", fmt.Sprintf("(function(){ return (%s); })()", expression), true)
	if err != nil {
		return nil, wrapEvaluationError(engineJS, expression, "", err)
	}
	e.cfg.store(engineJS, expression, program)
	return &jsRule{evaluator: e, expression: expression, program: program}, nil
}

type jsRule struct {
	evaluator  *jsEvaluator
	expression string
	program    *goja.Program
}

func (r *jsRule) Evaluate(rc RuleContext) (any, error) {
	rc = rc.withDefaults()
	vm := goja.New()
	for name, value := range ruleVariables(rc) {
		if err := vm.Set(name, value); err != nil {
			return nil, wrapEvaluationError(engineJS, r.expression, rc.layerLabel(), err)
		}
	}
	active, precedes := layerPredicates(rc.Layers)
	_ = vm.Set("active", active)
	_ = vm.Set("precedes", precedes)
	functions := r.evaluator.cfg.functions
	for _, name := range functions.Names() {
		fn, _ := functions.lookup(name)
		_ = vm.Set(name, fn)
	}

	value, err := vm.RunProgram(r.program)
	if err != nil {
		return nil, wrapEvaluationError(engineJS, r.expression, rc.layerLabel(), err)
	}
	return value.Export(), nil
}

func jsEvaluatorAvailable() bool {
	return true
}

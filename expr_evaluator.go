package contextl

import (
	"errors"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

const engineExpr = "expr"

// exprEvaluator runs activation rules with github.com/expr-lang/expr.
type exprEvaluator struct {
	cfg evaluatorConfig
}

// NewExprEvaluator returns the default rule engine.
func NewExprEvaluator(opts ...EvaluatorOption) Evaluator {
	return &exprEvaluator{cfg: applyEvaluatorOptions(opts)}
}

func (e *exprEvaluator) Engine() string {
	return engineExpr
}

func (e *exprEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluationError(engineExpr, expression, "", errors.New("expression must not be empty"))
	}
	if cached, ok := e.cfg.cached(engineExpr, expression); ok {
		if program, ok := cached.(*exprvm.Program); ok {
			return &exprRule{expression: expression, program: program}, nil
		}
	}

	options := []exprlang.Option{
		exprlang.Env(exprCompileEnv()),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range e.cfg.functions.Names() {
		fn, _ := e.cfg.functions.lookup(name)
		options = append(options, exprlang.Function(name, fn))
	}
	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, wrapEvaluationError(engineExpr, expression, "", err)
	}
	e.cfg.store(engineExpr, expression, program)
	return &exprRule{expression: expression, program: program}, nil
}

// exprCompileEnv declares the typed bindings. Values are supplied per run.
func exprCompileEnv() map[string]any {
	active, precedes := layerPredicates(nil)
	return map[string]any{
		"layers":   []string{},
		"layer":    "",
		"rank":     map[string]int64{},
		"active":   active,
		"precedes": precedes,
	}
}

type exprRule struct {
	expression string
	program    *exprvm.Program
}

func (r *exprRule) Evaluate(rc RuleContext) (any, error) {
	rc = rc.withDefaults()
	env := ruleVariables(rc)
	env["active"], env["precedes"] = layerPredicates(rc.Layers)
	result, err := exprlang.Run(r.program, env)
	if err != nil {
		return nil, wrapEvaluationError(engineExpr, r.expression, rc.layerLabel(), err)
	}
	return result, nil
}

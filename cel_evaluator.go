package contextl

import (
	"errors"
	"fmt"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common"
	"github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

const engineCEL = "cel"

// Custom functions are declared for up to this many dynamic arguments.
const celMaxFunctionArity = 3

type celEvaluator struct {
	cfg evaluatorConfig
}

// NewCELEvaluator returns a rule engine backed by cel-go. Expressions are type
// checked at compile time; snapshot keys are not known then, so CEL rules
// reach the snapshot through the snapshot variable.
func NewCELEvaluator(opts ...EvaluatorOption) Evaluator {
	return &celEvaluator{cfg: applyEvaluatorOptions(opts)}
}

func (e *celEvaluator) Engine() string {
	return engineCEL
}

func (e *celEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluationError(engineCEL, expression, "", errors.New("expression must not be empty"))
	}
	if cached, ok := e.cfg.cached(engineCEL, expression); ok {
		if program, ok := cached.(celgo.Program); ok {
			return &celRule{expression: expression, program: program}, nil
		}
	}

	env, err := e.environment()
	if err != nil {
		return nil, wrapEvaluationError(engineCEL, expression, "", err)
	}
	checked, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluationError(engineCEL, expression, "", issues.Err())
	}
	program, err := env.Program(checked)
	if err != nil {
		return nil, wrapEvaluationError(engineCEL, expression, "", err)
	}
	e.cfg.store(engineCEL, expression, program)
	return &celRule{expression: expression, program: program}, nil
}

func (e *celEvaluator) environment() (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("snapshot", celgo.DynType),
		celgo.Variable("now", celgo.TimestampType),
		celgo.Variable("args", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("metadata", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("layers", celgo.ListType(celgo.StringType)),
		celgo.Variable("layer", celgo.StringType),
		celgo.Variable("rank", celgo.MapType(celgo.StringType, celgo.IntType)),
		celgo.Macros(
			celgo.GlobalMacro("active", 1, expandActive),
			celgo.GlobalMacro("precedes", 2, expandPrecedes),
		),
	}
	for _, name := range e.cfg.functions.Names() {
		opts = append(opts, e.functionDecl(name))
	}
	return celgo.NewEnv(opts...)
}

// expandActive rewrites active(x) into x in layers.
func expandActive(eh celgo.MacroExprFactory, _ ast.Expr, args []ast.Expr) (ast.Expr, *common.Error) {
	return eh.NewCall(operators.In, args[0], eh.NewIdent("layers")), nil
}

// expandPrecedes rewrites precedes(a, b) into a rank comparison guarded by
// membership of both names.
func expandPrecedes(eh celgo.MacroExprFactory, _ ast.Expr, args []ast.Expr) (ast.Expr, *common.Error) {
	a, b := args[0], args[1]
	both := eh.NewCall(operators.LogicalAnd,
		eh.NewCall(operators.In, eh.Copy(a), eh.NewIdent("rank")),
		eh.NewCall(operators.In, eh.Copy(b), eh.NewIdent("rank")),
	)
	less := eh.NewCall(operators.Less,
		eh.NewCall(operators.Index, eh.NewIdent("rank"), a),
		eh.NewCall(operators.Index, eh.NewIdent("rank"), b),
	)
	return eh.NewCall(operators.LogicalAnd, both, less), nil
}

// functionDecl declares name for zero to celMaxFunctionArity dynamic
// arguments, each overload calling into the registry.
func (e *celEvaluator) functionDecl(name string) celgo.EnvOption {
	fn, _ := e.cfg.functions.lookup(name)
	call := func(values ...ref.Val) ref.Val {
		args := make([]any, len(values))
		for i, value := range values {
			args[i] = value.Value()
		}
		result, err := fn(args...)
		if err != nil {
			return types.NewErr("%s: %v", name, err)
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}

	overloads := make([]celgo.FunctionOpt, 0, celMaxFunctionArity+1)
	for arity := 0; arity <= celMaxFunctionArity; arity++ {
		params := make([]*celgo.Type, arity)
		for i := range params {
			params[i] = celgo.DynType
		}
		id := fmt.Sprintf("%s_dyn_%d", name, arity)
		var binding celgo.OverloadOpt
		switch arity {
		case 1:
			binding = celgo.UnaryBinding(func(v ref.Val) ref.Val { return call(v) })
		case 2:
			binding = celgo.BinaryBinding(func(a, b ref.Val) ref.Val { return call(a, b) })
		default:
			binding = celgo.FunctionBinding(call)
		}
		overloads = append(overloads, celgo.Overload(id, params, celgo.DynType, binding))
	}
	return celgo.Function(name, overloads...)
}

type celRule struct {
	expression string
	program    celgo.Program
}

func (r *celRule) Evaluate(rc RuleContext) (any, error) {
	rc = rc.withDefaults()
	out, _, err := r.program.Eval(map[string]any{
		"snapshot": celSnapshot(rc.Snapshot),
		"now":      *rc.Now,
		"args":     rc.Args,
		"metadata": rc.Metadata,
		"layers":   rc.Layers,
		"layer":    rc.Layer,
		"rank":     layerRanks(rc.Layers),
	})
	if err != nil {
		return nil, wrapEvaluationError(engineCEL, r.expression, rc.layerLabel(), err)
	}
	return out.Value(), nil
}

func celSnapshot(value any) any {
	if value == nil {
		return map[string]any{}
	}
	return value
}

package contextl

import (
	"errors"
	"fmt"
)

// EvaluationError reports an activation rule that failed to compile or
// evaluate, naming the engine, the expression and the target layer.
type EvaluationError struct {
	Engine string
	Expr   string
	Layer  string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	expr := "expr=<empty>"
	if e.Expr != "" {
		expr = fmt.Sprintf("expr=%q", e.Expr)
	}
	return fmt.Sprintf("contextl: %s rule %s layer=%s: %v", e.Engine, expr, describeLayer(e.Layer), e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// wrapEvaluationError attaches rule metadata to err. An EvaluationError
// already in the chain only has its missing fields filled.
func wrapEvaluationError(engine, expr, layer string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Layer == "" {
			evalErr.Layer = layer
		}
		return evalErr
	}
	return &EvaluationError{Engine: engine, Expr: expr, Layer: layer, Err: err}
}

//go:build !js_eval

package contextl

// NewJSEvaluator returns nil unless the binary is built with the js_eval tag.
// Definitions naming the js engine are rejected with ErrUnknownEngine.
func NewJSEvaluator(...EvaluatorOption) Evaluator {
	return nil
}

func jsEvaluatorAvailable() bool {
	return false
}

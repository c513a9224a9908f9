package contextl

import (
	"errors"
	"fmt"
)

// ErrDuplicateMethod indicates an operation already has a method registered
// for the same layer and qualifier.
var ErrDuplicateMethod = errors.New("contextl: method already registered")

// ActivationError captures the layer whose expansion failed alongside the
// originating error. The active stack is never modified when one is returned.
type ActivationError struct {
	Layer string
	Err   error
}

func (e *ActivationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("contextl: activate layer=%s: %v", describeLayer(e.Layer), e.Err)
}

func (e *ActivationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeLayer(name string) string {
	if name == "" {
		return "<unnamed>"
	}
	return name
}

package contextl

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoApplicableMethod indicates an operation without a default primary was
// called while no active layer supplied one.
var ErrNoApplicableMethod = errors.New("contextl: no applicable primary method")

// Qualifier determines how a layered method combines with the others.
type Qualifier string

const (
	QualifierPrimary Qualifier = "primary"
	QualifierBefore  Qualifier = "before"
	QualifierAfter   Qualifier = "after"
	QualifierAround  Qualifier = "around"
)

// Func is a primary method body.
type Func[A, R any] func(ctx context.Context, args A) (R, error)

// Hook is a before or after method body. It runs for side effects only.
type Hook[A any] func(ctx context.Context, args A) error

// AroundFunc wraps the rest of the combination. Calling next continues with
// the next less precedent around method, or the before/primary/after
// combination when none remain. Not calling next short-circuits the call.
type AroundFunc[A, R any] func(ctx context.Context, args A, next Func[A, R]) (R, error)

// Operation is a layered function: a default primary plus per-layer,
// per-qualifier variants resolved against the active stack on every call.
type Operation[A, R any] struct {
	name string
	def  Func[A, R]

	mu      sync.RWMutex
	primary map[*Layer]Func[A, R]
	before  map[*Layer]Hook[A]
	after   map[*Layer]Hook[A]
	around  map[*Layer]AroundFunc[A, R]
}

// NewOperation defines a layered operation with its default (unlayered)
// primary method.
func NewOperation[A, R any](name string, def Func[A, R]) *Operation[A, R] {
	return &Operation[A, R]{
		name:    name,
		def:     def,
		primary: make(map[*Layer]Func[A, R]),
		before:  make(map[*Layer]Hook[A]),
		after:   make(map[*Layer]Hook[A]),
		around:  make(map[*Layer]AroundFunc[A, R]),
	}
}

// Name returns the operation name.
func (op *Operation[A, R]) Name() string {
	return op.name
}

// Primary registers the primary method supplied by layer.
func (op *Operation[A, R]) Primary(layer *Layer, fn Func[A, R]) error {
	return register(op, layer, QualifierPrimary, fn == nil, func() map[*Layer]Func[A, R] { return op.primary }, fn)
}

// Before registers a method that runs ahead of the primary.
func (op *Operation[A, R]) Before(layer *Layer, fn Hook[A]) error {
	return register(op, layer, QualifierBefore, fn == nil, func() map[*Layer]Hook[A] { return op.before }, fn)
}

// After registers a method that runs once the primary succeeded.
func (op *Operation[A, R]) After(layer *Layer, fn Hook[A]) error {
	return register(op, layer, QualifierAfter, fn == nil, func() map[*Layer]Hook[A] { return op.after }, fn)
}

// Around registers a method wrapping the whole combination.
func (op *Operation[A, R]) Around(layer *Layer, fn AroundFunc[A, R]) error {
	return register(op, layer, QualifierAround, fn == nil, func() map[*Layer]AroundFunc[A, R] { return op.around }, fn)
}

func register[A, R, F any](op *Operation[A, R], layer *Layer, q Qualifier, isNil bool, table func() map[*Layer]F, fn F) error {
	if layer == nil {
		return fmt.Errorf("contextl: %s %s method: %w", op.name, q, ErrNilLayer)
	}
	if isNil {
		return fmt.Errorf("contextl: %s %s method for layer %s is nil", op.name, q, layer.name)
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	methods := table()
	if _, exists := methods[layer]; exists {
		return fmt.Errorf("%w: %s %s for layer %s", ErrDuplicateMethod, op.name, q, layer.name)
	}
	methods[layer] = fn
	return nil
}

// Qualifiers lists the qualifiers layer supplies for this operation.
func (op *Operation[A, R]) Qualifiers(layer *Layer) []Qualifier {
	op.mu.RLock()
	defer op.mu.RUnlock()
	var out []Qualifier
	if _, ok := op.around[layer]; ok {
		out = append(out, QualifierAround)
	}
	if _, ok := op.before[layer]; ok {
		out = append(out, QualifierBefore)
	}
	if _, ok := op.primary[layer]; ok {
		out = append(out, QualifierPrimary)
	}
	if _, ok := op.after[layer]; ok {
		out = append(out, QualifierAfter)
	}
	return out
}

type layerMethod[F any] struct {
	layer *Layer
	fn    F
}

// plan is the effective method for one stack. It is computed once per call;
// layers activated by around methods do not change it.
type plan[A, R any] struct {
	around  []layerMethod[AroundFunc[A, R]]
	before  []layerMethod[Hook[A]]
	primary layerMethod[Func[A, R]]
	after   []layerMethod[Hook[A]]
}

func (op *Operation[A, R]) effective(stack Stack) plan[A, R] {
	op.mu.RLock()
	defer op.mu.RUnlock()
	var p plan[A, R]
	for _, layer := range stack.layers {
		if fn, ok := op.around[layer]; ok {
			p.around = append(p.around, layerMethod[AroundFunc[A, R]]{layer: layer, fn: fn})
		}
		if fn, ok := op.before[layer]; ok {
			p.before = append(p.before, layerMethod[Hook[A]]{layer: layer, fn: fn})
		}
		if fn, ok := op.primary[layer]; ok && p.primary.fn == nil {
			p.primary = layerMethod[Func[A, R]]{layer: layer, fn: fn}
		}
	}
	for i := len(stack.layers) - 1; i >= 0; i-- {
		layer := stack.layers[i]
		if fn, ok := op.after[layer]; ok {
			p.after = append(p.after, layerMethod[Hook[A]]{layer: layer, fn: fn})
		}
	}
	if p.primary.fn == nil {
		p.primary.fn = op.def
	}
	return p
}

// Call resolves the operation against the layers active in ctx.
func (op *Operation[A, R]) Call(ctx context.Context, args A) (R, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p := op.effective(ActiveLayers(ctx))
	return op.run(ctx, args, p, nil)
}

// CallWithTrace behaves like Call and also returns the methods that ran, in
// execution order.
func (op *Operation[A, R]) CallWithTrace(ctx context.Context, args A) (R, Trace, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	stack := ActiveLayers(ctx)
	trace := Trace{Operation: op.name, Stack: stack.Names()}
	result, err := op.run(ctx, args, op.effective(stack), &trace)
	if err != nil {
		trace.Err = err.Error()
	}
	return result, trace, err
}

func (op *Operation[A, R]) run(ctx context.Context, args A, p plan[A, R], trace *Trace) (R, error) {
	var chain func(i int) Func[A, R]
	chain = func(i int) Func[A, R] {
		if i >= len(p.around) {
			return func(ctx context.Context, args A) (R, error) {
				return op.combine(ctx, args, p, trace)
			}
		}
		m := p.around[i]
		return func(ctx context.Context, args A) (R, error) {
			trace.record(QualifierAround, m.layer)
			return m.fn(ctx, args, chain(i+1))
		}
	}
	return chain(0)(ctx, args)
}

func (op *Operation[A, R]) combine(ctx context.Context, args A, p plan[A, R], trace *Trace) (R, error) {
	var zero R
	for _, m := range p.before {
		trace.record(QualifierBefore, m.layer)
		if err := m.fn(ctx, args); err != nil {
			return zero, fmt.Errorf("contextl: %s before method of layer %s: %w", op.name, m.layer.name, err)
		}
	}
	if p.primary.fn == nil {
		return zero, fmt.Errorf("%w: %s", ErrNoApplicableMethod, op.name)
	}
	trace.record(QualifierPrimary, p.primary.layer)
	result, err := p.primary.fn(ctx, args)
	if err != nil {
		return zero, err
	}
	for _, m := range p.after {
		trace.record(QualifierAfter, m.layer)
		if err := m.fn(ctx, args); err != nil {
			return zero, fmt.Errorf("contextl: %s after method of layer %s: %w", op.name, m.layer.name, err)
		}
	}
	return result, nil
}

package contextl

import (
	"context"
	"errors"
	"time"
)

type stackKey struct{}

// ActiveLayers returns the active layer stack carried by ctx. A context that
// never went through Activate has an empty stack.
func ActiveLayers(ctx context.Context) Stack {
	if ctx == nil {
		return Stack{}
	}
	if stack, ok := ctx.Value(stackKey{}).(Stack); ok {
		return stack
	}
	return Stack{}
}

// IsActive reports whether layer is active in ctx.
func IsActive(ctx context.Context, layer *Layer) bool {
	return ActiveLayers(ctx).Contains(layer)
}

func withStack(ctx context.Context, stack Stack) context.Context {
	return context.WithValue(ctx, stackKey{}, stack)
}

// Activate returns a child of ctx in which layers, and every layer their
// descriptors require, are active. Requests are folded right to left so the
// first listed layer ends up with the highest precedence.
//
// On error ctx is returned unchanged and no diagnostics are reported. The
// parent context never observes the new stack, so dropping the returned
// context restores the previous stack on every exit path.
func Activate(ctx context.Context, layers ...*Layer) (context.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	base := ActiveLayers(ctx)
	registries := registriesOf(layers)

	exp := &expansion{}
	result := base
	var err error
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i] == nil {
			err = &ActivationError{Err: ErrNilLayer}
			break
		}
		if result, err = exp.expandRoot(layers[i], result); err != nil {
			break
		}
	}
	if err != nil {
		logActivation(registries, ActivationLogEvent{
			Requested: layerNames(layers),
			Result:    base.Names(),
			Duration:  time.Since(start),
			CacheHits: exp.cacheHits,
			Err:       err,
		})
		return ctx, err
	}

	exp.commitCache()
	var hookErrs []error
	for _, pending := range exp.diagnostics {
		reg := pending.layer.registry
		if reg == nil {
			continue
		}
		reg.cfg.reporterOrNoop().Report(ctx, pending.diagnostic.clone())
		if hookErr := reg.emitDiagnostic(ctx, pending.diagnostic, result); hookErr != nil {
			hookErrs = append(hookErrs, hookErr)
		}
	}
	requested := layerNames(layers)
	for _, reg := range registries {
		if hookErr := reg.emitActivated(ctx, requested, result); hookErr != nil {
			hookErrs = append(hookErrs, hookErr)
		}
	}
	logActivation(registries, ActivationLogEvent{
		Requested: requested,
		Result:    result.Names(),
		Duration:  time.Since(start),
		CacheHits: exp.cacheHits,
		HookErr:   errors.Join(hookErrs...),
	})
	return withStack(ctx, result), nil
}

// Deactivate returns a child of ctx with exactly the named layers removed.
// Layers that were activated to satisfy their requirements stay active.
func Deactivate(ctx context.Context, layers ...*Layer) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	base := ActiveLayers(ctx)
	next := base.without(layers...)
	if next.Len() == base.Len() {
		return ctx
	}
	return withStack(ctx, next)
}

// WithLayers runs body with layers active and returns its result. The
// caller's stack is untouched once body returns, panics included.
func WithLayers[T any](ctx context.Context, layers []*Layer, body func(context.Context) (T, error)) (T, error) {
	inner, err := Activate(ctx, layers...)
	if err != nil {
		var zero T
		return zero, err
	}
	return body(inner)
}

// WithoutLayers runs body with layers deactivated and returns its result.
func WithoutLayers[T any](ctx context.Context, layers []*Layer, body func(context.Context) (T, error)) (T, error) {
	return body(Deactivate(ctx, layers...))
}

func registriesOf(layers []*Layer) []*Registry {
	var out []*Registry
	for _, layer := range layers {
		if layer == nil || layer.registry == nil {
			continue
		}
		seen := false
		for _, reg := range out {
			if reg == layer.registry {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, layer.registry)
		}
	}
	return out
}

func logActivation(registries []*Registry, event ActivationLogEvent) {
	for _, reg := range registries {
		reg.cfg.loggerOrNoop().LogActivation(event)
	}
}

package contextl

import (
	"fmt"
)

// cachedExpansion is the single expansion a layer remembers. key is the
// base stack with the layer and its required-before layers removed.
type cachedExpansion struct {
	key    string
	result Stack
}

type pendingDiagnostic struct {
	layer      *Layer
	diagnostic Diagnostic
}

type cacheWrite struct {
	layer *Layer
	entry cachedExpansion
}

// deferredConstraint records a requirement on a layer that was still being
// expanded further up the call chain; it is checked against the final stack.
type deferredConstraint struct {
	layer  *Layer
	dep    *Layer
	before bool
}

func (c deferredConstraint) satisfied(s Stack) bool {
	if c.before {
		return s.Precedes(c.dep, c.layer)
	}
	return s.Precedes(c.layer, c.dep)
}

// expansion accumulates the side effects of one activation request. Nothing
// it gathers is published until the whole request succeeds.
type expansion struct {
	path        []*Layer
	deferred    []deferredConstraint
	diagnostics []pendingDiagnostic
	writes      []cacheWrite
	cacheHits   int
	// volatile counts expansions of non-cacheable layers that may warn. A
	// root that reached one is not cached, so the warning repeats.
	volatile int
}

// expandRoot expands a top-level request and verifies every requirement that
// could not be placed eagerly because of a cycle in the descriptors.
func (e *expansion) expandRoot(layer *Layer, s Stack) (Stack, error) {
	e.deferred = e.deferred[:0]
	next, err := e.expand(layer, s)
	if err != nil {
		return s, err
	}
	for _, c := range e.deferred {
		if !c.satisfied(next) {
			kind := "after"
			if c.before {
				kind = "before"
			}
			return s, &ActivationError{
				Layer: c.layer.Name(),
				Err:   fmt.Errorf("%w: %s must be %s %s", ErrCircularRequirement, c.dep.Name(), kind, c.layer.Name()),
			}
		}
	}
	return next, nil
}

func (e *expansion) expand(layer *Layer, s Stack) (Stack, error) {
	if layer == nil {
		return s, ErrNilLayer
	}
	desc := layer.desc
	befores, err := layer.registry.resolve(layer, desc.RequiredBefore)
	if err != nil {
		return s, err
	}
	afters, err := layer.registry.resolve(layer, desc.RequiredAfter)
	if err != nil {
		return s, err
	}

	// Only top-level requests use the cache: a nested expansion depends on the
	// layers still being placed above it. At the top level the result depends
	// only on the base stack without the layer and its required-before layers.
	cacheable := desc.Cacheable && len(e.path) == 0
	var key string
	if cacheable {
		key = s.without(befores...).without(layer).key()
		if cached := layer.cache.Load(); cached != nil && cached.key == key {
			e.cacheHits++
			return cached.result, nil
		}
	}
	if !desc.Cacheable && desc.WarnOnOddities {
		e.volatile++
	}
	volatileMark := e.volatile

	e.path = append(e.path, layer)
	defer func() { e.path = e.path[:len(e.path)-1] }()
	mark := len(e.deferred)

	var activeBefores, placeBefores []*Layer
	for _, dep := range befores {
		if containsLayer(e.path, dep) {
			e.deferred = append(e.deferred, deferredConstraint{layer: layer, dep: dep, before: true})
			continue
		}
		if containsLayer(placeBefores, dep) {
			continue
		}
		placeBefores = append(placeBefores, dep)
		if s.Contains(dep) {
			activeBefores = append(activeBefores, dep)
		}
	}

	var inactiveAfters []*Layer
	for _, dep := range afters {
		if containsLayer(e.path, dep) {
			e.deferred = append(e.deferred, deferredConstraint{layer: layer, dep: dep})
			continue
		}
		if s.Contains(dep) || containsLayer(inactiveAfters, dep) {
			continue
		}
		inactiveAfters = append(inactiveAfters, dep)
	}

	if desc.WarnOnOddities {
		if len(activeBefores) > 0 {
			e.report(layer, DiagnosticBeforeConflict, activeBefores)
		}
		if len(inactiveAfters) > 0 {
			e.report(layer, DiagnosticAfterAutoActivate, inactiveAfters)
		}
	}

	next := s.without(activeBefores...).without(layer)
	for i := len(inactiveAfters) - 1; i >= 0; i-- {
		if next, err = e.expand(inactiveAfters[i], next); err != nil {
			return s, err
		}
	}
	next = next.push(layer)
	for i := len(placeBefores) - 1; i >= 0; i-- {
		if next, err = e.expand(placeBefores[i], next); err != nil {
			return s, err
		}
	}

	if cacheable && len(e.deferred) == mark && e.volatile == volatileMark {
		e.writes = append(e.writes, cacheWrite{layer: layer, entry: cachedExpansion{key: key, result: next}})
	}
	return next, nil
}

func (e *expansion) report(layer *Layer, kind DiagnosticKind, offending []*Layer) {
	e.diagnostics = append(e.diagnostics, pendingDiagnostic{
		layer: layer,
		diagnostic: Diagnostic{
			Layer:           layer.name,
			Kind:            kind,
			OffendingLayers: layerNames(offending),
		},
	})
}

func (e *expansion) commitCache() {
	for _, w := range e.writes {
		entry := w.entry
		w.layer.cache.Store(&entry)
	}
}

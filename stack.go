package contextl

import (
	"strconv"
	"strings"
)

// Stack is an immutable, ordered set of active layers. Index 0 holds the
// layer with the highest dispatch precedence (the most recently activated).
type Stack struct {
	layers []*Layer
}

// Len returns the number of active layers.
func (s Stack) Len() int {
	return len(s.layers)
}

// Layers returns a copy of the active layers, most precedent first.
func (s Stack) Layers() []*Layer {
	if len(s.layers) == 0 {
		return nil
	}
	out := make([]*Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

// Names returns the active layer names, most precedent first.
func (s Stack) Names() []string {
	if len(s.layers) == 0 {
		return nil
	}
	out := make([]string, len(s.layers))
	for i, layer := range s.layers {
		out[i] = layer.name
	}
	return out
}

// Contains reports whether layer is active in the stack.
func (s Stack) Contains(layer *Layer) bool {
	return s.index(layer) >= 0
}

// Precedes reports whether a has strictly higher precedence than b. Both
// layers must be active.
func (s Stack) Precedes(a, b *Layer) bool {
	ia, ib := s.index(a), s.index(b)
	return ia >= 0 && ib >= 0 && ia < ib
}

func (s Stack) String() string {
	return "[" + strings.Join(s.Names(), " ") + "]"
}

func (s Stack) index(layer *Layer) int {
	if layer == nil {
		return -1
	}
	for i, candidate := range s.layers {
		if candidate == layer {
			return i
		}
	}
	return -1
}

// push places layer at the top of the stack, removing any previous entry.
func (s Stack) push(layer *Layer) Stack {
	out := make([]*Layer, 0, len(s.layers)+1)
	out = append(out, layer)
	for _, candidate := range s.layers {
		if candidate != layer {
			out = append(out, candidate)
		}
	}
	return Stack{layers: out}
}

// without returns a stack with every layer in drop removed.
func (s Stack) without(drop ...*Layer) Stack {
	if len(drop) == 0 || len(s.layers) == 0 {
		return s
	}
	out := make([]*Layer, 0, len(s.layers))
	for _, candidate := range s.layers {
		if !containsLayer(drop, candidate) {
			out = append(out, candidate)
		}
	}
	return Stack{layers: out}
}

// key identifies the exact ordering of the stack for cache lookups.
func (s Stack) key() string {
	if len(s.layers) == 0 {
		return ""
	}
	var b strings.Builder
	for i, layer := range s.layers {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(strconv.FormatUint(layer.id, 36))
	}
	return b.String()
}

func containsLayer(layers []*Layer, layer *Layer) bool {
	for _, candidate := range layers {
		if candidate == layer {
			return true
		}
	}
	return false
}

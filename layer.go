package contextl

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrLayerNameRequired indicates a missing layer name.
	ErrLayerNameRequired = errors.New("contextl: layer name must be provided")
	// ErrDuplicateLayer indicates a registry already holds a layer with the
	// same name.
	ErrDuplicateLayer = errors.New("contextl: layer names must be unique")
	// ErrSelfRequirement indicates a descriptor that lists its own layer as a
	// before or after requirement.
	ErrSelfRequirement = errors.New("contextl: layer cannot require itself")
	// ErrUnknownLayer indicates a descriptor references a layer that was never
	// defined in its registry.
	ErrUnknownLayer = errors.New("contextl: unknown layer")
	// ErrNilLayer indicates a nil *Layer was passed to an activation or
	// registration call.
	ErrNilLayer = errors.New("contextl: layer is nil")
	// ErrCircularRequirement indicates descriptors whose requirements cannot be
	// satisfied by any ordering.
	ErrCircularRequirement = errors.New("contextl: circular layer requirement")
)

var layerSeq atomic.Uint64

// Descriptor declares the ordering and caching policy of a layer. Layer names
// listed in RequiredBefore must wrap outside the layer (higher precedence),
// names in RequiredAfter must sit inside it (lower precedence).
type Descriptor struct {
	RequiredBefore []string `json:"required_before,omitempty" yaml:"required_before,omitempty"`
	RequiredAfter  []string `json:"required_after,omitempty" yaml:"required_after,omitempty"`
	WarnOnOddities bool     `json:"warn_on_oddities" yaml:"warn_on_oddities"`
	Cacheable      bool     `json:"cacheable" yaml:"cacheable"`
}

// DefaultDescriptor returns the base descriptor: no requirements, silent and
// cacheable.
func DefaultDescriptor() Descriptor {
	return Descriptor{Cacheable: true}
}

func (d Descriptor) clone() Descriptor {
	return Descriptor{
		RequiredBefore: slices.Clone(d.RequiredBefore),
		RequiredAfter:  slices.Clone(d.RequiredAfter),
		WarnOnOddities: d.WarnOnOddities,
		Cacheable:      d.Cacheable,
	}
}

// LayerOption configures the descriptor of a layer at definition time.
type LayerOption func(*Descriptor)

// WithRequiredBefore lists layers that must wrap outside the defined layer.
func WithRequiredBefore(names ...string) LayerOption {
	return func(d *Descriptor) {
		d.RequiredBefore = append(d.RequiredBefore, names...)
	}
}

// WithRequiredAfter lists layers that must sit inside the defined layer.
func WithRequiredAfter(names ...string) LayerOption {
	return func(d *Descriptor) {
		d.RequiredAfter = append(d.RequiredAfter, names...)
	}
}

// WithWarnOnOddities toggles diagnostic reporting for ordering fixes.
func WithWarnOnOddities(warn bool) LayerOption {
	return func(d *Descriptor) {
		d.WarnOnOddities = warn
	}
}

// WithCacheable toggles reuse of expansion results.
func WithCacheable(cacheable bool) LayerOption {
	return func(d *Descriptor) {
		d.Cacheable = cacheable
	}
}

// WithDescriptor replaces the whole descriptor. Options applied after it
// still take effect.
func WithDescriptor(desc Descriptor) LayerOption {
	return func(d *Descriptor) {
		*d = desc.clone()
	}
}

// Layer is an immutable, independently activatable unit of behaviour. Layers
// are compared by pointer identity; the name is unique within the registry
// that defined it.
type Layer struct {
	id       uint64
	name     string
	desc     Descriptor
	registry *Registry
	cache    atomic.Pointer[cachedExpansion]
}

// Name returns the layer name.
func (l *Layer) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Descriptor returns a copy of the layer descriptor.
func (l *Layer) Descriptor() Descriptor {
	if l == nil {
		return Descriptor{}
	}
	return l.desc.clone()
}

func (l *Layer) String() string {
	if l == nil {
		return "<nil>"
	}
	return l.name
}

// Registry owns a set of layer definitions along with the reporting and
// logging configuration used when those layers are activated.
type Registry struct {
	mu     sync.RWMutex
	layers map[string]*Layer
	cfg    registryConfig
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		layers: make(map[string]*Layer),
		cfg:    applyOptions(opts),
	}
}

// Define registers a new layer. The descriptor starts from DefaultDescriptor
// and is immutable once the layer is returned.
func (r *Registry) Define(name string, opts ...LayerOption) (*Layer, error) {
	if name == "" {
		return nil, ErrLayerNameRequired
	}
	desc := DefaultDescriptor()
	for _, opt := range opts {
		if opt != nil {
			opt(&desc)
		}
	}
	desc = desc.clone()
	if err := validateDescriptor(name, desc); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.layers[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateLayer, name)
	}
	return r.insertLocked(name, desc), nil
}

// insertLocked adds a validated layer. r.mu must be held for writing and
// name must be free.
func (r *Registry) insertLocked(name string, desc Descriptor) *Layer {
	if r.layers == nil {
		r.layers = make(map[string]*Layer)
	}
	layer := &Layer{
		id:       layerSeq.Add(1),
		name:     name,
		desc:     desc,
		registry: r,
	}
	r.layers[name] = layer
	return layer
}

func validateDescriptor(name string, desc Descriptor) error {
	if slices.Contains(desc.RequiredBefore, name) || slices.Contains(desc.RequiredAfter, name) {
		return fmt.Errorf("%w: %s", ErrSelfRequirement, name)
	}
	for _, before := range desc.RequiredBefore {
		if slices.Contains(desc.RequiredAfter, before) {
			return fmt.Errorf("%w: %s is required both before and after %s", ErrCircularRequirement, before, name)
		}
	}
	return nil
}

// MustDefine is like Define but panics on error. Intended for package-level
// layer declarations.
func (r *Registry) MustDefine(name string, opts ...LayerOption) *Layer {
	layer, err := r.Define(name, opts...)
	if err != nil {
		panic(err)
	}
	return layer
}

// Lookup returns the layer registered under name.
func (r *Registry) Lookup(name string) (*Layer, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	layer, ok := r.layers[name]
	return layer, ok
}

// Names returns registered layer names sorted alphabetically.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.layers))
	for name := range r.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) resolve(owner *Layer, names []string) ([]*Layer, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]*Layer, 0, len(names))
	for _, name := range names {
		layer, ok := r.Lookup(name)
		if !ok {
			return nil, &ActivationError{Layer: owner.Name(), Err: fmt.Errorf("%w: %q", ErrUnknownLayer, name)}
		}
		out = append(out, layer)
	}
	return out, nil
}

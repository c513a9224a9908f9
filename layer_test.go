package contextl

import (
	"errors"
	"slices"
	"testing"
)

func TestDefineAppliesDefaults(t *testing.T) {
	registry := NewRegistry()
	layer, err := registry.Define("base")
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	desc := layer.Descriptor()
	if !desc.Cacheable {
		t.Fatalf("expected layers to be cacheable by default")
	}
	if desc.WarnOnOddities {
		t.Fatalf("expected warnings to be off by default")
	}
	if len(desc.RequiredBefore) != 0 || len(desc.RequiredAfter) != 0 {
		t.Fatalf("expected no requirements, got %#v", desc)
	}
	if layer.Name() != "base" || layer.String() != "base" {
		t.Fatalf("unexpected layer name %q", layer.Name())
	}
}

func TestDefineValidation(t *testing.T) {
	cases := []struct {
		name    string
		layer   string
		opts    []LayerOption
		wantErr error
	}{
		{name: "empty name", layer: "", wantErr: ErrLayerNameRequired},
		{name: "self before", layer: "a", opts: []LayerOption{WithRequiredBefore("a")}, wantErr: ErrSelfRequirement},
		{name: "self after", layer: "a", opts: []LayerOption{WithRequiredAfter("b", "a")}, wantErr: ErrSelfRequirement},
		{name: "before and after", layer: "a", opts: []LayerOption{WithRequiredBefore("b"), WithRequiredAfter("b")}, wantErr: ErrCircularRequirement},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			registry := NewRegistry()
			_, err := registry.Define(tc.layer, tc.opts...)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if len(registry.Names()) != 0 {
				t.Fatalf("rejected layer must not be registered, got %v", registry.Names())
			}
		})
	}
}

func TestDefineRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	registry.MustDefine("audit")
	if _, err := registry.Define("audit"); !errors.Is(err, ErrDuplicateLayer) {
		t.Fatalf("expected ErrDuplicateLayer, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected MustDefine to panic on duplicate")
		}
	}()
	registry.MustDefine("audit")
}

func TestDescriptorIsImmutable(t *testing.T) {
	before := []string{"outer"}
	registry := NewRegistry()
	layer := registry.MustDefine("inner", WithDescriptor(Descriptor{RequiredBefore: before, Cacheable: true}), WithWarnOnOddities(true))

	before[0] = "mutated"
	desc := layer.Descriptor()
	if desc.RequiredBefore[0] != "outer" {
		t.Fatalf("descriptor shares caller slice: %v", desc.RequiredBefore)
	}
	desc.RequiredBefore[0] = "mutated"
	if layer.Descriptor().RequiredBefore[0] != "outer" {
		t.Fatalf("Descriptor must return a copy")
	}
	if !layer.Descriptor().WarnOnOddities {
		t.Fatalf("options after WithDescriptor must still apply")
	}
}

func TestRegistryLookupAndNames(t *testing.T) {
	registry := NewRegistry()
	b := registry.MustDefine("b")
	registry.MustDefine("a")

	got, ok := registry.Lookup("b")
	if !ok || got != b {
		t.Fatalf("lookup returned %v, %v", got, ok)
	}
	if _, ok := registry.Lookup("missing"); ok {
		t.Fatalf("expected missing layer lookup to fail")
	}
	if names := registry.Names(); !slices.Equal(names, []string{"a", "b"}) {
		t.Fatalf("expected sorted names, got %v", names)
	}

	var nilRegistry *Registry
	if _, ok := nilRegistry.Lookup("a"); ok {
		t.Fatalf("nil registry lookup must fail")
	}
}

func TestLayersAreComparedByIdentity(t *testing.T) {
	first := NewRegistry().MustDefine("shared")
	second := NewRegistry().MustDefine("shared")

	stack := Stack{}.push(first)
	if stack.Contains(second) {
		t.Fatalf("layers from different registries must not be interchangeable")
	}
	if stack.key() == (Stack{}.push(second)).key() {
		t.Fatalf("stack keys must differ for distinct layers with equal names")
	}
}

package contextl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to resolve caller for fixture %q", name)
	}
	path := filepath.Join(filepath.Dir(file), "testdata", name)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %q: %v", path, err)
	}
	return raw
}

func TestLoadDefinitionsYAML(t *testing.T) {
	registry := NewRegistry()
	loaded, err := LoadDefinitionsYAML(registry, readFixture(t, "definitions.yaml"))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}

	if names := layerNames(loaded.Layers); !slices.Equal(names, []string{"logging", "tracing", "audit", "storage"}) {
		t.Fatalf("unexpected layers %v", names)
	}
	tracing, _ := registry.Lookup("tracing")
	if desc := tracing.Descriptor(); !slices.Equal(desc.RequiredBefore, []string{"logging"}) || !desc.Cacheable {
		t.Fatalf("shorthand keys not applied: %#v", desc)
	}
	audit, _ := registry.Lookup("audit")
	if desc := audit.Descriptor(); desc.Cacheable || !desc.WarnOnOddities {
		t.Fatalf("unexpected audit descriptor %#v", desc)
	}

	if len(loaded.Rules) != 2 {
		t.Fatalf("expected two rules, got %d", len(loaded.Rules))
	}
	if loaded.Rules[0].Layer != tracing || loaded.Rules[1].Layer != audit {
		t.Fatalf("rules bound to wrong layers: %#v", loaded.Rules)
	}
	if engine := evaluatorEngineName(loaded.Rules[1].Evaluator); engine != "cel" {
		t.Fatalf("expected cel engine for audit rule, got %q", engine)
	}

	rules, err := NewRuleSet(loaded.Rules)
	if err != nil {
		t.Fatalf("new rule set: %v", err)
	}
	ctx, err := rules.Activate(context.Background(), RuleContext{
		Args:     map[string]any{"role": "admin"},
		Metadata: map[string]any{"trace": true},
	})
	if err != nil {
		t.Fatalf("rules activate: %v", err)
	}
	assertStack(t, ctx, "logging", "tracing", "audit", "storage")
}

func TestLoadDefinitionsJSONReproducesScenario(t *testing.T) {
	recorder := &diagnosticRecorder{}
	registry := NewRegistry(WithReporter(recorder))
	if _, err := LoadDefinitionsJSON(registry, readFixture(t, "definitions.json")); err != nil {
		t.Fatalf("load json: %v", err)
	}
	x, ok := registry.Lookup("X")
	if !ok {
		t.Fatalf("expected X to be defined")
	}

	ctx, err := Activate(context.Background(), x)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	assertStack(t, ctx, "Y", "X", "W")
	if len(recorder.kinds(DiagnosticAfterAutoActivate)) != 1 {
		t.Fatalf("expected one auto-activation diagnostic, got %#v", recorder.events)
	}
}

func TestLoadDefinitionsRejectsInvalidPayloads(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
		wantErr error
		wantMsg string
	}{
		{
			name:    "missing name",
			payload: map[string]any{"layers": []any{map[string]any{"cacheable": true}}},
			wantErr: ErrLayerNameRequired,
		},
		{
			name: "duplicate name",
			payload: map[string]any{"layers": []any{
				map[string]any{"name": "a"},
				map[string]any{"name": "a"},
			}},
			wantErr: ErrDuplicateLayer,
		},
		{
			name:    "self requirement",
			payload: map[string]any{"layers": []any{map[string]any{"name": "a"}, map[string]any{"name": "b", "after": []any{"b"}}}},
			wantErr: ErrSelfRequirement,
		},
		{
			name:    "unknown field",
			payload: map[string]any{"layers": []any{map[string]any{"name": "a", "priority": 1}}},
			wantMsg: `unknown field "priority"`,
		},
		{
			name:    "conflicting shorthand",
			payload: map[string]any{"layers": []any{map[string]any{"name": "a", "before": []any{"b"}, "required_before": []any{"b"}}}},
			wantMsg: `both "before" and "required_before" set`,
		},
		{
			name: "rule for unknown layer",
			payload: map[string]any{
				"layers": []any{map[string]any{"name": "a"}},
				"rules":  []any{map[string]any{"layer": "ghost", "when": "true"}},
			},
			wantErr: ErrUnknownLayer,
		},
		{
			name: "unknown engine",
			payload: map[string]any{
				"layers": []any{map[string]any{"name": "a"}},
				"rules":  []any{map[string]any{"layer": "a", "when": "true", "engine": "lua"}},
			},
			wantErr: ErrUnknownEngine,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			registry := NewRegistry()
			_, err := LoadDefinitions(registry, tc.payload)
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.wantMsg != "" && !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected error containing %q, got %v", tc.wantMsg, err)
			}
			if names := registry.Names(); len(names) != 0 {
				t.Fatalf("rejected payload must not define layers, got %v", names)
			}
		})
	}
}

func TestLoadDefinitionsRejectsExistingNames(t *testing.T) {
	registry := NewRegistry()
	registry.MustDefine("b")

	_, err := LoadDefinitions(registry, map[string]any{"layers": []any{
		map[string]any{"name": "a"},
		map[string]any{"name": "b"},
	}})
	if !errors.Is(err, ErrDuplicateLayer) {
		t.Fatalf("expected ErrDuplicateLayer, got %v", err)
	}
	if _, ok := registry.Lookup("a"); ok {
		t.Fatalf("no layer should be defined when any name collides")
	}
}

func TestLoadIsAtomicAgainstConcurrentDefine(t *testing.T) {
	defs := Definitions{Layers: []LayerDefinition{{Name: "a"}, {Name: "b"}, {Name: "c"}}}

	for i := 0; i < 200; i++ {
		registry := NewRegistry()
		start := make(chan struct{})
		var wg sync.WaitGroup
		var defineErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, defineErr = registry.Define("b")
		}()
		close(start)
		loaded, loadErr := registry.Load(defs)
		wg.Wait()

		switch {
		case loadErr != nil:
			if !errors.Is(loadErr, ErrDuplicateLayer) {
				t.Fatalf("expected ErrDuplicateLayer, got %v", loadErr)
			}
			if defineErr != nil {
				t.Fatalf("Load failed but Define failed too: %v", defineErr)
			}
			if names := registry.Names(); !slices.Equal(names, []string{"b"}) {
				t.Fatalf("rejected Load must leave only the concurrent layer, got %v", names)
			}
		default:
			if !errors.Is(defineErr, ErrDuplicateLayer) {
				t.Fatalf("Load won, Define must see a duplicate, got %v", defineErr)
			}
			if names := registry.Names(); !slices.Equal(names, []string{"a", "b", "c"}) {
				t.Fatalf("unexpected layers %v", names)
			}
			if b, _ := registry.Lookup("b"); b != loaded.Layers[1] {
				t.Fatalf("layer b must be the one Load defined")
			}
		}
	}
}

func TestLoadDefinitionsYAMLSyntaxError(t *testing.T) {
	_, err := LoadDefinitionsYAML(NewRegistry(), []byte("layers: [\n"))
	if err == nil || !strings.Contains(err.Error(), "parse yaml definitions") {
		t.Fatalf("expected yaml parse error, got %v", err)
	}
}

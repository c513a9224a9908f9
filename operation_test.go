package contextl

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
)

type callLog struct {
	entries []string
}

func (l *callLog) hook(name string) Hook[int] {
	return func(context.Context, int) error {
		l.entries = append(l.entries, name)
		return nil
	}
}

func (l *callLog) primary(name string, result string) Func[int, string] {
	return func(context.Context, int) (string, error) {
		l.entries = append(l.entries, name)
		return result, nil
	}
}

func combinationFixture(t *testing.T) (*Operation[int, string], *callLog, *Layer, *Layer) {
	t.Helper()
	log := &callLog{}
	registry := NewRegistry()
	a := registry.MustDefine("A")
	z := registry.MustDefine("Z")

	op := NewOperation("render", log.primary("primary", "default"))
	mustRegister(t, op.Before(a, log.hook("A.before")))
	mustRegister(t, op.Before(z, log.hook("Z.before")))
	mustRegister(t, op.After(a, log.hook("A.after")))
	mustRegister(t, op.After(z, log.hook("Z.after")))
	return op, log, a, z
}

func mustRegister(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("register method: %v", err)
	}
}

func TestCombinationOrder(t *testing.T) {
	op, log, a, z := combinationFixture(t)

	ctx, err := Activate(context.Background(), a, z)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	result, err := op.Call(ctx, 1)
	if err != nil {
		t.Fatalf("call: %v", err)
	}

	want := []string{"A.before", "Z.before", "primary", "Z.after", "A.after"}
	if !slices.Equal(log.entries, want) {
		t.Fatalf("expected order %v, got %v", want, log.entries)
	}
	if result != "default" {
		t.Fatalf("expected default primary result, got %q", result)
	}
}

func TestInactiveLayerMethodsDoNotRun(t *testing.T) {
	op, log, _, z := combinationFixture(t)

	ctx, err := Activate(context.Background(), z)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := op.Call(ctx, 1); err != nil {
		t.Fatalf("call: %v", err)
	}
	want := []string{"Z.before", "primary", "Z.after"}
	if !slices.Equal(log.entries, want) {
		t.Fatalf("expected order %v, got %v", want, log.entries)
	}
}

func TestMostPrecedentPrimaryWins(t *testing.T) {
	log := &callLog{}
	registry := NewRegistry()
	a := registry.MustDefine("A")
	z := registry.MustDefine("Z")
	op := NewOperation("render", log.primary("default", "default"))
	mustRegister(t, op.Primary(a, log.primary("A", "from A")))
	mustRegister(t, op.Primary(z, log.primary("Z", "from Z")))

	cases := []struct {
		layers []*Layer
		want   string
	}{
		{layers: nil, want: "default"},
		{layers: []*Layer{z}, want: "from Z"},
		{layers: []*Layer{a, z}, want: "from A"},
		{layers: []*Layer{z, a}, want: "from Z"},
	}
	for _, tc := range cases {
		ctx, err := Activate(context.Background(), tc.layers...)
		if err != nil {
			t.Fatalf("activate: %v", err)
		}
		got, err := op.Call(ctx, 0)
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if got != tc.want {
			t.Fatalf("stack %v: expected %q, got %q", ActiveLayers(ctx), tc.want, got)
		}
	}
}

func TestAroundWrapsCombination(t *testing.T) {
	op, log, a, z := combinationFixture(t)
	mustRegister(t, op.Around(a, func(ctx context.Context, args int, next Func[int, string]) (string, error) {
		log.entries = append(log.entries, "A.around>")
		out, err := next(ctx, args)
		log.entries = append(log.entries, "<A.around")
		return "[" + out + "]", err
	}))
	mustRegister(t, op.Around(z, func(ctx context.Context, args int, next Func[int, string]) (string, error) {
		log.entries = append(log.entries, "Z.around>")
		out, err := next(ctx, args+1)
		log.entries = append(log.entries, "<Z.around")
		return fmt.Sprintf("%s:%d", out, args+1), err
	}))

	ctx, err := Activate(context.Background(), a, z)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	result, err := op.Call(ctx, 1)
	if err != nil {
		t.Fatalf("call: %v", err)
	}

	want := []string{"A.around>", "Z.around>", "A.before", "Z.before", "primary", "Z.after", "A.after", "<Z.around", "<A.around"}
	if !slices.Equal(log.entries, want) {
		t.Fatalf("expected order %v, got %v", want, log.entries)
	}
	if result != "[default:2]" {
		t.Fatalf("unexpected result %q", result)
	}
}

func TestAroundCanShortCircuit(t *testing.T) {
	op, log, a, z := combinationFixture(t)
	mustRegister(t, op.Around(a, func(context.Context, int, Func[int, string]) (string, error) {
		return "cached", nil
	}))

	ctx, err := Activate(context.Background(), a, z)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	result, trace, err := op.CallWithTrace(ctx, 1)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result != "cached" || len(log.entries) != 0 {
		t.Fatalf("expected short-circuit, got %q and %v", result, log.entries)
	}
	if len(trace.Steps) != 1 || trace.Steps[0] != (Step{Qualifier: QualifierAround, Layer: "A"}) {
		t.Fatalf("unexpected trace steps %#v", trace.Steps)
	}
}

func TestBeforeErrorAbortsCall(t *testing.T) {
	op, log, a, z := combinationFixture(t)
	boom := errors.New("refused")
	registry := NewRegistry()
	guard := registry.MustDefine("guard")
	mustRegister(t, op.Before(guard, func(context.Context, int) error { return boom }))

	ctx, err := Activate(context.Background(), a, guard, z)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	_, err = op.Call(ctx, 1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected before error, got %v", err)
	}
	if !slices.Equal(log.entries, []string{"A.before"}) {
		t.Fatalf("expected only A.before to run, got %v", log.entries)
	}
}

func TestPrimaryErrorSkipsAfters(t *testing.T) {
	log := &callLog{}
	layer := NewRegistry().MustDefine("audit")
	boom := errors.New("boom")
	op := NewOperation("save", func(context.Context, int) (string, error) { return "", boom })
	mustRegister(t, op.After(layer, log.hook("audit.after")))

	ctx, err := Activate(context.Background(), layer)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	_, trace, err := op.CallWithTrace(ctx, 1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected primary error, got %v", err)
	}
	if len(log.entries) != 0 {
		t.Fatalf("afters must not run after a failed primary, got %v", log.entries)
	}
	if trace.Err != "boom" {
		t.Fatalf("expected trace to carry the error, got %q", trace.Err)
	}
}

func TestNoApplicableMethod(t *testing.T) {
	layer := NewRegistry().MustDefine("only")
	op := NewOperation[int, int]("abstract", nil)
	mustRegister(t, op.Primary(layer, func(_ context.Context, args int) (int, error) { return args * 2, nil }))

	if _, err := op.Call(context.Background(), 1); !errors.Is(err, ErrNoApplicableMethod) {
		t.Fatalf("expected ErrNoApplicableMethod, got %v", err)
	}
	ctx, err := Activate(context.Background(), layer)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if got, err := op.Call(ctx, 21); err != nil || got != 42 {
		t.Fatalf("expected 42, got %d (%v)", got, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	layer := NewRegistry().MustDefine("audit")
	op := NewOperation("save", func(context.Context, int) (string, error) { return "", nil })

	if err := op.Before(nil, func(context.Context, int) error { return nil }); !errors.Is(err, ErrNilLayer) {
		t.Fatalf("expected ErrNilLayer, got %v", err)
	}
	if err := op.After(layer, nil); err == nil {
		t.Fatalf("expected error for nil method")
	}
	mustRegister(t, op.After(layer, func(context.Context, int) error { return nil }))
	if err := op.After(layer, func(context.Context, int) error { return nil }); !errors.Is(err, ErrDuplicateMethod) {
		t.Fatalf("expected ErrDuplicateMethod, got %v", err)
	}
	mustRegister(t, op.Before(layer, func(context.Context, int) error { return nil }))

	got := op.Qualifiers(layer)
	if !slices.Equal(got, []Qualifier{QualifierBefore, QualifierAfter}) {
		t.Fatalf("unexpected qualifiers %v", got)
	}
	if op.Name() != "save" {
		t.Fatalf("unexpected name %q", op.Name())
	}
}

func TestPlanIsFixedForTheCall(t *testing.T) {
	log := &callLog{}
	registry := NewRegistry()
	outer := registry.MustDefine("outer")
	late := registry.MustDefine("late")
	op := NewOperation("render", log.primary("primary", "default"))
	mustRegister(t, op.Before(late, log.hook("late.before")))
	mustRegister(t, op.Around(outer, func(ctx context.Context, args int, next Func[int, string]) (string, error) {
		inner, err := Activate(ctx, late)
		if err != nil {
			return "", err
		}
		return next(inner, args)
	}))

	ctx, err := Activate(context.Background(), outer)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := op.Call(ctx, 1); err != nil {
		t.Fatalf("call: %v", err)
	}
	if !slices.Equal(log.entries, []string{"primary"}) {
		t.Fatalf("layers activated mid-call must not join the running call, got %v", log.entries)
	}
}

func TestCallWithTraceRoundTrip(t *testing.T) {
	op, _, a, z := combinationFixture(t)
	ctx, err := Activate(context.Background(), a, z)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	_, trace, err := op.CallWithTrace(ctx, 1)
	if err != nil {
		t.Fatalf("call: %v", err)
	}

	wantSteps := []Step{
		{Qualifier: QualifierBefore, Layer: "A"},
		{Qualifier: QualifierBefore, Layer: "Z"},
		{Qualifier: QualifierPrimary},
		{Qualifier: QualifierAfter, Layer: "Z"},
		{Qualifier: QualifierAfter, Layer: "A"},
	}
	if !slices.Equal(trace.Steps, wantSteps) {
		t.Fatalf("unexpected steps %#v", trace.Steps)
	}

	payload, err := trace.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	decoded, err := TraceFromJSON(payload)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if decoded.Operation != "render" || !slices.Equal(decoded.Stack, []string{"A", "Z"}) || !slices.Equal(decoded.Steps, wantSteps) {
		t.Fatalf("round trip mismatch: %#v", decoded)
	}
}

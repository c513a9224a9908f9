package contextl

import (
	"context"
	"slices"
)

// DiagnosticKind classifies a non-fatal ordering fix applied by the resolver.
type DiagnosticKind string

const (
	// DiagnosticBeforeConflict reports required-before layers that were already
	// active beneath the requested layer and had to be re-inserted above it.
	DiagnosticBeforeConflict DiagnosticKind = "BEFORE_CONFLICT"
	// DiagnosticAfterAutoActivate reports required-after layers that were
	// inactive and got activated alongside the requested layer.
	DiagnosticAfterAutoActivate DiagnosticKind = "AFTER_AUTOACTIVATE"
)

// Diagnostic is emitted for layers defined with WarnOnOddities.
type Diagnostic struct {
	Layer           string         `json:"layer"`
	Kind            DiagnosticKind `json:"kind"`
	OffendingLayers []string       `json:"offending_layers"`
}

// Reporter receives resolver diagnostics once an activation has succeeded.
type Reporter interface {
	Report(ctx context.Context, diagnostic Diagnostic)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, diagnostic Diagnostic)

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, diagnostic Diagnostic) {
	if f != nil {
		f(ctx, diagnostic)
	}
}

type noopReporter struct{}

func (noopReporter) Report(context.Context, Diagnostic) {}

// Reporters fans diagnostics out to several reporters in order.
type Reporters []Reporter

// Report implements Reporter.
func (rs Reporters) Report(ctx context.Context, diagnostic Diagnostic) {
	for _, r := range rs {
		if r == nil {
			continue
		}
		r.Report(ctx, diagnostic.clone())
	}
}

func (d Diagnostic) clone() Diagnostic {
	d.OffendingLayers = slices.Clone(d.OffendingLayers)
	return d
}

func layerNames(layers []*Layer) []string {
	if len(layers) == 0 {
		return nil
	}
	out := make([]string, len(layers))
	for i, layer := range layers {
		out[i] = layer.Name()
	}
	return out
}

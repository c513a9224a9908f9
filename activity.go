package contextl

import (
	"context"

	"github.com/goliatone/go-contextl/pkg/activity"
)

// WithActivityHooks mirrors diagnostics and successful activations involving
// the registry's layers as activity events. Nil hooks are dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	compact := hooks.Compact()
	return func(cfg *registryConfig) {
		cfg.activityHooks = compact
	}
}

// WithActivityChannel overrides the channel stamped on emitted events.
func WithActivityChannel(channel string) Option {
	return func(cfg *registryConfig) {
		cfg.channel = channel
	}
}

// ActivityHooks returns a copy of the configured activity hooks.
func (r *Registry) ActivityHooks() activity.Hooks {
	if r == nil {
		return nil
	}
	return r.cfg.activityHooks.Compact()
}

func (r *Registry) emitDiagnostic(ctx context.Context, d Diagnostic, stack Stack) error {
	if len(r.cfg.activityHooks) == 0 {
		return nil
	}
	var event activity.Event
	switch d.Kind {
	case DiagnosticBeforeConflict:
		event = activity.BeforeConflict(d.Layer, d.OffendingLayers, stack.Names())
	case DiagnosticAfterAutoActivate:
		event = activity.AfterAutoActivated(d.Layer, d.OffendingLayers, stack.Names())
	default:
		return nil
	}
	return activity.NewEmitter(r.cfg.activityHooks, r.cfg.channel).Emit(ctx, event)
}

func (r *Registry) emitActivated(ctx context.Context, requested []string, stack Stack) error {
	if len(r.cfg.activityHooks) == 0 {
		return nil
	}
	return activity.NewEmitter(r.cfg.activityHooks, r.cfg.channel).Emit(ctx, activity.Activated(requested, stack.Names()))
}

package activity

import (
	"strings"
	"time"
)

const (
	// VerbLayerActivated is emitted once per successful activation request.
	VerbLayerActivated = "layer.activated"
	// VerbLayerBeforeConflict mirrors a BEFORE_CONFLICT diagnostic.
	VerbLayerBeforeConflict = "layer.before_conflict"
	// VerbLayerAfterAutoActivated mirrors an AFTER_AUTOACTIVATE diagnostic.
	VerbLayerAfterAutoActivated = "layer.after_autoactivated"

	// ObjectTypeLayer is the object type sinks record layer events under.
	ObjectTypeLayer = "layer"
)

// Event describes a layer lifecycle occurrence. Diagnostic events name the
// layer whose descriptor forced the fix and the layers it moved or
// activated; activation events carry the requested layers.
type Event struct {
	Verb     string
	ActorID  string
	UserID   string
	TenantID string
	Channel  string

	Layer           string
	Requested       []string
	OffendingLayers []string
	// Stack holds the active layer names, most precedent first, after the
	// activation that produced the event.
	Stack []string

	Metadata   map[string]any
	OccurredAt time.Time
}

// Subject returns the layer the event is about. Activation events without a
// layer fall back to the requested names joined by commas.
func (e Event) Subject() string {
	if e.Layer != "" {
		return e.Layer
	}
	return strings.Join(e.Requested, ",")
}

// Diagnostic reports whether the event mirrors a resolver diagnostic.
func (e Event) Diagnostic() bool {
	return e.Verb == VerbLayerBeforeConflict || e.Verb == VerbLayerAfterAutoActivated
}

// Valid reports whether the event carries a verb and a subject. Hooks drop
// invalid events.
func (e Event) Valid() bool {
	return e.Verb != "" && e.Subject() != ""
}

// Activated builds the event for a completed activation.
func Activated(requested, stack []string) Event {
	return Event{
		Verb:      VerbLayerActivated,
		Requested: cloneStrings(requested),
		Stack:     cloneStrings(stack),
	}
}

// BeforeConflict builds the event for required-before layers that had to be
// moved above layer.
func BeforeConflict(layer string, offending, stack []string) Event {
	return diagnosticEvent(VerbLayerBeforeConflict, layer, offending, stack)
}

// AfterAutoActivated builds the event for required-after layers activated
// underneath layer.
func AfterAutoActivated(layer string, offending, stack []string) Event {
	return diagnosticEvent(VerbLayerAfterAutoActivated, layer, offending, stack)
}

func diagnosticEvent(verb, layer string, offending, stack []string) Event {
	return Event{
		Verb:            verb,
		Layer:           layer,
		OffendingLayers: cloneStrings(offending),
		Stack:           cloneStrings(stack),
	}
}

// NormalizeEvent trims identifiers, detaches slices and metadata from the
// caller and stamps a timestamp when missing.
func NormalizeEvent(event Event) Event {
	normalized := event
	normalized.Verb = strings.TrimSpace(event.Verb)
	normalized.ActorID = strings.TrimSpace(event.ActorID)
	normalized.UserID = strings.TrimSpace(event.UserID)
	normalized.TenantID = strings.TrimSpace(event.TenantID)
	normalized.Channel = strings.TrimSpace(event.Channel)
	normalized.Layer = strings.TrimSpace(event.Layer)
	normalized.Requested = cloneStrings(event.Requested)
	normalized.OffendingLayers = cloneStrings(event.OffendingLayers)
	normalized.Stack = cloneStrings(event.Stack)
	normalized.Metadata = cloneMap(event.Metadata)
	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now()
	}
	return normalized
}

func cloneStrings(src []string) []string {
	if len(src) == 0 {
		return nil
	}
	return append([]string{}, src...)
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

// Package usersink records layer activity in a go-users audit trail.
package usersink

import (
	"context"
	"strings"

	"github.com/goliatone/go-contextl/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Record data keys written by Hook.
const (
	DataKind            = "kind"
	DataOffendingLayers = "offending_layers"
	DataRequested       = "requested"
	DataStack           = "stack"
)

// Hook adapts layer events to a go-users ActivitySink so ordering fixes land
// in the same audit trail as user activity.
type Hook struct {
	Sink usertypes.ActivitySink
	// Tenant supplies a tenant id when the event carries none.
	Tenant func(context.Context) string
}

// Notify forwards the event as an ActivityRecord about the layer.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}
	event = activity.NormalizeEvent(event)
	if !event.Valid() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.TenantID == "" && h.Tenant != nil {
		event.TenantID = h.Tenant(ctx)
	}
	return h.Sink.Log(ctx, Record(event))
}

// Record maps a normalized layer event to an ActivityRecord. Diagnostic
// kind, offending layers, requested layers and the resulting stack are
// stored under the Data* keys, on top of the event metadata.
func Record(event activity.Event) usertypes.ActivityRecord {
	data := map[string]any{}
	for key, value := range event.Metadata {
		data[key] = value
	}
	if kind := diagnosticKind(event.Verb); kind != "" {
		data[DataKind] = kind
	}
	if len(event.OffendingLayers) > 0 {
		data[DataOffendingLayers] = append([]string{}, event.OffendingLayers...)
	}
	if len(event.Requested) > 0 {
		data[DataRequested] = append([]string{}, event.Requested...)
	}
	if len(event.Stack) > 0 {
		data[DataStack] = append([]string{}, event.Stack...)
	}
	if len(data) == 0 {
		data = nil
	}

	return usertypes.ActivityRecord{
		ActorID:    parseUUID(event.ActorID),
		UserID:     parseUUID(event.UserID),
		TenantID:   parseUUID(event.TenantID),
		Verb:       event.Verb,
		ObjectType: activity.ObjectTypeLayer,
		ObjectID:   event.Subject(),
		Channel:    event.Channel,
		Data:       data,
		OccurredAt: event.OccurredAt,
	}
}

func diagnosticKind(verb string) string {
	switch verb {
	case activity.VerbLayerBeforeConflict:
		return "BEFORE_CONFLICT"
	case activity.VerbLayerAfterAutoActivated:
		return "AFTER_AUTOACTIVATE"
	default:
		return ""
	}
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}

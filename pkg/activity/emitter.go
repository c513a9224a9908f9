package activity

import (
	"context"
	"strings"
)

// DefaultChannel is stamped on events emitted without an explicit channel.
const DefaultChannel = "layers"

// Emitter sends events to a fixed set of hooks on one channel.
type Emitter struct {
	hooks   Hooks
	channel string
}

// NewEmitter returns an emitter for hooks. An empty channel selects
// DefaultChannel.
func NewEmitter(hooks Hooks, channel string) *Emitter {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &Emitter{hooks: hooks.Compact(), channel: channel}
}

// Enabled reports whether any hook would receive events.
func (e *Emitter) Enabled() bool {
	return e != nil && len(e.hooks) > 0
}

// Emit stamps the channel when the event has none and notifies the hooks.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	return e.hooks.Notify(ctx, event)
}

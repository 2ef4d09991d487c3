// Package activity reports audit events for SOP changes (entity edits,
// document lifecycle, saves, imports, backups) to pluggable hooks.
package activity

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"time"
)

// DefaultChannel is stamped on events emitted without a channel.
const DefaultChannel = "sop"

// Event is one audit entry. IDs are plain strings; sinks that need UUIDs
// parse them.
type Event struct {
	Verb       string
	ActorID    string
	UserID     string
	TenantID   string
	ObjectType string
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Normalize returns a copy with trimmed ids, its own metadata map and a UTC
// timestamp.
func (e Event) Normalize() Event {
	for _, field := range []*string{&e.Verb, &e.ActorID, &e.UserID, &e.TenantID, &e.ObjectType, &e.ObjectID, &e.Channel} {
		*field = strings.TrimSpace(*field)
	}
	if len(e.Metadata) == 0 {
		e.Metadata = nil
	} else {
		e.Metadata = maps.Clone(e.Metadata)
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	e.OccurredAt = e.OccurredAt.UTC()
	return e
}

// Complete reports whether the verb and object are set. Hooks drop
// incomplete events.
func (e Event) Complete() bool {
	return e.Verb != "" && e.ObjectType != "" && e.ObjectID != ""
}

// Hook receives normalized events.
type Hook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, event Event) error

func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans an event out to every hook.
type Hooks []Hook

// Compact returns a copy of hooks without nil entries, or nil when none
// remain.
func Compact(hooks Hooks) Hooks {
	var out Hooks
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

// Notify normalizes event and delivers it to each hook. Every hook runs even
// when an earlier one fails; the failures are joined.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	event = event.Normalize()
	if len(h) == 0 || !event.Complete() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var failed []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, event); err != nil {
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}

// Config holds the defaults an Emitter stamps on events that leave them
// blank.
type Config struct {
	Channel  string
	ActorID  string
	TenantID string
}

// Emitter delivers events to hooks after applying Config defaults. It is
// disabled when it has no hooks.
type Emitter struct {
	hooks    Hooks
	defaults Config
}

func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	cfg.Channel = strings.TrimSpace(cfg.Channel)
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	cfg.ActorID = strings.TrimSpace(cfg.ActorID)
	cfg.TenantID = strings.TrimSpace(cfg.TenantID)
	return &Emitter{hooks: Compact(hooks), defaults: cfg}
}

func (e *Emitter) Enabled() bool {
	return e != nil && len(e.hooks) > 0
}

func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	event = event.Normalize()
	if event.Channel == "" {
		event.Channel = e.defaults.Channel
	}
	if event.ActorID == "" {
		event.ActorID = e.defaults.ActorID
	}
	if event.TenantID == "" {
		event.TenantID = e.defaults.TenantID
	}
	return e.hooks.Notify(ctx, event)
}

// CaptureHook keeps every event it receives. Err, when set, is returned from
// each Notify.
type CaptureHook struct {
	mu     sync.Mutex
	Events []Event
	Err    error
}

func (h *CaptureHook) Notify(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = append(h.Events, event.Normalize())
	return h.Err
}

// Verbs lists the captured verbs in arrival order.
func (h *CaptureHook) Verbs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	verbs := make([]string, len(h.Events))
	for i, e := range h.Events {
		verbs[i] = e.Verb
	}
	return verbs
}

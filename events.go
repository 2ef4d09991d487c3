package sop

import (
	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/events"
	"github.com/goliatone/go-sop/pkg/model"
	"github.com/goliatone/go-sop/pkg/persist"
)

// Event names published on the Manager's bus. Entity events are built by
// EntityEvent, e.g. "partAdded" or "safetyRemoved".
const (
	EventDocumentUpdated  = "documentUpdated"
	EventDocumentReset    = "documentReset"
	EventStateChanged     = "stateChanged"
	EventStateSaved       = "stateSaved"
	EventStateCleared     = "stateCleared"
	EventDataLoaded       = "dataLoaded"
	EventDataMigrated     = "dataMigrated"
	EventBackupCreated    = "backupCreated"
	EventError            = "error"
	EventSelectionChanged = "selectionChanged"
	EventFilterChanged    = "filterChanged"
)

// Entity event suffixes.
const (
	Added   = "Added"
	Updated = "Updated"
	Removed = "Removed"
)

// EntityEvent returns the event name for a change to an entity of kind t.
func EntityEvent(t model.Type, suffix string) string {
	return string(t) + suffix
}

// ErrorPayload is published with EventError.
type ErrorPayload struct {
	Kind    errs.Kind `json:"kind"`
	Op      string    `json:"op,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// LoadedPayload is published with EventDataLoaded.
type LoadedPayload struct {
	Snapshot persist.Snapshot `json:"snapshot"`
	Metadata persist.Metadata `json:"metadata"`
}

// SelectionPayload is published with EventSelectionChanged.
type SelectionPayload struct {
	EntityType model.Type `json:"entityType"`
	IDs        []string   `json:"ids"`
}

// FilterPayload is published with EventFilterChanged.
type FilterPayload struct {
	EntityType model.Type `json:"entityType"`
	Filter     string     `json:"filter"`
}

// Subscribe registers fn for the named event (or events.Wildcard).
func (m *Manager) Subscribe(name string, fn events.Listener) events.SubscriptionID {
	return m.bus.Subscribe(name, fn)
}

// Unsubscribe removes a listener registered with Subscribe.
func (m *Manager) Unsubscribe(id events.SubscriptionID) bool {
	return m.bus.Unsubscribe(id)
}

// Events exposes the underlying bus.
func (m *Manager) Events() *events.Bus {
	return m.bus
}

type pending struct {
	name    string
	payload any
}

// publish emits queued events in order. Callers must not hold m.mu.
func (m *Manager) publish(queue ...pending) {
	for _, p := range queue {
		m.bus.Emit(p.name, p.payload)
	}
}

// publishChange emits queue followed by EventStateChanged. The full state is
// only built when someone listens.
func (m *Manager) publishChange(queue ...pending) {
	m.publish(queue...)
	if m.bus.ListenerCount(EventStateChanged) > 0 {
		m.bus.Emit(EventStateChanged, m.FullState())
	}
}

// reportError tags err with op, publishes it on EventError and returns it.
// Callers must not hold m.mu.
func (m *Manager) reportError(op string, err error) error {
	if err == nil {
		return nil
	}
	err = errs.WithOp(op, err)
	m.bus.Emit(EventError, ErrorPayload{
		Kind:    errs.KindOf(err),
		Op:      op,
		Message: errs.Message(err),
		Err:     err,
	})
	return err
}

package activity

import (
	"maps"
	"strings"
	"time"
)

// Actions appended to an object type to form a verb, e.g. "sop.part.created".
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionReset    = "reset"
	ActionSaved    = "saved"
	ActionLoaded   = "loaded"
	ActionMigrated = "migrated"
	ActionImported = "imported"
	ActionExported = "exported"
	ActionCleared  = "cleared"
	ActionBackedUp = "backed_up"
	ActionRestored = "restored"
)

// VerbPrefix namespaces every verb built here.
const VerbPrefix = "sop."

// EventInput describes the common fields for SOP lifecycle events.
type EventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	ObjectType string
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	Changed    []string
	Version    string
	OccurredAt time.Time
}

// Verb returns "sop.<objectType>.<action>".
func Verb(objectType, action string) string {
	return VerbPrefix + strings.TrimSpace(objectType) + "." + strings.TrimSpace(action)
}

// BuildEntityEvent constructs an event for a create/update/delete of one
// entity. Changed lists the patched field names for updates.
func BuildEntityEvent(action string, input EventInput) Event {
	return buildEvent(Verb(input.ObjectType, action), input)
}

// BuildStateEvent constructs an event for a whole-state operation such as a
// save, load, import or backup. ObjectType defaults to "state".
func BuildStateEvent(action string, input EventInput) Event {
	if strings.TrimSpace(input.ObjectType) == "" {
		input.ObjectType = "state"
	}
	return buildEvent(Verb(input.ObjectType, action), input)
}

func buildEvent(verb string, input EventInput) Event {
	metadata := maps.Clone(input.Metadata)
	if len(input.Changed) > 0 || input.Version != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if len(input.Changed) > 0 {
			metadata["changed"] = append([]string{}, input.Changed...)
		}
		if input.Version != "" {
			metadata["schema_version"] = input.Version
		}
	}

	objectType := strings.TrimSpace(input.ObjectType)
	objectID := strings.TrimSpace(input.ObjectID)
	if objectID == "" {
		objectID = objectType
	}
	return Event{
		Verb:       verb,
		ActorID:    input.ActorID,
		UserID:     input.UserID,
		TenantID:   input.TenantID,
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    input.Channel,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

// Package usersink forwards SOP activity events to a go-users ActivitySink.
package usersink

import (
	"context"
	"maps"
	"strings"

	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"

	"github.com/goliatone/go-sop/pkg/activity"
)

// Hook is an activity.Hook that logs each event to Sink as an
// ActivityRecord.
type Hook struct {
	Sink usertypes.ActivitySink
}

// Notify converts event and hands it to the sink. Actor, user and tenant ids
// that are not UUIDs are recorded as uuid.Nil with the raw value kept under
// actor_id, user_id or tenant_id in the record data.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}
	event = event.Normalize()
	if !event.Complete() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return h.Sink.Log(ctx, toRecord(event))
}

func toRecord(event activity.Event) usertypes.ActivityRecord {
	data := maps.Clone(event.Metadata)
	ids := [3]uuid.UUID{}
	for i, raw := range [3]struct{ field, value string }{
		{"actor_id", event.ActorID},
		{"user_id", event.UserID},
		{"tenant_id", event.TenantID},
	} {
		value := strings.TrimSpace(raw.value)
		if value == "" {
			continue
		}
		id, err := uuid.Parse(value)
		if err == nil {
			ids[i] = id
			continue
		}
		if data == nil {
			data = map[string]any{}
		}
		data[raw.field] = value
	}
	return usertypes.ActivityRecord{
		ActorID:    ids[0],
		UserID:     ids[1],
		TenantID:   ids[2],
		Verb:       event.Verb,
		ObjectType: event.ObjectType,
		ObjectID:   event.ObjectID,
		Channel:    event.Channel,
		Data:       data,
		OccurredAt: event.OccurredAt,
	}
}

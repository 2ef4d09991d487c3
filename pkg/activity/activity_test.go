package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEventNormalize(t *testing.T) {
	meta := map[string]any{"k": "v"}
	local := time.Date(2025, 3, 4, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	evt := Event{
		Verb:       " sop.part.created ",
		ActorID:    " actor ",
		TenantID:   " tenant ",
		ObjectType: " part ",
		ObjectID:   " 42 ",
		Channel:    " sop ",
		Metadata:   meta,
		OccurredAt: local,
	}

	got := evt.Normalize()
	if got.Verb != "sop.part.created" || got.ObjectType != "part" || got.ObjectID != "42" {
		t.Fatalf("unexpected normalized fields: %+v", got)
	}
	if got.ActorID != "actor" || got.TenantID != "tenant" || got.Channel != "sop" {
		t.Fatalf("unexpected trimming: %+v", got)
	}
	if got.OccurredAt.Location() != time.UTC || !got.OccurredAt.Equal(local) {
		t.Fatalf("expected the same instant in UTC, got %v", got.OccurredAt)
	}
	got.Metadata["k"] = "changed"
	if meta["k"] != "v" {
		t.Fatalf("normalize should copy metadata")
	}
	if (Event{}).Normalize().OccurredAt.IsZero() {
		t.Fatalf("expected a timestamp to be filled in")
	}
}

func TestHooksDropIncompleteEvents(t *testing.T) {
	capture := &CaptureHook{}
	if err := (Hooks{capture}).Notify(context.Background(), Event{Verb: "sop.part.created"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured, got %d", len(capture.Events))
	}
}

func TestHooksNotifyRunsAllAndJoinsErrors(t *testing.T) {
	boom1, boom2 := errors.New("boom1"), errors.New("boom2")
	capture := &CaptureHook{}
	var sawCtx bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, _ Event) error {
			sawCtx = ctx != nil
			return nil
		}),
		HookFunc(func(context.Context, Event) error { return boom1 }),
		nil,
		capture,
		HookFunc(func(context.Context, Event) error { return boom2 }),
	}

	err := hooks.Notify(nil, Event{Verb: "sop.part.updated", ObjectType: "part", ObjectID: "1"})
	if !errors.Is(err, boom1) || !errors.Is(err, boom2) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !sawCtx {
		t.Fatalf("expected a non-nil context")
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected hook after a failure to still run, got %d events", len(capture.Events))
	}
}

func TestCompact(t *testing.T) {
	if Compact(Hooks{nil, nil}) != nil {
		t.Fatalf("expected nil when only nil hooks remain")
	}
	hooks := Hooks{nil, &CaptureHook{}}
	out := Compact(hooks)
	if len(out) != 1 {
		t.Fatalf("expected one hook, got %d", len(out))
	}
	out[0] = nil
	if hooks[1] == nil {
		t.Fatalf("compact should copy")
	}
}

func TestEmitterWithoutHooksIsDisabled(t *testing.T) {
	emitter := NewEmitter(Hooks{nil}, Config{})
	if emitter.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := emitter.Emit(context.Background(), Event{Verb: "sop.part.created", ObjectType: "part", ObjectID: "1"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	var none *Emitter
	if none.Enabled() {
		t.Fatalf("nil emitter should be disabled")
	}
}

func TestEmitterAppliesDefaults(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{ActorID: " operator-1 ", TenantID: "plant-7"})
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := emitter.Emit(context.Background(), Event{Verb: "sop.state.saved", ObjectType: "state", ObjectID: "data", OccurredAt: at}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := emitter.Emit(context.Background(), Event{Verb: "sop.state.saved", ObjectType: "state", ObjectID: "data", ActorID: "other", Channel: "custom"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	first, second := capture.Events[0], capture.Events[1]
	if first.Channel != DefaultChannel || first.ActorID != "operator-1" || first.TenantID != "plant-7" {
		t.Fatalf("expected defaults applied, got %+v", first)
	}
	if !first.OccurredAt.Equal(at) {
		t.Fatalf("expected timestamp preserved, got %v", first.OccurredAt)
	}
	if second.Channel != "custom" || second.ActorID != "other" {
		t.Fatalf("expected explicit values preserved, got %+v", second)
	}
}

func TestBuildEntityEvent(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	evt := BuildEntityEvent(ActionUpdated, EventInput{
		ObjectType: "part",
		ObjectID:   " p1 ",
		Changed:    []string{"name"},
		Metadata:   map[string]any{"name": "Bolt M3"},
		OccurredAt: at,
	})
	if evt.Verb != "sop.part.updated" || evt.ObjectID != "p1" || evt.ObjectType != "part" {
		t.Fatalf("unexpected event %+v", evt)
	}
	changed, ok := evt.Metadata["changed"].([]string)
	if !ok || len(changed) != 1 || changed[0] != "name" {
		t.Fatalf("expected changed fields, got %v", evt.Metadata["changed"])
	}
	if evt.Metadata["name"] != "Bolt M3" || !evt.OccurredAt.Equal(at) {
		t.Fatalf("unexpected metadata %+v", evt)
	}
}

func TestBuildStateEventDefaults(t *testing.T) {
	evt := BuildStateEvent(ActionSaved, EventInput{Version: "1.1.0"})
	if evt.Verb != "sop.state.saved" || evt.ObjectType != "state" || evt.ObjectID != "state" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Metadata["schema_version"] != "1.1.0" {
		t.Fatalf("expected version metadata, got %v", evt.Metadata)
	}
}

func TestCaptureHookVerbs(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}
	_ = hooks.Notify(context.Background(), BuildEntityEvent(ActionCreated, EventInput{ObjectType: "tool", ObjectID: "t1"}))
	_ = hooks.Notify(context.Background(), BuildEntityEvent(ActionDeleted, EventInput{ObjectType: "tool", ObjectID: "t1"}))
	verbs := capture.Verbs()
	if len(verbs) != 2 || verbs[0] != "sop.tool.created" || verbs[1] != "sop.tool.deleted" {
		t.Fatalf("unexpected verbs %v", verbs)
	}
}

package sop_test

import (
	"context"
	"errors"
	"testing"

	sop "github.com/goliatone/go-sop"
	"github.com/goliatone/go-sop/pkg/activity"
	"github.com/goliatone/go-sop/pkg/model"
)

func TestWithActivityHooksClonesAndFiltersNil(t *testing.T) {
	hook := activity.HookFunc(func(context.Context, activity.Event) error { return nil })

	m := newManager(t, sop.WithActivityHooks(activity.Hooks{nil, hook}))
	hooks := m.ActivityHooks()
	if len(hooks) != 1 {
		t.Fatalf("expected 1 hook, got %d", len(hooks))
	}

	// Mutate returned slice and ensure original configuration is unaffected.
	hooks[0] = nil
	again := m.ActivityHooks()
	if len(again) != 1 || again[0] == nil {
		t.Fatalf("expected cloned hooks unaffected by mutation, got %+v", again)
	}
}

func TestActivityHooksDefaultNil(t *testing.T) {
	m := newManager(t)
	if hooks := m.ActivityHooks(); hooks != nil {
		t.Fatalf("expected nil hooks by default, got %+v", hooks)
	}
}

func TestMutationsEmitActivity(t *testing.T) {
	capture := &activity.CaptureHook{}
	m := newManager(t,
		sop.WithActivityHooks(activity.Hooks{capture}),
		sop.WithActivityConfig(activity.Config{Channel: "wizard", ActorID: "user-1"}),
	)

	part, err := m.AddPart(model.PartInput{Name: "Bolt", PartNumber: "B-1"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.UpdatePart(part.ID, model.PartPatch{Category: ptr("fastener")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	m.RemovePart(part.ID)
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}

	want := []string{"sop.part.created", "sop.part.updated", "sop.part.deleted", "sop.state.saved"}
	got := capture.Verbs()
	if len(got) != len(want) {
		t.Fatalf("expected verbs %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected verbs %v, got %v", want, got)
		}
	}

	updated := capture.Events[1]
	if updated.ObjectID != part.ID || updated.Channel != "wizard" || updated.ActorID != "user-1" {
		t.Fatalf("unexpected update event %+v", updated)
	}
	changed, _ := updated.Metadata["changed"].([]string)
	if len(changed) != 1 || changed[0] != "Category" {
		t.Fatalf("expected changed fields in metadata, got %+v", updated.Metadata)
	}
}

func TestActivityHookFailureDoesNotFailMutation(t *testing.T) {
	capture := &activity.CaptureHook{Err: errors.New("sink down")}
	m := newManager(t, sop.WithActivityHooks(activity.Hooks{capture}))
	if _, err := m.AddTool(model.ToolInput{Name: "Wrench", Identifier: "W-10"}); err != nil {
		t.Fatalf("hook failure leaked into mutation: %v", err)
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected hook to be notified")
	}
}

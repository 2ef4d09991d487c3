package sop_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	sop "github.com/goliatone/go-sop"
	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/events"
	"github.com/goliatone/go-sop/pkg/model"
	"github.com/goliatone/go-sop/pkg/storage"
)

func ptr[T any](v T) *T { return &v }

func newManager(t *testing.T, opts ...sop.Option) *sop.Manager {
	t.Helper()
	m, err := sop.New(opts...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

// recorder collects every event published on a Manager.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(m *sop.Manager) *recorder {
	r := &recorder{}
	m.Subscribe(events.Wildcard, func(evt events.Event) {
		r.mu.Lock()
		r.events = append(r.events, evt)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}

func (r *recorder) find(name string) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Name == name {
			return e, true
		}
	}
	return events.Event{}, false
}

func (r *recorder) errorKinds() []errs.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []errs.Kind
	for _, e := range r.events {
		if p, ok := e.Payload.(sop.ErrorPayload); ok {
			out = append(out, p.Kind)
		}
	}
	return out
}

func TestNewManagerStartsEmptyAndClean(t *testing.T) {
	m := newManager(t)
	if m.IsDirty() {
		t.Fatalf("expected clean manager")
	}
	if len(m.ListParts()) != 0 || m.Document().StepCount() != 0 {
		t.Fatalf("expected empty state, got %s", m)
	}
	if _, ok := m.LastSaved(); ok {
		t.Fatalf("expected no last saved time")
	}
	if got := m.Config().Namespace; got != storage.DefaultNamespace {
		t.Fatalf("expected default namespace, got %q", got)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := sop.New(sop.WithConfig(sop.Config{FilterEngine: "lua"})); err == nil {
		t.Fatalf("expected unknown engine to be rejected")
	}
}

func TestAddAndUpdatePart(t *testing.T) {
	m := newManager(t)
	rec := record(m)

	part, err := m.AddPart(model.PartInput{Name: "Bolt", PartNumber: "B-1", Category: "fastener"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if part.ID == "" || part.Name != "Bolt" {
		t.Fatalf("unexpected part %+v", part)
	}

	updated, err := m.UpdatePart(part.ID, model.PartPatch{Name: ptr("Hex bolt")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Hex bolt" || updated.PartNumber != "B-1" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if !updated.UpdatedAt.After(part.UpdatedAt) {
		t.Fatalf("expected updatedAt to advance: %v -> %v", part.UpdatedAt, updated.UpdatedAt)
	}
	if !updated.CreatedAt.Equal(part.CreatedAt) {
		t.Fatalf("createdAt must not change")
	}

	got, ok := m.GetPart(part.ID)
	if !ok || got.Name != "Hex bolt" {
		t.Fatalf("expected stored part to be updated, got %+v ok=%v", got, ok)
	}
	if !m.IsDirty() {
		t.Fatalf("expected dirty after mutation")
	}

	names := rec.names()
	want := []string{"partAdded", sop.EventStateChanged, "partUpdated", sop.EventStateChanged}
	if len(names) != len(want) {
		t.Fatalf("expected events %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, names)
		}
	}
}

func TestReturnedEntitiesAreCopies(t *testing.T) {
	m := newManager(t)
	part, err := m.AddPart(model.PartInput{Name: "Bolt", PartNumber: "B-1"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	part.Name = "mutated"
	got, _ := m.GetPart(part.ID)
	if got.Name != "Bolt" {
		t.Fatalf("caller mutation leaked into state: %q", got.Name)
	}
}

func TestAddPartRejectsHalfFilledInput(t *testing.T) {
	m := newManager(t)
	rec := record(m)
	if _, err := m.AddPart(model.PartInput{Name: "Bolt"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(m.ListParts()) != 0 || m.IsDirty() {
		t.Fatalf("failed add must not change state")
	}
	if kinds := rec.errorKinds(); len(kinds) != 1 || kinds[0] != errs.KindValidation {
		t.Fatalf("expected one validation error event, got %v", kinds)
	}
}

func TestUpdateMissingEntityIsNotFound(t *testing.T) {
	m := newManager(t)
	rec := record(m)
	_, err := m.UpdateTool("missing", model.ToolPatch{Name: ptr("Wrench")})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	evt, ok := rec.find(sop.EventError)
	if !ok {
		t.Fatalf("expected error event")
	}
	payload := evt.Payload.(sop.ErrorPayload)
	if payload.Kind != errs.KindNotFound || payload.Op != "update_tool" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestRemoveReportsPresenceAndPrunesSelection(t *testing.T) {
	m := newManager(t)
	fixture, err := m.AddFixture(model.FixtureInput{Name: "Jig", Identifier: "J-1"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !m.Select(model.TypeFixture, fixture.ID) {
		t.Fatalf("expected select to succeed")
	}
	rec := record(m)

	if !m.RemoveFixture(fixture.ID) {
		t.Fatalf("expected remove to report true")
	}
	if m.RemoveFixture(fixture.ID) {
		t.Fatalf("expected second remove to report false")
	}
	if m.IsSelected(model.TypeFixture, fixture.ID) {
		t.Fatalf("removed entity must leave the selection")
	}
	names := rec.names()
	if len(names) < 2 || names[0] != "fixtureRemoved" || names[1] != sop.EventSelectionChanged {
		t.Fatalf("unexpected events %v", names)
	}
}

func TestSafetyItemsDefaultSeverity(t *testing.T) {
	m := newManager(t)
	item, err := m.AddSafety(model.SafetyItemInput{Name: "Gloves", Identifier: "PPE-1"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if item.Severity != model.DefaultSeverity {
		t.Fatalf("expected default severity, got %q", item.Severity)
	}
	if _, err := m.UpdateSafety(item.ID, model.SafetyItemPatch{Severity: ptr(model.Severity("extreme"))}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected severity validation error, got %v", err)
	}
	if len(m.ListSafety()) != 1 {
		t.Fatalf("expected one safety item")
	}
}

func TestListenerMayCallBackIntoManager(t *testing.T) {
	m := newManager(t)
	var seen int
	m.Subscribe("partAdded", func(events.Event) {
		seen = len(m.ListParts())
		m.Select(model.TypePart, m.ListParts()[0].ID)
	})
	if _, err := m.AddPart(model.PartInput{Name: "Bolt", PartNumber: "B-1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if seen != 1 {
		t.Fatalf("expected listener to observe the new part, saw %d", seen)
	}
	if len(m.Selected(model.TypePart)) != 1 {
		t.Fatalf("expected listener selection to apply")
	}
}

func TestPanickingListenerDoesNotBreakMutation(t *testing.T) {
	m := newManager(t)
	m.Subscribe("toolAdded", func(events.Event) { panic("boom") })
	rec := record(m)
	if _, err := m.AddTool(model.ToolInput{Name: "Wrench", Identifier: "W-10"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, ok := rec.find("toolAdded"); !ok {
		t.Fatalf("expected later listeners to still run")
	}
}

func TestStateChangedCarriesFullState(t *testing.T) {
	m := newManager(t)
	var state sop.FullState
	m.Subscribe(sop.EventStateChanged, func(evt events.Event) {
		state = evt.Payload.(sop.FullState)
	})
	if _, err := m.AddPart(model.PartInput{Name: "Bolt", PartNumber: "B-1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(state.Parts) != 1 || !state.Dirty {
		t.Fatalf("unexpected state payload %+v", state)
	}
}

func TestCountsAndString(t *testing.T) {
	m := newManager(t)
	if _, err := m.AddTool(model.ToolInput{Name: "Wrench", Identifier: "W-10"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.AddStep(model.StepInput{Description: "Fit"}); err != nil {
		t.Fatalf("add step: %v", err)
	}
	counts := m.Counts()
	if counts[model.TypeTool] != 1 || counts[model.TypeStep] != 1 || counts[model.TypePart] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if got := m.String(); got == "" {
		t.Fatalf("expected description")
	}
}

func TestManagerClockStampsEntities(t *testing.T) {
	base := time.Date(2020, 5, 1, 8, 0, 0, 0, time.UTC)
	at := base
	m := newManager(t, sop.WithClock(func() time.Time { return at }))

	if doc := m.Document(); !doc.CreatedAt.Equal(base) {
		t.Fatalf("expected document created at %v, got %v", base, doc.CreatedAt)
	}
	part, err := m.AddPart(model.PartInput{Name: "Bolt", PartNumber: "B-1"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !part.CreatedAt.Equal(base) || !part.UpdatedAt.Equal(base) {
		t.Fatalf("expected part stamped at %v, got %v / %v", base, part.CreatedAt, part.UpdatedAt)
	}

	at = base.Add(time.Minute)
	updated, err := m.UpdatePart(part.ID, model.PartPatch{Name: ptr("Bolt M3")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.CreatedAt.Equal(base) || !updated.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected part timestamps %v / %v", updated.CreatedAt, updated.UpdatedAt)
	}
	again, err := m.UpdatePart(part.ID, model.PartPatch{Name: ptr("Bolt M4")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !again.UpdatedAt.After(updated.UpdatedAt) {
		t.Fatalf("updatedAt must advance on a stopped clock, got %v", again.UpdatedAt)
	}

	step, err := m.AddStep(model.StepInput{Description: "Fit"})
	if err != nil {
		t.Fatalf("add step: %v", err)
	}
	if !step.CreatedAt.Equal(at) {
		t.Fatalf("expected step created at %v, got %v", at, step.CreatedAt)
	}
	if doc := m.Document(); !doc.UpdatedAt.Equal(at) {
		t.Fatalf("expected document updated at %v, got %v", at, doc.UpdatedAt)
	}
}

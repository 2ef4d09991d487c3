package sop_test

import (
	"errors"
	"testing"

	sop "github.com/goliatone/go-sop"
	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/model"
)

func stepDescriptions(doc *model.Document) []string {
	out := []string{}
	for _, s := range doc.Steps() {
		out = append(out, s.Description)
	}
	return out
}

func TestStepsAreNumberedInOrder(t *testing.T) {
	m := newManager(t)
	var ids []string
	for _, d := range []string{"Prepare", "Fit", "Torque"} {
		step, err := m.AddStep(model.StepInput{Description: d, EstimatedTime: 2})
		if err != nil {
			t.Fatalf("add step: %v", err)
		}
		ids = append(ids, step.ID)
	}

	if err := m.MoveStep(ids[2], 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	doc := m.Document()
	if got := stepDescriptions(doc); got[0] != "Torque" || got[1] != "Prepare" {
		t.Fatalf("unexpected order %v", got)
	}
	for i, s := range doc.Steps() {
		if s.StepNumber != i+1 {
			t.Fatalf("step %d numbered %d", i, s.StepNumber)
		}
	}
	if doc.TotalTime() != 6 {
		t.Fatalf("expected total time 6, got %d", doc.TotalTime())
	}

	if !m.RemoveStep(ids[0]) || m.RemoveStep(ids[0]) {
		t.Fatalf("expected remove to report presence")
	}
	doc = m.Document()
	if doc.StepCount() != 2 || doc.Steps()[1].StepNumber != 2 {
		t.Fatalf("expected renumbered steps, got %v", stepDescriptions(doc))
	}
}

func TestMoveStepToSamePositionPublishesNothing(t *testing.T) {
	m := newManager(t)
	step, err := m.AddStep(model.StepInput{Description: "Fit"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	rec := record(m)
	if err := m.MoveStep(step.ID, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	if names := rec.names(); len(names) != 0 {
		t.Fatalf("expected no events, got %v", names)
	}
	if err := m.MoveStep("missing", 0); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateStepAndHelpers(t *testing.T) {
	m := newManager(t)
	step, err := m.AddStep(model.StepInput{Description: "Fit"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	updated, err := m.UpdateStep(step.ID, model.StepPatch{QualityCheck: ptr(true), QualityCheckDescription: ptr("gap < 0.1mm")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.QualityCheck {
		t.Fatalf("expected quality check set")
	}

	got, err := m.MutateStep(step.ID, func(s *model.AssemblyStep) error {
		if err := s.AddPart("p1", 2); err != nil {
			return err
		}
		s.AddTool("t1")
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if len(got.Parts) != 1 || got.Parts[0].Quantity != 2 || len(got.Tools) != 1 {
		t.Fatalf("unexpected step %+v", got.ToRecord())
	}

	_, err = m.MutateStep(step.ID, func(s *model.AssemblyStep) error {
		s.AddTool("t2")
		return errs.Validation("step", "rejected")
	})
	if err == nil {
		t.Fatalf("expected mutate error")
	}
	current, _ := m.Document().Step(step.ID)
	if len(current.Tools) != 1 {
		t.Fatalf("failed mutation must not leak, tools=%v", current.Tools)
	}
}

func TestMutateStepCallbackMayReadManager(t *testing.T) {
	m := newManager(t)
	step, err := m.AddStep(model.StepInput{Description: "Fit bracket"})
	if err != nil {
		t.Fatalf("add step: %v", err)
	}

	got, err := m.MutateStep(step.ID, func(s *model.AssemblyStep) error {
		if len(m.Document().Steps()) != 1 {
			return errs.Validation("step", "expected one step")
		}
		s.Notes = "checked"
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if got.Notes != "checked" {
		t.Fatalf("unexpected notes %q", got.Notes)
	}

	_, err = m.MutateStep(step.ID, func(s *model.AssemblyStep) error {
		if _, err := m.UpdateStep(step.ID, model.StepPatch{Notes: ptr("concurrent")}); err != nil {
			return err
		}
		s.Notes = "stale"
		return nil
	})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	current, _ := m.Document().Step(step.ID)
	if current.Notes != "concurrent" {
		t.Fatalf("conflicting mutation must not overwrite, notes=%q", current.Notes)
	}
}

func TestDocumentHeaderAndLists(t *testing.T) {
	m := newManager(t)
	rec := record(m)

	doc, err := m.UpdateDocument(model.DocumentPatch{Title: ptr("Gearbox"), PartNumber: ptr("GB-1"), Author: ptr("Ana")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if doc.Title != "Gearbox" {
		t.Fatalf("unexpected document %+v", doc.ToRecord())
	}
	if _, err := m.UpdateDocument(model.DocumentPatch{Title: ptr("")}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected partial header to be rejected, got %v", err)
	}
	if m.Document().Title != "Gearbox" {
		t.Fatalf("rejected update must leave the document untouched")
	}

	if !m.AddDocumentTool("t1") || m.AddDocumentTool("t1") {
		t.Fatalf("expected tool list de-duplication")
	}
	if !m.AddSafetyRequirement("Wear gloves") || !m.RemoveSafetyRequirement("Wear gloves") {
		t.Fatalf("expected safety requirement add/remove")
	}
	if !m.AddDocumentFixture("f1") || !m.RemoveDocumentFixture("f1") || m.RemoveDocumentFixture("f1") {
		t.Fatalf("expected fixture add/remove")
	}

	if _, err := m.SetDocumentStatus(model.Status("bogus")); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected status validation, got %v", err)
	}

	if _, ok := rec.find(sop.EventDocumentUpdated); !ok {
		t.Fatalf("expected documentUpdated events")
	}
}

func TestBOMUpdateAndRemove(t *testing.T) {
	m := newManager(t)
	if err := m.AddBOMItem("p1", -1); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected quantity validation, got %v", err)
	}
	if len(m.Document().BOM()) != 0 {
		t.Fatalf("rejected quantity must not add an entry")
	}
	if err := m.AddBOMItem("p1", 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	if bom := m.Document().BOM(); len(bom) != 1 || bom[0].Quantity != 1 {
		t.Fatalf("expected zero quantity to default to 1, got %+v", bom)
	}
	if err := m.UpdateBOMQuantity("p1", 4); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := m.UpdateBOMQuantity("p2", 4); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if bom := m.Document().BOM(); bom[0].Quantity != 4 {
		t.Fatalf("unexpected bom %+v", bom)
	}
	if !m.RemoveBOMItem("p1") || m.RemoveBOMItem("p1") {
		t.Fatalf("expected remove to report presence")
	}
}

func TestResetDocumentKeepsCollections(t *testing.T) {
	m := newManager(t)
	if _, err := m.AddPart(model.PartInput{Name: "Bolt", PartNumber: "B-1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	before := m.Document().ID
	if _, err := m.AddStep(model.StepInput{Description: "Fit"}); err != nil {
		t.Fatalf("add step: %v", err)
	}
	rec := record(m)

	doc := m.ResetDocument()
	if doc.ID == before || doc.StepCount() != 0 {
		t.Fatalf("expected a fresh document, got %+v", doc.ToRecord())
	}
	if len(m.ListParts()) != 1 {
		t.Fatalf("reset must keep collections")
	}
	if names := rec.names(); len(names) == 0 || names[0] != sop.EventDocumentReset {
		t.Fatalf("expected documentReset, got %v", names)
	}
}

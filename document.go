package sop

import (
	"reflect"
	"time"

	"github.com/goliatone/go-sop/pkg/activity"
	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/model"
)

// Document returns a copy of the active document.
func (m *Manager) Document() *model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.document.Clone()
}

// mutateDocument runs fn against a working copy of the document and swaps it
// in when fn reports a change. A failing fn leaves the document untouched.
func (m *Manager) mutateDocument(op string, changed []string, fn func(*model.Document) (bool, error)) (*model.Document, bool, error) {
	m.mu.Lock()
	work := m.document.Clone()
	ok, err := fn(work)
	if err != nil {
		m.mu.Unlock()
		return nil, false, m.reportError(op, err)
	}
	if !ok {
		out := m.document.Clone()
		m.mu.Unlock()
		return out, false, nil
	}
	m.stampDocument(m.document, work)
	m.document = work
	m.markDirtyLocked()
	out := work.Clone()
	m.mu.Unlock()

	m.metrics.ObserveMutation(string(model.TypeDocument), op)
	m.entityActivity(string(model.TypeDocument), activity.ActionUpdated, out.ID, changed)
	m.publishChange(pending{EventDocumentUpdated, out.Clone()})
	return out, true, nil
}

// stampDocument moves the timestamps a mutation touched onto the manager
// clock: the document itself, new steps and steps whose updatedAt moved.
func (m *Manager) stampDocument(before, after *model.Document) {
	_, prev := before.Timestamps()
	m.stampUpdated(after, prev)

	prior := make(map[string]time.Time, before.StepCount())
	for _, s := range before.Steps() {
		prior[s.ID] = s.UpdatedAt
	}
	for _, s := range after.Steps() {
		was, ok := prior[s.ID]
		switch {
		case !ok:
			at := m.now()
			after.SetStepTimestamps(s.ID, at, at)
		case !s.UpdatedAt.Equal(was):
			after.SetStepTimestamps(s.ID, s.CreatedAt, m.after(was))
		}
	}
}

// UpdateDocument merges patch into the document header.
func (m *Manager) UpdateDocument(patch model.DocumentPatch) (*model.Document, error) {
	doc, _, err := m.mutateDocument("update_document", patchFields(patch), func(d *model.Document) (bool, error) {
		return true, d.Update(patch)
	})
	return doc, err
}

// SetDocumentStatus moves the document to status s.
func (m *Manager) SetDocumentStatus(s model.Status) (*model.Document, error) {
	doc, _, err := m.mutateDocument("set_document_status", []string{"Status"}, func(d *model.Document) (bool, error) {
		return true, d.SetStatus(s)
	})
	return doc, err
}

// ResetDocument replaces the document with a blank one. Collections are
// kept.
func (m *Manager) ResetDocument() *model.Document {
	m.mu.Lock()
	m.document = model.EmptyDocument()
	m.stampCreated(m.document)
	m.markDirtyLocked()
	out := m.document.Clone()
	m.mu.Unlock()

	m.metrics.ObserveMutation(string(model.TypeDocument), "reset")
	m.entityActivity(string(model.TypeDocument), activity.ActionReset, out.ID, nil)
	m.publishChange(pending{EventDocumentReset, out.Clone()})
	return out
}

// Steps

// AddStep appends a step numbered after the current last one.
func (m *Manager) AddStep(in model.StepInput) (*model.AssemblyStep, error) {
	var id string
	doc, _, err := m.mutateDocument("add_step", []string{"Steps"}, func(d *model.Document) (bool, error) {
		s, err := d.AddStep(in)
		if err != nil {
			return false, err
		}
		id = s.ID
		return true, nil
	})
	return stepResult(doc, id, err)
}

// UpdateStep patches the step with id.
func (m *Manager) UpdateStep(id string, patch model.StepPatch) (*model.AssemblyStep, error) {
	doc, _, err := m.mutateDocument("update_step", []string{"Steps"}, func(d *model.Document) (bool, error) {
		_, err := d.UpdateStep(id, patch)
		return err == nil, err
	})
	return stepResult(doc, id, err)
}

// stepResult reads the step with id back from the stamped document a
// mutation returned.
func stepResult(doc *model.Document, id string, err error) (*model.AssemblyStep, error) {
	if err != nil {
		return nil, err
	}
	step, _ := doc.Step(id)
	return step, nil
}

// MutateStep applies fn to a copy of the step with id, for the step's
// part, tool, fixture and safety helpers. fn runs without the manager lock,
// so it may read from the manager; the result is rejected with a
// ConflictError when the step changed while fn ran.
func (m *Manager) MutateStep(id string, fn func(*model.AssemblyStep) error) (*model.AssemblyStep, error) {
	const op = "mutate_step"
	m.mu.Lock()
	before, ok := m.document.Step(id)
	m.mu.Unlock()
	if !ok {
		return nil, m.reportError(op, errs.NotFound(string(model.TypeStep), id))
	}

	work := before.Clone()
	if err := fn(work); err != nil {
		return nil, m.reportError(op, err)
	}

	doc, _, err := m.mutateDocument(op, []string{"Steps"}, func(d *model.Document) (bool, error) {
		current, ok := d.Step(id)
		if !ok {
			return false, errs.NotFound(string(model.TypeStep), id)
		}
		if !sameStep(current, before) {
			return false, errs.New(errs.KindConflict, "step %s changed during mutation", id)
		}
		_, err := d.MutateStep(id, func(live *model.AssemblyStep) error {
			*live = *work
			return nil
		})
		return err == nil, err
	})
	return stepResult(doc, id, err)
}

// sameStep compares two snapshots of a step, ignoring its number, which
// shifts when other steps are removed.
func sameStep(a, b *model.AssemblyStep) bool {
	ra, rb := a.ToRecord(), b.ToRecord()
	ra.StepNumber, rb.StepNumber = 0, 0
	return reflect.DeepEqual(ra, rb)
}

// RemoveStep deletes the step with id and renumbers the rest.
func (m *Manager) RemoveStep(id string) bool {
	_, ok, _ := m.mutateDocument("remove_step", []string{"Steps"}, func(d *model.Document) (bool, error) {
		return d.RemoveStep(id), nil
	})
	return ok
}

// MoveStep moves the step with id to the 0-based position to.
func (m *Manager) MoveStep(id string, to int) error {
	_, _, err := m.mutateDocument("move_step", []string{"Steps"}, func(d *model.Document) (bool, error) {
		before := d.Steps()
		if err := d.MoveStep(id, to); err != nil {
			return false, err
		}
		after := d.Steps()
		for i := range before {
			if before[i].ID != after[i].ID {
				return true, nil
			}
		}
		return false, nil
	})
	return err
}

// Bill of materials

// AddBOMItem adds qty of partID to the BOM, accumulating onto an existing
// entry. partID need not exist in the part collection.
func (m *Manager) AddBOMItem(partID string, qty int) error {
	_, _, err := m.mutateDocument("add_bom_item", []string{"BOM"}, func(d *model.Document) (bool, error) {
		return true, d.AddBOMItem(partID, qty)
	})
	return err
}

// UpdateBOMQuantity sets the quantity of an existing BOM entry.
func (m *Manager) UpdateBOMQuantity(partID string, qty int) error {
	_, _, err := m.mutateDocument("update_bom_quantity", []string{"BOM"}, func(d *model.Document) (bool, error) {
		return true, d.UpdateBOMQuantity(partID, qty)
	})
	return err
}

func (m *Manager) RemoveBOMItem(partID string) bool {
	_, ok, _ := m.mutateDocument("remove_bom_item", []string{"BOM"}, func(d *model.Document) (bool, error) {
		return d.RemoveBOMItem(partID), nil
	})
	return ok
}

// Document-level tool, fixture and safety lists. Adding an existing value
// is a no-op that reports false.

func (m *Manager) AddDocumentTool(toolID string) bool {
	return m.documentSet("add_document_tool", "Tools", func(d *model.Document) bool { return d.AddTool(toolID) })
}

func (m *Manager) RemoveDocumentTool(toolID string) bool {
	return m.documentSet("remove_document_tool", "Tools", func(d *model.Document) bool { return d.RemoveTool(toolID) })
}

func (m *Manager) AddDocumentFixture(fixtureID string) bool {
	return m.documentSet("add_document_fixture", "Fixtures", func(d *model.Document) bool { return d.AddFixture(fixtureID) })
}

func (m *Manager) RemoveDocumentFixture(fixtureID string) bool {
	return m.documentSet("remove_document_fixture", "Fixtures", func(d *model.Document) bool { return d.RemoveFixture(fixtureID) })
}

func (m *Manager) AddSafetyRequirement(req string) bool {
	return m.documentSet("add_safety_requirement", "SafetyRequirements", func(d *model.Document) bool { return d.AddSafetyRequirement(req) })
}

func (m *Manager) RemoveSafetyRequirement(req string) bool {
	return m.documentSet("remove_safety_requirement", "SafetyRequirements", func(d *model.Document) bool { return d.RemoveSafetyRequirement(req) })
}

func (m *Manager) documentSet(op, field string, fn func(*model.Document) bool) bool {
	_, ok, _ := m.mutateDocument(op, []string{field}, func(d *model.Document) (bool, error) {
		return fn(d), nil
	})
	return ok
}

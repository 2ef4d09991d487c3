package model

import "time"

// Stamped exposes an entity's timestamps to owners that keep their own
// clock. The model stamps with the package clock; such an owner moves the
// result onto its clock after each call.
type Stamped interface {
	Timestamps() (createdAt, updatedAt time.Time)
	SetTimestamps(createdAt, updatedAt time.Time)
}

var (
	_ Stamped = (*Part)(nil)
	_ Stamped = (*Tool)(nil)
	_ Stamped = (*Fixture)(nil)
	_ Stamped = (*SafetyItem)(nil)
	_ Stamped = (*AssemblyStep)(nil)
	_ Stamped = (*Document)(nil)
)

func (p *Part) Timestamps() (time.Time, time.Time) { return p.CreatedAt, p.UpdatedAt }

func (p *Part) SetTimestamps(created, updated time.Time) { p.CreatedAt, p.UpdatedAt = created, updated }

func (t *Tool) Timestamps() (time.Time, time.Time) { return t.CreatedAt, t.UpdatedAt }

func (t *Tool) SetTimestamps(created, updated time.Time) { t.CreatedAt, t.UpdatedAt = created, updated }

func (f *Fixture) Timestamps() (time.Time, time.Time) { return f.CreatedAt, f.UpdatedAt }

func (f *Fixture) SetTimestamps(created, updated time.Time) { f.CreatedAt, f.UpdatedAt = created, updated }

func (s *SafetyItem) Timestamps() (time.Time, time.Time) { return s.CreatedAt, s.UpdatedAt }

func (s *SafetyItem) SetTimestamps(created, updated time.Time) {
	s.CreatedAt, s.UpdatedAt = created, updated
}

func (s *AssemblyStep) Timestamps() (time.Time, time.Time) { return s.CreatedAt, s.UpdatedAt }

func (s *AssemblyStep) SetTimestamps(created, updated time.Time) {
	s.CreatedAt, s.UpdatedAt = created, updated
}

func (d *Document) Timestamps() (time.Time, time.Time) { return d.CreatedAt, d.UpdatedAt }

func (d *Document) SetTimestamps(created, updated time.Time) {
	d.CreatedAt, d.UpdatedAt = created, updated
}

// SetStepTimestamps assigns the timestamps of the step with id, reporting
// false when the document has no such step.
func (d *Document) SetStepTimestamps(id string, created, updated time.Time) bool {
	i := d.stepIndex(id)
	if i < 0 {
		return false
	}
	d.steps[i].SetTimestamps(created, updated)
	return true
}

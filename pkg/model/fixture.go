package model

import "time"

// FixtureRecord is the serialisable shape of a Fixture.
type FixtureRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Identifier  string    `json:"identifier"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Fixture is a jig or holding device used during assembly.
type Fixture struct {
	FixtureRecord
}

type FixtureInput struct {
	Name        string
	Identifier  string
	Description string
	Category    string
}

type FixturePatch struct {
	Name        *string
	Identifier  *string
	Description *string
	Category    *string
}

func NewFixture(in FixtureInput) (*Fixture, error) {
	ts := now()
	f := &Fixture{FixtureRecord{
		ID:          NewID(),
		Name:        clean(in.Name),
		Identifier:  clean(in.Identifier),
		Description: clean(in.Description),
		Category:    category(in.Category),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func FixtureFromRecord(rec FixtureRecord) (*Fixture, error) {
	f := &Fixture{rec}
	f.Name, f.Identifier = clean(rec.Name), clean(rec.Identifier)
	f.Category = category(rec.Category)
	f.ID, f.CreatedAt, f.UpdatedAt = stamped(rec.ID, rec.CreatedAt, rec.UpdatedAt)
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Fixture) EntityID() string { return f.ID }

func (f *Fixture) EntityType() Type { return TypeFixture }

func (f *Fixture) Validate() error {
	return requireAll(string(TypeFixture), [2]string{"name", f.Name}, [2]string{"identifier", f.Identifier})
}

func (f *Fixture) Complete() bool {
	return f.Name != "" && f.Identifier != ""
}

func (f *Fixture) Update(patch FixturePatch) error {
	next := *f
	assign(&next.Name, patch.Name)
	assign(&next.Identifier, patch.Identifier)
	assign(&next.Description, patch.Description)
	if patch.Category != nil {
		next.Category = category(*patch.Category)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = touch(f.UpdatedAt)
	*f = next
	return nil
}

func (f *Fixture) ToRecord() FixtureRecord {
	return f.FixtureRecord
}

func (f *Fixture) Clone() *Fixture {
	if f == nil {
		return nil
	}
	clone := *f
	return &clone
}

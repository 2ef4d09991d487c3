package model

import "time"

// PartRecord is the serialisable shape of a Part.
type PartRecord struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PartNumber     string    `json:"partNumber"`
	Description    string    `json:"description"`
	Specifications string    `json:"specifications"`
	Category       string    `json:"category"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Part is a component referenced by the BOM and by assembly steps.
type Part struct {
	PartRecord
}

// PartInput carries the fields accepted at construction.
type PartInput struct {
	Name           string
	PartNumber     string
	Description    string
	Specifications string
	Category       string
}

// PartPatch lists the mutable fields of a Part; nil means unchanged.
type PartPatch struct {
	Name           *string
	PartNumber     *string
	Description    *string
	Specifications *string
	Category       *string
}

// NewPart builds a Part, assigning id and timestamps.
func NewPart(in PartInput) (*Part, error) {
	ts := now()
	p := &Part{PartRecord{
		ID:             NewID(),
		Name:           clean(in.Name),
		PartNumber:     clean(in.PartNumber),
		Description:    clean(in.Description),
		Specifications: clean(in.Specifications),
		Category:       category(in.Category),
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// PartFromRecord rehydrates a persisted record, keeping id and timestamps.
func PartFromRecord(rec PartRecord) (*Part, error) {
	p := &Part{rec}
	p.Name, p.PartNumber = clean(rec.Name), clean(rec.PartNumber)
	p.Category = category(rec.Category)
	p.ID, p.CreatedAt, p.UpdatedAt = stamped(rec.ID, rec.CreatedAt, rec.UpdatedAt)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Part) EntityID() string { return p.ID }

func (p *Part) EntityType() Type { return TypePart }

// Validate enforces that name and part number are set together.
func (p *Part) Validate() error {
	return requireAll(string(TypePart), [2]string{"name", p.Name}, [2]string{"partNumber", p.PartNumber})
}

// Complete reports whether the part is fully specified.
func (p *Part) Complete() bool {
	return p.Name != "" && p.PartNumber != ""
}

// Update merges patch, re-validates and bumps UpdatedAt. On failure the part
// is left unchanged.
func (p *Part) Update(patch PartPatch) error {
	next := *p
	assign(&next.Name, patch.Name)
	assign(&next.PartNumber, patch.PartNumber)
	assign(&next.Description, patch.Description)
	assign(&next.Specifications, patch.Specifications)
	if patch.Category != nil {
		next.Category = category(*patch.Category)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = touch(p.UpdatedAt)
	*p = next
	return nil
}

func (p *Part) ToRecord() PartRecord {
	return p.PartRecord
}

func (p *Part) Clone() *Part {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

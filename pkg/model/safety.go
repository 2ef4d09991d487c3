package model

import (
	"time"

	"github.com/goliatone/go-sop/pkg/errs"
)

// Severity ranks the hazard a safety item protects against.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DefaultSeverity is applied when no severity is supplied.
const DefaultSeverity = SeverityMedium

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SafetyItemRecord is the serialisable shape of a SafetyItem.
type SafetyItemRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Identifier  string    `json:"identifier"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Severity    Severity  `json:"severity"`
	Pictogram   string    `json:"pictogram"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SafetyItem is PPE or a hazard notice. Pictogram is a display glyph or icon
// reference.
type SafetyItem struct {
	SafetyItemRecord
}

type SafetyItemInput struct {
	Name        string
	Identifier  string
	Description string
	Category    string
	Severity    Severity
	Pictogram   string
}

type SafetyItemPatch struct {
	Name        *string
	Identifier  *string
	Description *string
	Category    *string
	Severity    *Severity
	Pictogram   *string
}

func severity(s Severity) Severity {
	if v := Severity(clean(string(s))); v != "" {
		return v
	}
	return DefaultSeverity
}

func NewSafetyItem(in SafetyItemInput) (*SafetyItem, error) {
	ts := now()
	s := &SafetyItem{SafetyItemRecord{
		ID:          NewID(),
		Name:        clean(in.Name),
		Identifier:  clean(in.Identifier),
		Description: clean(in.Description),
		Category:    category(in.Category),
		Severity:    severity(in.Severity),
		Pictogram:   clean(in.Pictogram),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func SafetyItemFromRecord(rec SafetyItemRecord) (*SafetyItem, error) {
	s := &SafetyItem{rec}
	s.Name, s.Identifier = clean(rec.Name), clean(rec.Identifier)
	s.Category = category(rec.Category)
	s.Severity = severity(rec.Severity)
	s.ID, s.CreatedAt, s.UpdatedAt = stamped(rec.ID, rec.CreatedAt, rec.UpdatedAt)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SafetyItem) EntityID() string { return s.ID }

func (s *SafetyItem) EntityType() Type { return TypeSafety }

func (s *SafetyItem) Validate() error {
	if !s.Severity.Valid() {
		return errs.Validation(string(TypeSafety), "unknown severity %q", s.Severity)
	}
	return requireAll(string(TypeSafety), [2]string{"name", s.Name}, [2]string{"identifier", s.Identifier})
}

func (s *SafetyItem) Complete() bool {
	return s.Name != "" && s.Identifier != ""
}

func (s *SafetyItem) Update(patch SafetyItemPatch) error {
	next := *s
	assign(&next.Name, patch.Name)
	assign(&next.Identifier, patch.Identifier)
	assign(&next.Description, patch.Description)
	assign(&next.Pictogram, patch.Pictogram)
	if patch.Category != nil {
		next.Category = category(*patch.Category)
	}
	if patch.Severity != nil {
		next.Severity = severity(*patch.Severity)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = touch(s.UpdatedAt)
	*s = next
	return nil
}

func (s *SafetyItem) ToRecord() SafetyItemRecord {
	return s.SafetyItemRecord
}

func (s *SafetyItem) Clone() *SafetyItem {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

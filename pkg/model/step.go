package model

import (
	"time"

	"github.com/goliatone/go-sop/pkg/errs"
)

// AssemblyStepRecord is the serialisable shape of an AssemblyStep.
type AssemblyStepRecord struct {
	ID                      string    `json:"id"`
	StepNumber              int       `json:"stepNumber"`
	Description             string    `json:"description"`
	Parts                   []PartRef `json:"parts"`
	Tools                   []string  `json:"tools"`
	Fixtures                []string  `json:"fixtures"`
	SafetyRequirements      []string  `json:"safetyRequirements"`
	QualityCheck            bool      `json:"qualityCheck"`
	QualityCheckDescription string    `json:"qualityCheckDescription"`
	Notes                   string    `json:"notes"`
	EstimatedTime           int       `json:"estimatedTime"`
	Category                string    `json:"category"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

// AssemblyStep is one numbered instruction of a Document. Steps are owned by
// exactly one document, which keeps their numbers dense.
type AssemblyStep struct {
	AssemblyStepRecord
}

// StepInput carries construction fields. A zero StepNumber means unset and
// becomes 1; Document.AddStep ignores it and assigns the next number.
type StepInput struct {
	StepNumber              int
	Description             string
	Parts                   []PartRef
	Tools                   []string
	Fixtures                []string
	SafetyRequirements      []string
	QualityCheck            bool
	QualityCheckDescription string
	Notes                   string
	EstimatedTime           int
	Category                string
}

// StepPatch lists the mutable step fields. Step numbers are owned by the
// document and cannot be patched.
type StepPatch struct {
	Description             *string
	Parts                   *[]PartRef
	Tools                   *[]string
	Fixtures                *[]string
	SafetyRequirements      *[]string
	QualityCheck            *bool
	QualityCheckDescription *string
	Notes                   *string
	EstimatedTime           *int
	Category                *string
}

func NewAssemblyStep(in StepInput) (*AssemblyStep, error) {
	number := in.StepNumber
	if number == 0 {
		number = 1
	}
	parts, err := normaliseRefs(string(TypeStep), in.Parts)
	if err != nil {
		return nil, err
	}
	tools, err := normaliseIDs(string(TypeStep), "tools", in.Tools)
	if err != nil {
		return nil, err
	}
	fixtures, err := normaliseIDs(string(TypeStep), "fixtures", in.Fixtures)
	if err != nil {
		return nil, err
	}
	ts := now()
	s := &AssemblyStep{AssemblyStepRecord{
		ID:                      NewID(),
		StepNumber:              number,
		Description:             clean(in.Description),
		Parts:                   parts,
		Tools:                   tools,
		Fixtures:                fixtures,
		SafetyRequirements:      normaliseRequirements(in.SafetyRequirements),
		QualityCheck:            in.QualityCheck,
		QualityCheckDescription: clean(in.QualityCheckDescription),
		Notes:                   clean(in.Notes),
		EstimatedTime:           in.EstimatedTime,
		Category:                category(in.Category),
		CreatedAt:               ts,
		UpdatedAt:               ts,
	}}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func AssemblyStepFromRecord(rec AssemblyStepRecord) (*AssemblyStep, error) {
	parts, err := normaliseRefs(string(TypeStep), rec.Parts)
	if err != nil {
		return nil, err
	}
	tools, err := normaliseIDs(string(TypeStep), "tools", rec.Tools)
	if err != nil {
		return nil, err
	}
	fixtures, err := normaliseIDs(string(TypeStep), "fixtures", rec.Fixtures)
	if err != nil {
		return nil, err
	}
	s := &AssemblyStep{rec}
	s.Parts, s.Tools, s.Fixtures = parts, tools, fixtures
	s.SafetyRequirements = normaliseRequirements(rec.SafetyRequirements)
	s.Category = category(rec.Category)
	s.ID, s.CreatedAt, s.UpdatedAt = stamped(rec.ID, rec.CreatedAt, rec.UpdatedAt)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AssemblyStep) EntityID() string { return s.ID }

func (s *AssemblyStep) EntityType() Type { return TypeStep }

func (s *AssemblyStep) Validate() error {
	if s.StepNumber < 1 {
		return errs.Validation(string(TypeStep), "step number must be at least 1, got %d", s.StepNumber)
	}
	if s.EstimatedTime < 0 {
		return errs.Validation(string(TypeStep), "estimated time must not be negative, got %d", s.EstimatedTime)
	}
	return nil
}

func (s *AssemblyStep) Update(patch StepPatch) error {
	next := s.Clone()
	assign(&next.Description, patch.Description)
	assign(&next.QualityCheckDescription, patch.QualityCheckDescription)
	assign(&next.Notes, patch.Notes)
	if patch.Category != nil {
		next.Category = category(*patch.Category)
	}
	if patch.QualityCheck != nil {
		next.QualityCheck = *patch.QualityCheck
	}
	if patch.EstimatedTime != nil {
		next.EstimatedTime = *patch.EstimatedTime
	}
	if patch.Parts != nil {
		parts, err := normaliseRefs(string(TypeStep), *patch.Parts)
		if err != nil {
			return err
		}
		next.Parts = parts
	}
	if patch.Tools != nil {
		tools, err := normaliseIDs(string(TypeStep), "tools", *patch.Tools)
		if err != nil {
			return err
		}
		next.Tools = tools
	}
	if patch.Fixtures != nil {
		fixtures, err := normaliseIDs(string(TypeStep), "fixtures", *patch.Fixtures)
		if err != nil {
			return err
		}
		next.Fixtures = fixtures
	}
	if patch.SafetyRequirements != nil {
		next.SafetyRequirements = normaliseRequirements(*patch.SafetyRequirements)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = touch(s.UpdatedAt)
	*s = *next
	return nil
}

// AddPart adds quantity of partID, accumulating onto an existing entry.
func (s *AssemblyStep) AddPart(partID string, qty int) error {
	partID = clean(partID)
	if partID == "" {
		return errs.Validation(string(TypeStep), "partId required")
	}
	n, err := quantity(string(TypeStep), qty)
	if err != nil {
		return err
	}
	s.Parts = accumulate(s.Parts, partID, n)
	s.UpdatedAt = touch(s.UpdatedAt)
	return nil
}

func (s *AssemblyStep) RemovePart(partID string) bool {
	var removed bool
	s.Parts, removed = removeRef(s.Parts, clean(partID))
	if removed {
		s.UpdatedAt = touch(s.UpdatedAt)
	}
	return removed
}

// AddTool adds toolID once; repeated adds are no-ops.
func (s *AssemblyStep) AddTool(toolID string) bool {
	return s.addTo(&s.Tools, toolID)
}

func (s *AssemblyStep) RemoveTool(toolID string) bool {
	return s.removeFrom(&s.Tools, toolID)
}

func (s *AssemblyStep) AddFixture(fixtureID string) bool {
	return s.addTo(&s.Fixtures, fixtureID)
}

func (s *AssemblyStep) RemoveFixture(fixtureID string) bool {
	return s.removeFrom(&s.Fixtures, fixtureID)
}

func (s *AssemblyStep) AddSafetyRequirement(req string) bool {
	return s.addTo(&s.SafetyRequirements, req)
}

func (s *AssemblyStep) RemoveSafetyRequirement(req string) bool {
	return s.removeFrom(&s.SafetyRequirements, req)
}

func (s *AssemblyStep) addTo(list *[]string, value string) bool {
	value = clean(value)
	if value == "" {
		return false
	}
	var added bool
	*list, added = addUnique(*list, value)
	if added {
		s.UpdatedAt = touch(s.UpdatedAt)
	}
	return added
}

func (s *AssemblyStep) removeFrom(list *[]string, value string) bool {
	var removed bool
	*list, removed = removeValue(*list, clean(value))
	if removed {
		s.UpdatedAt = touch(s.UpdatedAt)
	}
	return removed
}

func (s *AssemblyStep) setNumber(n int) {
	if s.StepNumber == n {
		return
	}
	s.StepNumber = n
	s.UpdatedAt = touch(s.UpdatedAt)
}

func (s *AssemblyStep) ToRecord() AssemblyStepRecord {
	rec := s.AssemblyStepRecord
	rec.Parts = cloneRefs(s.Parts)
	rec.Tools = cloneStrings(s.Tools)
	rec.Fixtures = cloneStrings(s.Fixtures)
	rec.SafetyRequirements = cloneStrings(s.SafetyRequirements)
	return rec
}

func (s *AssemblyStep) Clone() *AssemblyStep {
	if s == nil {
		return nil
	}
	return &AssemblyStep{s.ToRecord()}
}

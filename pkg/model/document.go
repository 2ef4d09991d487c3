package model

import (
	"time"

	"github.com/goliatone/go-sop/pkg/errs"
)

// Status is the lifecycle state of a Document.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusReview   Status = "review"
	StatusApproved Status = "approved"
	StatusArchived Status = "archived"
)

// DefaultRevision is the revision assigned to new documents.
const DefaultRevision = "A"

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusApproved, StatusArchived:
		return true
	}
	return false
}

func status(s Status) Status {
	if v := Status(clean(string(s))); v != "" {
		return v
	}
	return StatusDraft
}

func revision(s string) string {
	if r := clean(s); r != "" {
		return r
	}
	return DefaultRevision
}

// DocumentRecord is the serialisable shape of a Document.
type DocumentRecord struct {
	ID                 string               `json:"id"`
	Title              string               `json:"title"`
	PartNumber         string               `json:"partNumber"`
	Revision           string               `json:"revision"`
	Author             string               `json:"author"`
	Department         string               `json:"department"`
	Approver           string               `json:"approver"`
	EffectiveDate      string               `json:"effectiveDate"`
	Steps              []AssemblyStepRecord `json:"steps"`
	BOM                []PartRef            `json:"bom"`
	Tools              []string             `json:"tools"`
	Fixtures           []string             `json:"fixtures"`
	SafetyRequirements []string             `json:"safetyRequirements"`
	Notes              string               `json:"notes"`
	TotalTime          int                  `json:"totalTime"`
	Status             Status               `json:"status"`
	Category           string               `json:"category"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

// Document is the SOP being assembled. Scalar header fields are exported;
// steps, BOM and the tool/fixture/safety lists are reached through methods so
// numbering and de-duplication stay consistent.
type Document struct {
	ID            string
	Title         string
	PartNumber    string
	Revision      string
	Author        string
	Department    string
	Approver      string
	EffectiveDate string
	Notes         string
	Status        Status
	Category      string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	steps     []*AssemblyStep
	bom       []PartRef
	tools     []string
	fixtures  []string
	safety    []string
	totalTime int
}

type DocumentInput struct {
	Title         string
	PartNumber    string
	Revision      string
	Author        string
	Department    string
	Approver      string
	EffectiveDate string
	Notes         string
	Status        Status
	Category      string
}

type DocumentPatch struct {
	Title         *string
	PartNumber    *string
	Revision      *string
	Author        *string
	Department    *string
	Approver      *string
	EffectiveDate *string
	Notes         *string
	Status        *Status
	Category      *string
}

func NewDocument(in DocumentInput) (*Document, error) {
	ts := now()
	d := &Document{
		ID:            NewID(),
		Title:         clean(in.Title),
		PartNumber:    clean(in.PartNumber),
		Revision:      revision(in.Revision),
		Author:        clean(in.Author),
		Department:    clean(in.Department),
		Approver:      clean(in.Approver),
		EffectiveDate: clean(in.EffectiveDate),
		Notes:         clean(in.Notes),
		Status:        status(in.Status),
		Category:      category(in.Category),
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// EmptyDocument returns a fresh blank document. It cannot fail.
func EmptyDocument() *Document {
	d, _ := NewDocument(DocumentInput{})
	return d
}

func DocumentFromRecord(rec DocumentRecord) (*Document, error) {
	d := &Document{
		Title:         clean(rec.Title),
		PartNumber:    clean(rec.PartNumber),
		Revision:      revision(rec.Revision),
		Author:        clean(rec.Author),
		Department:    clean(rec.Department),
		Approver:      clean(rec.Approver),
		EffectiveDate: clean(rec.EffectiveDate),
		Notes:         rec.Notes,
		Status:        status(rec.Status),
		Category:      category(rec.Category),
	}
	d.ID, d.CreatedAt, d.UpdatedAt = stamped(rec.ID, rec.CreatedAt, rec.UpdatedAt)

	var err error
	if d.bom, err = normaliseRefs(string(TypeDocument), rec.BOM); err != nil {
		return nil, err
	}
	if d.tools, err = normaliseIDs(string(TypeDocument), "tools", rec.Tools); err != nil {
		return nil, err
	}
	if d.fixtures, err = normaliseIDs(string(TypeDocument), "fixtures", rec.Fixtures); err != nil {
		return nil, err
	}
	d.safety = normaliseRequirements(rec.SafetyRequirements)

	d.steps = make([]*AssemblyStep, 0, len(rec.Steps))
	for _, sr := range rec.Steps {
		step, err := AssemblyStepFromRecord(sr)
		if err != nil {
			return nil, err
		}
		d.steps = append(d.steps, step)
	}
	// Stored numbers are advisory; order is authoritative.
	for i, step := range d.steps {
		step.StepNumber = i + 1
	}
	d.totalTime = d.CalculateTotalTime()

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) EntityID() string { return d.ID }

func (d *Document) EntityType() Type { return TypeDocument }

// Validate enforces that title, part number and author are set together and
// that the status is known.
func (d *Document) Validate() error {
	if !d.Status.Valid() {
		return errs.Validation(string(TypeDocument), "unknown status %q", d.Status)
	}
	return requireAll(string(TypeDocument),
		[2]string{"title", d.Title},
		[2]string{"partNumber", d.PartNumber},
		[2]string{"author", d.Author},
	)
}

// ReadyForGeneration reports whether the document has everything needed to
// render an SOP: a complete header and at least one step.
func (d *Document) ReadyForGeneration() error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Title == "" {
		return errs.Validation(string(TypeDocument), "title, partNumber, author required")
	}
	if len(d.steps) == 0 {
		return errs.Validation(string(TypeDocument), "at least one step required")
	}
	return nil
}

func (d *Document) Update(patch DocumentPatch) error {
	next := d.Clone()
	assign(&next.Title, patch.Title)
	assign(&next.PartNumber, patch.PartNumber)
	assign(&next.Author, patch.Author)
	assign(&next.Department, patch.Department)
	assign(&next.Approver, patch.Approver)
	assign(&next.EffectiveDate, patch.EffectiveDate)
	assign(&next.Notes, patch.Notes)
	if patch.Revision != nil {
		next.Revision = revision(*patch.Revision)
	}
	if patch.Status != nil {
		next.Status = status(*patch.Status)
	}
	if patch.Category != nil {
		next.Category = category(*patch.Category)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = touch(d.UpdatedAt)
	*d = *next
	return nil
}

func (d *Document) SetStatus(s Status) error {
	return d.Update(DocumentPatch{Status: &s})
}

func (d *Document) bump() {
	d.UpdatedAt = touch(d.UpdatedAt)
}

// Steps returns copies of the steps in order.
func (d *Document) Steps() []*AssemblyStep {
	out := make([]*AssemblyStep, 0, len(d.steps))
	for _, s := range d.steps {
		out = append(out, s.Clone())
	}
	return out
}

// StepCount reports the number of steps.
func (d *Document) StepCount() int {
	return len(d.steps)
}

// Step returns a copy of the step with id.
func (d *Document) Step(id string) (*AssemblyStep, bool) {
	if i := d.stepIndex(id); i >= 0 {
		return d.steps[i].Clone(), true
	}
	return nil, false
}

func (d *Document) stepIndex(id string) int {
	for i, s := range d.steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// AddStep appends a step numbered after the current last one.
func (d *Document) AddStep(in StepInput) (*AssemblyStep, error) {
	in.StepNumber = len(d.steps) + 1
	step, err := NewAssemblyStep(in)
	if err != nil {
		return nil, err
	}
	d.steps = append(d.steps, step)
	d.totalTime = d.CalculateTotalTime()
	d.bump()
	return step.Clone(), nil
}

// UpdateStep patches the step with id.
func (d *Document) UpdateStep(id string, patch StepPatch) (*AssemblyStep, error) {
	i := d.stepIndex(id)
	if i < 0 {
		return nil, errs.NotFound(string(TypeStep), id)
	}
	if err := d.steps[i].Update(patch); err != nil {
		return nil, err
	}
	d.totalTime = d.CalculateTotalTime()
	d.bump()
	return d.steps[i].Clone(), nil
}

// MutateStep applies fn to the live step with id. fn must not change the
// step number.
func (d *Document) MutateStep(id string, fn func(*AssemblyStep) error) (*AssemblyStep, error) {
	i := d.stepIndex(id)
	if i < 0 {
		return nil, errs.NotFound(string(TypeStep), id)
	}
	work := d.steps[i].Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.StepNumber = i + 1
	if err := work.Validate(); err != nil {
		return nil, err
	}
	d.steps[i] = work
	d.totalTime = d.CalculateTotalTime()
	d.bump()
	return work.Clone(), nil
}

// RemoveStep deletes the step with id, renumbers the remainder 1..N in their
// current order and recomputes the total time.
func (d *Document) RemoveStep(id string) bool {
	i := d.stepIndex(id)
	if i < 0 {
		return false
	}
	d.steps = append(d.steps[:i:i], d.steps[i+1:]...)
	d.renumber()
	d.totalTime = d.CalculateTotalTime()
	d.bump()
	return true
}

// MoveStep moves the step with id to position to (0-based, clamped) and
// renumbers.
func (d *Document) MoveStep(id string, to int) error {
	i := d.stepIndex(id)
	if i < 0 {
		return errs.NotFound(string(TypeStep), id)
	}
	if to < 0 {
		to = 0
	}
	if to >= len(d.steps) {
		to = len(d.steps) - 1
	}
	if to == i {
		return nil
	}
	step := d.steps[i]
	rest := append(d.steps[:i:i], d.steps[i+1:]...)
	reordered := make([]*AssemblyStep, 0, len(d.steps))
	reordered = append(reordered, rest[:to]...)
	reordered = append(reordered, step)
	reordered = append(reordered, rest[to:]...)
	d.steps = reordered
	d.renumber()
	d.totalTime = d.CalculateTotalTime()
	d.bump()
	return nil
}

func (d *Document) renumber() {
	for i, s := range d.steps {
		s.setNumber(i + 1)
	}
}

// CalculateTotalTime sums the estimated minutes of all steps.
func (d *Document) CalculateTotalTime() int {
	total := 0
	for _, s := range d.steps {
		total += s.EstimatedTime
	}
	return total
}

// TotalTime returns the cached total, kept in sync by step operations.
func (d *Document) TotalTime() int {
	return d.totalTime
}

// BOM returns a copy of the bill of materials.
func (d *Document) BOM() []PartRef {
	return cloneRefs(d.bom)
}

// AddBOMItem adds qty of partID, accumulating onto an existing entry.
func (d *Document) AddBOMItem(partID string, qty int) error {
	partID = clean(partID)
	if partID == "" {
		return errs.Validation(string(TypeDocument), "partId required")
	}
	n, err := quantity(string(TypeDocument), qty)
	if err != nil {
		return err
	}
	d.bom = accumulate(d.bom, partID, n)
	d.bump()
	return nil
}

// UpdateBOMQuantity sets the quantity for an existing BOM entry.
func (d *Document) UpdateBOMQuantity(partID string, qty int) error {
	if qty < 1 {
		return errs.Validation(string(TypeDocument), "quantity must be at least 1, got %d", qty)
	}
	for i := range d.bom {
		if d.bom[i].PartID == partID {
			d.bom[i].Quantity = qty
			d.bump()
			return nil
		}
	}
	return errs.NotFound("bom", partID)
}

func (d *Document) RemoveBOMItem(partID string) bool {
	var removed bool
	d.bom, removed = removeRef(d.bom, clean(partID))
	if removed {
		d.bump()
	}
	return removed
}

func (d *Document) Tools() []string { return cloneStrings(d.tools) }

func (d *Document) Fixtures() []string { return cloneStrings(d.fixtures) }

func (d *Document) SafetyRequirements() []string { return cloneStrings(d.safety) }

func (d *Document) AddTool(id string) bool { return d.addTo(&d.tools, id) }

func (d *Document) RemoveTool(id string) bool { return d.removeFrom(&d.tools, id) }

func (d *Document) AddFixture(id string) bool { return d.addTo(&d.fixtures, id) }

func (d *Document) RemoveFixture(id string) bool { return d.removeFrom(&d.fixtures, id) }

func (d *Document) AddSafetyRequirement(req string) bool { return d.addTo(&d.safety, req) }

func (d *Document) RemoveSafetyRequirement(req string) bool { return d.removeFrom(&d.safety, req) }

func (d *Document) addTo(list *[]string, value string) bool {
	value = clean(value)
	if value == "" {
		return false
	}
	var added bool
	*list, added = addUnique(*list, value)
	if added {
		d.bump()
	}
	return added
}

func (d *Document) removeFrom(list *[]string, value string) bool {
	var removed bool
	*list, removed = removeValue(*list, clean(value))
	if removed {
		d.bump()
	}
	return removed
}

func (d *Document) ToRecord() DocumentRecord {
	steps := make([]AssemblyStepRecord, 0, len(d.steps))
	for _, s := range d.steps {
		steps = append(steps, s.ToRecord())
	}
	return DocumentRecord{
		ID:                 d.ID,
		Title:              d.Title,
		PartNumber:         d.PartNumber,
		Revision:           d.Revision,
		Author:             d.Author,
		Department:         d.Department,
		Approver:           d.Approver,
		EffectiveDate:      d.EffectiveDate,
		Steps:              steps,
		BOM:                cloneRefs(d.bom),
		Tools:              cloneStrings(d.tools),
		Fixtures:           cloneStrings(d.fixtures),
		SafetyRequirements: cloneStrings(d.safety),
		Notes:              d.Notes,
		TotalTime:          d.totalTime,
		Status:             d.Status,
		Category:           d.Category,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	clone := *d
	clone.steps = make([]*AssemblyStep, 0, len(d.steps))
	for _, s := range d.steps {
		clone.steps = append(clone.steps, s.Clone())
	}
	clone.bom = cloneRefs(d.bom)
	clone.tools = cloneStrings(d.tools)
	clone.fixtures = cloneStrings(d.fixtures)
	clone.safety = cloneStrings(d.safety)
	return &clone
}

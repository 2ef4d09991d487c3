package model

import "time"

// ToolRecord is the serialisable shape of a Tool.
type ToolRecord struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Size           string    `json:"size"`
	Specifications string    `json:"specifications"`
	Identifier     string    `json:"identifier"`
	Category       string    `json:"category"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Tool is a hand or power tool used by assembly steps. Identifier is the
// human-facing tool code, distinct from ID.
type Tool struct {
	ToolRecord
}

type ToolInput struct {
	Name           string
	Size           string
	Specifications string
	Identifier     string
	Category       string
}

type ToolPatch struct {
	Name           *string
	Size           *string
	Specifications *string
	Identifier     *string
	Category       *string
}

func NewTool(in ToolInput) (*Tool, error) {
	ts := now()
	t := &Tool{ToolRecord{
		ID:             NewID(),
		Name:           clean(in.Name),
		Size:           clean(in.Size),
		Specifications: clean(in.Specifications),
		Identifier:     clean(in.Identifier),
		Category:       category(in.Category),
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func ToolFromRecord(rec ToolRecord) (*Tool, error) {
	t := &Tool{rec}
	t.Name, t.Identifier = clean(rec.Name), clean(rec.Identifier)
	t.Category = category(rec.Category)
	t.ID, t.CreatedAt, t.UpdatedAt = stamped(rec.ID, rec.CreatedAt, rec.UpdatedAt)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tool) EntityID() string { return t.ID }

func (t *Tool) EntityType() Type { return TypeTool }

func (t *Tool) Validate() error {
	return requireAll(string(TypeTool), [2]string{"name", t.Name}, [2]string{"identifier", t.Identifier})
}

func (t *Tool) Complete() bool {
	return t.Name != "" && t.Identifier != ""
}

func (t *Tool) Update(patch ToolPatch) error {
	next := *t
	assign(&next.Name, patch.Name)
	assign(&next.Size, patch.Size)
	assign(&next.Specifications, patch.Specifications)
	assign(&next.Identifier, patch.Identifier)
	if patch.Category != nil {
		next.Category = category(*patch.Category)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = touch(t.UpdatedAt)
	*t = next
	return nil
}

func (t *Tool) ToRecord() ToolRecord {
	return t.ToolRecord
}

func (t *Tool) Clone() *Tool {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

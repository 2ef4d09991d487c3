package persist

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/model"
)

// Entry is one (id, record) pair of a persisted collection. It serialises as a
// two-element JSON array.
type Entry[R any] struct {
	ID     string
	Record R
}

func (e Entry[R]) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.ID, e.Record})
}

func (e *Entry[R]) UnmarshalJSON(raw []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("persist: entry must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.ID); err != nil {
		return fmt.Errorf("persist: entry id: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Record); err != nil {
		return fmt.Errorf("persist: entry %s record: %w", e.ID, err)
	}
	return nil
}

// Entries is an ordered persisted collection.
type Entries[R any] []Entry[R]

// Records returns the records in order.
func (es Entries[R]) Records() []R {
	out := make([]R, 0, len(es))
	for _, e := range es {
		out = append(out, e.Record)
	}
	return out
}

// Snapshot is the full serialisable state: every collection plus the active
// document.
type Snapshot struct {
	Parts     Entries[model.PartRecord]       `json:"parts"`
	Tools     Entries[model.ToolRecord]       `json:"tools"`
	Fixtures  Entries[model.FixtureRecord]    `json:"fixtures"`
	Safety    Entries[model.SafetyItemRecord] `json:"safety"`
	Document  model.DocumentRecord            `json:"document"`
	LastSaved *time.Time                      `json:"lastSaved"`
}

// Validate rehydrates every record through its model constructor and reports
// the first invariant violation, or an entry whose key disagrees with its id.
func (s Snapshot) Validate() error {
	if err := validateEntries(s.Parts, func(r model.PartRecord) (string, error) {
		p, err := model.PartFromRecord(r)
		return r.ID, ignoreNil(p, err)
	}); err != nil {
		return err
	}
	if err := validateEntries(s.Tools, func(r model.ToolRecord) (string, error) {
		t, err := model.ToolFromRecord(r)
		return r.ID, ignoreNil(t, err)
	}); err != nil {
		return err
	}
	if err := validateEntries(s.Fixtures, func(r model.FixtureRecord) (string, error) {
		f, err := model.FixtureFromRecord(r)
		return r.ID, ignoreNil(f, err)
	}); err != nil {
		return err
	}
	if err := validateEntries(s.Safety, func(r model.SafetyItemRecord) (string, error) {
		it, err := model.SafetyItemFromRecord(r)
		return r.ID, ignoreNil(it, err)
	}); err != nil {
		return err
	}
	if _, err := model.DocumentFromRecord(s.Document); err != nil {
		return err
	}
	return nil
}

func validateEntries[R any](entries Entries[R], check func(R) (string, error)) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return errs.New(errs.KindCorruptData, "entry with empty id")
		}
		if _, dup := seen[e.ID]; dup {
			return errs.New(errs.KindCorruptData, "duplicate entry id %s", e.ID)
		}
		seen[e.ID] = struct{}{}
		id, err := check(e.Record)
		if err != nil {
			return err
		}
		if id != "" && id != e.ID {
			return errs.New(errs.KindCorruptData, "entry key %s does not match record id %s", e.ID, id)
		}
	}
	return nil
}

func ignoreNil[T any](_ T, err error) error { return err }

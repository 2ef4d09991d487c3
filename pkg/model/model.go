// Package model holds the SOP entity types: parts, tools, fixtures, safety
// items, assembly steps and the SOP document that references them.
//
// Entities follow a partial-entry rule: construction with empty input always
// succeeds so forms can be filled progressively, but once one field of a
// required pair (or triple) is populated, all of them must be. Every entity is
// created through a constructor that assigns an id and timestamps, mutated
// through Update with a typed patch, and serialised through ToRecord.
package model

import (
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/google/uuid"
)

// Type names an entity collection.
type Type string

const (
	TypePart     Type = "part"
	TypeTool     Type = "tool"
	TypeFixture  Type = "fixture"
	TypeSafety   Type = "safety"
	TypeStep     Type = "step"
	TypeDocument Type = "document"
)

// CollectionTypes lists the id-keyed collections owned by the state manager.
var CollectionTypes = []Type{TypePart, TypeTool, TypeFixture, TypeSafety}

// DefaultCategory is applied when no category is supplied.
const DefaultCategory = "general"

// Entity is implemented by every top-level entity.
type Entity interface {
	EntityID() string
	EntityType() Type
}

// PartRef is a (part id, quantity) pair used by the BOM and by step part lists.
type PartRef struct {
	PartID   string `json:"partId"`
	Quantity int    `json:"quantity"`
}

var (
	clockMu sync.RWMutex
	clock   = func() time.Time { return time.Now().UTC() }
)

// SetClock overrides the timestamp source and returns a function restoring the
// previous one. Intended for tests.
func SetClock(fn func() time.Time) (restore func()) {
	clockMu.Lock()
	prev := clock
	if fn == nil {
		fn = func() time.Time { return time.Now().UTC() }
	}
	clock = func() time.Time { return fn().UTC() }
	clockMu.Unlock()
	return func() {
		clockMu.Lock()
		clock = prev
		clockMu.Unlock()
	}
}

func now() time.Time {
	clockMu.RLock()
	fn := clock
	clockMu.RUnlock()
	return fn()
}

// touch returns a timestamp strictly after prev.
func touch(prev time.Time) time.Time {
	t := now()
	if !t.After(prev) {
		t = prev.Add(time.Nanosecond)
	}
	return t
}

// NewID returns a fresh, time-ordered identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func clean(s string) string {
	return strings.TrimSpace(s)
}

func category(s string) string {
	if c := clean(s); c != "" {
		return c
	}
	return DefaultCategory
}

func assign(dst *string, v *string) {
	if v != nil {
		*dst = clean(*v)
	}
}

// requireAll enforces the partial-entry rule across named fields: either all
// are empty or all are populated.
func requireAll(entity string, fields ...[2]string) error {
	filled := 0
	var missing []string
	for _, f := range fields {
		if f[1] != "" {
			filled++
			continue
		}
		missing = append(missing, f[0])
	}
	if filled == 0 || filled == len(fields) {
		return nil
	}
	return errs.Validation(entity, "%s required", strings.Join(missing, ", "))
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRefs(in []PartRef) []PartRef {
	out := make([]PartRef, len(in))
	copy(out, in)
	return out
}

// addUnique appends id when absent, reporting whether the slice changed.
func addUnique(list []string, id string) ([]string, bool) {
	for _, existing := range list {
		if existing == id {
			return list, false
		}
	}
	return append(list, id), true
}

func removeValue(list []string, id string) ([]string, bool) {
	out := list[:0:0]
	removed := false
	for _, existing := range list {
		if existing == id {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	if !removed {
		return list, false
	}
	return out, true
}

// accumulate adds qty to the entry for partID or appends a new entry.
func accumulate(refs []PartRef, partID string, qty int) []PartRef {
	for i := range refs {
		if refs[i].PartID == partID {
			refs[i].Quantity += qty
			return refs
		}
	}
	return append(refs, PartRef{PartID: partID, Quantity: qty})
}

func removeRef(refs []PartRef, partID string) ([]PartRef, bool) {
	out := refs[:0:0]
	removed := false
	for _, ref := range refs {
		if ref.PartID == partID {
			removed = true
			continue
		}
		out = append(out, ref)
	}
	if !removed {
		return refs, false
	}
	return out, true
}

// quantity normalises an add quantity: 0 means one unit, negatives fail.
func quantity(entity string, qty int) (int, error) {
	if qty == 0 {
		return 1, nil
	}
	if qty < 0 {
		return 0, errs.Validation(entity, "quantity must be at least 1, got %d", qty)
	}
	return qty, nil
}

func normaliseIDs(entity, field string, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = clean(id)
		if id == "" {
			return nil, errs.Validation(entity, "%s contains an empty id", field)
		}
		out, _ = addUnique(out, id)
	}
	return out, nil
}

func normaliseRequirements(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		s = clean(s)
		if s == "" {
			continue
		}
		out, _ = addUnique(out, s)
	}
	return out
}

func normaliseRefs(entity string, refs []PartRef) ([]PartRef, error) {
	out := make([]PartRef, 0, len(refs))
	for _, ref := range refs {
		id := clean(ref.PartID)
		if id == "" {
			return nil, errs.Validation(entity, "part reference without partId")
		}
		qty, err := quantity(entity, ref.Quantity)
		if err != nil {
			return nil, err
		}
		out = accumulate(out, id, qty)
	}
	return out, nil
}

func stamped(id string, createdAt, updatedAt time.Time) (string, time.Time, time.Time) {
	if id == "" {
		id = NewID()
	}
	if createdAt.IsZero() {
		createdAt = now()
	}
	if updatedAt.IsZero() || updatedAt.Before(createdAt) {
		updatedAt = createdAt
	}
	return id, createdAt.UTC(), updatedAt.UTC()
}

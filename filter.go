package sop

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-sop/internal/ordered"
	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/model"
)

// ExprPrefix marks a filter string as a boolean expression rather than a
// substring search, e.g. "?category == 'fastener'".
const ExprPrefix = "?"

func partSearch(p *model.Part) []string {
	return []string{p.Name, p.PartNumber, p.Description}
}

func toolSearch(t *model.Tool) []string {
	return []string{t.Name, t.Identifier, t.Size}
}

func fixtureSearch(f *model.Fixture) []string {
	return []string{f.Name, f.Identifier, f.Description}
}

func safetySearch(s *model.SafetyItem) []string {
	return []string{s.Name, s.Identifier, s.Description}
}

func validType(t model.Type) bool {
	for _, known := range model.CollectionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Selection

// Select adds id to the selection of t. It reports false when id was already
// selected or t is not a collection type.
func (m *Manager) Select(t model.Type, id string) bool {
	return m.changeSelection(t, func(sel *ordered.Map[string, struct{}]) bool {
		if id == "" || sel.Has(id) {
			return false
		}
		sel.Set(id, struct{}{})
		return true
	})
}

// Deselect removes id from the selection of t.
func (m *Manager) Deselect(t model.Type, id string) bool {
	return m.changeSelection(t, func(sel *ordered.Map[string, struct{}]) bool {
		return sel.Delete(id)
	})
}

// ToggleSelection flips id and returns whether it is now selected.
func (m *Manager) ToggleSelection(t model.Type, id string) bool {
	selected := false
	m.changeSelection(t, func(sel *ordered.Map[string, struct{}]) bool {
		if id == "" {
			return false
		}
		if sel.Delete(id) {
			return true
		}
		sel.Set(id, struct{}{})
		selected = true
		return true
	})
	return selected
}

// Selected returns the selected ids of t in selection order.
func (m *Manager) Selected(t model.Type) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sel := m.selection[t]; sel != nil {
		return sel.Keys()
	}
	return []string{}
}

// IsSelected reports whether id is selected for t.
func (m *Manager) IsSelected(t model.Type, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sel := m.selection[t]
	return sel != nil && sel.Has(id)
}

// ClearSelection empties the selection of t.
func (m *Manager) ClearSelection(t model.Type) {
	m.changeSelection(t, func(sel *ordered.Map[string, struct{}]) bool {
		if sel.Len() == 0 {
			return false
		}
		sel.Clear()
		return true
	})
}

func (m *Manager) changeSelection(t model.Type, fn func(*ordered.Map[string, struct{}]) bool) bool {
	if !validType(t) {
		return false
	}
	m.mu.Lock()
	sel := m.selection[t]
	if sel == nil {
		sel = ordered.New[string, struct{}]()
		m.selection[t] = sel
	}
	if !fn(sel) {
		m.mu.Unlock()
		return false
	}
	payload := SelectionPayload{EntityType: t, IDs: sel.Keys()}
	m.mu.Unlock()
	m.publish(pending{EventSelectionChanged, payload})
	return true
}

// Filters

// SetFilter stores the search filter for t. Surrounding whitespace is
// dropped.
func (m *Manager) SetFilter(t model.Type, filter string) {
	if !validType(t) {
		return
	}
	filter = strings.TrimSpace(filter)
	m.mu.Lock()
	if m.filters[t] == filter {
		m.mu.Unlock()
		return
	}
	if filter == "" {
		delete(m.filters, t)
	} else {
		m.filters[t] = filter
	}
	m.mu.Unlock()
	m.publish(pending{EventFilterChanged, FilterPayload{EntityType: t, Filter: filter}})
}

// Filter returns the search filter for t.
func (m *Manager) Filter(t model.Type) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filters[t]
}

// ClearFilter removes the search filter for t.
func (m *Manager) ClearFilter(t model.Type) {
	m.SetFilter(t, "")
}

// FilteredParts returns the parts matching the part filter.
func (m *Manager) FilteredParts() ([]*model.Part, error) {
	return filterEntities(m, m.parts)
}

func (m *Manager) FilteredTools() ([]*model.Tool, error) {
	return filterEntities(m, m.tools)
}

func (m *Manager) FilteredFixtures() ([]*model.Fixture, error) {
	return filterEntities(m, m.fixtures)
}

func (m *Manager) FilteredSafety() ([]*model.SafetyItem, error) {
	return filterEntities(m, m.safety)
}

// filterEntities applies the filter of c.kind. Plain text is matched
// case-insensitively against the searchable fields; text starting with
// ExprPrefix is evaluated per record and must yield a bool.
func filterEntities[E entity[E]](m *Manager, c *collection[E]) ([]E, error) {
	m.mu.Lock()
	filter := m.filters[c.kind]
	items := c.list()
	m.mu.Unlock()

	if filter == "" {
		return items, nil
	}
	if expr, ok := strings.CutPrefix(filter, ExprPrefix); ok {
		out, err := filterByExpression(m, c, items, strings.TrimSpace(expr))
		if err != nil {
			return nil, m.reportError("filter_"+string(c.kind), err)
		}
		return out, nil
	}

	needle := strings.ToLower(filter)
	out := make([]E, 0, len(items))
	for _, e := range items {
		for _, field := range c.search(e) {
			if strings.Contains(strings.ToLower(field), needle) {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func filterByExpression[E entity[E]](m *Manager, c *collection[E], items []E, expr string) ([]E, error) {
	out := make([]E, 0, len(items))
	for _, e := range items {
		record, err := recordMap(c.record(e))
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, "", err)
		}
		value, err := m.Evaluate(RuleContext{Record: record, EntityType: c.kind}, expr)
		if err != nil {
			return nil, &errs.Error{Kind: errs.KindValidation, Entity: string(c.kind), ID: e.EntityID(), Message: "filter expression failed", Err: err}
		}
		match, ok := value.(bool)
		if !ok {
			return nil, errs.Validation(string(c.kind), "filter expression must yield a bool, got %T", value)
		}
		if match {
			out = append(out, e)
		}
	}
	return out, nil
}

// recordMap flattens a record into its JSON field names.
func recordMap(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("sop: encode record: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("sop: decode record: %w", err)
	}
	return out, nil
}

package sop

import (
	"reflect"

	"github.com/goliatone/go-sop/internal/ordered"
	"github.com/goliatone/go-sop/pkg/activity"
	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/model"
)

// entity is satisfied by the pointer types of the collection entities.
type entity[E any] interface {
	model.Stamped
	EntityID() string
	Clone() E
}

// collection is an id-keyed, insertion-ordered set of entities of one kind.
// It is guarded by the Manager's mutex and only hands out clones.
type collection[E entity[E]] struct {
	kind   model.Type
	items  *ordered.Map[string, E]
	search func(E) []string
	record func(E) any
}

func newCollection[E entity[E]](kind model.Type, search func(E) []string, record func(E) any) *collection[E] {
	return &collection[E]{
		kind:   kind,
		items:  ordered.New[string, E](),
		search: search,
		record: record,
	}
}

func (c *collection[E]) get(id string) (E, bool) {
	e, ok := c.items.Get(id)
	if !ok {
		var zero E
		return zero, false
	}
	return e.Clone(), true
}

func (c *collection[E]) list() []E {
	values := c.items.Values()
	out := make([]E, 0, len(values))
	for _, e := range values {
		out = append(out, e.Clone())
	}
	return out
}

func (c *collection[E]) replace(items []E) {
	c.items.Clear()
	for _, e := range items {
		c.items.Set(e.EntityID(), e)
	}
}

// addEntity stores the entity returned by build and publishes "<kind>Added".
func addEntity[E entity[E]](m *Manager, c *collection[E], build func() (E, error)) (E, error) {
	var zero E
	m.mu.Lock()
	e, err := build()
	if err != nil {
		m.mu.Unlock()
		return zero, m.reportError("add_"+string(c.kind), err)
	}
	m.stampCreated(e)
	c.items.Set(e.EntityID(), e)
	m.markDirtyLocked()
	out := e.Clone()
	m.mu.Unlock()

	m.metrics.ObserveMutation(string(c.kind), "add")
	m.entityActivity(string(c.kind), activity.ActionCreated, out.EntityID(), nil)
	m.publishChange(pending{EntityEvent(c.kind, Added), out})
	return out.Clone(), nil
}

// updateEntity applies patch to the live entity with id. The entity Update
// methods leave the entity untouched on failure.
func updateEntity[E entity[E], P any](m *Manager, c *collection[E], id string, patch P, apply func(E, P) error) (E, error) {
	var zero E
	op := "update_" + string(c.kind)
	m.mu.Lock()
	e, ok := c.items.Get(id)
	if !ok {
		m.mu.Unlock()
		return zero, m.reportError(op, errs.NotFound(string(c.kind), id))
	}
	_, prev := e.Timestamps()
	if err := apply(e, patch); err != nil {
		m.mu.Unlock()
		return zero, m.reportError(op, err)
	}
	m.stampUpdated(e, prev)
	m.markDirtyLocked()
	out := e.Clone()
	m.mu.Unlock()

	m.metrics.ObserveMutation(string(c.kind), "update")
	m.entityActivity(string(c.kind), activity.ActionUpdated, id, patchFields(patch))
	m.publishChange(pending{EntityEvent(c.kind, Updated), out})
	return out.Clone(), nil
}

// removeEntity deletes id, reporting false when absent. Document references
// to the removed entity are kept and left dangling.
func removeEntity[E entity[E]](m *Manager, c *collection[E], id string) bool {
	m.mu.Lock()
	e, ok := c.items.Get(id)
	if !ok {
		m.mu.Unlock()
		return false
	}
	c.items.Delete(id)
	m.markDirtyLocked()
	queue := []pending{{EntityEvent(c.kind, Removed), e}}
	if sel := m.selection[c.kind]; sel != nil && sel.Delete(id) {
		queue = append(queue, pending{EventSelectionChanged, SelectionPayload{EntityType: c.kind, IDs: sel.Keys()}})
	}
	m.mu.Unlock()

	m.metrics.ObserveMutation(string(c.kind), "remove")
	m.entityActivity(string(c.kind), activity.ActionDeleted, id, nil)
	m.publishChange(queue...)
	return true
}

func getEntity[E entity[E]](m *Manager, c *collection[E], id string) (E, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return c.get(id)
}

func listEntities[E entity[E]](m *Manager, c *collection[E]) []E {
	m.mu.Lock()
	defer m.mu.Unlock()
	return c.list()
}

// patchFields lists the names of the non-nil pointer fields of a patch
// struct.
func patchFields(patch any) []string {
	v := reflect.ValueOf(patch)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	var out []string
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.Pointer && !f.IsNil() {
			out = append(out, v.Type().Field(i).Name)
		}
	}
	return out
}

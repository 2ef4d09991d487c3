package persist

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/model"
)

// Transform rewrites a generic payload from one schema version to the next.
// It must be pure: the input map may be modified and returned.
type Transform func(payload map[string]any) (map[string]any, error)

// Migration is one registered schema upgrade.
type Migration struct {
	From      string
	To        string
	Transform Transform
}

// Policy decides what happens when no migration path exists.
type Policy string

const (
	// PolicyStrict fails with MigrationError.
	PolicyStrict Policy = "strict"
	// PolicyPassThrough logs a warning and uses the payload unchanged.
	PolicyPassThrough Policy = "pass-through"
)

func (p Policy) Valid() bool {
	return p == PolicyStrict || p == PolicyPassThrough
}

// Migrator resolves and applies migrations from an ordered list.
type Migrator struct {
	steps  []Migration
	policy Policy
	logger *zap.Logger
}

func NewMigrator(steps []Migration, policy Policy, logger *zap.Logger) *Migrator {
	if !policy.Valid() {
		policy = PolicyStrict
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{steps: append([]Migration(nil), steps...), policy: policy, logger: logger}
}

func (m *Migrator) Policy() Policy { return m.policy }

// Plan returns the migrations that take a payload from one version to
// another. A direct edge wins; otherwise the first matching edge is followed
// from each intermediate version until the target is reached.
func (m *Migrator) Plan(from, to string) ([]Migration, bool) {
	if from == to {
		return nil, true
	}
	for _, step := range m.steps {
		if step.From == from && step.To == to {
			return []Migration{step}, true
		}
	}
	var path []Migration
	visited := map[string]bool{from: true}
	current := from
	for len(path) < len(m.steps) {
		next, ok := m.edgeFrom(current, to)
		if !ok || visited[next.To] {
			return nil, false
		}
		path = append(path, next)
		if next.To == to {
			return path, true
		}
		visited[next.To] = true
		current = next.To
	}
	return nil, false
}

// edgeFrom picks the first edge leaving version that does not overshoot to.
func (m *Migrator) edgeFrom(version, to string) (Migration, bool) {
	for _, step := range m.steps {
		if step.From == version && CompareVersions(step.To, to) <= 0 {
			return step, true
		}
	}
	return Migration{}, false
}

// Migrate upgrades payload from one version to another. Transform errors and
// panics fail closed with MigrationError.
func (m *Migrator) Migrate(payload map[string]any, from, to string) (out map[string]any, err error) {
	const op = "persist.migrate"
	if CompareVersions(from, to) > 0 {
		return nil, &errs.Error{Kind: errs.KindMigration, Op: op, Message: fmt.Sprintf("cannot downgrade schema %s to %s", from, to)}
	}
	plan, ok := m.Plan(from, to)
	if !ok {
		if m.policy == PolicyPassThrough {
			m.logger.Warn("no migration path, using payload unchanged",
				zap.String("from", from), zap.String("to", to))
			return payload, nil
		}
		return nil, &errs.Error{Kind: errs.KindMigration, Op: op, Message: fmt.Sprintf("no migration from %s to %s", from, to)}
	}
	current := payload
	for _, step := range plan {
		current, err = apply(step, current)
		if err != nil {
			return nil, err
		}
		m.logger.Debug("applied migration", zap.String("from", step.From), zap.String("to", step.To))
	}
	return current, nil
}

func apply(step Migration, payload map[string]any) (out map[string]any, err error) {
	const op = "persist.migrate"
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &errs.Error{Kind: errs.KindMigration, Op: op, Message: fmt.Sprintf("%s->%s panicked: %v", step.From, step.To, r)}
		}
	}()
	if step.Transform == nil {
		return payload, nil
	}
	out, err = step.Transform(payload)
	if err != nil {
		return nil, &errs.Error{Kind: errs.KindMigration, Op: op, Message: fmt.Sprintf("%s->%s failed", step.From, step.To), Err: err}
	}
	if out == nil {
		return nil, &errs.Error{Kind: errs.KindMigration, Op: op, Message: fmt.Sprintf("%s->%s returned no payload", step.From, step.To)}
	}
	return out, nil
}

// DefaultMigrations are the built-in upgrades.
func DefaultMigrations() []Migration {
	return []Migration{
		{From: LegacyVersion, To: "1.1.0", Transform: migrateV110},
	}
}

// migrateV110 fills fields introduced in 1.1.0. Collections stored as plain
// id-keyed objects are converted to ordered entry lists sorted by id.
func migrateV110(payload map[string]any) (map[string]any, error) {
	for _, name := range []string{"parts", "tools", "fixtures", "safety"} {
		entries, err := entryList(payload[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		for _, e := range entries {
			rec, ok := e.([]any)[1].(map[string]any)
			if !ok {
				continue
			}
			setDefault(rec, "category", model.DefaultCategory)
			if name == "safety" {
				setDefault(rec, "severity", string(model.DefaultSeverity))
			}
		}
		payload[name] = entries
	}

	doc, _ := payload["document"].(map[string]any)
	if doc == nil {
		doc = map[string]any{}
	}
	setDefault(doc, "status", string(model.StatusDraft))
	setDefault(doc, "revision", model.DefaultRevision)
	setDefault(doc, "category", model.DefaultCategory)
	for _, list := range []string{"steps", "bom", "tools", "fixtures", "safetyRequirements"} {
		if _, ok := doc[list].([]any); !ok {
			doc[list] = []any{}
		}
	}
	for _, s := range doc["steps"].([]any) {
		step, ok := s.(map[string]any)
		if !ok {
			continue
		}
		setDefault(step, "category", model.DefaultCategory)
		for _, list := range []string{"parts", "tools", "fixtures", "safetyRequirements"} {
			if _, ok := step[list].([]any); !ok {
				step[list] = []any{}
			}
		}
	}
	payload["document"] = doc
	if _, ok := payload["lastSaved"]; !ok {
		payload["lastSaved"] = nil
	}
	return payload, nil
}

func entryList(v any) ([]any, error) {
	switch c := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		for i, e := range c {
			pair, ok := e.([]any)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("entry %d is not an [id, record] pair", i)
			}
		}
		return c, nil
	case map[string]any:
		ids := make([]string, 0, len(c))
		for id := range c {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out := make([]any, 0, len(ids))
		for _, id := range ids {
			out = append(out, []any{id, c[id]})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected collection type %T", v)
	}
}

func setDefault(m map[string]any, key, value string) {
	if s, ok := m[key].(string); !ok || s == "" {
		m[key] = value
	}
}

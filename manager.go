// Package sop is the state core of the assembly SOP wizard. A Manager owns
// the part, tool, fixture and safety collections plus the SOP document being
// assembled, publishes every change on an event bus, and saves and loads
// that state through a versioned, checksummed envelope in a key/value store.
//
// All Manager methods are safe for concurrent use. Events are published after
// the Manager's lock is released, so listeners may call back into it.
package sop

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-sop/internal/ordered"
	"github.com/goliatone/go-sop/pkg/activity"
	"github.com/goliatone/go-sop/pkg/events"
	"github.com/goliatone/go-sop/pkg/metrics"
	"github.com/goliatone/go-sop/pkg/model"
	"github.com/goliatone/go-sop/pkg/persist"
	"github.com/goliatone/go-sop/pkg/state"
	"github.com/goliatone/go-sop/pkg/storage"
)

// Manager holds the in-memory SOP state.
type Manager struct {
	mu sync.Mutex

	cfg           Config
	logger        *zap.Logger
	clock         func() time.Time
	bus           *events.Bus
	store         *persist.Store
	ref           state.Ref
	activity      *activity.Emitter
	activityHooks activity.Hooks
	metrics       *metrics.Recorder

	evaluator    Evaluator
	evalOpts     evaluatorSettings
	evalLogger   EvaluatorLogger
	evaluatorErr error

	parts    *collection[*model.Part]
	tools    *collection[*model.Tool]
	fixtures *collection[*model.Fixture]
	safety   *collection[*model.SafetyItem]
	document *model.Document

	selection map[model.Type]*ordered.Map[string, struct{}]
	filters   map[model.Type]string

	dirty     bool
	lastSaved *time.Time
	etag      string

	auto autoSaver
}

// New builds a Manager with empty collections and a blank document.
func New(opts ...Option) (*Manager, error) {
	mc := applyOptions(opts)
	if err := errors.Join(mc.errs...); err != nil {
		return nil, err
	}
	cfg := mc.config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := mc.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := mc.clock
	if clock == nil {
		clock = time.Now
	}
	bus := mc.bus
	if bus == nil {
		bus = events.New(events.WithLogger(logger.Named("events")))
	}
	backend := mc.backend
	if backend == nil {
		backend = storage.NewMemoryBackend()
	}
	migrations := mc.migrations
	if migrations == nil {
		migrations = persist.DefaultMigrations()
	}

	adapter := storage.NewAdapter(backend,
		storage.WithNamespace(cfg.Namespace),
		storage.WithQuota(cfg.QuotaBytes),
		storage.WithLogger(logger.Named("storage")),
	)
	codec := persist.NewCodec(
		persist.WithMigrations(migrations...),
		persist.WithPolicy(cfg.MigrationPolicy),
		persist.WithLogger(logger.Named("persist")),
		persist.WithClock(clock),
		persist.WithApplication(cfg.Application),
	)
	store := persist.NewStore(adapter, codec,
		persist.WithVersionKey(cfg.VersionKey),
		persist.WithMaxBackups(cfg.MaxBackups),
		persist.WithStoreLogger(logger.Named("persist")),
		persist.WithStoreClock(clock),
	)

	m := &Manager{
		cfg:           cfg,
		logger:        logger,
		clock:         clock,
		bus:           bus,
		store:         store,
		ref:           state.Ref{Key: cfg.DataKey},
		activityHooks: mc.activityHooks,
		activity:      activity.NewEmitter(mc.activityHooks, mc.activityConfig),
		metrics:       mc.metrics,
		evaluator:     mc.evaluator,
		evalLogger:    mc.evalLogger,
		evalOpts: evaluatorSettings{
			engine:    cfg.FilterEngine,
			cache:     mc.programCache,
			functions: mc.functions,
		},
		parts:     newCollection(model.TypePart, partSearch, func(p *model.Part) any { return p.ToRecord() }),
		tools:     newCollection(model.TypeTool, toolSearch, func(t *model.Tool) any { return t.ToRecord() }),
		fixtures:  newCollection(model.TypeFixture, fixtureSearch, func(f *model.Fixture) any { return f.ToRecord() }),
		safety:    newCollection(model.TypeSafety, safetySearch, func(s *model.SafetyItem) any { return s.ToRecord() }),
		document:  model.EmptyDocument(),
		selection: map[model.Type]*ordered.Map[string, struct{}]{},
		filters:   map[model.Type]string{},
	}
	m.stampCreated(m.document)
	m.metrics.SetDirty(false)
	return m, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Store exposes the persistence store backing the Manager.
func (m *Manager) Store() *persist.Store {
	return m.store
}

func (m *Manager) now() time.Time {
	return m.clock().UTC()
}

// stampCreated moves a freshly built entity onto the manager clock.
func (m *Manager) stampCreated(e model.Stamped) {
	at := m.now()
	e.SetTimestamps(at, at)
}

// stampUpdated gives e an updatedAt from the manager clock, strictly after
// prev.
func (m *Manager) stampUpdated(e model.Stamped, prev time.Time) {
	created, _ := e.Timestamps()
	e.SetTimestamps(created, m.after(prev))
}

func (m *Manager) after(prev time.Time) time.Time {
	at := m.now()
	if !at.After(prev) {
		at = prev.Add(time.Nanosecond)
	}
	return at
}

func (m *Manager) markDirtyLocked() {
	m.dirty = true
	m.metrics.SetDirty(true)
}

// IsDirty reports whether unsaved changes exist.
func (m *Manager) IsDirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// MarkDirty flags the state as changed without a mutation, forcing the next
// auto-save tick to write.
func (m *Manager) MarkDirty() {
	m.mu.Lock()
	m.markDirtyLocked()
	m.mu.Unlock()
}

// LastSaved returns the time of the last successful save or of the loaded
// snapshot.
func (m *Manager) LastSaved() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSaved == nil {
		return time.Time{}, false
	}
	return *m.lastSaved, true
}

// Parts

func (m *Manager) AddPart(in model.PartInput) (*model.Part, error) {
	return addEntity(m, m.parts, func() (*model.Part, error) { return model.NewPart(in) })
}

func (m *Manager) UpdatePart(id string, patch model.PartPatch) (*model.Part, error) {
	return updateEntity(m, m.parts, id, patch, (*model.Part).Update)
}

func (m *Manager) RemovePart(id string) bool { return removeEntity(m, m.parts, id) }

func (m *Manager) GetPart(id string) (*model.Part, bool) { return getEntity(m, m.parts, id) }

// ListParts returns copies of all parts in insertion order.
func (m *Manager) ListParts() []*model.Part { return listEntities(m, m.parts) }

// Tools

func (m *Manager) AddTool(in model.ToolInput) (*model.Tool, error) {
	return addEntity(m, m.tools, func() (*model.Tool, error) { return model.NewTool(in) })
}

func (m *Manager) UpdateTool(id string, patch model.ToolPatch) (*model.Tool, error) {
	return updateEntity(m, m.tools, id, patch, (*model.Tool).Update)
}

func (m *Manager) RemoveTool(id string) bool { return removeEntity(m, m.tools, id) }

func (m *Manager) GetTool(id string) (*model.Tool, bool) { return getEntity(m, m.tools, id) }

func (m *Manager) ListTools() []*model.Tool { return listEntities(m, m.tools) }

// Fixtures

func (m *Manager) AddFixture(in model.FixtureInput) (*model.Fixture, error) {
	return addEntity(m, m.fixtures, func() (*model.Fixture, error) { return model.NewFixture(in) })
}

func (m *Manager) UpdateFixture(id string, patch model.FixturePatch) (*model.Fixture, error) {
	return updateEntity(m, m.fixtures, id, patch, (*model.Fixture).Update)
}

func (m *Manager) RemoveFixture(id string) bool { return removeEntity(m, m.fixtures, id) }

func (m *Manager) GetFixture(id string) (*model.Fixture, bool) { return getEntity(m, m.fixtures, id) }

func (m *Manager) ListFixtures() []*model.Fixture { return listEntities(m, m.fixtures) }

// Safety items

func (m *Manager) AddSafety(in model.SafetyItemInput) (*model.SafetyItem, error) {
	return addEntity(m, m.safety, func() (*model.SafetyItem, error) { return model.NewSafetyItem(in) })
}

func (m *Manager) UpdateSafety(id string, patch model.SafetyItemPatch) (*model.SafetyItem, error) {
	return updateEntity(m, m.safety, id, patch, (*model.SafetyItem).Update)
}

func (m *Manager) RemoveSafety(id string) bool { return removeEntity(m, m.safety, id) }

func (m *Manager) GetSafety(id string) (*model.SafetyItem, bool) { return getEntity(m, m.safety, id) }

func (m *Manager) ListSafety() []*model.SafetyItem { return listEntities(m, m.safety) }

// Counts reports the size of each collection and the document step count.
func (m *Manager) Counts() map[model.Type]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[model.Type]int{
		model.TypePart:    m.parts.items.Len(),
		model.TypeTool:    m.tools.items.Len(),
		model.TypeFixture: m.fixtures.items.Len(),
		model.TypeSafety:  m.safety.items.Len(),
		model.TypeStep:    m.document.StepCount(),
	}
}

func (m *Manager) String() string {
	counts := m.Counts()
	return fmt.Sprintf("sop.Manager{parts:%d tools:%d fixtures:%d safety:%d steps:%d dirty:%t}",
		counts[model.TypePart], counts[model.TypeTool], counts[model.TypeFixture],
		counts[model.TypeSafety], counts[model.TypeStep], m.IsDirty())
}

package sop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-sop/pkg/activity"
	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/metrics"
	"github.com/goliatone/go-sop/pkg/model"
	"github.com/goliatone/go-sop/pkg/persist"
	"github.com/goliatone/go-sop/pkg/state"
	"github.com/goliatone/go-sop/pkg/storage"
)

// FullState is a read-only copy of everything the Manager holds.
type FullState struct {
	Parts     []model.PartRecord       `json:"parts"`
	Tools     []model.ToolRecord       `json:"tools"`
	Fixtures  []model.FixtureRecord    `json:"fixtures"`
	Safety    []model.SafetyItemRecord `json:"safety"`
	Document  model.DocumentRecord     `json:"document"`
	Selection map[model.Type][]string  `json:"selection"`
	Filters   map[model.Type]string    `json:"filters"`
	Dirty     bool                     `json:"dirty"`
	LastSaved *time.Time               `json:"lastSaved"`
}

// StorageInfo describes the persistence backend.
type StorageInfo struct {
	Available     bool                 `json:"available"`
	Namespace     string               `json:"namespace"`
	SchemaVersion string               `json:"schemaVersion,omitempty"`
	LastSaved     *time.Time           `json:"lastSaved,omitempty"`
	Dirty         bool                 `json:"dirty"`
	Capacity      storage.CapacityInfo `json:"capacity"`
}

// StorageStats summarises what is stored and held in memory.
type StorageStats struct {
	Parts         int   `json:"parts"`
	Tools         int   `json:"tools"`
	Fixtures      int   `json:"fixtures"`
	Safety        int   `json:"safety"`
	Steps         int   `json:"steps"`
	BOMItems      int   `json:"bomItems"`
	TotalTime     int   `json:"totalTime"`
	Backups       int   `json:"backups"`
	EnvelopeBytes int64 `json:"envelopeBytes"`
	UsedBytes     int64 `json:"usedBytes"`
	QuotaBytes    int64 `json:"quotaBytes"`
}

// FullState returns a copy of the collections, document and view state.
func (m *Manager) FullState() FullState {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs := FullState{
		Parts:     recordsOf(m.parts, (*model.Part).ToRecord),
		Tools:     recordsOf(m.tools, (*model.Tool).ToRecord),
		Fixtures:  recordsOf(m.fixtures, (*model.Fixture).ToRecord),
		Safety:    recordsOf(m.safety, (*model.SafetyItem).ToRecord),
		Document:  m.document.ToRecord(),
		Selection: map[model.Type][]string{},
		Filters:   map[model.Type]string{},
		Dirty:     m.dirty,
		LastSaved: copyTime(m.lastSaved),
	}
	for t, sel := range m.selection {
		if sel.Len() > 0 {
			fs.Selection[t] = sel.Keys()
		}
	}
	for t, f := range m.filters {
		fs.Filters[t] = f
	}
	return fs
}

// Snapshot returns the persistable state.
func (m *Manager) Snapshot() persist.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(copyTime(m.lastSaved))
}

func (m *Manager) snapshotLocked(lastSaved *time.Time) persist.Snapshot {
	return persist.Snapshot{
		Parts:     entriesOf(m.parts, (*model.Part).ToRecord),
		Tools:     entriesOf(m.tools, (*model.Tool).ToRecord),
		Fixtures:  entriesOf(m.fixtures, (*model.Fixture).ToRecord),
		Safety:    entriesOf(m.safety, (*model.SafetyItem).ToRecord),
		Document:  m.document.ToRecord(),
		LastSaved: lastSaved,
	}
}

func recordsOf[E entity[E], R any](c *collection[E], rec func(E) R) []R {
	out := make([]R, 0, c.items.Len())
	c.items.Range(func(_ string, e E) bool {
		out = append(out, rec(e))
		return true
	})
	return out
}

func entriesOf[E entity[E], R any](c *collection[E], rec func(E) R) persist.Entries[R] {
	out := make(persist.Entries[R], 0, c.items.Len())
	c.items.Range(func(id string, e E) bool {
		out = append(out, persist.Entry[R]{ID: id, Record: rec(e)})
		return true
	})
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Save writes the current state. On success the dirty flag is cleared and
// lastSaved stamped; on failure the state stays dirty so a retry can follow.
// With Config.DetectConflicts a save fails with a ConflictError when another
// writer replaced the stored envelope since this Manager last read or wrote
// it.
func (m *Manager) Save(ctx context.Context) error {
	started := time.Now()
	err := m.save(ctx)
	m.metrics.ObserveOperation(metrics.OpSave, started, err)
	return err
}

func (m *Manager) save(ctx context.Context) error {
	const op = "sop.save"
	m.mu.Lock()
	at := m.now()
	snapshot := m.snapshotLocked(&at)
	var meta state.Meta
	if m.cfg.DetectConflicts {
		meta.ETag = m.etag
	}
	saved, err := m.store.Save(ctx, m.ref, snapshot, meta)
	if err != nil {
		m.mu.Unlock()
		if errors.Is(err, state.ErrETagMismatch) {
			err = &errs.Error{Kind: errs.KindConflict, Op: op, Message: "stored state changed since last load", Err: err}
		}
		return m.reportError(op, err)
	}
	m.dirty = false
	m.lastSaved = &at
	m.etag = saved.ETag
	m.metrics.SetDirty(false)
	m.mu.Unlock()

	m.refreshStorageMetrics()
	m.stateActivity(activity.ActionSaved, saved.SchemaVersion, nil)
	m.publish(pending{EventStateSaved, m.FullState()})
	return nil
}

// Load replaces the in-memory state with the stored snapshot. It reports
// false when nothing is stored. A corrupt or unmigratable envelope leaves the
// current state untouched and returns the error.
func (m *Manager) Load(ctx context.Context) (bool, error) {
	started := time.Now()
	ok, err := m.load(ctx)
	m.metrics.ObserveOperation(metrics.OpLoad, started, err)
	return ok, err
}

func (m *Manager) load(ctx context.Context) (bool, error) {
	const op = "sop.load"
	decoded, meta, ok, err := m.store.LoadDecoded(ctx, m.ref)
	if err != nil {
		return false, m.reportError(op, err)
	}
	if !ok {
		return false, nil
	}
	if err := m.apply(decoded, meta.ETag, false); err != nil {
		return false, m.reportError(op, err)
	}
	m.refreshStorageMetrics()
	m.stateActivity(activity.ActionLoaded, decoded.Metadata.SchemaVersion, nil)
	m.announceLoaded(decoded)
	return true, nil
}

// apply swaps in a decoded snapshot. Every record is rebuilt before anything
// is replaced. A loaded snapshot starts clean, migrated or not; an imported
// one is dirty until saved.
func (m *Manager) apply(decoded persist.Decoded, etag string, imported bool) error {
	snap := decoded.Snapshot
	parts, err := rebuild(snap.Parts, model.PartFromRecord)
	if err != nil {
		return err
	}
	tools, err := rebuild(snap.Tools, model.ToolFromRecord)
	if err != nil {
		return err
	}
	fixtures, err := rebuild(snap.Fixtures, model.FixtureFromRecord)
	if err != nil {
		return err
	}
	safety, err := rebuild(snap.Safety, model.SafetyItemFromRecord)
	if err != nil {
		return err
	}
	doc, err := model.DocumentFromRecord(snap.Document)
	if err != nil {
		return &errs.Error{Kind: errs.KindCorruptData, Entity: string(model.TypeDocument), Message: "invalid document", Err: err}
	}

	m.mu.Lock()
	m.parts.replace(parts)
	m.tools.replace(tools)
	m.fixtures.replace(fixtures)
	m.safety.replace(safety)
	m.document = doc
	for _, sel := range m.selection {
		sel.Clear()
	}
	m.lastSaved = copyTime(snap.LastSaved)
	if !imported {
		m.etag = etag
	}
	m.dirty = imported
	m.metrics.SetDirty(m.dirty)
	m.mu.Unlock()
	return nil
}

func rebuild[R any, E any](entries persist.Entries[R], from func(R) (E, error)) ([]E, error) {
	out := make([]E, 0, len(entries))
	for _, entry := range entries {
		e, err := from(entry.Record)
		if err != nil {
			return nil, &errs.Error{Kind: errs.KindCorruptData, ID: entry.ID, Message: "invalid record", Err: err}
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Manager) announceLoaded(decoded persist.Decoded) {
	queue := []pending{{EventDataLoaded, LoadedPayload{Snapshot: decoded.Snapshot, Metadata: decoded.Metadata}}}
	if decoded.Metadata.Migrated {
		m.logger.Info("state migrated",
			zap.String("from", decoded.Metadata.SourceVersion),
			zap.String("to", decoded.Metadata.SchemaVersion),
		)
		m.stateActivity(activity.ActionMigrated, decoded.Metadata.SchemaVersion, map[string]any{
			"from": decoded.Metadata.SourceVersion,
		})
		queue = append(queue, pending{EventDataMigrated, decoded.Metadata})
	}
	m.publishChange(queue...)
}

// CreateBackup copies the stored envelope to a timestamped backup key. Only
// saved state is backed up; unsaved changes are not included.
func (m *Manager) CreateBackup(ctx context.Context) (persist.BackupInfo, error) {
	started := time.Now()
	info, err := m.store.Backup(ctx, m.ref)
	m.metrics.ObserveOperation(metrics.OpBackup, started, err)
	if err != nil {
		return persist.BackupInfo{}, m.reportError("sop.backup", err)
	}
	m.refreshStorageMetrics()
	m.stateActivity(activity.ActionBackedUp, "", map[string]any{"backup": info.Key})
	m.publish(pending{EventBackupCreated, info})
	return info, nil
}

// ListBackups returns stored backups, newest first.
func (m *Manager) ListBackups(ctx context.Context) ([]persist.BackupInfo, error) {
	list, err := m.store.Backups(ctx)
	if err != nil {
		return nil, m.reportError("sop.backups", err)
	}
	return list, nil
}

// RestoreBackup makes the backup under key the stored state and loads it.
func (m *Manager) RestoreBackup(ctx context.Context, key string) error {
	const op = "sop.restore"
	started := time.Now()
	err := m.restore(ctx, key)
	m.metrics.ObserveOperation(metrics.OpRestore, started, err)
	if err != nil {
		return m.reportError(op, err)
	}
	return nil
}

func (m *Manager) restore(ctx context.Context, key string) error {
	decoded, err := m.store.Restore(ctx, m.ref, key)
	if err != nil {
		return err
	}
	if err := m.apply(decoded, decoded.Metadata.Checksum, false); err != nil {
		return err
	}
	m.stateActivity(activity.ActionRestored, decoded.Metadata.SchemaVersion, map[string]any{"backup": key})
	m.announceLoaded(decoded)
	return nil
}

// Export encodes the in-memory state as an export bundle.
func (m *Manager) Export(ctx context.Context) ([]byte, error) {
	started := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	snapshot := m.snapshotLocked(copyTime(m.lastSaved))
	m.mu.Unlock()
	raw, err := m.store.Codec().Export(snapshot)
	m.metrics.ObserveOperation(metrics.OpExport, started, err)
	if err != nil {
		return nil, m.reportError("sop.export", err)
	}
	m.stateActivity(activity.ActionExported, persist.CurrentVersion, nil)
	return raw, nil
}

// Import replaces the in-memory state with an export bundle or a bare legacy
// payload. The imported state is dirty until saved.
func (m *Manager) Import(ctx context.Context, raw []byte) error {
	const op = "sop.import"
	started := time.Now()
	err := m.importBundle(ctx, raw)
	m.metrics.ObserveOperation(metrics.OpImport, started, err)
	if err != nil {
		return m.reportError(op, err)
	}
	return nil
}

func (m *Manager) importBundle(ctx context.Context, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	decoded, err := m.store.Codec().DecodeImport(raw)
	if err != nil {
		return err
	}
	if err := m.apply(decoded, "", true); err != nil {
		return err
	}
	m.stateActivity(activity.ActionImported, decoded.Metadata.SchemaVersion, map[string]any{
		"source_version": decoded.Metadata.SourceVersion,
	})
	m.announceLoaded(decoded)
	return nil
}

// ClearStorage removes every stored key in the namespace, backups included,
// and resets the in-memory state to empty.
func (m *Manager) ClearStorage(ctx context.Context) error {
	const op = "sop.clear"
	started := time.Now()
	err := m.store.Clear(ctx)
	m.metrics.ObserveOperation(metrics.OpClear, started, err)
	if err != nil {
		return m.reportError(op, err)
	}

	m.mu.Lock()
	m.parts.replace(nil)
	m.tools.replace(nil)
	m.fixtures.replace(nil)
	m.safety.replace(nil)
	m.document = model.EmptyDocument()
	m.stampCreated(m.document)
	for _, sel := range m.selection {
		sel.Clear()
	}
	m.filters = map[model.Type]string{}
	m.dirty = false
	m.lastSaved = nil
	m.etag = ""
	m.metrics.SetDirty(false)
	m.mu.Unlock()

	m.refreshStorageMetrics()
	m.stateActivity(activity.ActionCleared, "", nil)
	m.publishChange(pending{EventStateCleared, nil})
	return nil
}

// StorageAvailable probes the backend.
func (m *Manager) StorageAvailable() bool {
	return m.store.Adapter().IsAvailable()
}

// StorageInfo reports backend availability and namespace usage.
func (m *Manager) StorageInfo() (StorageInfo, error) {
	adapter := m.store.Adapter()
	info := StorageInfo{
		Available: adapter.IsAvailable(),
		Namespace: adapter.Namespace(),
	}
	m.mu.Lock()
	info.Dirty = m.dirty
	info.LastSaved = copyTime(m.lastSaved)
	m.mu.Unlock()
	if !info.Available {
		info.Capacity = storage.CapacityInfo{QuotaBytes: adapter.Quota(), RemainingBytes: adapter.Quota()}
		return info, nil
	}
	capacity, err := adapter.CapacityInfo()
	if err != nil {
		return info, m.reportError("sop.storage_info", err)
	}
	info.Capacity = capacity
	if v, ok, err := m.store.Version(); err == nil && ok {
		info.SchemaVersion = v
	}
	return info, nil
}

// StorageStats counts the in-memory entities and the stored backups.
func (m *Manager) StorageStats(ctx context.Context) (StorageStats, error) {
	m.mu.Lock()
	stats := StorageStats{
		Parts:     m.parts.items.Len(),
		Tools:     m.tools.items.Len(),
		Fixtures:  m.fixtures.items.Len(),
		Safety:    m.safety.items.Len(),
		Steps:     m.document.StepCount(),
		BOMItems:  len(m.document.BOM()),
		TotalTime: m.document.TotalTime(),
	}
	m.mu.Unlock()

	adapter := m.store.Adapter()
	stats.QuotaBytes = adapter.Quota()
	if !adapter.IsAvailable() {
		return stats, nil
	}
	capacity, err := adapter.CapacityInfo()
	if err != nil {
		return stats, m.reportError("sop.storage_stats", err)
	}
	stats.UsedBytes = capacity.UsedBytes
	if raw, ok, err := adapter.Read(m.cfg.DataKey); err == nil && ok {
		stats.EnvelopeBytes = storage.Size(raw)
	}
	backups, err := m.store.Backups(ctx)
	if err != nil {
		return stats, m.reportError("sop.storage_stats", err)
	}
	stats.Backups = len(backups)
	return stats, nil
}

func (m *Manager) refreshStorageMetrics() {
	if m.metrics == nil {
		return
	}
	capacity, err := m.store.Adapter().CapacityInfo()
	if err != nil {
		m.logger.Debug("capacity probe failed", zap.Error(err))
		return
	}
	m.metrics.SetStorage(capacity.UsedBytes, capacity.QuotaBytes)
}

func (s StorageStats) String() string {
	return fmt.Sprintf("parts=%d tools=%d fixtures=%d safety=%d steps=%d bom=%d backups=%d used=%d/%d",
		s.Parts, s.Tools, s.Fixtures, s.Safety, s.Steps, s.BOMItems, s.Backups, s.UsedBytes, s.QuotaBytes)
}

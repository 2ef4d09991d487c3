package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/state"
	"github.com/goliatone/go-sop/pkg/storage"
)

const (
	// DefaultDataKey holds the envelope.
	DefaultDataKey = "data"
	// DefaultVersionKey holds the bare schema version string.
	DefaultVersionKey = "version"
	// DefaultMaxBackups bounds the number of retained backups.
	DefaultMaxBackups = 5

	backupPrefix = "backup-"
)

var _ state.Store[Snapshot] = (*Store)(nil)

// Store persists snapshots through a storage.Adapter: the envelope under the
// ref key and the schema version under a side key for cheap probing.
type Store struct {
	adapter    *storage.Adapter
	codec      *Codec
	versionKey string
	maxBackups int
	logger     *zap.Logger
	clock      func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

func WithVersionKey(key string) StoreOption {
	return func(s *Store) {
		if key != "" {
			s.versionKey = key
		}
	}
}

// WithMaxBackups bounds retained backups; values below 1 keep the default.
func WithMaxBackups(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxBackups = n
		}
	}
}

func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithStoreClock(fn func() time.Time) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.clock = fn
		}
	}
}

func NewStore(adapter *storage.Adapter, codec *Codec, opts ...StoreOption) *Store {
	if codec == nil {
		codec = NewCodec()
	}
	s := &Store{
		adapter:    adapter,
		codec:      codec,
		versionKey: DefaultVersionKey,
		maxBackups: DefaultMaxBackups,
		logger:     zap.NewNop(),
		clock:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Adapter() *storage.Adapter { return s.adapter }

func (s *Store) Codec() *Codec { return s.codec }

// Load implements state.Store.
func (s *Store) Load(ctx context.Context, ref state.Ref) (Snapshot, state.Meta, bool, error) {
	decoded, meta, ok, err := s.LoadDecoded(ctx, ref)
	return decoded.Snapshot, meta, ok, err
}

// LoadDecoded reads and decodes the envelope under ref, returning the decode
// metadata alongside the storage meta.
func (s *Store) LoadDecoded(ctx context.Context, ref state.Ref) (Decoded, state.Meta, bool, error) {
	const op = "persist.load"
	key, err := ref.Identifier()
	if err != nil {
		return Decoded{}, state.Meta{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return Decoded{}, state.Meta{}, false, err
	}
	raw, ok, err := s.adapter.Read(key)
	if err != nil {
		return Decoded{}, state.Meta{}, false, errs.WithOp(op, err)
	}
	if !ok {
		return Decoded{}, state.Meta{}, false, nil
	}
	decoded, err := s.codec.Decode([]byte(raw))
	if err != nil {
		return Decoded{}, state.Meta{}, false, errs.WithOp(op, err)
	}
	return decoded, metaFor(key, decoded.Metadata), true, nil
}

func metaFor(key string, md Metadata) state.Meta {
	meta := state.Meta{
		SnapshotID:    key,
		ETag:          md.Checksum,
		SchemaVersion: md.SourceVersion,
		UpdatedAt:     md.Timestamp,
	}
	if md.Migrated {
		meta.Extra = map[string]string{"migratedFrom": md.SourceVersion}
	}
	return meta
}

// Save implements state.Store. A non-empty meta.ETag must match the checksum
// currently stored under ref.
func (s *Store) Save(ctx context.Context, ref state.Ref, snapshot Snapshot, meta state.Meta) (state.Meta, error) {
	const op = "persist.save"
	key, err := ref.Identifier()
	if err != nil {
		return state.Meta{}, err
	}
	if err := ctx.Err(); err != nil {
		return state.Meta{}, err
	}
	if meta.ETag != "" {
		current, ok, err := s.storedChecksum(key)
		if err != nil {
			return state.Meta{}, errs.WithOp(op, err)
		}
		if ok && current != meta.ETag {
			return state.Meta{}, fmt.Errorf("%w: expected %q, got %q", state.ErrETagMismatch, meta.ETag, current)
		}
	}
	raw, env, err := s.codec.Marshal(snapshot)
	if err != nil {
		return state.Meta{}, errs.WithOp(op, err)
	}
	if err := s.adapter.Write(key, string(raw)); err != nil {
		return state.Meta{}, errs.WithOp(op, err)
	}
	if err := s.adapter.Write(s.versionKey, env.SchemaVersion); err != nil {
		return state.Meta{}, errs.WithOp(op, err)
	}
	return state.Meta{
		SnapshotID:    key,
		ETag:          env.Checksum,
		SchemaVersion: env.SchemaVersion,
		UpdatedAt:     env.Timestamp,
	}, nil
}

func (s *Store) storedChecksum(key string) (string, bool, error) {
	raw, ok, err := s.adapter.Read(key)
	if err != nil || !ok {
		return "", ok, err
	}
	var head struct {
		Checksum string `json:"checksum"`
	}
	if err := json.Unmarshal([]byte(raw), &head); err != nil {
		return "", false, nil
	}
	return head.Checksum, true, nil
}

// Version returns the stored schema version without decoding the envelope.
func (s *Store) Version() (string, bool, error) {
	return s.adapter.Read(s.versionKey)
}

// BackupInfo describes one stored backup.
type BackupInfo struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
	Bytes     int64     `json:"bytes"`
}

// Backup copies the envelope under ref to a timestamped backup key and prunes
// the oldest backups beyond the limit.
func (s *Store) Backup(ctx context.Context, ref state.Ref) (BackupInfo, error) {
	const op = "persist.backup"
	key, err := ref.Identifier()
	if err != nil {
		return BackupInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return BackupInfo{}, err
	}
	raw, ok, err := s.adapter.Read(key)
	if err != nil {
		return BackupInfo{}, errs.WithOp(op, err)
	}
	if !ok {
		return BackupInfo{}, errs.WithOp(op, errs.NotFound("snapshot", key))
	}

	existing, err := s.Backups(ctx)
	if err != nil {
		return BackupInfo{}, err
	}
	taken := make(map[string]bool, len(existing))
	for _, b := range existing {
		taken[b.Key] = true
	}
	at := s.clock().UTC()
	backupKey := backupPrefix + strconv.FormatInt(at.UnixMilli(), 10)
	for i := 1; taken[backupKey]; i++ {
		backupKey = fmt.Sprintf("%s%d-%d", backupPrefix, at.UnixMilli(), i)
	}
	if err := s.adapter.Write(backupKey, raw); err != nil {
		return BackupInfo{}, errs.WithOp(op, err)
	}
	info := BackupInfo{Key: backupKey, CreatedAt: time.UnixMilli(at.UnixMilli()).UTC(), Bytes: storage.Size(raw)}

	all := append(existing, info)
	sortBackups(all)
	for len(all) > s.maxBackups {
		oldest := all[len(all)-1]
		if err := s.adapter.Remove(oldest.Key); err != nil {
			return info, errs.WithOp(op, err)
		}
		s.logger.Info("pruned backup", zap.String("key", oldest.Key))
		all = all[:len(all)-1]
	}
	return info, nil
}

// Backups lists stored backups, newest first.
func (s *Store) Backups(ctx context.Context) ([]BackupInfo, error) {
	const op = "persist.backups"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys, err := s.adapter.Keys()
	if err != nil {
		return nil, errs.WithOp(op, err)
	}
	var out []BackupInfo
	for _, k := range keys {
		created, ok := backupTime(k)
		if !ok {
			continue
		}
		raw, found, err := s.adapter.Read(k)
		if err != nil {
			return nil, errs.WithOp(op, err)
		}
		if !found {
			continue
		}
		out = append(out, BackupInfo{Key: k, CreatedAt: created, Bytes: storage.Size(raw)})
	}
	sortBackups(out)
	return out, nil
}

// Restore decodes the backup under backupKey and, when valid, writes it back
// as the current envelope under ref.
func (s *Store) Restore(ctx context.Context, ref state.Ref, backupKey string) (Decoded, error) {
	const op = "persist.restore"
	key, err := ref.Identifier()
	if err != nil {
		return Decoded{}, err
	}
	if err := ctx.Err(); err != nil {
		return Decoded{}, err
	}
	if _, ok := backupTime(backupKey); !ok {
		return Decoded{}, errs.WithOp(op, errs.NotFound("backup", backupKey))
	}
	raw, ok, err := s.adapter.Read(backupKey)
	if err != nil {
		return Decoded{}, errs.WithOp(op, err)
	}
	if !ok {
		return Decoded{}, errs.WithOp(op, errs.NotFound("backup", backupKey))
	}
	decoded, err := s.codec.Decode([]byte(raw))
	if err != nil {
		return Decoded{}, errs.WithOp(op, err)
	}
	if err := s.adapter.Write(key, raw); err != nil {
		return Decoded{}, errs.WithOp(op, err)
	}
	if err := s.adapter.Write(s.versionKey, decoded.Metadata.SourceVersion); err != nil {
		return Decoded{}, errs.WithOp(op, err)
	}
	return decoded, nil
}

// Clear removes every key in the adapter's namespace, backups included.
func (s *Store) Clear(ctx context.Context) error {
	const op = "persist.clear"
	if err := ctx.Err(); err != nil {
		return err
	}
	keys, err := s.adapter.Keys()
	if err != nil {
		return errs.WithOp(op, err)
	}
	for _, k := range keys {
		if err := s.adapter.Remove(k); err != nil {
			return errs.WithOp(op, err)
		}
	}
	return nil
}

func backupTime(key string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(key, backupPrefix)
	if !ok {
		return time.Time{}, false
	}
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		rest = rest[:i]
	}
	ms, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

func sortBackups(list []BackupInfo) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].Key > list[j].Key
	})
}

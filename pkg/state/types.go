package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

// Ref identifies one persisted snapshot by storage key.
type Ref struct {
	Key string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID    string            `json:"snapshot_id,omitempty"`
	ETag          string            `json:"etag,omitempty"`
	SchemaVersion string            `json:"schema_version,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// Store loads/saves one snapshot for a single reference. Load reports ok=false
// when nothing is stored. Save rejects with ErrETagMismatch when meta.ETag is
// set and differs from the currently stored ETag.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (snapshot T, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error)
}

type Mutator[T any] func(*T) error

// Identifier returns the canonical storage key for r.
func (r Ref) Identifier() (string, error) {
	key := strings.TrimSpace(r.Key)
	if key == "" {
		return "", fmt.Errorf("state: ref key is required")
	}
	return key, nil
}

// Mutate loads one snapshot, applies fn, validates the result when it
// implements Validate() error, then saves using the loaded ETag.
func Mutate[T any](ctx context.Context, store Store[T], ref Ref, fn Mutator[T]) (T, Meta, error) {
	var zero T
	if store == nil {
		return zero, Meta{}, fmt.Errorf("state: store is required")
	}
	if fn == nil {
		return zero, Meta{}, fmt.Errorf("state: mutator is required")
	}

	snapshot, loadedMeta, ok, err := store.Load(ctx, ref)
	if err != nil {
		return zero, Meta{}, fmt.Errorf("state: load %q: %w", ref.Key, err)
	}
	if !ok {
		snapshot = zero
		loadedMeta = Meta{}
	}

	if err := fn(&snapshot); err != nil {
		return zero, loadedMeta, err
	}
	if v, ok := any(snapshot).(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return zero, loadedMeta, err
		}
	}

	savedMeta, err := store.Save(ctx, ref, snapshot, Meta{ETag: loadedMeta.ETag})
	if err != nil {
		return zero, loadedMeta, fmt.Errorf("state: save %q: %w", ref.Key, err)
	}
	return snapshot, savedMeta, nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if override.SchemaVersion != "" {
		out.SchemaVersion = override.SchemaVersion
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

// CloneMeta deep-copies meta.
func CloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra != nil {
		out.Extra = make(map[string]string, len(meta.Extra))
		for k, v := range meta.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

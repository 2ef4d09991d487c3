package state_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-sop/pkg/state"
)

type titled struct {
	Title string
}

func (t titled) Validate() error {
	if t.Title == "" {
		return errors.New("title is required")
	}
	return nil
}

func TestRefIdentifierRequiresKey(t *testing.T) {
	if _, err := (state.Ref{Key: "  "}).Identifier(); err == nil {
		t.Fatalf("expected error for blank key")
	}
	got, err := state.Ref{Key: " data "}.Identifier()
	if err != nil || got != "data" {
		t.Fatalf("expected trimmed key, got %q err=%v", got, err)
	}
}

func TestMemoryStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore[titled]()
	ref := state.Ref{Key: "data"}

	if _, _, ok, err := store.Load(ctx, ref); ok || err != nil {
		t.Fatalf("expected empty store, ok=%v err=%v", ok, err)
	}

	meta, err := store.Save(ctx, ref, titled{Title: "Gearbox"}, state.Meta{SchemaVersion: "1.1.0", Extra: map[string]string{"a": "b"}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if meta.ETag == "" || meta.SnapshotID != "data" || meta.SchemaVersion != "1.1.0" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	got, loaded, ok, err := store.Load(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Title != "Gearbox" || loaded.ETag != meta.ETag {
		t.Fatalf("unexpected load %+v %+v", got, loaded)
	}
	loaded.Extra["a"] = "mutated"
	_, again, _, _ := store.Load(ctx, ref)
	if again.Extra["a"] != "b" {
		t.Fatalf("expected meta to be copied on load")
	}
}

func TestMemoryStoreRejectsStaleETag(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore[titled]()
	ref := state.Ref{Key: "data"}

	first, err := store.Save(ctx, ref, titled{Title: "A"}, state.Meta{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Save(ctx, ref, titled{Title: "B"}, state.Meta{ETag: first.ETag}); err != nil {
		t.Fatalf("save with current etag: %v", err)
	}
	_, err = store.Save(ctx, ref, titled{Title: "C"}, state.Meta{ETag: first.ETag})
	if !errors.Is(err, state.ErrETagMismatch) {
		t.Fatalf("expected etag mismatch, got %v", err)
	}
}

func TestMutateValidationFailureDoesNotSave(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore[titled]()
	ref := state.Ref{Key: "data"}
	first, _ := store.Save(ctx, ref, titled{Title: "ok"}, state.Meta{})

	_, _, err := state.Mutate(ctx, store, ref, func(v *titled) error {
		v.Title = ""
		return nil
	})
	if err == nil || err.Error() != "title is required" {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, meta, _, _ := store.Load(ctx, ref)
	if meta.ETag != first.ETag {
		t.Fatalf("expected no save, etag moved to %q", meta.ETag)
	}
}

func TestMutateAppliesChange(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore[titled]()
	ref := state.Ref{Key: "data"}

	got, meta, err := state.Mutate(ctx, store, ref, func(v *titled) error {
		v.Title = "new"
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if got.Title != "new" || meta.ETag == "" {
		t.Fatalf("unexpected result %+v %+v", got, meta)
	}
}

package storage_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/storage"
)

func TestSizeCountsUTF16CodeUnits(t *testing.T) {
	cases := map[string]int64{
		"":       0,
		"abc":    6,
		"é":      2,
		"😀":      4,
		"a😀b":    8,
		"sopgen": 12,
	}
	for in, want := range cases {
		if got := storage.Size(in); got != want {
			t.Fatalf("Size(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestAdapterIsAvailable(t *testing.T) {
	backend := storage.NewMemoryBackend()
	adapter := storage.NewAdapter(backend)
	if !adapter.IsAvailable() {
		t.Fatalf("expected memory backend to be available")
	}
	keys, _ := backend.Keys()
	if len(keys) != 0 {
		t.Fatalf("expected probe key to be removed, got %v", keys)
	}

	backend.SetDisabled(true)
	if adapter.IsAvailable() {
		t.Fatalf("expected disabled backend to be unavailable")
	}

	backend.SetDisabled(false)
	backend.FailWrites(errors.New("quota"))
	if adapter.IsAvailable() {
		t.Fatalf("expected failing backend to be unavailable")
	}

	var nilAdapter *storage.Adapter
	if nilAdapter.IsAvailable() {
		t.Fatalf("expected nil adapter to be unavailable")
	}
}

func TestAdapterCapacityInfoCountsOnlyNamespace(t *testing.T) {
	backend := storage.NewMemoryBackend()
	if err := backend.SetItem("other-app", strings.Repeat("x", 100)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	adapter := storage.NewAdapter(backend, storage.WithQuota(1000))
	if err := adapter.Write("data", "hello"); err != nil {
		t.Fatalf("write: %v", err)
	}

	info, err := adapter.CapacityInfo()
	if err != nil {
		t.Fatalf("capacity: %v", err)
	}
	want := storage.Size("sopgen-data") + storage.Size("hello")
	if info.UsedBytes != want {
		t.Fatalf("expected used %d, got %d", want, info.UsedBytes)
	}
	if info.RemainingBytes != 1000-want {
		t.Fatalf("expected remaining %d, got %d", 1000-want, info.RemainingBytes)
	}
	if info.Keys != 1 {
		t.Fatalf("expected 1 key, got %d", info.Keys)
	}
	if info.PercentUsed <= 0 || info.PercentUsed >= 100 {
		t.Fatalf("unexpected percent %f", info.PercentUsed)
	}
}

func TestAdapterWriteRejectsOverQuotaAndKeepsPreviousValue(t *testing.T) {
	backend := storage.NewMemoryBackend()
	adapter := storage.NewAdapter(backend, storage.WithQuota(200))

	if err := adapter.Write("data", "v1"); err != nil {
		t.Fatalf("write v1: %v", err)
	}
	err := adapter.Write("data", strings.Repeat("z", 500))
	if !errors.Is(err, errs.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if errs.KindOf(err) != errs.KindQuotaExceeded {
		t.Fatalf("expected kind %s, got %s", errs.KindQuotaExceeded, errs.KindOf(err))
	}
	got, ok, err := adapter.Read("data")
	if err != nil || !ok || got != "v1" {
		t.Fatalf("expected previous value to survive, got %q ok=%v err=%v", got, ok, err)
	}
}

func TestAdapterWriteCreditsReplacedValue(t *testing.T) {
	backend := storage.NewMemoryBackend()
	value := strings.Repeat("a", 40)
	quota := storage.Size("sopgen-k") + storage.Size(value)
	adapter := storage.NewAdapter(backend, storage.WithQuota(quota))

	if err := adapter.Write("k", value); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// The namespace is now full; replacing with a same-size value still fits.
	if err := adapter.Write("k", strings.Repeat("b", 40)); err != nil {
		t.Fatalf("replace write: %v", err)
	}
	if err := adapter.Write("other", "x"); !errors.Is(err, errs.ErrQuotaExceeded) {
		t.Fatalf("expected quota error for new key, got %v", err)
	}
}

func TestAdapterUnavailableBackendErrors(t *testing.T) {
	backend := storage.NewMemoryBackend()
	adapter := storage.NewAdapter(backend)
	backend.SetDisabled(true)

	if _, _, err := adapter.Read("data"); !errors.Is(err, errs.ErrStorageUnavailable) {
		t.Fatalf("expected unavailable on read, got %v", err)
	}
	if err := adapter.Write("data", "x"); !errors.Is(err, errs.ErrStorageUnavailable) {
		t.Fatalf("expected unavailable on write, got %v", err)
	}
	if err := adapter.Remove("data"); !errors.Is(err, errs.ErrStorageUnavailable) {
		t.Fatalf("expected unavailable on remove, got %v", err)
	}
	if !errors.Is(adapter.Write("data", "x"), storage.ErrBackendDisabled) {
		t.Fatalf("expected backend cause to be preserved")
	}
}

func TestAdapterKeysStripNamespace(t *testing.T) {
	backend := storage.NewMemoryBackend()
	_ = backend.SetItem("unrelated", "1")
	adapter := storage.NewAdapter(backend, storage.WithNamespace("app-"))
	for _, k := range []string{"data", "version", "backup-1"} {
		if err := adapter.Write(k, k); err != nil {
			t.Fatalf("write %s: %v", k, err)
		}
	}
	if err := adapter.Remove("version"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	keys, err := adapter.Keys()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if strings.Join(keys, ",") != "data,backup-1" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestFileBackendPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	first := storage.NewFileBackend(path)
	if err := first.SetItem("sopgen-data", `{"a":1}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := first.SetItem("sopgen-version", "1.1.0"); err != nil {
		t.Fatalf("set: %v", err)
	}

	second := storage.NewFileBackend(path)
	got, ok, err := second.GetItem("sopgen-data")
	if err != nil || !ok || got != `{"a":1}` {
		t.Fatalf("unexpected read %q ok=%v err=%v", got, ok, err)
	}
	if err := second.RemoveItem("sopgen-data"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	keys, err := first.Keys()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "sopgen-version" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestFileBackendMissingFileIsEmpty(t *testing.T) {
	backend := storage.NewFileBackend(filepath.Join(t.TempDir(), "absent.json"))
	_, ok, err := backend.GetItem("x")
	if err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	if !storage.NewAdapter(backend).IsAvailable() {
		t.Fatalf("expected file backend to be available")
	}
}

package storage

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/goliatone/go-sop/pkg/errs"
)

const (
	// DefaultNamespace prefixes every key written by the application.
	DefaultNamespace = "sopgen-"
	// DefaultQuota is the application-level soft ceiling (5 MiB).
	DefaultQuota int64 = 5 * 1024 * 1024

	probeKey   = "__probe__"
	probeValue = "probe"
)

// CapacityInfo reports usage of the namespace against the configured quota.
type CapacityInfo struct {
	UsedBytes      int64   `json:"usedBytes"`
	RemainingBytes int64   `json:"remainingBytes"`
	QuotaBytes     int64   `json:"quotaBytes"`
	PercentUsed    float64 `json:"percentUsed"`
	Keys           int     `json:"keys"`
}

// Adapter scopes a Backend to a key namespace and enforces the soft quota.
type Adapter struct {
	backend   Backend
	namespace string
	quota     int64
	logger    *zap.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

func WithNamespace(ns string) Option {
	return func(a *Adapter) {
		a.namespace = ns
	}
}

// WithQuota sets the soft ceiling in bytes. Non-positive values are ignored.
func WithQuota(bytes int64) Option {
	return func(a *Adapter) {
		if bytes > 0 {
			a.quota = bytes
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAdapter(backend Backend, opts ...Option) *Adapter {
	a := &Adapter{
		backend:   backend,
		namespace: DefaultNamespace,
		quota:     DefaultQuota,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

func (a *Adapter) Namespace() string { return a.namespace }

func (a *Adapter) Quota() int64 { return a.quota }

func (a *Adapter) key(k string) string { return a.namespace + k }

// IsAvailable probes the backend with a throwaway write and delete. It never
// fails; any error reports false.
func (a *Adapter) IsAvailable() bool {
	if a == nil || a.backend == nil {
		return false
	}
	k := a.key(probeKey)
	if err := a.backend.SetItem(k, probeValue); err != nil {
		a.logger.Debug("storage probe write failed", zap.Error(err))
		return false
	}
	if err := a.backend.RemoveItem(k); err != nil {
		a.logger.Debug("storage probe remove failed", zap.Error(err))
		return false
	}
	return true
}

// CapacityInfo sums key and value sizes of every namespaced item.
func (a *Adapter) CapacityInfo() (CapacityInfo, error) {
	const op = "storage.capacity"
	if a == nil || a.backend == nil {
		return CapacityInfo{}, errs.Wrap(errs.KindStorageUnavailable, op, nil)
	}
	keys, err := a.backend.Keys()
	if err != nil {
		return CapacityInfo{}, errs.Wrap(errs.KindStorageUnavailable, op, err)
	}
	info := CapacityInfo{QuotaBytes: a.quota}
	for _, k := range keys {
		if !strings.HasPrefix(k, a.namespace) {
			continue
		}
		v, ok, err := a.backend.GetItem(k)
		if err != nil {
			return CapacityInfo{}, errs.Wrap(errs.KindStorageUnavailable, op, err)
		}
		if !ok {
			continue
		}
		info.UsedBytes += Size(k) + Size(v)
		info.Keys++
	}
	info.RemainingBytes = a.quota - info.UsedBytes
	if info.RemainingBytes < 0 {
		info.RemainingBytes = 0
	}
	if a.quota > 0 {
		info.PercentUsed = float64(info.UsedBytes) / float64(a.quota) * 100
	}
	return info, nil
}

// Read returns the value stored under key, or ok=false when absent.
func (a *Adapter) Read(key string) (string, bool, error) {
	if a == nil || a.backend == nil {
		return "", false, errs.Wrap(errs.KindStorageUnavailable, "storage.read", nil)
	}
	v, ok, err := a.backend.GetItem(a.key(key))
	if err != nil {
		return "", false, errs.Wrap(errs.KindStorageUnavailable, "storage.read", err)
	}
	return v, ok, nil
}

// Write stores value under key. The candidate size is checked against the
// remaining quota (crediting any value it replaces) before the backend is
// touched, so a rejected write leaves the previous value readable.
func (a *Adapter) Write(key, value string) error {
	const op = "storage.write"
	info, err := a.CapacityInfo()
	if err != nil {
		return errs.WithOp(op, err)
	}
	full := a.key(key)
	need := Size(full) + Size(value)
	if prev, ok, err := a.backend.GetItem(full); err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, op, err)
	} else if ok {
		need -= Size(full) + Size(prev)
	}
	if need > info.RemainingBytes {
		return &errs.Error{
			Kind:    errs.KindQuotaExceeded,
			Op:      op,
			ID:      key,
			Message: fmt.Sprintf("need %d bytes, %d remaining", need, info.RemainingBytes),
		}
	}
	if err := a.backend.SetItem(full, value); err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, op, err)
	}
	return nil
}

// Remove deletes key; removing an absent key is not an error.
func (a *Adapter) Remove(key string) error {
	if a == nil || a.backend == nil {
		return errs.Wrap(errs.KindStorageUnavailable, "storage.remove", nil)
	}
	if err := a.backend.RemoveItem(a.key(key)); err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "storage.remove", err)
	}
	return nil
}

// Keys lists namespaced keys with the namespace stripped, in backend order.
func (a *Adapter) Keys() ([]string, error) {
	if a == nil || a.backend == nil {
		return nil, errs.Wrap(errs.KindStorageUnavailable, "storage.keys", nil)
	}
	all, err := a.backend.Keys()
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageUnavailable, "storage.keys", err)
	}
	out := make([]string, 0, len(all))
	for _, k := range all {
		if rest, ok := strings.CutPrefix(k, a.namespace); ok {
			out = append(out, rest)
		}
	}
	return out, nil
}

// Size is the stored byte size of s: two bytes per UTF-16 code unit.
func Size(s string) int64 {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return int64(n) * 2
}

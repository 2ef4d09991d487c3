// Package hydrate turns stored JSON objects into typed values. Pre-hooks
// (schema migrations) see the generic map; post-hooks (validation) see the
// decoded value.
package hydrate

import (
	"encoding/json"
	"fmt"
)

// Context names the payload being decoded and the schema version it was
// stored with.
type Context struct {
	Source  string
	Version string
}

// PreHook rewrites the generic payload. Returning a nil map keeps the input.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook checks or adjusts the decoded value.
type PostHook[T any] func(Context, *T) error

type DecoderOption[T any] func(*Decoder[T])

// Decoder runs pre-hooks, decodes into T, then runs post-hooks. Hooks run in
// registration order and a failing hook stops the pipeline.
type Decoder[T any] struct {
	pre  []PreHook
	post []PostHook[T]
}

func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.pre = append(d.pre, hook)
		}
	}
}

func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.post = append(d.post, hook)
		}
	}
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// DecodeBytes decodes raw, which must hold a JSON object.
func (d *Decoder[T]) DecodeBytes(ctx Context, raw []byte) (T, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		var zero T
		return zero, fmt.Errorf("hydrate: parse %s payload: %w", ctx.Source, err)
	}
	return d.run(ctx, payload)
}

// Decode works on a copy of payload; the caller's map is never modified.
// Hook errors are wrapped with %w.
func (d *Decoder[T]) Decode(ctx Context, payload map[string]any) (T, error) {
	var zero T
	if payload == nil {
		return zero, fmt.Errorf("hydrate: %s payload is nil", ctx.Source)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return zero, fmt.Errorf("hydrate: copy %s payload: %w", ctx.Source, err)
	}
	return d.DecodeBytes(ctx, raw)
}

func (d *Decoder[T]) run(ctx Context, payload map[string]any) (out T, err error) {
	if payload == nil {
		return out, fmt.Errorf("hydrate: %s payload is nil", ctx.Source)
	}
	for _, hook := range d.pre {
		next, err := hook(ctx, payload)
		if err != nil {
			return out, fmt.Errorf("hydrate: pre-hook for %s failed: %w", ctx.Source, err)
		}
		if next != nil {
			payload = next
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return out, fmt.Errorf("hydrate: encode %s payload: %w", ctx.Source, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero, fmt.Errorf("hydrate: decode %s payload: %w", ctx.Source, err)
	}

	for _, hook := range d.post {
		if err := hook(ctx, &out); err != nil {
			var zero T
			return zero, fmt.Errorf("hydrate: post-hook for %s failed: %w", ctx.Source, err)
		}
	}
	return out, nil
}

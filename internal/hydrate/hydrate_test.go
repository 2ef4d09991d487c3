package hydrate

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

type stepRecord struct {
	Number   int      `json:"stepNumber"`
	Category string   `json:"category"`
	Tools    []string `json:"tools"`
}

func TestDecoderAppliesHooksInOrder(t *testing.T) {
	var seen []string
	decoder := NewDecoder[stepRecord](
		WithPreHook[stepRecord](func(ctx Context, payload map[string]any) (map[string]any, error) {
			seen = append(seen, "pre:"+ctx.Version)
			if _, ok := payload["category"]; !ok {
				payload["category"] = "general"
			}
			return payload, nil
		}),
		WithPreHook[stepRecord](func(_ Context, payload map[string]any) (map[string]any, error) {
			seen = append(seen, "pre2")
			if _, ok := payload["tools"]; !ok {
				payload["tools"] = []any{}
			}
			return payload, nil
		}),
		WithPostHook[stepRecord](func(_ Context, rec *stepRecord) error {
			seen = append(seen, "post")
			if rec.Number < 1 {
				rec.Number = 1
			}
			return nil
		}),
	)

	got, err := decoder.Decode(Context{Source: "step", Version: "1.0.0"}, map[string]any{"stepNumber": 0})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := stepRecord{Number: 1, Category: "general", Tools: []string{}}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("decoded mismatch:\nwant: %#v\n got: %#v", want, got)
	}
	if strings.Join(seen, ",") != "pre:1.0.0,pre2,post" {
		t.Fatalf("unexpected hook order %v", seen)
	}
}

func TestDecoderDoesNotMutateInput(t *testing.T) {
	input := map[string]any{"stepNumber": 2}
	decoder := NewDecoder[stepRecord](WithPreHook[stepRecord](func(_ Context, payload map[string]any) (map[string]any, error) {
		payload["category"] = "changed"
		return payload, nil
	}))
	if _, err := decoder.Decode(Context{Source: "step"}, input); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := input["category"]; ok {
		t.Fatalf("expected caller payload to be untouched")
	}
}

func TestDecoderWrapsHookErrors(t *testing.T) {
	sentinel := errors.New("boom")
	decoder := NewDecoder[stepRecord](WithPreHook[stepRecord](func(Context, map[string]any) (map[string]any, error) {
		return nil, sentinel
	}))
	_, err := decoder.Decode(Context{Source: "step"}, map[string]any{})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if !strings.Contains(err.Error(), "pre-hook for step failed") {
		t.Fatalf("unexpected message %v", err)
	}
}

func TestDecoderRejectsNilAndMalformed(t *testing.T) {
	decoder := NewDecoder[stepRecord]()
	if _, err := decoder.Decode(Context{Source: "step"}, nil); err == nil {
		t.Fatalf("expected error for nil payload")
	}
	if _, err := decoder.DecodeBytes(Context{Source: "step"}, []byte(`[1,2`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
	if _, err := decoder.DecodeBytes(Context{Source: "step"}, []byte(`{"stepNumber":"x"}`)); err == nil {
		t.Fatalf("expected type error")
	}
}

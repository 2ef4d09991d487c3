package sop

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-sop/pkg/model"
)

// errEmptyExpression is returned by every engine for a blank expression.
var errEmptyExpression = errors.New("expression must not be empty")

// EngineOption configures a filter engine built by NewExprEvaluator,
// NewCELEvaluator or NewJSEvaluator.
type EngineOption func(*engineConfig)

type engineConfig struct {
	cache     ProgramCache
	functions *FunctionRegistry
}

// EngineCache shares compiled programs between evaluations. Keys are prefixed
// with the engine name so one cache can serve several engines.
func EngineCache(cache ProgramCache) EngineOption {
	return func(cfg *engineConfig) {
		cfg.cache = cache
	}
}

// EngineFunctions exposes the functions of registry to expressions. The
// registry is copied; later registrations are not seen by the engine.
func EngineFunctions(registry *FunctionRegistry) EngineOption {
	return func(cfg *engineConfig) {
		if registry != nil {
			cfg.functions = registry.Clone()
		}
	}
}

func newEngineConfig(opts []EngineOption) engineConfig {
	var cfg engineConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// cached returns the program stored under engine and key, or builds it with
// compile and stores the result.
func cached[P any](cfg engineConfig, engine, key string, compile func() (P, error)) (P, error) {
	key = engine + ":" + key
	if cfg.cache != nil {
		if v, ok := cfg.cache.Get(key); ok {
			if program, ok := v.(P); ok {
				return program, nil
			}
		}
	}
	program, err := compile()
	if err != nil {
		return program, err
	}
	if cfg.cache != nil {
		cfg.cache.Set(key, program)
	}
	return program, nil
}

// EvaluationError reports a filter expression that failed to compile or run.
// Type is empty when the failure happened outside a record evaluation.
type EvaluationError struct {
	Engine string
	Expr   string
	Type   model.Type
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	target := "compile"
	if e.Type != "" {
		target = string(e.Type)
	}
	expr := "<empty>"
	if e.Expr != "" {
		expr = fmt.Sprintf("%q", e.Expr)
	}
	return fmt.Sprintf("sop: %s filter %s (%s): %v", e.Engine, expr, target, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// evalFailure wraps err as an *EvaluationError. An existing one keeps its
// fields and only has the blank ones filled in.
func evalFailure(engine, expr string, typ model.Type, err error) error {
	if err == nil {
		return nil
	}
	var existing *EvaluationError
	if !errors.As(err, &existing) {
		return &EvaluationError{Engine: engine, Expr: expr, Type: typ, Err: err}
	}
	if existing.Engine == "" {
		existing.Engine = engine
	}
	if existing.Expr == "" {
		existing.Expr = expr
	}
	if existing.Type == "" {
		existing.Type = typ
	}
	return existing
}

package sop

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-sop/pkg/model"
)

// ErrNoEvaluator is returned when the configured filter engine cannot be
// built, e.g. js without the js_eval build tag.
var ErrNoEvaluator = errors.New("sop: evaluator not configured")

// EvaluatorLogEvent describes one filter evaluation.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Type     model.Type
	Duration time.Duration
	Err      error
}

// EvaluatorLogger receives every filter evaluation, in addition to the debug
// entry written to the Manager logger.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

// WithEvaluatorLogger attaches l to filter evaluations.
func WithEvaluatorLogger(l EvaluatorLogger) Option {
	return func(cfg *managerConfig) {
		cfg.evalLogger = l
	}
}

// WithProgramCache shares compiled filter programs through cache. Without it
// each Manager gets its own MemoryProgramCache.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *managerConfig) {
		cfg.programCache = cache
	}
}

type evaluatorSettings struct {
	engine    string
	cache     ProgramCache
	functions *FunctionRegistry
}

// Evaluate runs expr against ctx with the configured filter engine.
func (m *Manager) Evaluate(ctx RuleContext, expr string) (any, error) {
	if expr == "" {
		return nil, evalFailure(m.cfg.FilterEngine, expr, ctx.EntityType, errEmptyExpression)
	}
	evaluator, err := m.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	engine := engineName(evaluator)
	start := time.Now()
	value, err := evaluator.Evaluate(ctx, expr)
	err = evalFailure(engine, expr, ctx.EntityType, err)
	m.logEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     expr,
		Type:     ctx.EntityType,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (m *Manager) logEvaluation(event EvaluatorLogEvent) {
	m.metrics.ObserveFilter(event.Engine, string(event.Type), event.Err)
	if ce := m.logger.Check(zap.DebugLevel, "filter evaluated"); ce != nil {
		ce.Write(
			zap.String("engine", event.Engine),
			zap.String("expr", event.Expr),
			zap.String("entity", string(event.Type)),
			zap.Duration("duration", event.Duration),
			zap.Error(event.Err),
		)
	}
	if m.evalLogger != nil {
		m.evalLogger.LogEvaluation(event)
	}
}

// resolveEvaluator returns the configured evaluator, building the one named
// by Config.FilterEngine on first use.
func (m *Manager) resolveEvaluator() (Evaluator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evaluator != nil {
		return m.evaluator, nil
	}
	if m.evaluatorErr != nil {
		return nil, m.evaluatorErr
	}
	settings := m.evalOpts
	if settings.cache == nil {
		settings.cache = NewMemoryProgramCache(DefaultProgramCacheSize)
	}
	opts := []EngineOption{EngineCache(settings.cache), EngineFunctions(settings.functions)}
	var evaluator Evaluator
	switch settings.engine {
	case EngineCEL:
		evaluator = NewCELEvaluator(opts...)
	case EngineJS:
		evaluator = NewJSEvaluator(opts...)
	default:
		evaluator = NewExprEvaluator(opts...)
	}
	if evaluator == nil {
		m.evaluatorErr = fmt.Errorf("%w: engine %q unavailable", ErrNoEvaluator, settings.engine)
		return nil, m.evaluatorErr
	}
	m.evaluator = evaluator
	return evaluator, nil
}

// engineName labels e for logs and metrics.
func engineName(e Evaluator) string {
	if named, ok := e.(interface{ Engine() string }); ok {
		return named.Engine()
	}
	return "custom"
}

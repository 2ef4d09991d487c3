package sop

import (
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-sop/pkg/activity"
	"github.com/goliatone/go-sop/pkg/events"
	"github.com/goliatone/go-sop/pkg/metrics"
	"github.com/goliatone/go-sop/pkg/persist"
	"github.com/goliatone/go-sop/pkg/storage"
)

// Option configures a Manager.
type Option func(*managerConfig)

type managerConfig struct {
	config         Config
	backend        storage.Backend
	logger         *zap.Logger
	clock          func() time.Time
	bus            *events.Bus
	activityHooks  activity.Hooks
	activityConfig activity.Config
	metrics        *metrics.Recorder
	migrations     []persist.Migration
	evaluator      Evaluator
	programCache   ProgramCache
	functions      *FunctionRegistry
	evalLogger     EvaluatorLogger
	errs           []error
}

func applyOptions(opts []Option) managerConfig {
	cfg := managerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithStorage sets the key/value backend. Without it the Manager keeps its
// data in a process-local MemoryBackend.
func WithStorage(backend storage.Backend) Option {
	return func(cfg *managerConfig) {
		cfg.backend = backend
	}
}

// WithConfig layers c over the current configuration.
func WithConfig(c Config) Option {
	return func(cfg *managerConfig) {
		cfg.config = c.Merge(cfg.config)
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(cfg *managerConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the source of entity, save and backup timestamps.
func WithClock(fn func() time.Time) Option {
	return func(cfg *managerConfig) {
		cfg.clock = fn
	}
}

// WithEventBus shares an existing bus instead of creating one.
func WithEventBus(bus *events.Bus) Option {
	return func(cfg *managerConfig) {
		cfg.bus = bus
	}
}

// WithMetrics records persistence and mutation metrics on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(cfg *managerConfig) {
		cfg.metrics = rec
	}
}

// WithMigrations replaces the built-in migration list.
func WithMigrations(steps ...persist.Migration) Option {
	return func(cfg *managerConfig) {
		cfg.migrations = append([]persist.Migration(nil), steps...)
	}
}

// WithEvaluator sets the engine used for expression filters.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *managerConfig) {
		cfg.evaluator = e
	}
}

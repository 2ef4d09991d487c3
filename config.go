package sop

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-sop/layering"
	"github.com/goliatone/go-sop/pkg/persist"
	"github.com/goliatone/go-sop/pkg/storage"
)

// Filter engines accepted by Config.FilterEngine.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// DefaultAutoSaveInterval is how often the auto-save loop checks the dirty
// flag.
const DefaultAutoSaveInterval = 30 * time.Second

// EnvPrefix prefixes the environment variables read by ConfigFromEnv.
const EnvPrefix = "SOPGEN_"

// Config controls storage layout and background behaviour of a Manager. Zero
// fields take their value from DefaultConfig.
type Config struct {
	Namespace        string         `yaml:"namespace"`
	DataKey          string         `yaml:"data_key"`
	VersionKey       string         `yaml:"version_key"`
	QuotaBytes       int64          `yaml:"quota_bytes"`
	AutoSaveInterval time.Duration  `yaml:"auto_save_interval"`
	MaxBackups       int            `yaml:"max_backups"`
	Application      string         `yaml:"application"`
	MigrationPolicy  persist.Policy `yaml:"migration_policy"`
	FilterEngine     string         `yaml:"filter_engine"`
	// DetectConflicts rejects a save when the stored envelope changed since
	// this Manager last loaded or saved it.
	DetectConflicts bool `yaml:"detect_conflicts"`
	// DisableAutoSave keeps StartAutoSave from starting the loop.
	DisableAutoSave bool `yaml:"disable_auto_save"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:        storage.DefaultNamespace,
		DataKey:          persist.DefaultDataKey,
		VersionKey:       persist.DefaultVersionKey,
		QuotaBytes:       storage.DefaultQuota,
		AutoSaveInterval: DefaultAutoSaveInterval,
		MaxBackups:       persist.DefaultMaxBackups,
		Application:      persist.DefaultApplication,
		MigrationPolicy:  persist.PolicyStrict,
		FilterEngine:     EngineExpr,
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	return layering.MergeLayers(c, DefaultConfig())
}

// Merge layers c over base: fields set in c win.
func (c Config) Merge(base Config) Config {
	return layering.MergeLayers(c, base)
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.QuotaBytes < 0:
		return fmt.Errorf("sop: quota_bytes must not be negative, got %d", c.QuotaBytes)
	case c.AutoSaveInterval < 0:
		return fmt.Errorf("sop: auto_save_interval must not be negative, got %s", c.AutoSaveInterval)
	case c.MaxBackups < 0:
		return fmt.Errorf("sop: max_backups must not be negative, got %d", c.MaxBackups)
	case c.MigrationPolicy != "" && !c.MigrationPolicy.Valid():
		return fmt.Errorf("sop: unknown migration_policy %q", c.MigrationPolicy)
	case c.DataKey != "" && c.DataKey == c.VersionKey:
		return fmt.Errorf("sop: data_key and version_key must differ")
	}
	switch c.FilterEngine {
	case "", EngineExpr, EngineCEL:
	case EngineJS:
		if !jsEvaluatorAvailable() {
			return fmt.Errorf("sop: filter_engine %q requires the js_eval build tag", c.FilterEngine)
		}
	default:
		return fmt.Errorf("sop: unknown filter_engine %q", c.FilterEngine)
	}
	return nil
}

// LoadConfigFile reads a YAML config file. Unset fields are left zero so the
// result can be layered over other sources.
func LoadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("sop: read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("sop: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigFromEnv builds a Config from SOPGEN_* variables using lookup, which is
// usually os.LookupEnv.
func ConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	if lookup == nil {
		return cfg, nil
	}
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get("NAMESPACE"); ok {
		cfg.Namespace = v
	}
	if v, ok := get("DATA_KEY"); ok {
		cfg.DataKey = v
	}
	if v, ok := get("VERSION_KEY"); ok {
		cfg.VersionKey = v
	}
	if v, ok := get("APPLICATION"); ok {
		cfg.Application = v
	}
	if v, ok := get("MIGRATION_POLICY"); ok {
		cfg.MigrationPolicy = persist.Policy(v)
	}
	if v, ok := get("FILTER_ENGINE"); ok {
		cfg.FilterEngine = v
	}
	if v, ok := get("QUOTA_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("sop: %sQUOTA_BYTES: %w", EnvPrefix, err)
		}
		cfg.QuotaBytes = n
	}
	if v, ok := get("MAX_BACKUPS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("sop: %sMAX_BACKUPS: %w", EnvPrefix, err)
		}
		cfg.MaxBackups = n
	}
	if v, ok := get("AUTO_SAVE_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("sop: %sAUTO_SAVE_INTERVAL: %w", EnvPrefix, err)
		}
		cfg.AutoSaveInterval = d
	}
	if v, ok := get("DETECT_CONFLICTS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("sop: %sDETECT_CONFLICTS: %w", EnvPrefix, err)
		}
		cfg.DetectConflicts = b
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

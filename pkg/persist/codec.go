// Package persist turns state snapshots into versioned, checksummed envelopes
// and back. Decoding verifies the checksum, migrates older schema versions
// and never returns a partially applied snapshot.
package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/goliatone/go-sop/internal/hydrate"
	"github.com/goliatone/go-sop/pkg/errs"
)

// Envelope is the persisted wrapper around a serialised snapshot.
type Envelope struct {
	SchemaVersion string          `json:"schemaVersion"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	Checksum      string          `json:"checksum"`
}

// Metadata describes a decoded envelope.
type Metadata struct {
	SchemaVersion   string     `json:"schemaVersion"`
	SourceVersion   string     `json:"sourceVersion"`
	Timestamp       time.Time  `json:"timestamp"`
	Checksum        string     `json:"checksum"`
	Migrated        bool       `json:"migrated"`
	ExportTimestamp *time.Time `json:"exportTimestamp,omitempty"`
	ExportVersion   string     `json:"exportVersion,omitempty"`
	Application     string     `json:"application,omitempty"`
}

// Decoded is the result of a successful decode.
type Decoded struct {
	Snapshot Snapshot
	Metadata Metadata
}

// Codec encodes and decodes envelopes. The zero value is not usable; call
// NewCodec.
type Codec struct {
	migrator    *Migrator
	logger      *zap.Logger
	clock       func() time.Time
	application string
}

// Option configures a Codec.
type Option func(*codecConfig)

type codecConfig struct {
	migrations  []Migration
	policy      Policy
	logger      *zap.Logger
	clock       func() time.Time
	application string
}

// WithMigrations appends migrations after the built-in ones.
func WithMigrations(steps ...Migration) Option {
	return func(c *codecConfig) {
		c.migrations = append(c.migrations, steps...)
	}
}

func WithPolicy(p Policy) Option {
	return func(c *codecConfig) {
		c.policy = p
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *codecConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(c *codecConfig) {
		if fn != nil {
			c.clock = fn
		}
	}
}

// WithApplication sets the application name stamped on export bundles.
func WithApplication(name string) Option {
	return func(c *codecConfig) {
		if name != "" {
			c.application = name
		}
	}
}

// DefaultApplication names the exporting application in bundles.
const DefaultApplication = "Assembly SOP Generator"

func NewCodec(opts ...Option) *Codec {
	cfg := codecConfig{
		migrations:  DefaultMigrations(),
		policy:      PolicyStrict,
		logger:      zap.NewNop(),
		clock:       func() time.Time { return time.Now().UTC() },
		application: DefaultApplication,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Codec{
		migrator:    NewMigrator(cfg.migrations, cfg.policy, cfg.logger),
		logger:      cfg.logger,
		clock:       cfg.clock,
		application: cfg.application,
	}
}

func (c *Codec) Migrator() *Migrator { return c.migrator }

func (c *Codec) Application() string { return c.application }

// Checksum is the hex xxhash64 of payload.
func Checksum(payload []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(payload))
}

// Compact strips insignificant whitespace from serialised JSON.
func Compact(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode wraps snapshot in an envelope stamped with the current version.
func (c *Codec) Encode(snapshot Snapshot) (Envelope, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return Envelope{}, errs.Wrap(errs.KindCorruptData, "persist.encode", err)
	}
	return Envelope{
		SchemaVersion: CurrentVersion,
		Timestamp:     c.clock().UTC(),
		Payload:       payload,
		Checksum:      Checksum(payload),
	}, nil
}

// Marshal encodes snapshot and serialises the envelope.
func (c *Codec) Marshal(snapshot Snapshot) ([]byte, Envelope, error) {
	env, err := c.Encode(snapshot)
	if err != nil {
		return nil, Envelope{}, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, Envelope{}, errs.Wrap(errs.KindCorruptData, "persist.encode", err)
	}
	return raw, env, nil
}

type wireEnvelope struct {
	SchemaVersion   string          `json:"schemaVersion"`
	Timestamp       *time.Time      `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
	Checksum        string          `json:"checksum"`
	ExportTimestamp *time.Time      `json:"exportTimestamp"`
	ExportVersion   string          `json:"exportVersion"`
	Application     string          `json:"application"`
}

// Decode parses a serialised envelope. Malformed input, missing payload or
// timestamp, and checksum mismatches fail with CorruptDataError; a version
// newer than CurrentVersion or a failing migration fails with MigrationError.
func (c *Codec) Decode(raw []byte) (Decoded, error) {
	const op = "persist.decode"
	var wire wireEnvelope
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Decoded{}, &errs.Error{Kind: errs.KindCorruptData, Op: op, Message: "malformed envelope", Err: err}
	}
	if len(wire.Payload) == 0 || bytes.Equal(bytes.TrimSpace(wire.Payload), []byte("null")) {
		return Decoded{}, &errs.Error{Kind: errs.KindCorruptData, Op: op, Message: "missing payload"}
	}
	if wire.Timestamp == nil {
		return Decoded{}, &errs.Error{Kind: errs.KindCorruptData, Op: op, Message: "missing timestamp"}
	}
	payload, err := Compact(wire.Payload)
	if err != nil {
		return Decoded{}, &errs.Error{Kind: errs.KindCorruptData, Op: op, Message: "malformed payload", Err: err}
	}
	if sum := Checksum(payload); sum != wire.Checksum {
		return Decoded{}, &errs.Error{Kind: errs.KindCorruptData, Op: op, Message: fmt.Sprintf("checksum mismatch: stored %q, computed %q", wire.Checksum, sum)}
	}
	version := wire.SchemaVersion
	if version == "" {
		version = LegacyVersion
	}
	snapshot, err := c.hydrate(payload, version)
	if err != nil {
		return Decoded{}, errs.WithOp(op, err)
	}
	return Decoded{
		Snapshot: snapshot,
		Metadata: Metadata{
			SchemaVersion:   CurrentVersion,
			SourceVersion:   version,
			Timestamp:       wire.Timestamp.UTC(),
			Checksum:        wire.Checksum,
			Migrated:        version != CurrentVersion,
			ExportTimestamp: wire.ExportTimestamp,
			ExportVersion:   wire.ExportVersion,
			Application:     wire.Application,
		},
	}, nil
}

// hydrate migrates payload from version to CurrentVersion and decodes it.
func (c *Codec) hydrate(payload []byte, version string) (Snapshot, error) {
	if CompareVersions(version, CurrentVersion) > 0 {
		return Snapshot{}, &errs.Error{Kind: errs.KindMigration, Message: fmt.Sprintf("schema %s is newer than supported %s", version, CurrentVersion)}
	}
	opts := []hydrate.DecoderOption[Snapshot]{
		hydrate.WithPostHook[Snapshot](func(_ hydrate.Context, s *Snapshot) error {
			return s.Validate()
		}),
	}
	if version != CurrentVersion {
		opts = append(opts, hydrate.WithPreHook[Snapshot](func(ctx hydrate.Context, p map[string]any) (map[string]any, error) {
			return c.migrator.Migrate(p, ctx.Version, CurrentVersion)
		}))
	}
	snapshot, err := hydrate.NewDecoder(opts...).DecodeBytes(hydrate.Context{Source: "snapshot", Version: version}, payload)
	if err != nil {
		switch errs.KindOf(err) {
		case errs.KindValidation:
			return Snapshot{}, &errs.Error{Kind: errs.KindCorruptData, Message: "invalid record", Err: err}
		case "":
		default:
			return Snapshot{}, err
		}
		return Snapshot{}, &errs.Error{Kind: errs.KindCorruptData, Message: "malformed payload", Err: err}
	}
	return snapshot, nil
}

package persist_test

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/persist"
)

func tag(label string) persist.Transform {
	return func(p map[string]any) (map[string]any, error) {
		seen, _ := p["seen"].([]string)
		p["seen"] = append(seen, label)
		return p, nil
	}
}

func TestMigratorPrefersDirectEdge(t *testing.T) {
	m := persist.NewMigrator([]persist.Migration{
		{From: "1.0.0", To: "1.1.0", Transform: tag("a")},
		{From: "1.1.0", To: "1.2.0", Transform: tag("b")},
		{From: "1.0.0", To: "1.2.0", Transform: tag("direct")},
	}, persist.PolicyStrict, nil)

	out, err := m.Migrate(map[string]any{}, "1.0.0", "1.2.0")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	seen := out["seen"].([]string)
	if len(seen) != 1 || seen[0] != "direct" {
		t.Fatalf("expected direct edge, got %v", seen)
	}
}

func TestMigratorChainsIntermediateVersions(t *testing.T) {
	m := persist.NewMigrator([]persist.Migration{
		{From: "1.0.0", To: "1.1.0", Transform: tag("a")},
		{From: "1.1.0", To: "1.2.0", Transform: tag("b")},
		{From: "1.2.0", To: "1.3.0", Transform: tag("c")},
	}, persist.PolicyStrict, nil)

	plan, ok := m.Plan("1.0.0", "1.2.0")
	if !ok || len(plan) != 2 {
		t.Fatalf("expected two-step plan, got %v ok=%v", plan, ok)
	}
	out, err := m.Migrate(map[string]any{}, "1.0.0", "1.2.0")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	seen := out["seen"].([]string)
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("expected a then b, got %v", seen)
	}
}

func TestMigratorSameVersionIsNoop(t *testing.T) {
	m := persist.NewMigrator(nil, persist.PolicyStrict, nil)
	in := map[string]any{"x": 1}
	out, err := m.Migrate(in, "1.1.0", "1.1.0")
	if err != nil || out["x"] != 1 {
		t.Fatalf("expected payload unchanged, got %v err=%v", out, err)
	}
}

func TestMigratorStrictPolicyFailsOnMissingPath(t *testing.T) {
	m := persist.NewMigrator(nil, persist.PolicyStrict, nil)
	_, err := m.Migrate(map[string]any{}, "0.9.0", "1.1.0")
	if !errors.Is(err, errs.ErrMigration) {
		t.Fatalf("expected migration error, got %v", err)
	}
}

func TestMigratorPassThroughLogsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := persist.NewMigrator(nil, persist.PolicyPassThrough, zap.New(core))
	in := map[string]any{"x": 1}
	out, err := m.Migrate(in, "0.9.0", "1.1.0")
	if err != nil || out["x"] != 1 {
		t.Fatalf("expected pass-through, got %v err=%v", out, err)
	}
	if logs.FilterMessage("no migration path, using payload unchanged").Len() != 1 {
		t.Fatalf("expected one warning, got %v", logs.All())
	}
}

func TestMigratorRejectsDowngrade(t *testing.T) {
	m := persist.NewMigrator(nil, persist.PolicyPassThrough, nil)
	if _, err := m.Migrate(map[string]any{}, "2.0.0", "1.1.0"); !errors.Is(err, errs.ErrMigration) {
		t.Fatalf("expected migration error, got %v", err)
	}
}

func TestMigratorTransformFailuresFailClosed(t *testing.T) {
	cause := errors.New("bad record")
	cases := map[string]persist.Transform{
		"error": func(map[string]any) (map[string]any, error) { return nil, cause },
		"panic": func(map[string]any) (map[string]any, error) { panic("boom") },
		"nil":   func(map[string]any) (map[string]any, error) { return nil, nil },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			m := persist.NewMigrator([]persist.Migration{{From: "1.0.0", To: "1.1.0", Transform: fn}}, persist.PolicyStrict, nil)
			out, err := m.Migrate(map[string]any{}, "1.0.0", "1.1.0")
			if !errors.Is(err, errs.ErrMigration) {
				t.Fatalf("expected migration error, got %v", err)
			}
			if out != nil {
				t.Fatalf("expected no payload, got %v", out)
			}
		})
	}
}

func TestCodecMigrationFailureFailsDecode(t *testing.T) {
	codec := persist.NewCodec(persist.WithMigrations(persist.Migration{
		From: "0.9.0", To: persist.LegacyVersion,
		Transform: func(map[string]any) (map[string]any, error) { panic("half-migrated") },
	}))
	_, err := codec.Decode(envelopeFor(t, "0.9.0", `{"document":{}}`))
	if !errors.Is(err, errs.ErrMigration) {
		t.Fatalf("expected migration error, got %v", err)
	}
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.1.0", -1},
		{"1.10.0", "1.9.0", 1},
		{"1.1", "1.1.0", 0},
		{"v2.0.0", "1.9.9", 1},
	}
	for _, tc := range cases {
		if got := persist.CompareVersions(tc.a, tc.b); got != tc.want {
			t.Fatalf("CompareVersions(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

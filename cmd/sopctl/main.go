// Command sopctl inspects and maintains the stored state of the SOP wizard.
//
//	sopctl [flags] <command> [args]
//
// Commands: info, stats, export [file], import <file>, backup, backups,
// restore <key>, status <draft|review|approved|archived>, clear.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	sop "github.com/goliatone/go-sop"
	"github.com/goliatone/go-sop/pkg/errs"
	"github.com/goliatone/go-sop/pkg/model"
	"github.com/goliatone/go-sop/pkg/persist"
	"github.com/goliatone/go-sop/pkg/state"
	"github.com/goliatone/go-sop/pkg/storage"
	"github.com/goliatone/go-sop/pkg/storage/gormkv"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "sopctl: %v\n", err)
		if kind := errs.KindOf(err); kind != "" {
			fmt.Fprintf(os.Stderr, "kind: %s\n", kind)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sopctl", flag.ContinueOnError)
	envFile := fs.String("env", ".env", "dotenv file to load when present")
	configPath := fs.String("config", "", "YAML config file")
	filePath := fs.String("file", "", "JSON store file (default $SOPGEN_FILE or sop-state.json)")
	dsn := fs.String("dsn", "", "postgres DSN; overrides -file (default $SOPGEN_DSN)")
	debug := fs.Bool("debug", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	logger := zap.NewNop()
	if *debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = l
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	backend, err := openBackend(*filePath, *dsn)
	if err != nil {
		return err
	}

	m, err := sop.New(
		sop.WithConfig(cfg),
		sop.WithStorage(backend),
		sop.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	return dispatch(ctx, m, cmd, rest, out)
}

// loadConfig layers the YAML file over SOPGEN_* variables.
func loadConfig(path string) (sop.Config, error) {
	cfg, err := sop.ConfigFromEnv(os.LookupEnv)
	if err != nil {
		return sop.Config{}, err
	}
	if path == "" {
		return cfg, nil
	}
	fileCfg, err := sop.LoadConfigFile(path)
	if err != nil {
		return sop.Config{}, err
	}
	return fileCfg.Merge(cfg), nil
}

func openBackend(path, dsn string) (storage.Backend, error) {
	if dsn == "" {
		dsn = os.Getenv(sop.EnvPrefix + "DSN")
	}
	if dsn != "" {
		return gormkv.Open(dsn)
	}
	if path == "" {
		path = os.Getenv(sop.EnvPrefix + "FILE")
	}
	if path == "" {
		path = "sop-state.json"
	}
	return storage.NewFileBackend(path), nil
}

func dispatch(ctx context.Context, m *sop.Manager, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "info":
		info, err := m.StorageInfo()
		if err != nil {
			return err
		}
		return writeJSON(out, info)

	case "stats":
		if _, err := m.Load(ctx); err != nil {
			return err
		}
		stats, err := m.StorageStats(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, stats)

	case "export":
		if _, err := m.Load(ctx); err != nil {
			return err
		}
		raw, err := m.Export(ctx)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			return os.WriteFile(args[0], raw, 0o644)
		}
		_, err = out.Write(append(raw, '\n'))
		return err

	case "import":
		if len(args) != 1 {
			return errors.New("import needs a file")
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if err := m.Import(ctx, raw); err != nil {
			return err
		}
		if err := m.Save(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %s\n", args[0])
		return nil

	case "backup":
		info, err := m.CreateBackup(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, info)

	case "backups":
		list, err := m.ListBackups(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, list)

	case "restore":
		if len(args) != 1 {
			return errors.New("restore needs a backup key")
		}
		if err := m.RestoreBackup(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "restored %s\n", args[0])
		return nil

	case "status":
		if len(args) != 1 {
			return errors.New("status needs a value")
		}
		return setStatus(ctx, m, model.Status(strings.ToLower(args[0])), out)

	case "clear":
		if err := m.ClearStorage(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "cleared")
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// setStatus edits the stored document in place, failing if another writer
// changes it between the read and the write.
func setStatus(ctx context.Context, m *sop.Manager, s model.Status, out io.Writer) error {
	ref := state.Ref{Key: m.Config().DataKey}
	snap, meta, err := state.Mutate[persist.Snapshot](ctx, m.Store(), ref, func(snap *persist.Snapshot) error {
		if snap.Document.ID == "" {
			return errs.NotFound(string(model.TypeDocument), ref.Key)
		}
		snap.Document.Status = s
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "document %s status=%s etag=%s\n", snap.Document.ID, snap.Document.Status, meta.ETag)
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

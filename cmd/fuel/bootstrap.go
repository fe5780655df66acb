package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/ashleyhindle/fuel-sub006/internal/config"
	"github.com/ashleyhindle/fuel-sub006/internal/logging"
	"github.com/ashleyhindle/fuel-sub006/internal/store"
	"github.com/ashleyhindle/fuel-sub006/internal/store/errs"
	"github.com/ashleyhindle/fuel-sub006/internal/store/postgres"
	"github.com/ashleyhindle/fuel-sub006/internal/store/sqlite"
)

// fuelDir returns <cwd>/.fuel, creating it if absent.
func fuelDir(cwd string) (string, error) {
	dir := filepath.Join(cwd, ".fuel")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create .fuel dir: %w", err)
	}
	return dir, nil
}

func projectCwd(c *cli.Context) (string, error) {
	cwd := c.String("cwd")
	if cwd == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return filepath.Abs(cwd)
}

func loadConfig(cwd string) (config.Config, error) {
	dir, err := fuelDir(cwd)
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(filepath.Join(dir, "config.yaml"))
}

// openStore opens the configured backend (sqlite by default) and returns
// the Store plus a closer the caller must invoke.
func openStore(ctx context.Context, cwd string, cfg config.Config) (*store.Store, func() error, error) {
	switch cfg.Store.Driver {
	case "postgres":
		dsn := cfg.Store.DSN
		if dsn == "" {
			return nil, nil, fmt.Errorf("store.dsn is required for the postgres driver")
		}
		pool, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store.New(postgres.New(pool)), func() error { pool.Close(); return nil }, nil
	default:
		dir, err := fuelDir(cwd)
		if err != nil {
			return nil, nil, err
		}
		db, err := sqlite.Open(ctx, filepath.Join(dir, "agent.db"))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store.New(sqlite.New(db)), db.Close, nil
	}
}

func newLogger(cfg config.Config) logging.Logger {
	var opts []logging.Option
	if cfg.Log.Format != "json" {
		opts = append(opts, logging.WithDevelopment())
	}
	return logging.New(opts...)
}

// emit prints result either as formatted text (via textFn) or, when --json
// was passed, as a single JSON document on stdout, per §6's "every command
// accepts --json to emit a machine-readable payload" contract.
func emit(c *cli.Context, result any, textFn func()) error {
	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	textFn()
	return nil
}

// exitCodeFor maps an error to the process exit code contract of §6:
// 0 success, 1 generic failure, 2 validation failure.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errs.ErrInvalidField) ||
		errors.Is(err, errs.ErrCycleDetected) ||
		errors.Is(err, errs.ErrInvalidTransition) ||
		errors.Is(err, errs.ErrAmbiguous) {
		return 2
	}
	return 1
}

func resolveID(ctx context.Context, s *store.Store, partial string) (string, error) {
	return s.Resolve(ctx, partial)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ashleyhindle/fuel-sub006/internal/config"
	"github.com/ashleyhindle/fuel-sub006/internal/driver"
	"github.com/ashleyhindle/fuel-sub006/internal/epic"
	"github.com/ashleyhindle/fuel-sub006/internal/health"
	"github.com/ashleyhindle/fuel-sub006/internal/ipc"
	"github.com/ashleyhindle/fuel-sub006/internal/lifecycle"
	"github.com/ashleyhindle/fuel-sub006/internal/mirror"
	"github.com/ashleyhindle/fuel-sub006/internal/review"
	"github.com/ashleyhindle/fuel-sub006/internal/scheduler"
	"github.com/ashleyhindle/fuel-sub006/internal/supervisor"
)

func consumeCommand() *cli.Command {
	return &cli.Command{
		Name:  "consume",
		Usage: "start the consume daemon in the foreground",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "interval", Usage: "tick interval in milliseconds, overrides config"},
		},
		Action: func(c *cli.Context) error {
			return runDaemon(c, false)
		},
	}
}

func consumeRunnerCommand() *cli.Command {
	return &cli.Command{
		Name:  "consume:runner",
		Usage: "start the consume daemon detached from the calling terminal",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "interval", Usage: "tick interval in milliseconds, overrides config"},
		},
		Action: func(c *cli.Context) error {
			return runDaemon(c, true)
		},
	}
}

// runDaemon implements the §4.J startup sequence shared by `consume` and
// `consume:runner`: acquire the single-instance lock, wire every
// collaborator, run the startup recovery sweep, bind the IPC listener,
// write the pid file, then block in the scheduler's tick loop until a
// shutdown signal arrives. detached only controls whether the process
// forks itself into the background before doing any of this; the
// teacher's own daemon entrypoints (cmd/worker, cmd/server) never fork,
// so `consume:runner`'s background form is implemented the conventional
// Unix way: re-exec self with a marker env var and detach stdio.
func runDaemon(c *cli.Context, detached bool) error {
	cwd, err := projectCwd(c)
	if err != nil {
		return err
	}
	dir, err := fuelDir(cwd)
	if err != nil {
		return err
	}
	pidPath := filepath.Join(dir, "consume-runner.pid")

	if detached && os.Getenv("FUEL_DAEMON_CHILD") != "1" {
		return forkDetached(cwd, pidPath)
	}

	if err := lifecycle.AcquireLock(pidPath); err != nil {
		return err
	}

	cfg, err := loadConfig(cwd)
	if err != nil {
		return err
	}
	if iv := c.Int("interval"); iv > 0 {
		cfg.IntervalMS = iv
	}
	logger := newLogger(cfg)

	ctx, cancel := lifecycle.NotifyShutdown()
	defer cancel()

	s, closeStore, err := openStore(ctx, cwd, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sup := supervisor.New(filepath.Join(dir, "processes"), logger)
	drivers := driver.NewRegistry()

	home, _ := os.UserHomeDir()
	var mirrors *mirror.Manager
	if cfg.EpicMirrorsEnabled {
		mirrors = mirror.NewManager(cwd, home)
	}
	epics := epic.New(s, mirrors, cfg.EpicMirrorsEnabled, logger)
	reviews := review.New(s, cfg.ReviewAgent, logger)

	runs, err := s.Repo().ListRunsSince(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("load run history: %w", err)
	}
	healthTracker := health.RebuildFromRuns(cfg.Health.FailureThreshold, cfg.CooldownBase(), runs)

	ipcServer := ipc.New(logger)
	ipcServer.SetSnapshotFunc(func() json.RawMessage {
		tasks, _ := s.ListTasks(ctx)
		epics, _ := s.ListEpics(ctx)
		b, err := json.Marshal(map[string]any{"tasks": tasks, "epics": epics})
		if err != nil {
			return json.RawMessage(`{}`)
		}
		return b
	})

	if recovered, err := lifecycle.RecoverySweep(ctx, s, sup, logger); err != nil {
		logger.Error("recovery sweep failed", "err", err)
	} else if recovered > 0 {
		logger.Warn("recovery sweep returned tasks to open", "count", recovered)
	}

	port, err := ipcServer.Listen(ctx, 0)
	if err != nil {
		return fmt.Errorf("bind ipc listener: %w", err)
	}
	if err := lifecycle.WritePIDFile(pidPath, port); err != nil {
		return err
	}
	defer func() { _ = lifecycle.RemovePIDFile(pidPath) }()

	logger.Info("consume daemon started", "pid", os.Getpid(), "port", port, "cwd", cwd)

	engine := scheduler.New(s, sup, drivers, epics, reviews, healthTracker, ipcServer, cfg, cwd, logger)

	configPath := filepath.Join(dir, "config.yaml")
	if err := config.Watch(ctx, configPath,
		func(updated config.Config) {
			logger.Info("config.yaml changed, reloading", "path", configPath)
			engine.SetConfig(updated)
		},
		func(werr error) {
			logger.Warn("config watch error", "err", werr)
		},
	); err != nil {
		logger.Warn("config hot-reload disabled", "err", err)
	}

	err = engine.Run(ctx)
	sup.Shutdown(cfg.ShutdownGrace())
	_ = ipcServer.Close()
	if err != nil && err != context.Canceled {
		logger.Info("consume daemon exiting", "reason", err)
	}
	return nil
}

// forkDetached re-execs the running binary with the same argv, marks the
// child so it skips the fork branch, and detaches it from the parent's
// stdio/session the way a background daemon is conventionally started
// without a double-fork/setsid syscall dance.
func forkDetached(cwd, pidPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer devNull.Close()

	proc, err := os.StartProcess(exe, os.Args, &os.ProcAttr{
		Dir:   cwd,
		Env:   append(os.Environ(), "FUEL_DAEMON_CHILD=1"),
		Files: []*os.File{devNull, devNull, devNull},
	})
	if err != nil {
		return fmt.Errorf("fork detached daemon: %w", err)
	}
	fmt.Printf("fuel: consume daemon started in background, pid %d\n", proc.Pid)
	return nil
}

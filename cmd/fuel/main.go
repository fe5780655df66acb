// Command fuel is the CLI entrypoint for the daemon and the thin task-store
// verbs described in §6. It wires internal/config, internal/store (sqlite
// or postgres), internal/scheduler and internal/ipc together the way the
// teacher's cmd/worker and cmd/server mains wire up their own services,
// but through an urfave/cli/v2 app (already a teacher go.mod dependency)
// instead of a single flat main().
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:                   "fuel",
		Usage:                  "local task-execution orchestrator for AI coding agents",
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "cwd", Usage: "project directory (default: current directory)"},
			&cli.BoolFlag{Name: "json", Usage: "emit machine-readable JSON on stdout"},
		},
		Commands: []*cli.Command{
			consumeCommand(),
			consumeRunnerCommand(),
			addCommand(),
			updateCommand(),
			doneCommand(),
			closeCommand(),
			reopenCommand(),
			startCommand(),
			pauseCommand(),
			unpauseCommand(),
			deferCommand(),
			retryCommand(),
			showCommand(),
			tasksCommand(),
			readyCommand(),
			blockedCommand(),
			backlogCommand(),
			boardCommand(),
			treeCommand(),
			statusCommand(),
			runsCommand(),
			reviewsCommand(),
			epicAddCommand(),
			epicsCommand(),
			epicApproveCommand(),
			epicRejectCommand(),
			epicReviewedCommand(),
			depAddCommand(),
			depRemoveCommand(),
			healthResetCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fuel: "+err.Error())
		os.Exit(exitCodeFor(err))
	}
}

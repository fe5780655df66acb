package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func depAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "dep:add",
		Usage:     "make one task depend on another",
		ArgsUsage: "<task-id> <blocker-id>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("dep:add requires a task id and a blocker id")
			}
			cwd, err := projectCwd(c)
			if err != nil {
				return err
			}
			s, closeStore, err := openStoreForCLI(c, cwd)
			if err != nil {
				return err
			}
			defer closeStore()

			taskID, err := resolveID(c.Context, s, c.Args().Get(0))
			if err != nil {
				return err
			}
			blockerID, err := resolveID(c.Context, s, c.Args().Get(1))
			if err != nil {
				return err
			}
			if err := s.AddDependency(c.Context, taskID, blockerID); err != nil {
				return err
			}
			fmt.Printf("%s now blocked by %s\n", taskID, blockerID)
			return nil
		},
	}
}

func depRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "dep:remove",
		Usage:     "remove a dependency between two tasks",
		ArgsUsage: "<task-id> <blocker-id>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("dep:remove requires a task id and a blocker id")
			}
			cwd, err := projectCwd(c)
			if err != nil {
				return err
			}
			s, closeStore, err := openStoreForCLI(c, cwd)
			if err != nil {
				return err
			}
			defer closeStore()

			taskID, err := resolveID(c.Context, s, c.Args().Get(0))
			if err != nil {
				return err
			}
			blockerID, err := resolveID(c.Context, s, c.Args().Get(1))
			if err != nil {
				return err
			}
			if err := s.RemoveDependency(c.Context, taskID, blockerID); err != nil {
				return err
			}
			fmt.Printf("%s no longer blocked by %s\n", taskID, blockerID)
			return nil
		},
	}
}

// healthResetCommand is IPC-routed: per-agent failure counters live only
// in the running daemon's in-memory Health Tracker (§4.I), so clearing
// them means asking that daemon to do it rather than touching the Store.
func healthResetCommand() *cli.Command {
	return &cli.Command{
		Name:      "health:reset",
		Usage:     "clear an agent's cooldown state on the running daemon",
		ArgsUsage: "<agent>",
		Action: func(c *cli.Context) error {
			agent := c.Args().First()
			if agent == "" {
				return fmt.Errorf("health:reset requires an agent name")
			}
			cwd, err := projectCwd(c)
			if err != nil {
				return err
			}
			if err := sendDaemonCommand(cwd, "HEALTH_RESET", map[string]string{"agent": agent}); err != nil {
				return err
			}
			fmt.Printf("%s health reset requested\n", agent)
			return nil
		},
	}
}

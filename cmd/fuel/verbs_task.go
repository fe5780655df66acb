package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ashleyhindle/fuel-sub006/internal/store"
	"github.com/ashleyhindle/fuel-sub006/internal/validate"
)

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "create a task",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Required: true},
			&cli.StringFlag{Name: "description"},
			&cli.StringFlag{Name: "type", Usage: "bug|fix|feature|task|epic|chore|docs|test|refactor|selfguided"},
			&cli.IntFlag{Name: "priority", Value: -1, Usage: "0..4, lower is more urgent"},
			&cli.StringFlag{Name: "size", Usage: "xs|s|m|l|xl"},
			&cli.StringFlag{Name: "complexity", Usage: "trivial|simple|moderate|complex"},
			&cli.StringSliceFlag{Name: "label"},
			&cli.StringSliceFlag{Name: "blocked-by", Usage: "task ids this task depends on"},
			&cli.StringFlag{Name: "epic", Usage: "epic id to attach this task to"},
			&cli.StringFlag{Name: "agent", Usage: "agent driver name, defaults to the daemon's default agent"},
		},
		Action: func(c *cli.Context) error {
			cwd, err := projectCwd(c)
			if err != nil {
				return err
			}
			var priority *int
			if p := c.Int("priority"); p >= 0 {
				priority = &p
			}
			in := store.CreateTaskInput{
				Title:       c.String("title"),
				Description: c.String("description"),
				Type:        store.TaskType(c.String("type")),
				Priority:    priority,
				Size:        store.TaskSize(c.String("size")),
				Complexity:  store.TaskComplexity(c.String("complexity")),
				Labels:      c.StringSlice("label"),
				Agent:       c.String("agent"),
			}
			if err := validate.Task(validate.TaskFields{
				Title: in.Title, Type: in.Type, Priority: in.Priority, Size: in.Size, Complexity: in.Complexity,
			}); err != nil {
				return err
			}

			s, closeStore, err := openStoreForCLI(c, cwd)
			if err != nil {
				return err
			}
			defer closeStore()
			ctx := c.Context

			if epicRef := c.String("epic"); epicRef != "" {
				full, err := resolveID(ctx, s, epicRef)
				if err != nil {
					return err
				}
				in.EpicID = full
			}
			for _, dep := range c.StringSlice("blocked-by") {
				full, err := resolveID(ctx, s, dep)
				if err != nil {
					return err
				}
				in.BlockedBy = append(in.BlockedBy, full)
			}

			task, err := s.CreateTask(ctx, in)
			if err != nil {
				return err
			}
			return emit(c, task, func() { fmt.Printf("%s  %s\n", task.ShortID, task.Title) })
		},
	}
}

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "change a task's fields",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title"},
			&cli.StringFlag{Name: "description"},
			&cli.IntFlag{Name: "priority", Value: -1},
			&cli.StringFlag{Name: "size"},
			&cli.StringFlag{Name: "complexity"},
			&cli.StringFlag{Name: "agent"},
			&cli.StringSliceFlag{Name: "add-label"},
			&cli.StringSliceFlag{Name: "remove-label"},
		},
		Action: func(c *cli.Context) error {
			return withResolvedTask(c, func(ctx *cliCtx, id string) error {
				in := store.UpdateTaskInput{AddLabels: ctx.c.StringSlice("add-label"), RemoveLabels: ctx.c.StringSlice("remove-label")}
				if v := ctx.c.String("title"); v != "" {
					in.Title = &v
				}
				if v := ctx.c.String("description"); v != "" {
					in.Description = &v
				}
				if v := ctx.c.Int("priority"); v >= 0 {
					in.Priority = &v
				}
				if v := store.TaskSize(ctx.c.String("size")); v != "" {
					in.Size = &v
				}
				if v := store.TaskComplexity(ctx.c.String("complexity")); v != "" {
					in.Complexity = &v
				}
				if v := ctx.c.String("agent"); v != "" {
					in.Agent = &v
				}
				task, err := ctx.store.UpdateTask(ctx.c.Context, id, in)
				if err != nil {
					return err
				}
				return emit(ctx.c, task, func() { fmt.Printf("%s updated\n", task.ShortID) })
			})
		},
	}
}

func doneCommand() *cli.Command {
	return &cli.Command{
		Name:      "done",
		Usage:     "mark a task done, e.g. after manually finishing it outside the daemon",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "reason"},
			&cli.StringFlag{Name: "commit"},
		},
		Action: func(c *cli.Context) error {
			return withResolvedTask(c, func(ctx *cliCtx, id string) error {
				task, err := ctx.store.Done(ctx.c.Context, id, ctx.c.String("reason"), ctx.c.String("commit"))
				if err != nil {
					return err
				}
				return emit(ctx.c, task, func() { fmt.Printf("%s done\n", task.ShortID) })
			})
		},
	}
}

// closeCommand is done's administrative twin: it also drives a task to
// StatusDone, but records a standing "closed without shipping" reason
// instead of the reason an agent's own run would report.
func closeCommand() *cli.Command {
	return &cli.Command{
		Name:      "close",
		Usage:     "close a task without a commit, e.g. it's no longer needed",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "reason", Value: "closed"},
		},
		Action: func(c *cli.Context) error {
			return withResolvedTask(c, func(ctx *cliCtx, id string) error {
				task, err := ctx.store.Done(ctx.c.Context, id, ctx.c.String("reason"), "")
				if err != nil {
					return err
				}
				return emit(ctx.c, task, func() { fmt.Printf("%s closed\n", task.ShortID) })
			})
		},
	}
}

func reopenCommand() *cli.Command {
	return &cli.Command{
		Name:      "reopen",
		Usage:     "return a paused or someday task to open",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			return withResolvedTask(c, func(ctx *cliCtx, id string) error {
				open := store.StatusOpen
				task, err := ctx.store.UpdateTask(ctx.c.Context, id, store.UpdateTaskInput{Status: &open})
				if err != nil {
					return err
				}
				return emit(ctx.c, task, func() { fmt.Printf("%s reopened\n", task.ShortID) })
			})
		},
	}
}

// startCommand bumps a task to the front of the ready queue by setting its
// priority to 0; the scheduler's next admit step picks it up, the same
// way every other ready task is dispatched.
func startCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "bump a task's priority so the daemon dispatches it next",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			return withResolvedTask(c, func(ctx *cliCtx, id string) error {
				zero := 0
				task, err := ctx.store.UpdateTask(ctx.c.Context, id, store.UpdateTaskInput{Priority: &zero})
				if err != nil {
					return err
				}
				return emit(ctx.c, task, func() { fmt.Printf("%s bumped to priority 0\n", task.ShortID) })
			})
		},
	}
}

// pauseCommand is an IPC-routed verb: only the daemon's Scheduler owns a
// task's live Run, so pausing an in-progress task means asking the
// running daemon to kill the child and flip status, per §4.H's command
// contract (PAUSE_TASK).
func pauseCommand() *cli.Command {
	return &cli.Command{
		Name:      "pause",
		Usage:     "pause a task, stopping its active run if one exists",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			cwd, err := projectCwd(c)
			if err != nil {
				return err
			}
			s, closeStore, err := openStoreForCLI(c, cwd)
			if err != nil {
				return err
			}
			defer closeStore()
			id, err := resolveID(c.Context, s, c.Args().First())
			if err != nil {
				return err
			}
			if err := sendDaemonCommand(cwd, "PAUSE_TASK", map[string]string{"task_id": id}); err != nil {
				return err
			}
			fmt.Printf("%s pause requested\n", id)
			return nil
		},
	}
}

func unpauseCommand() *cli.Command {
	return &cli.Command{
		Name:      "unpause",
		Usage:     "return a paused task to open via the running daemon",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			cwd, err := projectCwd(c)
			if err != nil {
				return err
			}
			s, closeStore, err := openStoreForCLI(c, cwd)
			if err != nil {
				return err
			}
			defer closeStore()
			id, err := resolveID(c.Context, s, c.Args().First())
			if err != nil {
				return err
			}
			if err := sendDaemonCommand(cwd, "UNPAUSE_TASK", map[string]string{"task_id": id}); err != nil {
				return err
			}
			fmt.Printf("%s unpause requested\n", id)
			return nil
		},
	}
}

func deferCommand() *cli.Command {
	return &cli.Command{
		Name:      "defer",
		Usage:     "move a task to someday, out of the ready queue",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			return withResolvedTask(c, func(ctx *cliCtx, id string) error {
				someday := store.StatusSomeday
				task, err := ctx.store.UpdateTask(ctx.c.Context, id, store.UpdateTaskInput{Status: &someday})
				if err != nil {
					return err
				}
				return emit(ctx.c, task, func() { fmt.Printf("%s deferred\n", task.ShortID) })
			})
		},
	}
}

func retryCommand() *cli.Command {
	return &cli.Command{
		Name:      "retry",
		Usage:     "return a task to open for another attempt",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			return withResolvedTask(c, func(ctx *cliCtx, id string) error {
				open := store.StatusOpen
				task, err := ctx.store.UpdateTask(ctx.c.Context, id, store.UpdateTaskInput{Status: &open})
				if err != nil {
					return err
				}
				return emit(ctx.c, task, func() { fmt.Printf("%s queued for retry\n", task.ShortID) })
			})
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "print a single task",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			return withResolvedTask(c, func(ctx *cliCtx, id string) error {
				task, err := ctx.store.ReadTask(ctx.c.Context, id)
				if err != nil {
					return err
				}
				return emit(ctx.c, task, func() { printTask(task) })
			})
		},
	}
}

func printTask(t *store.Task) {
	fmt.Printf("%s  [%s] %s\n", t.ShortID, t.Status, t.Title)
	if t.Description != "" {
		fmt.Printf("  %s\n", t.Description)
	}
	fmt.Printf("  type=%s size=%s complexity=%s priority=%d agent=%s\n", t.Type, t.Size, t.Complexity, t.Priority, t.Agent)
	if t.EpicID != "" {
		fmt.Printf("  epic=%s\n", t.EpicID)
	}
	if len(t.BlockedBy) > 0 {
		ids := make([]string, 0, len(t.BlockedBy))
		for id := range t.BlockedBy {
			ids = append(ids, id)
		}
		fmt.Printf("  blocked_by=%s\n", strings.Join(ids, ","))
	}
}

// cliCtx bundles the per-invocation collaborators every id-scoped verb
// needs, so each Action only has to resolve the partial id once.
type cliCtx struct {
	c     *cli.Context
	store *store.Store
}

// withResolvedTask opens the store, resolves the command's first
// positional argument to a full task id, and hands both to fn. The store
// is closed after fn returns, whatever the outcome.
func withResolvedTask(c *cli.Context, fn func(ctx *cliCtx, id string) error) error {
	cwd, err := projectCwd(c)
	if err != nil {
		return err
	}
	s, closeStore, err := openStoreForCLI(c, cwd)
	if err != nil {
		return err
	}
	defer closeStore()

	id, err := resolveID(c.Context, s, c.Args().First())
	if err != nil {
		return err
	}
	return fn(&cliCtx{c: c, store: s}, id)
}

// openStoreForCLI loads the project config and opens its store, the
// combination every verb other than consume/consume:runner needs.
func openStoreForCLI(c *cli.Context, cwd string) (*store.Store, func() error, error) {
	cfg, err := loadConfig(cwd)
	if err != nil {
		return nil, nil, err
	}
	return openStore(c.Context, cwd, cfg)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ashleyhindle/fuel-sub006/internal/lifecycle"
	"github.com/ashleyhindle/fuel-sub006/internal/queue"
	"github.com/ashleyhindle/fuel-sub006/internal/store"
)

func tasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "list tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Usage: "filter by status"},
			&cli.StringFlag{Name: "epic", Usage: "filter by epic id"},
		},
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

			tasks, err := s.ListTasks(c.Context)
			if err != nil {
				return err
			}
			var epicFilter string
			if ref := c.String("epic"); ref != "" {
				epicFilter, err = resolveID(c.Context, s, ref)
				if err != nil {
					return err
				}
			}
			filtered := tasks[:0]
			for _, t := range tasks {
				if st := c.String("status"); st != "" && string(t.Status) != st {
					continue
				}
				if epicFilter != "" && t.EpicID != epicFilter {
					continue
				}
				filtered = append(filtered, t)
			}
			sortTasksByPriority(filtered)
			return emit(c, filtered, func() {
				for _, t := range filtered {
					fmt.Printf("%s  [%s] p%d  %s\n", t.ShortID, t.Status, t.Priority, t.Title)
				}
			})
		},
	}
}

func sortTasksByPriority(tasks []*store.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Priority < tasks[j].Priority })
}

func readyCommand() *cli.Command {
	return &cli.Command{
		Name:  "ready",
		Usage: "list tasks the daemon would dispatch right now",
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

			snap, err := buildSnapshot(c, s)
			if err != nil {
				return err
			}
			ready := queue.ListReady(snap)
			return emit(c, ready, func() {
				for _, t := range ready {
					fmt.Printf("%s  p%d  %s\n", t.ShortID, t.Priority, t.Title)
				}
			})
		},
	}
}

func buildSnapshot(c *cli.Context, s *store.Store) (queue.Snapshot, error) {
	tasks, err := s.ListTasks(c.Context)
	if err != nil {
		return queue.Snapshot{}, err
	}
	epics, err := s.ListEpics(c.Context)
	if err != nil {
		return queue.Snapshot{}, err
	}
	byID := make(map[string]*store.Epic, len(epics))
	for _, e := range epics {
		byID[e.ShortID] = e
	}
	return queue.Snapshot{Tasks: tasks, Epics: byID}, nil
}

func blockedCommand() *cli.Command {
	return &cli.Command{
		Name:  "blocked",
		Usage: "list open tasks with unmet blockers",
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

			tasks, err := s.ListTasks(c.Context)
			if err != nil {
				return err
			}
			byID := make(map[string]*store.Task, len(tasks))
			for _, t := range tasks {
				byID[t.ShortID] = t
			}
			var blocked []*store.Task
			for _, t := range tasks {
				if t.Status != store.StatusOpen || len(t.BlockedBy) == 0 {
					continue
				}
				for blockerID := range t.BlockedBy {
					if blocker, ok := byID[blockerID]; !ok || blocker.Status != store.StatusDone {
						blocked = append(blocked, t)
						break
					}
				}
			}
			return emit(c, blocked, func() {
				for _, t := range blocked {
					fmt.Printf("%s  %s\n", t.ShortID, t.Title)
				}
			})
		},
	}
}

func backlogCommand() *cli.Command {
	return &cli.Command{
		Name:  "backlog",
		Usage: "list or add backlog ideas that are never scheduled for execution",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "add", Usage: "title of a new backlog item"},
			&cli.StringFlag{Name: "description"},
		},
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

			if title := c.String("add"); title != "" {
				item := &store.BacklogItem{Title: title, Description: c.String("description"), CreatedAt: time.Now()}
				if err := s.Repo().CreateBacklogItem(c.Context, item); err != nil {
					return err
				}
				return emit(c, item, func() { fmt.Printf("added: %s\n", item.Title) })
			}

			items, err := s.Repo().ListBacklog(c.Context)
			if err != nil {
				return err
			}
			return emit(c, items, func() {
				for _, it := range items {
					fmt.Printf("- %s\n", it.Title)
				}
			})
		},
	}
}

func boardCommand() *cli.Command {
	return &cli.Command{
		Name:  "board",
		Usage: "print tasks grouped by status",
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

			tasks, err := s.ListTasks(c.Context)
			if err != nil {
				return err
			}
			columns := []store.TaskStatus{
				store.StatusOpen, store.StatusInProgress, store.StatusReview,
				store.StatusPaused, store.StatusSomeday, store.StatusDone,
			}
			grouped := make(map[store.TaskStatus][]*store.Task, len(columns))
			for _, t := range tasks {
				grouped[t.Status] = append(grouped[t.Status], t)
			}
			return emit(c, grouped, func() {
				for _, col := range columns {
					fmt.Printf("== %s (%d) ==\n", col, len(grouped[col]))
					for _, t := range grouped[col] {
						fmt.Printf("  %s  %s\n", t.ShortID, t.Title)
					}
				}
			})
		},
	}
}

func treeCommand() *cli.Command {
	return &cli.Command{
		Name:  "tree",
		Usage: "print epics with their tasks nested underneath",
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

			epics, err := s.ListEpics(c.Context)
			if err != nil {
				return err
			}
			tasks, err := s.ListTasks(c.Context)
			if err != nil {
				return err
			}
			byEpic := make(map[string][]*store.Task)
			var standalone []*store.Task
			for _, t := range tasks {
				if t.EpicID == "" {
					standalone = append(standalone, t)
					continue
				}
				byEpic[t.EpicID] = append(byEpic[t.EpicID], t)
			}
			return emit(c, map[string]any{"epics": epics, "tasks_by_epic": byEpic, "standalone": standalone}, func() {
				for _, ep := range epics {
					fmt.Printf("%s  [%s] %s\n", ep.ShortID, ep.Status, ep.Title)
					for _, t := range byEpic[ep.ShortID] {
						fmt.Printf("  %s  [%s] %s\n", t.ShortID, t.Status, t.Title)
					}
				}
				if len(standalone) > 0 {
					fmt.Println("(no epic)")
					for _, t := range standalone {
						fmt.Printf("  %s  [%s] %s\n", t.ShortID, t.Status, t.Title)
					}
				}
			})
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "report whether the consume daemon is running for this project",
		Action: func(c *cli.Context) error {
			cwd, err := projectCwd(c)
			if err != nil {
				return err
			}
			dir, err := fuelDir(cwd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(dir + "/consume-runner.pid")
			if err != nil {
				return emit(c, map[string]any{"running": false}, func() { fmt.Println("not running") })
			}
			var pf lifecycle.PIDFile
			if err := json.Unmarshal(data, &pf); err != nil {
				return emit(c, map[string]any{"running": false}, func() { fmt.Println("not running (corrupt pid file)") })
			}
			return emit(c, map[string]any{"running": true, "pid": pf.PID, "port": pf.Port, "started_at": pf.StartedAt},
				func() { fmt.Printf("running, pid %d, port %d, started %s\n", pf.PID, pf.Port, pf.StartedAt) })
		},
	}
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:      "runs",
		Usage:     "list runs for a task",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			return withResolvedTask(c, func(ctx *cliCtx, id string) error {
				runs, err := ctx.store.Repo().ListRunsByTask(ctx.c.Context, id)
				if err != nil {
					return err
				}
				return emit(ctx.c, runs, func() {
					for _, r := range runs {
						status := "running"
						if r.ExitCode != nil {
							status = fmt.Sprintf("exit %d", *r.ExitCode)
						}
						fmt.Printf("%s  run #%d  agent=%s  %s\n", r.ShortID, r.RunNumber, r.Agent, status)
					}
				})
			})
		},
	}
}

func reviewsCommand() *cli.Command {
	return &cli.Command{
		Name:      "reviews",
		Usage:     "print the latest review for a task",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			return withResolvedTask(c, func(ctx *cliCtx, id string) error {
				rv, err := ctx.store.Repo().LatestReview(ctx.c.Context, id)
				if err != nil {
					return err
				}
				return emit(ctx.c, rv, func() {
					fmt.Printf("%s  %s  %s\n", rv.ShortID, rv.Status, rv.Agent)
					for _, issue := range rv.Issues {
						fmt.Printf("  - %s\n", issue)
					}
				})
			})
		},
	}
}

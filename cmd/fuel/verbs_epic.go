package main

import (
	"fmt"
	"os/user"

	"github.com/urfave/cli/v2"

	"github.com/ashleyhindle/fuel-sub006/internal/epic"
	"github.com/ashleyhindle/fuel-sub006/internal/store"
	"github.com/ashleyhindle/fuel-sub006/internal/validate"
)

func epicAddCommand() *cli.Command {
	return &cli.Command{
		Name:  "epic:add",
		Usage: "create an epic",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Required: true},
			&cli.StringFlag{Name: "description"},
		},
		Action: func(c *cli.Context) error {
			if err := validate.Epic(validate.EpicFields{Title: c.String("title")}); err != nil {
				return err
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

			ep, err := s.CreateEpic(c.Context, c.String("title"), c.String("description"))
			if err != nil {
				return err
			}
			return emit(c, ep, func() { fmt.Printf("%s  %s\n", ep.ShortID, ep.Title) })
		},
	}
}

func epicsCommand() *cli.Command {
	return &cli.Command{
		Name:  "epics",
		Usage: "list epics",
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
			return emit(c, epics, func() {
				for _, ep := range epics {
					fmt.Printf("%s  [%s] %s\n", ep.ShortID, ep.Status, ep.Title)
				}
			})
		},
	}
}

// withEpicController resolves the epic id from the command's first
// argument and hands it to fn along with a Controller wired the same way
// the daemon wires one, minus mirrors (approve/reject/reviewed never
// touch the git mirror directly).
func withEpicController(c *cli.Context, fn func(ctx *cli.Context, ctrl *epic.Controller, s *store.Store, epicID string) error) error {
	cwd, err := projectCwd(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cwd)
	if err != nil {
		return err
	}
	s, closeStore, err := openStore(c.Context, cwd, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	id, err := resolveID(c.Context, s, c.Args().First())
	if err != nil {
		return err
	}
	ctrl := epic.New(s, nil, false, newLogger(cfg))
	return fn(c, ctrl, s, id)
}

func epicApproveCommand() *cli.Command {
	return &cli.Command{
		Name:      "epic:approve",
		Usage:     "approve a completed epic's review, queuing its merge if it has a mirror",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "by", Usage: "approver name, defaults to the OS user"},
		},
		Action: func(c *cli.Context) error {
			return withEpicController(c, func(c *cli.Context, ctrl *epic.Controller, s *store.Store, epicID string) error {
				approver := c.String("by")
				if approver == "" {
					if u, err := user.Current(); err == nil {
						approver = u.Username
					}
				}
				if err := ctrl.Approve(c.Context, epicID, approver); err != nil {
					return err
				}
				return emit(c, map[string]string{"epic_id": epicID, "status": "reviewed"}, func() {
					fmt.Printf("%s approved\n", epicID)
				})
			})
		},
	}
}

func epicRejectCommand() *cli.Command {
	return &cli.Command{
		Name:      "epic:reject",
		Usage:     "reject an epic, returning its tasks to open",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			return withEpicController(c, func(c *cli.Context, ctrl *epic.Controller, s *store.Store, epicID string) error {
				if err := ctrl.Reject(c.Context, epicID); err != nil {
					return err
				}
				return emit(c, map[string]string{"epic_id": epicID, "status": "rejected"}, func() {
					fmt.Printf("%s rejected\n", epicID)
				})
			})
		},
	}
}

func epicReviewedCommand() *cli.Command {
	return &cli.Command{
		Name:      "epic:reviewed",
		Usage:     "queue the merge of an epic's ready mirror",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			return withEpicController(c, func(c *cli.Context, ctrl *epic.Controller, s *store.Store, epicID string) error {
				if err := ctrl.OnReviewed(c.Context, epicID); err != nil {
					return err
				}
				return emit(c, map[string]string{"epic_id": epicID, "status": "reviewed"}, func() {
					fmt.Printf("%s reviewed\n", epicID)
				})
			})
		},
	}
}

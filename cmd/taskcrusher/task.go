// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/taskcrusher/internal/account"
	"github.com/holomush/taskcrusher/internal/task"
)

// taskView is the printed form of a task.
type taskView struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewTask(t *task.Task) taskView {
	return taskView{
		ID:          t.ID.String(),
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
	}
}

// newTaskCmd creates the task subcommand. Tasks exist here so account
// deletion has something to cascade to.
func (c *cli) newTaskCmd() *cobra.Command {
	session := &sessionOptions{}
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Add and list the authenticated user's tasks",
	}
	cmd.PersistentFlags().StringVar(&session.token, "token", "", "session token (default: $"+TokenEnv+")")

	add := &cobra.Command{
		Use:   "add DESCRIPTION...",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, session, func(ctx context.Context, app *App, user account.PublicUser, _ string) error {
				t, err := task.NewTask(user.ID, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if err := app.Tasks.Create(ctx, t); err != nil {
					return err
				}
				return printJSON(cmd, viewTask(t))
			})
		},
	}

	var jsonOutput bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, session, func(ctx context.Context, app *App, user account.PublicUser, _ string) error {
				tasks, err := app.Tasks.ListByOwner(ctx, user.ID)
				if err != nil {
					return err
				}
				views := make([]taskView, 0, len(tasks))
				for _, t := range tasks {
					views = append(views, viewTask(t))
				}
				if jsonOutput {
					return printJSON(cmd, views)
				}
				cmd.Print(formatTaskTable(views))
				return nil
			})
		},
	}
	list.Flags().BoolVar(&jsonOutput, "json", false, "output tasks as JSON")

	cmd.AddCommand(add, list)
	return cmd
}

// formatTaskTable formats tasks as a human-readable table.
func formatTaskTable(tasks []taskView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ID\tDONE\tCREATED\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t-----------")
	for _, t := range tasks {
		done := "no"
		if t.Completed {
			done = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			t.ID, done, t.CreatedAt.UTC().Format(time.RFC3339), t.Description)
	}

	_ = w.Flush()
	return buf.String()
}

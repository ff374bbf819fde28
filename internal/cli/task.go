package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"todo-reminders/internal/model"
	"todo-reminders/internal/service"
)

func newTaskCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(
		newTaskAddCmd(opts),
		newTaskListCmd(opts),
		newTaskEditCmd(opts),
		newTaskToggleCmd(opts, "done", "Mark a task as done", true),
		newTaskToggleCmd(opts, "undo", "Mark a task as not done", false),
		newTaskRemoveCmd(opts),
		newTaskDueCmd(opts),
	)
	return cmd
}

func newTaskAddCmd(opts *rootOptions) *cobra.Command {
	var (
		categoryID uint
		due        string
	)
	cmd := &cobra.Command{
		Use:   "add <name...>",
		Short: "Add a task, scheduling a reminder when it has a due date",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				dueDate, err := service.ParseDue(due, a.now())
				if err != nil {
					return err
				}
				var category *uint
				if categoryID != 0 {
					category = &categoryID
				}
				task, err := a.coord.AddTask(strings.Join(args, " "), category, dueDate).Wait(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Added task #%d %s\n", task.ID, task.Name)
				if task.DueDate != nil {
					fmt.Fprintf(out, "Reminder at %s\n", service.FormatDue(*task.DueDate, a.now().Location()))
				}
				return nil
			})
		},
	}
	cmd.Flags().UintVar(&categoryID, "category", 0, "Category id")
	cmd.Flags().StringVar(&due, "due", "", `Due date: "2006-01-02 15:04", "2006-01-02" or "+2h"`)
	return cmd
}

func newTaskListCmd(opts *rootOptions) *cobra.Command {
	var (
		categoryID uint
		pending    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var (
					tasks []model.Task
					err   error
				)
				switch {
				case categoryID != 0:
					tasks, err = a.tasks.ListByCategory(ctx, categoryID)
				case pending:
					tasks, err = a.tasks.ListPending(ctx)
				default:
					tasks, err = a.tasks.ListAll(ctx)
				}
				if err != nil {
					return err
				}
				if categoryID != 0 && pending {
					tasks = filterPending(tasks)
				}
				categories, err := a.categories.List(ctx)
				if err != nil {
					return err
				}
				return printTasks(cmd.OutOrStdout(), tasks, categories, a.now().Location())
			})
		},
	}
	cmd.Flags().UintVar(&categoryID, "category", 0, "Only tasks in this category")
	cmd.Flags().BoolVar(&pending, "pending", false, "Only tasks that are not done")
	return cmd
}

func newTaskEditCmd(opts *rootOptions) *cobra.Command {
	var (
		name       string
		categoryID uint
		due        string
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a task; a changed due date schedules a new reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				task, err := findTask(ctx, a, id)
				if err != nil {
					return err
				}
				flags := cmd.Flags()
				if flags.Changed("name") {
					task.Name = name
				}
				if flags.Changed("category") {
					task.CategoryID = nil
					if categoryID != 0 {
						task.CategoryID = &categoryID
					}
				}
				if flags.Changed("due") {
					if task.DueDate, err = service.ParseDue(due, a.now()); err != nil {
						return err
					}
				}
				updated, err := a.coord.EditTask(task).Wait(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated task #%d %s\n", updated.ID, updated.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().UintVar(&categoryID, "category", 0, "New category id, 0 to clear")
	cmd.Flags().StringVar(&due, "due", "", `New due date, "none" to clear`)
	return cmd
}

func newTaskToggleCmd(opts *rootOptions, use, short string, done bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				task, err := findTask(ctx, a, id)
				if err != nil {
					return err
				}
				if _, err := a.coord.ToggleTask(task, done).Wait(ctx); err != nil {
					return err
				}
				state := "open"
				if done {
					state = "done"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task #%d is %s\n", task.ID, state)
				return nil
			})
		},
	}
}

func newTaskRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				task, err := findTask(ctx, a, id)
				if err != nil {
					return err
				}
				if _, err := a.coord.RemoveTask(task).Wait(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted task #%d\n", task.ID)
				return nil
			})
		},
	}
}

func newTaskDueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "Print the digest of due and pending tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				text, err := a.digest.Summary(ctx, a.now())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
}

func findTask(ctx context.Context, a *app, id uint) (model.Task, error) {
	task, err := a.tasks.FindByID(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if task == nil {
		return model.Task{}, fmt.Errorf("task %d not found", id)
	}
	return *task, nil
}

func filterPending(tasks []model.Task) []model.Task {
	out := tasks[:0]
	for _, task := range tasks {
		if !task.IsDone {
			out = append(out, task)
		}
	}
	return out
}

func printTasks(w io.Writer, tasks []model.Task, categories []model.Category, loc *time.Location) error {
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(w, "No tasks.")
		return err
	}
	names := make(map[uint]string, len(categories))
	for _, cat := range categories {
		names[cat.ID] = cat.Name
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tNAME\tCATEGORY\tDUE")
	for _, task := range tasks {
		done := " "
		if task.IsDone {
			done = "x"
		}
		category := "-"
		if task.CategoryID != nil {
			category = names[*task.CategoryID]
		}
		due := "-"
		if task.DueDate != nil {
			due = service.FormatDue(*task.DueDate, loc)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", task.ID, done, task.Name, category, due)
	}
	return tw.Flush()
}

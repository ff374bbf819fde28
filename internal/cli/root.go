// Package cli is the command-line front-end: one-shot task and category
// commands plus the long-running serve command.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"todo-reminders/internal/config"
	"todo-reminders/internal/logging"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
	now        func() time.Time
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	return newRootCommand(stdout, stderr, time.Now)
}

func newRootCommand(stdout, stderr io.Writer, now func() time.Time) *cobra.Command {
	opts := &rootOptions{now: now}

	cmd := &cobra.Command{
		Use:           "todo",
		Short:         "To-do list with categories and due-date reminders",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFileName, "Path to the TOML config file")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(
		newServeCmd(opts),
		newTaskCmd(opts),
		newCategoryCmd(opts),
		newRemindersCmd(opts),
	)
	return cmd
}

// withApp loads config, opens the app for the duration of fn and closes it.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if opts.dbPath != "" {
		cfg.DatabaseURL = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	lg := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	a, err := openApp(cfg, lg, opts.now)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}

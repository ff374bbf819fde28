package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"todo-reminders/internal/bot"
	"todo-reminders/internal/model"
	"todo-reminders/internal/notify"
	"todo-reminders/internal/reminder"
	"todo-reminders/internal/work"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reminder dispatcher, daily digest and Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	notifiers := notify.Multi{notify.NewLogNotifier(a.log)}

	var telegramBot *bot.Bot
	if a.cfg.TelegramToken != "" {
		api, err := tgbotapi.NewBotAPI(a.cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		a.log.Info("authorized on telegram", "account", api.Self.UserName)
		notifiers = append(notifiers, notify.NewTelegramNotifier(api, a.cfg.TelegramChatID, a.log))
		telegramBot = bot.New(api, a.cfg.TelegramChatID, a.coord, a.tasks, a.categories, a.digest, bot.Options{
			Clock:  a.now,
			Logger: a.log,
		})
	}

	a.work.Register(reminder.WorkerName, reminder.NewWorker(notifiers, a.log))
	if err := a.work.Start(); err != nil {
		return err
	}
	defer a.work.Stop()

	if a.cfg.DigestAt != "" {
		if _, err := a.sched.ScheduleDaily(a.cfg.DigestAt, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.digest.Send(jobCtx, notifiers, a.now()); err != nil {
				a.log.Error("daily digest", "err", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule digest: %w", err)
		}
	}

	a.sched.Start()
	defer a.sched.Stop()

	go func() {
		for err := range a.coord.Errors() {
			a.log.Warn("coordinator", "err", err)
		}
	}()

	a.log.Info("todo service started", "db", a.cfg.DatabaseURL, "poll", a.cfg.PollInterval.Duration)
	if telegramBot != nil {
		if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("bot stopped: %w", err)
		}
	} else {
		<-ctx.Done()
	}
	a.log.Info("shutdown complete")
	return nil
}

func newRemindersCmd(opts *rootOptions) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "List scheduled reminder work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				items, err := a.workItems.ListByState(ctx, model.WorkState(state))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintf(out, "No %s reminders.\n", state)
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TASK\tTITLE\tRUN AT\tATTEMPTS\tLAST ERROR")
				for _, item := range items {
					if item.Worker != reminder.WorkerName {
						continue
					}
					input, err := work.Input(item)
					if err != nil {
						a.log.Warn("skip work item", "id", item.ID, "err", err)
						continue
					}
					title, _ := input.String(reminder.KeyTitle)
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
						input.Int64(reminder.KeyID, -1),
						title,
						item.RunTime().In(a.now().Location()).Format("2006-01-02 15:04:05"),
						item.Attempts,
						item.LastError,
					)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", string(model.WorkEnqueued), "Work state: enqueued, running, succeeded, failed")
	return cmd
}

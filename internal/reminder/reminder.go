// Package reminder schedules and delivers due-date notifications for tasks.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"todo-reminders/internal/logging"
	"todo-reminders/internal/model"
	"todo-reminders/internal/notify"
	"todo-reminders/internal/work"
)

const (
	WorkerName = "reminder"

	KeyTitle = "task_title"
	KeyID    = "task_id"
)

// Channel is the notification channel every reminder is raised on.
var Channel = notify.Channel{
	ID:          "task_reminder_channel",
	Name:        "Task Reminders",
	Description: "Notifications for task reminders",
	Importance:  notify.ImportanceHigh,
}

// Enqueuer submits deferred work. *work.Manager implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, req work.Request) (string, error)
}

// Scheduler turns tasks into deferred reminder work.
type Scheduler struct {
	queue Enqueuer
	log   *log.Logger
}

func NewScheduler(queue Enqueuer, lg *log.Logger) *Scheduler {
	if lg == nil {
		lg = logging.Discard()
	}
	return &Scheduler{queue: queue, log: lg.With("component", "reminder")}
}

// Schedule submits a one-shot reminder for task after delay. The delay is
// passed through as is; a non-positive delay fires as soon as possible.
func (s *Scheduler) Schedule(ctx context.Context, task model.Task, delay time.Duration) (string, error) {
	id, err := s.queue.Enqueue(ctx, work.Request{
		Worker:       WorkerName,
		InitialDelay: delay,
		Input: work.Data{
			KeyTitle: task.Name,
			KeyID:    int64(task.ID),
		},
	})
	if err != nil {
		return "", fmt.Errorf("schedule reminder for task %d: %w", task.ID, err)
	}
	s.log.Info("reminder scheduled", "task", task.ID, "delay", delay, "work", id)
	return id, nil
}

// DelayUntil is the time from now until dueDate (epoch milliseconds).
func DelayUntil(dueDate int64, now time.Time) time.Duration {
	return time.Duration(dueDate-now.UnixMilli()) * time.Millisecond
}

// Worker raises the notification when a reminder comes due.
type Worker struct {
	notifier notify.Notifier
	log      *log.Logger
}

func NewWorker(notifier notify.Notifier, lg *log.Logger) *Worker {
	if lg == nil {
		lg = logging.Discard()
	}
	return &Worker{notifier: notifier, log: lg.With("component", "reminder-worker")}
}

func (w *Worker) DoWork(ctx context.Context, input work.Data) work.Result {
	title, ok := input.String(KeyTitle)
	if !ok {
		w.log.Warn("reminder without title")
		return work.Failure
	}
	taskID := input.Int64(KeyID, -1)

	if err := w.notifier.EnsureChannel(ctx, Channel); err != nil {
		w.log.Error("ensure channel", "err", err)
		return work.Retry
	}

	note := notify.Notification{
		// Notification ids are 32-bit; larger task ids wrap.
		ID:        int32(taskID),
		ChannelID: Channel.ID,
		Title:     "Reminder: " + title,
		Text:      "Your task is due!",
		Priority:  notify.ImportanceHigh,
	}
	if err := w.notifier.Notify(ctx, note); err != nil {
		w.log.Error("notify", "task", taskID, "err", err)
		return work.Retry
	}
	return work.Success
}

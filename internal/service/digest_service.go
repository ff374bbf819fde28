package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"todo-reminders/internal/model"
	"todo-reminders/internal/notify"
	"todo-reminders/internal/repository"
)

// DigestNotificationID is the notification id of the daily digest. Task
// reminders use the task id, which is never negative before truncation.
const DigestNotificationID int32 = -1

// DigestChannel carries the daily digest.
var DigestChannel = notify.Channel{
	ID:          "task_digest_channel",
	Name:        "Daily Digest",
	Description: "Summary of due and pending tasks",
	Importance:  notify.ImportanceDefault,
}

// DigestService builds human-readable summaries of due and pending tasks.
type DigestService struct {
	taskRepo     *repository.TaskRepository
	categoryRepo *repository.CategoryRepository
}

func NewDigestService(taskRepo *repository.TaskRepository, categoryRepo *repository.CategoryRepository) *DigestService {
	return &DigestService{taskRepo: taskRepo, categoryRepo: categoryRepo}
}

// Summary lists unfinished tasks that are due at now first, then the remaining
// pending tasks ordered by due date.
func (s *DigestService) Summary(ctx context.Context, now time.Time) (string, error) {
	due, err := s.taskRepo.ListDue(ctx, now.UnixMilli())
	if err != nil {
		return "", err
	}
	pending, err := s.taskRepo.ListPending(ctx)
	if err != nil {
		return "", err
	}

	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return "", err
	}
	catNames := make(map[uint]string)
	for _, cat := range categories {
		catNames[cat.ID] = cat.Name
	}

	dueIDs := make(map[uint]struct{}, len(due))
	for _, task := range due {
		dueIDs[task.ID] = struct{}{}
	}
	var upcoming []model.Task
	for _, task := range pending {
		if _, ok := dueIDs[task.ID]; !ok {
			upcoming = append(upcoming, task)
		}
	}

	sortByDue(due)
	sortByDue(upcoming)

	var builder strings.Builder
	builder.WriteString("📋 Daily digest\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02")))

	builder.WriteString("⚠️ Due now\n")
	if len(due) == 0 {
		builder.WriteString("— nothing overdue\n")
	} else {
		for _, task := range due {
			builder.WriteString(formatTask(task, catNames, now))
		}
	}

	builder.WriteString("\n🔥 Pending\n")
	if len(upcoming) == 0 {
		builder.WriteString("— no open tasks\n")
	} else {
		for _, task := range upcoming {
			builder.WriteString(formatTask(task, catNames, now))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

// Send raises the digest on notifier, replacing the previous one.
func (s *DigestService) Send(ctx context.Context, notifier notify.Notifier, now time.Time) error {
	text, err := s.Summary(ctx, now)
	if err != nil {
		return fmt.Errorf("build digest: %w", err)
	}
	if err := notifier.EnsureChannel(ctx, DigestChannel); err != nil {
		return fmt.Errorf("digest channel: %w", err)
	}
	return notifier.Notify(ctx, notify.Notification{
		ID:        DigestNotificationID,
		ChannelID: DigestChannel.ID,
		Title:     "Your tasks",
		Text:      text,
	})
}

// sortByDue puts tasks with a due date first, earliest first, then by id.
func sortByDue(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].DueDate, tasks[j].DueDate
		switch {
		case a == nil && b == nil:
			return tasks[i].ID < tasks[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		default:
			return tasks[i].ID < tasks[j].ID
		}
	})
}

func formatTask(task model.Task, catNames map[uint]string, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	due, hasDue := task.DueAt()
	if hasDue {
		due = due.In(now.Location())
		switch {
		case !now.Before(due):
			icon = "⚠️"
		case due.Sub(now) <= 48*time.Hour:
			icon = "⏳"
		}
	}

	sb.WriteString(fmt.Sprintf("%s #%d %s", icon, task.ID, strings.TrimSpace(task.Name)))

	if task.CategoryID != nil {
		if name, ok := catNames[*task.CategoryID]; ok {
			trimmed := strings.TrimSpace(name)
			if trimmed != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", trimmed))
			}
		}
	}

	if hasDue {
		if !now.Before(due) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s, overdue", due.Format(DueLayout)))
		} else {
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s, in %s", due.Format(DueLayout), humanDuration(due.Sub(now))))
		}
	}

	sb.WriteByte('\n')
	return sb.String()
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		minutes := int(d.Minutes())
		if minutes < 1 {
			minutes = 1
		}
		return fmt.Sprintf("%dm", minutes)
	}
}

package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"todo-reminders/internal/model"
	"todo-reminders/internal/notify"
)

func TestDigestSummary(t *testing.T) {
	tasks, categories, _ := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	work := model.Category{Name: "Work"}
	if _, err := categories.Insert(ctx, &work); err != nil {
		t.Fatalf("insert category: %v", err)
	}
	seed := []model.Task{
		{Name: "Overdue report", CategoryID: ptr(work.ID), DueDate: ptr(now.Add(-time.Hour).UnixMilli())},
		{Name: "Due exactly now", DueDate: ptr(now.UnixMilli())},
		{Name: "Tomorrow", DueDate: ptr(now.Add(24 * time.Hour).UnixMilli())},
		{Name: "Someday"},
		{Name: "Finished", DueDate: ptr(now.Add(-time.Hour).UnixMilli()), IsDone: true},
	}
	for i := range seed {
		if _, err := tasks.Insert(ctx, &seed[i]); err != nil {
			t.Fatalf("insert %q: %v", seed[i].Name, err)
		}
	}

	digest := NewDigestService(tasks, categories)
	text, err := digest.Summary(ctx, now)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}

	dueSection, pendingSection, found := strings.Cut(text, "🔥 Pending")
	if !found {
		t.Fatalf("expected pending section in %q", text)
	}
	for _, want := range []string{"Overdue report (Work)", "Due exactly now", "overdue"} {
		if !strings.Contains(dueSection, want) {
			t.Errorf("expected due section to contain %q:\n%s", want, dueSection)
		}
	}
	if strings.Index(dueSection, "Overdue report") > strings.Index(dueSection, "Due exactly now") {
		t.Errorf("expected earliest due first:\n%s", dueSection)
	}
	for _, want := range []string{"Tomorrow", "Someday", "in 24h"} {
		if !strings.Contains(pendingSection, want) {
			t.Errorf("expected pending section to contain %q:\n%s", want, pendingSection)
		}
	}
	if strings.Index(pendingSection, "Tomorrow") > strings.Index(pendingSection, "Someday") {
		t.Errorf("expected dated tasks before undated ones:\n%s", pendingSection)
	}
	if strings.Contains(text, "Finished") {
		t.Errorf("expected done tasks to be left out:\n%s", text)
	}
}

func TestDigestSendReplacesPrevious(t *testing.T) {
	tasks, categories, _ := newTestDB(t)
	digest := NewDigestService(tasks, categories)
	notifier := notify.NewLogNotifier(nil)
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if err := digest.Send(context.Background(), notifier, now); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	active := notifier.Active()
	if len(active) != 1 {
		t.Fatalf("expected a single digest notification, got %d", len(active))
	}
	note := active[DigestNotificationID]
	if note.ChannelID != DigestChannel.ID || !strings.Contains(note.Text, "no open tasks") {
		t.Fatalf("unexpected digest: %+v", note)
	}
}

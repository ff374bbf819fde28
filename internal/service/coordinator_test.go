package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"todo-reminders/internal/model"
	"todo-reminders/internal/notify"
	"todo-reminders/internal/reminder"
	"todo-reminders/internal/repository"
	"todo-reminders/internal/scheduler"
	"todo-reminders/internal/work"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type scheduledReminder struct {
	task  model.Task
	delay time.Duration
}

type fakeReminders struct {
	mu    sync.Mutex
	calls []scheduledReminder
	err   error
}

func (f *fakeReminders) Schedule(_ context.Context, task model.Task, delay time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, scheduledReminder{task: task, delay: delay})
	return "work", nil
}

func (f *fakeReminders) scheduled() []scheduledReminder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduledReminder(nil), f.calls...)
}

type testEnv struct {
	categories *repository.CategoryRepository
	tasks      *repository.TaskRepository
	clock      *fakeClock
	reminders  *fakeReminders
	coord      *Coordinator
}

func newTestDB(t *testing.T) (*repository.TaskRepository, *repository.CategoryRepository, *repository.WorkRepository) {
	t.Helper()
	db, err := repository.NewDB(":memory:", nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	tracker := repository.NewTracker()
	return repository.NewTaskRepository(db, tracker, nil),
		repository.NewCategoryRepository(db, tracker, nil),
		repository.NewWorkRepository(db)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tasks, categories, _ := newTestDB(t)
	env := &testEnv{
		tasks:      tasks,
		categories: categories,
		clock:      &fakeClock{now: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)},
		reminders:  &fakeReminders{},
	}
	env.coord = NewCoordinator(tasks, categories, env.reminders, Options{Clock: env.clock.Now})
	t.Cleanup(env.coord.Close)
	return env
}

func wait[T any](t *testing.T, op *Op[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	val, err := op.Wait(ctx)
	if err != nil {
		t.Fatalf("operation failed: %v", err)
	}
	return val
}

func waitTasks(t *testing.T, sub *repository.Subscription[model.Task], match func([]model.Task) bool) []model.Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		items, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("waiting for tasks: %v", err)
		}
		if match(items) {
			return items
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestAddTaskWithoutDueDate(t *testing.T) {
	env := newTestEnv(t)

	task := wait(t, env.coord.AddTask("Buy milk", nil, nil))
	if task.ID == 0 {
		t.Fatal("expected generated id")
	}

	all, err := env.tasks.ListAll(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one task, got %d", len(all))
	}
	got := all[0]
	if got.Name != "Buy milk" || got.IsDone || got.CategoryID != nil || got.DueDate != nil {
		t.Fatalf("unexpected stored task: %+v", got)
	}
	if n := len(env.reminders.scheduled()); n != 0 {
		t.Fatalf("expected no reminder, got %d", n)
	}
}

func TestAddTaskWithDueDateSchedulesReminder(t *testing.T) {
	env := newTestEnv(t)

	cat := wait(t, env.coord.AddCategory("Home"))
	due := env.clock.Now().UnixMilli() + 60_000
	task := wait(t, env.coord.AddTask("Pay rent", ptr(cat.ID), ptr(due)))

	calls := env.reminders.scheduled()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one reminder, got %d", len(calls))
	}
	if calls[0].delay != 60*time.Second {
		t.Fatalf("expected 60s delay, got %v", calls[0].delay)
	}
	if calls[0].task.ID != task.ID || calls[0].task.ID == 0 || calls[0].task.Name != "Pay rent" {
		t.Fatalf("expected reminder for the stored task, got %+v", calls[0].task)
	}
}

func TestAddTaskWithPastDueStillSchedules(t *testing.T) {
	env := newTestEnv(t)

	due := env.clock.Now().Add(-time.Hour).UnixMilli()
	wait(t, env.coord.AddTask("Late", nil, ptr(due)))

	calls := env.reminders.scheduled()
	if len(calls) != 1 || calls[0].delay != -time.Hour {
		t.Fatalf("expected one reminder with negative delay, got %+v", calls)
	}
}

func TestEditTaskSchedulesOnlyFutureDueDates(t *testing.T) {
	env := newTestEnv(t)
	task := wait(t, env.coord.AddTask("Report", nil, nil))

	tests := []struct {
		name      string
		due       *int64
		wantDelay time.Duration
		wantCall  bool
	}{
		{name: "no due date", due: nil},
		{name: "past", due: ptr(env.clock.Now().Add(-time.Minute).UnixMilli())},
		{name: "now", due: ptr(env.clock.Now().UnixMilli())},
		{name: "future", due: ptr(env.clock.Now().Add(2 * time.Hour).UnixMilli()), wantDelay: 2 * time.Hour, wantCall: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(env.reminders.scheduled())
			edited := task
			edited.Name = "Report " + tt.name
			edited.DueDate = tt.due
			wait(t, env.coord.EditTask(edited))

			stored, err := env.tasks.FindByID(context.Background(), task.ID)
			if err != nil || stored == nil {
				t.Fatalf("find: %v", err)
			}
			if stored.Name != edited.Name {
				t.Fatalf("expected edit persisted, got %q", stored.Name)
			}

			calls := env.reminders.scheduled()
			if !tt.wantCall {
				if len(calls) != before {
					t.Fatalf("expected no reminder, got %d new", len(calls)-before)
				}
				return
			}
			if len(calls) != before+1 {
				t.Fatalf("expected one new reminder, got %d", len(calls)-before)
			}
			if calls[len(calls)-1].delay != tt.wantDelay {
				t.Fatalf("expected delay %v, got %v", tt.wantDelay, calls[len(calls)-1].delay)
			}
		})
	}
}

func TestToggleTaskRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	cat := wait(t, env.coord.AddCategory("Work"))
	due := env.clock.Now().Add(time.Hour).UnixMilli()
	original := wait(t, env.coord.AddTask("Report", ptr(cat.ID), ptr(due)))
	remindersBefore := len(env.reminders.scheduled())

	done := wait(t, env.coord.ToggleTask(original, true))
	if !done.IsDone {
		t.Fatal("expected task marked done")
	}
	undone := wait(t, env.coord.ToggleTask(done, false))

	stored, err := env.tasks.FindByID(context.Background(), original.ID)
	if err != nil || stored == nil {
		t.Fatalf("find: %v", err)
	}
	if stored.IsDone {
		t.Fatal("expected task to end not done")
	}
	if stored.Name != original.Name || *stored.CategoryID != *original.CategoryID || *stored.DueDate != *original.DueDate {
		t.Fatalf("expected fields other than IsDone unchanged, got %+v", stored)
	}
	if undone.ID != original.ID {
		t.Fatalf("expected same id, got %d", undone.ID)
	}
	if len(env.reminders.scheduled()) != remindersBefore {
		t.Fatal("expected toggling not to schedule reminders")
	}
}

func TestRemoveTask(t *testing.T) {
	env := newTestEnv(t)

	task := wait(t, env.coord.AddTask("Throwaway", nil, nil))
	wait(t, env.coord.RemoveTask(task))

	waitTasks(t, env.coord.Tasks(), func(items []model.Task) bool { return len(items) == 0 })
}

func TestCategoryCascadeScenario(t *testing.T) {
	env := newTestEnv(t)

	work := wait(t, env.coord.AddCategory("Work"))
	if work.ID != 1 {
		t.Fatalf("expected category id 1, got %d", work.ID)
	}
	wait(t, env.coord.AddTask("Report", ptr(work.ID), nil))

	byCat := env.coord.TasksByCategory(1)
	defer byCat.Close()
	items := waitTasks(t, byCat, func(items []model.Task) bool { return len(items) == 1 })
	if items[0].Name != "Report" {
		t.Fatalf("expected [Report], got %+v", items)
	}

	wait(t, env.coord.RemoveCategory(work))
	waitTasks(t, env.coord.Tasks(), func(items []model.Task) bool { return len(items) == 0 })
}

func TestCategoriesSubscription(t *testing.T) {
	env := newTestEnv(t)

	wait(t, env.coord.AddCategory("Work"))
	wait(t, env.coord.AddCategory("Work"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		cats, err := env.coord.Categories().Next(ctx)
		if err != nil {
			t.Fatalf("waiting for categories: %v", err)
		}
		if len(cats) == 2 {
			if cats[0].ID >= cats[1].ID {
				t.Fatalf("expected primary key order, got %+v", cats)
			}
			return
		}
	}
}

func TestFailedInsertIsReported(t *testing.T) {
	env := newTestEnv(t)

	op := env.coord.AddTask("Orphan", ptr(uint(99)), ptr(env.clock.Now().Add(time.Hour).UnixMilli()))
	_, err := op.Wait(context.Background())
	if err == nil {
		t.Fatal("expected foreign key failure")
	}
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != "add task" {
		t.Fatalf("expected OpError for add task, got %v", err)
	}

	select {
	case reported := <-env.coord.Errors():
		if !errors.As(reported, &opErr) {
			t.Fatalf("expected OpError on error channel, got %v", reported)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected failure on error channel")
	}
	if len(env.reminders.scheduled()) != 0 {
		t.Fatal("expected no reminder for a failed insert")
	}
}

func TestReminderFailureKeepsTask(t *testing.T) {
	env := newTestEnv(t)
	env.reminders.err = errors.New("queue unavailable")

	_, err := env.coord.AddTask("Call mom", nil, ptr(env.clock.Now().Add(time.Hour).UnixMilli())).Wait(context.Background())
	if err == nil {
		t.Fatal("expected scheduling error")
	}
	all, listErr := env.tasks.ListAll(context.Background())
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(all) != 1 {
		t.Fatalf("expected task committed despite reminder failure, got %d", len(all))
	}
}

func TestOperationsRunInSubmissionOrder(t *testing.T) {
	env := newTestEnv(t)

	var ops []*Op[model.Task]
	for _, name := range []string{"one", "two", "three", "four"} {
		ops = append(ops, env.coord.AddTask(name, nil, nil))
	}
	var last uint
	for i, op := range ops {
		task := wait(t, op)
		if task.ID <= last {
			t.Fatalf("op %d committed out of order: id %d after %d", i, task.ID, last)
		}
		last = task.ID
	}
}

func TestCloseRejectsNewOperations(t *testing.T) {
	env := newTestEnv(t)
	env.coord.Close()

	_, err := env.coord.AddCategory("late").Wait(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, ok := <-env.coord.Errors(); ok {
		t.Fatal("expected error channel closed")
	}
	// Closing twice is safe.
	env.coord.Close()
}

func TestReminderFiresThroughWorkManager(t *testing.T) {
	tasks, categories, workRepo := newTestDB(t)
	clock := &fakeClock{now: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}

	manager := work.NewManager(workRepo, scheduler.New(time.UTC), work.Options{Clock: clock.Now})
	notifier := notify.NewLogNotifier(nil)
	manager.Register(reminder.WorkerName, reminder.NewWorker(notifier, nil))

	coord := NewCoordinator(tasks, categories, reminder.NewScheduler(manager, nil), Options{Clock: clock.Now})
	defer coord.Close()

	due := clock.Now().Add(time.Minute).UnixMilli()
	task := wait(t, coord.AddTask("Pay rent", nil, ptr(due)))

	ctx := context.Background()
	if n, err := manager.RunDue(ctx); err != nil || n != 0 {
		t.Fatalf("expected nothing due yet, ran %d (err %v)", n, err)
	}

	clock.Advance(time.Minute)
	if n, err := manager.RunDue(ctx); err != nil || n != 1 {
		t.Fatalf("expected reminder to run, ran %d (err %v)", n, err)
	}

	note, ok := notifier.Active()[int32(task.ID)]
	if !ok {
		t.Fatalf("expected notification keyed by task id %d", task.ID)
	}
	if note.Title != "Reminder: Pay rent" || note.ChannelID != reminder.Channel.ID {
		t.Fatalf("unexpected notification: %+v", note)
	}
}

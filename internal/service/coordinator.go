package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"todo-reminders/internal/logging"
	"todo-reminders/internal/model"
	"todo-reminders/internal/reminder"
	"todo-reminders/internal/repository"
)

// ErrClosed is returned by operations submitted to, or still queued in, a
// closed coordinator.
var ErrClosed = errors.New("coordinator closed")

// ReminderScheduler submits a one-shot reminder for a task.
type ReminderScheduler interface {
	Schedule(ctx context.Context, task model.Task, delay time.Duration) (string, error)
}

// OpError tags a failed mutation with the operation name.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Op is the handle of a submitted mutation.
type Op[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newOp[T any]() *Op[T] {
	return &Op[T]{done: make(chan struct{})}
}

func (o *Op[T]) resolve(val T, err error) {
	o.val, o.err = val, err
	close(o.done)
}

// Done is closed once the operation has finished.
func (o *Op[T]) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation finishes or ctx ends.
func (o *Op[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-o.done:
		return o.val, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Options tune a Coordinator; zero values get defaults.
type Options struct {
	Clock       func() time.Time
	Logger      *log.Logger
	ErrorBuffer int
}

type job struct {
	run   func(ctx context.Context)
	abort func(err error)
}

// Coordinator is the single entry point for task and category mutations. It
// runs them one at a time on its own goroutine, schedules reminders as a side
// effect, and exposes the live task and category lists.
type Coordinator struct {
	tasks      *repository.TaskRepository
	categories *repository.CategoryRepository
	reminders  ReminderScheduler
	now        func() time.Time
	log        *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	mu      sync.Mutex
	pending []job
	closed  bool
	wake    chan struct{}
	errs    chan error

	allTasks      *repository.Subscription[model.Task]
	allCategories *repository.Subscription[model.Category]
}

func NewCoordinator(tasks *repository.TaskRepository, categories *repository.CategoryRepository, reminders ReminderScheduler, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.ErrorBuffer <= 0 {
		opts.ErrorBuffer = 16
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		tasks:      tasks,
		categories: categories,
		reminders:  reminders,
		now:        opts.Clock,
		log:        opts.Logger.With("component", "coordinator"),
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		errs:       make(chan error, opts.ErrorBuffer),
	}
	c.allTasks = tasks.All(ctx)
	c.allCategories = categories.All(ctx)

	c.wg.Add(1)
	go c.loop()
	return c
}

// Tasks is the live list of all tasks.
func (c *Coordinator) Tasks() *repository.Subscription[model.Task] {
	return c.allTasks
}

// Categories is the live list of all categories.
func (c *Coordinator) Categories() *repository.Subscription[model.Category] {
	return c.allCategories
}

// TasksByCategory opens a live list of one category's tasks. The caller closes it.
func (c *Coordinator) TasksByCategory(categoryID uint) *repository.Subscription[model.Task] {
	return c.tasks.ByCategory(c.ctx, categoryID)
}

// Errors reports every failed mutation. It is closed by Close.
func (c *Coordinator) Errors() <-chan error {
	return c.errs
}

// AddTask inserts a new, not yet done task. When dueDate is set a reminder is
// scheduled for the stored task, whether the due date is past or future.
func (c *Coordinator) AddTask(name string, categoryID *uint, dueDate *int64) *Op[model.Task] {
	return submit(c, "add task", func(ctx context.Context) (model.Task, error) {
		task := model.Task{Name: name, CategoryID: categoryID, DueDate: dueDate}
		if _, err := c.tasks.Insert(ctx, &task); err != nil {
			return model.Task{}, err
		}
		c.log.Info("task added", "id", task.ID, "due", dueDate != nil)

		if task.DueDate != nil {
			delay := reminder.DelayUntil(*task.DueDate, c.now())
			if _, err := c.reminders.Schedule(ctx, task, delay); err != nil {
				return task, err
			}
		}
		return task, nil
	})
}

// EditTask stores task as given. A reminder is scheduled only when the due
// date is still in the future.
func (c *Coordinator) EditTask(task model.Task) *Op[model.Task] {
	return submit(c, "edit task", func(ctx context.Context) (model.Task, error) {
		if err := c.tasks.Update(ctx, task); err != nil {
			return model.Task{}, err
		}
		c.log.Info("task edited", "id", task.ID)

		if task.DueDate != nil {
			if delay := reminder.DelayUntil(*task.DueDate, c.now()); delay > 0 {
				if _, err := c.reminders.Schedule(ctx, task, delay); err != nil {
					return task, err
				}
			}
		}
		return task, nil
	})
}

func (c *Coordinator) RemoveTask(task model.Task) *Op[struct{}] {
	return submit(c, "remove task", func(ctx context.Context) (struct{}, error) {
		if err := c.tasks.Delete(ctx, task); err != nil {
			return struct{}{}, err
		}
		c.log.Info("task removed", "id", task.ID)
		return struct{}{}, nil
	})
}

// ToggleTask stores a copy of task with isDone replaced. Pending reminders are
// left alone.
func (c *Coordinator) ToggleTask(task model.Task, isDone bool) *Op[model.Task] {
	return submit(c, "toggle task", func(ctx context.Context) (model.Task, error) {
		updated := task.WithDone(isDone)
		if err := c.tasks.Update(ctx, updated); err != nil {
			return model.Task{}, err
		}
		c.log.Info("task toggled", "id", task.ID, "done", isDone)
		return updated, nil
	})
}

// AddCategory inserts a category. Duplicate names are allowed.
func (c *Coordinator) AddCategory(name string) *Op[model.Category] {
	return submit(c, "add category", func(ctx context.Context) (model.Category, error) {
		category := model.Category{Name: name}
		if _, err := c.categories.Insert(ctx, &category); err != nil {
			return model.Category{}, err
		}
		c.log.Info("category added", "id", category.ID)
		return category, nil
	})
}

// RemoveCategory deletes a category together with its tasks.
func (c *Coordinator) RemoveCategory(category model.Category) *Op[struct{}] {
	return submit(c, "remove category", func(ctx context.Context) (struct{}, error) {
		if err := c.categories.Delete(ctx, category); err != nil {
			return struct{}{}, err
		}
		c.log.Info("category removed", "id", category.ID)
		return struct{}{}, nil
	})
}

// Close cancels the in-flight mutation, fails queued ones with ErrClosed and
// ends the subscriptions. Nothing already committed is rolled back.
func (c *Coordinator) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()
		c.wg.Wait()
		c.allTasks.Close()
		c.allCategories.Close()
		close(c.errs)
	})
}

func submit[T any](c *Coordinator, name string, fn func(ctx context.Context) (T, error)) *Op[T] {
	op := newOp[T]()
	j := job{
		run: func(ctx context.Context) {
			val, err := fn(ctx)
			if err != nil {
				err = &OpError{Op: name, Err: err}
				c.report(err)
			}
			op.resolve(val, err)
		},
		abort: func(err error) {
			var zero T
			op.resolve(zero, err)
		},
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		j.abort(ErrClosed)
		return op
	}
	c.pending = append(c.pending, j)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return op
}

func (c *Coordinator) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			c.drain()
			return
		case <-c.wake:
		}
		for {
			j, ok := c.next()
			if !ok {
				break
			}
			if c.ctx.Err() != nil {
				j.abort(ErrClosed)
				continue
			}
			j.run(c.ctx)
		}
	}
}

func (c *Coordinator) next() (job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return job{}, false
	}
	j := c.pending[0]
	c.pending = c.pending[1:]
	return j, true
}

func (c *Coordinator) drain() {
	c.mu.Lock()
	jobs := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, j := range jobs {
		j.abort(ErrClosed)
	}
}

func (c *Coordinator) report(err error) {
	c.log.Error("operation failed", "err", err)
	select {
	case c.errs <- err:
	default:
		c.log.Warn("error channel full, dropping", "err", err)
	}
}

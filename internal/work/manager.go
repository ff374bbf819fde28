// Package work runs one-shot deferred jobs that are persisted in the local
// store, so they survive restarts of the process that scheduled them.
package work

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"todo-reminders/internal/logging"
	"todo-reminders/internal/model"
	"todo-reminders/internal/repository"
	"todo-reminders/internal/scheduler"
)

// Result is what a worker reports back for one run.
type Result int

const (
	Success Result = iota
	Failure
	Retry
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Retry:
		return "retry"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

var ErrUnknownWorker = errors.New("unknown worker")

// Worker executes one unit of deferred work.
type Worker interface {
	DoWork(ctx context.Context, input Data) Result
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context, input Data) Result

func (f WorkerFunc) DoWork(ctx context.Context, input Data) Result {
	return f(ctx, input)
}

// Request describes a one-shot job. A zero or negative InitialDelay runs the
// job at the next poll.
type Request struct {
	Worker       string
	InitialDelay time.Duration
	Input        Data
}

// Options tune the manager; zero values get defaults.
type Options struct {
	PollInterval time.Duration
	Concurrency  int
	MaxAttempts  int
	BackoffBase  time.Duration
	BatchSize    int
	Clock        func() time.Time
	Logger       *log.Logger
}

func (o *Options) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 30 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
}

// Manager persists requests and dispatches them to registered workers when due.
type Manager struct {
	repo  *repository.WorkRepository
	sched *scheduler.Scheduler
	opts  Options
	log   *log.Logger

	mu      sync.RWMutex
	workers map[string]Worker

	runMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	entry  cron.EntryID
	active bool
}

func NewManager(repo *repository.WorkRepository, sched *scheduler.Scheduler, opts Options) *Manager {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		repo:    repo,
		sched:   sched,
		opts:    opts,
		log:     opts.Logger.With("component", "work"),
		workers: make(map[string]Worker),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register binds a worker name used in requests to its implementation.
func (m *Manager) Register(name string, w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[name] = w
}

// Enqueue persists req and returns the work item id.
func (m *Manager) Enqueue(ctx context.Context, req Request) (string, error) {
	if req.Worker == "" {
		return "", fmt.Errorf("enqueue: worker name is required")
	}
	input, err := req.Input.encode()
	if err != nil {
		return "", err
	}
	item := model.WorkItem{
		ID:     uuid.NewString(),
		Worker: req.Worker,
		Input:  input,
		RunAt:  m.opts.Clock().Add(req.InitialDelay).UnixMilli(),
		State:  model.WorkEnqueued,
	}
	if err := m.repo.Create(ctx, &item); err != nil {
		return "", err
	}
	m.log.Debug("enqueued", "id", item.ID, "worker", item.Worker, "delay", req.InitialDelay)
	return item.ID, nil
}

// Start requeues items orphaned by a previous process and begins polling.
func (m *Manager) Start() error {
	if m.sched == nil {
		return fmt.Errorf("start work manager: no scheduler")
	}
	reset, err := m.repo.ResetRunning(m.ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		m.log.Info("requeued interrupted work", "count", reset)
	}
	entry, err := m.sched.ScheduleInterval(m.opts.PollInterval, m.poll)
	if err != nil {
		return fmt.Errorf("schedule work poll: %w", err)
	}
	m.entry = entry
	m.active = true
	return nil
}

// Stop stops polling and waits for the current batch to finish.
func (m *Manager) Stop() {
	if m.active {
		m.sched.Remove(m.entry)
		m.active = false
	}
	m.runMu.Lock()
	m.cancel()
	m.runMu.Unlock()
}

func (m *Manager) poll() {
	if !m.runMu.TryLock() {
		return
	}
	defer m.runMu.Unlock()
	if m.ctx.Err() != nil {
		return
	}
	if _, err := m.runDue(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.log.Error("poll failed", "err", err)
	}
}

// RunDue executes every item due now and returns how many ran.
func (m *Manager) RunDue(ctx context.Context) (int, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.runDue(ctx)
}

func (m *Manager) runDue(ctx context.Context) (int, error) {
	total := 0
	for {
		items, err := m.repo.ClaimDue(ctx, m.opts.Clock().UnixMilli(), m.opts.BatchSize)
		if err != nil {
			return total, err
		}
		if len(items) == 0 {
			return total, nil
		}

		sem := make(chan struct{}, m.opts.Concurrency)
		var wg sync.WaitGroup
		for _, item := range items {
			sem <- struct{}{}
			wg.Add(1)
			go func(item model.WorkItem) {
				defer wg.Done()
				defer func() { <-sem }()
				m.execute(ctx, item)
			}(item)
		}
		wg.Wait()
		total += len(items)

		if len(items) < m.opts.BatchSize {
			return total, nil
		}
	}
}

func (m *Manager) execute(ctx context.Context, item model.WorkItem) {
	lg := m.log.With("id", item.ID, "worker", item.Worker, "attempt", item.Attempts)
	// Bookkeeping must land even if the run context is cancelled mid-job.
	store := context.WithoutCancel(ctx)

	m.mu.RLock()
	w, ok := m.workers[item.Worker]
	m.mu.RUnlock()
	if !ok {
		lg.Error("no worker registered")
		m.finish(store, lg, item, model.WorkFailed, ErrUnknownWorker.Error())
		return
	}

	input, err := decodeData(item.Input)
	if err != nil {
		lg.Error("bad input", "err", err)
		m.finish(store, lg, item, model.WorkFailed, err.Error())
		return
	}

	result := m.safeRun(ctx, lg, w, input)
	lg.Debug("work finished", "result", result)

	switch result {
	case Success:
		m.finish(store, lg, item, model.WorkSucceeded, "")
	case Retry:
		if item.Attempts >= m.opts.MaxAttempts {
			lg.Warn("giving up after max attempts", "max", m.opts.MaxAttempts)
			m.finish(store, lg, item, model.WorkFailed, "max attempts reached")
			return
		}
		next := m.opts.Clock().Add(m.backoff(item.Attempts))
		if err := m.repo.Requeue(store, item.ID, next.UnixMilli(), "retry requested"); err != nil {
			lg.Error("requeue failed", "err", err)
		}
	default:
		m.finish(store, lg, item, model.WorkFailed, "worker reported failure")
	}
}

func (m *Manager) safeRun(ctx context.Context, lg *log.Logger, w Worker, input Data) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			lg.Error("worker panicked", "panic", r)
			result = Failure
		}
	}()
	return w.DoWork(ctx, input)
}

func (m *Manager) finish(ctx context.Context, lg *log.Logger, item model.WorkItem, state model.WorkState, reason string) {
	if err := m.repo.Finish(ctx, item.ID, state, reason); err != nil {
		lg.Error("record result failed", "state", state, "err", err)
	}
}

// backoff doubles BackoffBase per previous attempt.
func (m *Manager) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := m.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Pending lists items still waiting to run.
func (m *Manager) Pending(ctx context.Context) ([]model.WorkItem, error) {
	return m.repo.ListByState(ctx, model.WorkEnqueued)
}

// Get returns a work item by id, nil if unknown.
func (m *Manager) Get(ctx context.Context, id string) (*model.WorkItem, error) {
	return m.repo.Get(ctx, id)
}

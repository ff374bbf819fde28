package repository

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

const (
	tableCategory = "category_table"
	tableTask     = "task_table"
)

// Tracker fans table invalidations out to live subscriptions. Repositories call
// Notify after every successful write.
type Tracker struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]observer
}

type observer struct {
	tables map[string]struct{}
	signal func()
}

func NewTracker() *Tracker {
	return &Tracker{subs: make(map[uint64]observer)}
}

// Notify marks tables as changed.
func (t *Tracker) Notify(tables ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, obs := range t.subs {
		for _, table := range tables {
			if _, ok := obs.tables[table]; ok {
				obs.signal()
				break
			}
		}
	}
}

func (t *Tracker) observe(tables []string, signal func()) func() {
	set := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		set[table] = struct{}{}
	}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = observer{tables: set, signal: signal}
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// Subscription is a live query. It emits the full result on subscribe and again
// after every write to one of its tables. A slow reader only ever sees the
// latest snapshot.
type Subscription[T any] struct {
	updates chan []T
	dirty   chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once

	mu      sync.RWMutex
	latest  []T
	hasData bool
}

func subscribe[T any](ctx context.Context, tr *Tracker, lg *log.Logger, name string, tables []string, query func(context.Context) ([]T, error)) *Subscription[T] {
	s := &Subscription[T]{
		updates: make(chan []T, 1),
		dirty:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	unregister := tr.observe(tables, s.invalidate)
	s.invalidate()
	go s.run(ctx, lg.With("subscription", name), query, unregister)
	return s
}

// Updates delivers snapshots. It is closed when the subscription ends.
func (s *Subscription[T]) Updates() <-chan []T {
	return s.updates
}

// Current returns the most recent snapshot, if one has been loaded.
func (s *Subscription[T]) Current() ([]T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasData
}

// Next waits for the next snapshot.
func (s *Subscription[T]) Next(ctx context.Context) ([]T, error) {
	select {
	case items, ok := <-s.updates:
		if !ok {
			return nil, context.Canceled
		}
		return items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the subscription and waits for its goroutine to exit.
func (s *Subscription[T]) Close() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Subscription[T]) invalidate() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) run(ctx context.Context, lg *log.Logger, query func(context.Context) ([]T, error), unregister func()) {
	defer close(s.done)
	defer close(s.updates)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-s.dirty:
		}

		items, err := query(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lg.Warn("refresh failed", "err", err)
			continue
		}

		s.mu.Lock()
		s.latest = items
		s.hasData = true
		s.mu.Unlock()

		s.publish(items)
	}
}

func (s *Subscription[T]) publish(items []T) {
	for {
		select {
		case s.updates <- items:
			return
		default:
		}
		// Drop the stale snapshot the reader has not picked up yet.
		select {
		case <-s.updates:
		default:
		}
	}
}

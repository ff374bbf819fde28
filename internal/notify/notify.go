// Package notify raises user-facing notifications.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"todo-reminders/internal/logging"
)

// Importance mirrors the usual notification priority levels.
type Importance int

const (
	ImportanceDefault Importance = iota
	ImportanceHigh
)

// Channel groups notifications of one kind. Registering a channel twice is a no-op.
type Channel struct {
	ID          string
	Name        string
	Description string
	Importance  Importance
}

// Notification is one visible alert. A notification with the same ID as an
// active one replaces it.
type Notification struct {
	ID        int32
	ChannelID string
	Title     string
	Text      string
	Priority  Importance
}

// Notifier is the sink reminders are raised on.
type Notifier interface {
	EnsureChannel(ctx context.Context, ch Channel) error
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to a logger and keeps the active set in memory.
type LogNotifier struct {
	log *log.Logger

	mu       sync.Mutex
	channels map[string]Channel
	active   map[int32]Notification
}

func NewLogNotifier(lg *log.Logger) *LogNotifier {
	if lg == nil {
		lg = logging.Discard()
	}
	return &LogNotifier{
		log:      lg.With("component", "notify"),
		channels: make(map[string]Channel),
		active:   make(map[int32]Notification),
	}
}

func (n *LogNotifier) EnsureChannel(_ context.Context, ch Channel) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.channels[ch.ID]; ok {
		return nil
	}
	n.channels[ch.ID] = ch
	n.log.Debug("channel registered", "channel", ch.ID)
	return nil
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.mu.Lock()
	_, replaced := n.active[note.ID]
	n.active[note.ID] = note
	n.mu.Unlock()

	n.log.Info(note.Title, "id", note.ID, "channel", note.ChannelID, "text", note.Text, "replaced", replaced)
	return nil
}

// Active returns a snapshot of the notifications currently shown.
func (n *LogNotifier) Active() map[int32]Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[int32]Notification, len(n.active))
	for id, note := range n.active {
		out[id] = note
	}
	return out
}

// Dismiss removes a notification from the active set.
func (n *LogNotifier) Dismiss(id int32) {
	n.mu.Lock()
	delete(n.active, id)
	n.mu.Unlock()
}

// Multi fans notifications out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) EnsureChannel(ctx context.Context, ch Channel) error {
	var errs []error
	for _, n := range m {
		if err := n.EnsureChannel(ctx, ch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

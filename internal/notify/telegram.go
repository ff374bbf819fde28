package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todo-reminders/internal/logging"
)

// TelegramAPI is the part of *tgbotapi.BotAPI the notifier needs.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramNotifier posts notifications to one chat. A repeated notification id
// deletes the earlier message so only the latest stays visible.
type TelegramNotifier struct {
	api    TelegramAPI
	chatID int64
	log    *log.Logger

	mu       sync.Mutex
	channels map[string]Channel
	messages map[int32]int
}

func NewTelegramNotifier(api TelegramAPI, chatID int64, lg *log.Logger) *TelegramNotifier {
	if lg == nil {
		lg = logging.Discard()
	}
	return &TelegramNotifier{
		api:      api,
		chatID:   chatID,
		log:      lg.With("component", "telegram-notify"),
		channels: make(map[string]Channel),
		messages: make(map[int32]int),
	}
}

func (t *TelegramNotifier) EnsureChannel(_ context.Context, ch Channel) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.channels[ch.ID]; !ok {
		t.channels[ch.ID] = ch
	}
	return nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	prev, hadPrev := t.messages[note.ID]
	channel := t.channels[note.ChannelID]
	t.mu.Unlock()

	if hadPrev {
		if _, err := t.api.Request(tgbotapi.NewDeleteMessage(t.chatID, prev)); err != nil {
			// The old message may already be gone; the new one still goes out.
			t.log.Warn("delete previous notification", "id", note.ID, "message", prev, "err", err)
		}
	}

	msg := tgbotapi.NewMessage(t.chatID, formatNotification(note, channel))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableNotification = note.Priority < ImportanceHigh && channel.Importance < ImportanceHigh
	sent, err := t.api.Send(msg)
	if err != nil {
		return fmt.Errorf("send notification %d: %w", note.ID, err)
	}

	t.mu.Lock()
	t.messages[note.ID] = sent.MessageID
	t.mu.Unlock()
	return nil
}

func formatNotification(note Notification, channel Channel) string {
	var b strings.Builder
	b.WriteString("🔔 <b>")
	b.WriteString(html.EscapeString(note.Title))
	b.WriteString("</b>")
	if note.Text != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(note.Text))
	}
	if channel.Name != "" {
		b.WriteString("\n<i>")
		b.WriteString(html.EscapeString(channel.Name))
		b.WriteString("</i>")
	}
	return b.String()
}

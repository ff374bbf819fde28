package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todo-reminders/internal/logging"
	"todo-reminders/internal/model"
	"todo-reminders/internal/repository"
	"todo-reminders/internal/service"
)

const (
	cbDonePrefix   = "done:"
	cbUndoPrefix   = "undo:"
	cbDeletePrefix = "delete:"
)

const (
	iconDefault = "🟢"
	iconDue     = "⏳"
	iconOverdue = "⚠️"
	iconDone    = "✔️"
	noCategory  = "No category"
)

var errNotFound = errors.New("not found")

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is a Telegram front-end over the coordinator. It only answers the owner chat.
type Bot struct {
	api        API
	coord      *service.Coordinator
	tasks      *repository.TaskRepository
	categories *repository.CategoryRepository
	digest     *service.DigestService
	chatID     int64
	now        func() time.Time
	log        *log.Logger
}

// Options configure a Bot.
type Options struct {
	Clock  func() time.Time
	Logger *log.Logger
}

func New(api API, chatID int64, coord *service.Coordinator, tasks *repository.TaskRepository, categories *repository.CategoryRepository, digest *service.DigestService, opts Options) *Bot {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Bot{
		api:        api,
		coord:      coord,
		tasks:      tasks,
		categories: categories,
		digest:     digest,
		chatID:     chatID,
		now:        opts.Clock,
		log:        opts.Logger.With("component", "bot"),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error("handle callback", "err", err)
			}
		case update.Message != nil:
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error("handle message", "err", err)
			}
		}
	}

	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Chat == nil || msg.Chat.ID != b.chatID {
		return nil
	}
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "I only understand commands. Try /help.")
	}

	b.log.Debug("command", "cmd", msg.Command(), "args", msg.CommandArguments())
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "add":
		return b.handleAdd(ctx, msg.Chat.ID, args)
	case "tasks":
		return b.sendTaskList(ctx, msg.Chat.ID)
	case "done":
		return b.handleToggle(ctx, msg.Chat.ID, args, true)
	case "undo":
		return b.handleToggle(ctx, msg.Chat.ID, args, false)
	case "delete":
		return b.handleDelete(ctx, msg.Chat.ID, args)
	case "due":
		return b.handleDue(ctx, msg.Chat.ID)
	case "categories":
		return b.handleCategories(ctx, msg.Chat.ID)
	case "newcategory":
		return b.handleNewCategory(ctx, msg.Chat.ID, args)
	case "delcategory":
		return b.handleDeleteCategory(ctx, msg.Chat.ID, args)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /add name | category id | due — add a task (category and due are optional)\n" +
	"• /tasks — list tasks\n" +
	"• /done &lt;id&gt;, /undo &lt;id&gt; — mark a task done or not done\n" +
	"• /delete &lt;id&gt; — delete a task\n" +
	"• /due — digest of due and pending tasks\n" +
	"• /categories — list categories\n" +
	"• /newcategory name — add a category\n" +
	"• /delcategory &lt;id&gt; — delete a category and its tasks\n\n" +
	"Due dates: <code>2026-11-30 18:00</code>, <code>2026-11-30</code> or <code>+2h</code>."

// addArgs is the parsed form of "/add name | category | due".
type addArgs struct {
	Name       string
	CategoryID *uint
	Due        string
}

func parseAddArgs(raw string) (addArgs, error) {
	parts := strings.Split(raw, "|")
	args := addArgs{Name: strings.TrimSpace(parts[0])}
	if args.Name == "" {
		return args, fmt.Errorf("task name is required")
	}
	if len(parts) > 3 {
		return args, fmt.Errorf("too many fields, expected name | category | due")
	}
	if len(parts) > 1 {
		if raw := strings.TrimSpace(parts[1]); raw != "" && raw != "-" {
			id, err := parseID(raw)
			if err != nil {
				return args, fmt.Errorf("category: %w", err)
			}
			args.CategoryID = &id
		}
	}
	if len(parts) > 2 {
		args.Due = strings.TrimSpace(parts[2])
	}
	return args, nil
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, raw string) error {
	args, err := parseAddArgs(raw)
	if err != nil {
		return b.sendText(chatID, "Usage: /add name | category id | due\n"+escape(err.Error()))
	}
	due, err := service.ParseDue(args.Due, b.now())
	if err != nil {
		return b.sendText(chatID, escape(err.Error()))
	}

	task, err := b.coord.AddTask(args.Name, args.CategoryID, due).Wait(ctx)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not save the task: %s", escape(err.Error())))
	}

	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> %d\n", task.ID))
	summary.WriteString(fmt.Sprintf("• <b>Name:</b> %s\n", escape(normalizeTitle(task.Name))))
	if task.DueDate != nil {
		summary.WriteString(fmt.Sprintf("• <b>Due:</b> %s (reminder set)\n", service.FormatDue(*task.DueDate, b.now().Location())))
	}
	return b.sendText(chatID, strings.TrimSpace(summary.String()))
}

func (b *Bot) handleToggle(ctx context.Context, chatID int64, raw string, done bool) error {
	task, err := b.lookupTask(ctx, raw)
	if err != nil {
		return b.sendText(chatID, escape(err.Error()))
	}
	if _, err := b.coord.ToggleTask(*task, done).Wait(ctx); err != nil {
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}
	if done {
		return b.sendText(chatID, fmt.Sprintf("✅ «%s» is done.", escape(normalizeTitle(task.Name))))
	}
	return b.sendText(chatID, fmt.Sprintf("↩️ «%s» is open again.", escape(normalizeTitle(task.Name))))
}

func (b *Bot) handleDelete(ctx context.Context, chatID int64, raw string) error {
	task, err := b.lookupTask(ctx, raw)
	if err != nil {
		return b.sendText(chatID, escape(err.Error()))
	}
	if _, err := b.coord.RemoveTask(*task).Wait(ctx); err != nil {
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}
	return b.sendText(chatID, fmt.Sprintf("🗑 «%s» deleted.", escape(normalizeTitle(task.Name))))
}

func (b *Bot) handleDue(ctx context.Context, chatID int64) error {
	text, err := b.digest.Summary(ctx, b.now())
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not build the digest: %s", escape(err.Error())))
	}
	return b.sendText(chatID, escape(text))
}

func (b *Bot) handleCategories(ctx context.Context, chatID int64) error {
	categories, err := b.categories.List(ctx)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load categories: %s", escape(err.Error())))
	}
	if len(categories) == 0 {
		return b.sendText(chatID, "No categories yet. Add one with /newcategory.")
	}
	var sb strings.Builder
	sb.WriteString("📂 <b>Categories</b>\n")
	for _, cat := range categories {
		sb.WriteString(fmt.Sprintf("• <b>#%d</b> %s\n", cat.ID, escape(cat.Name)))
	}
	return b.sendText(chatID, strings.TrimSpace(sb.String()))
}

func (b *Bot) handleNewCategory(ctx context.Context, chatID int64, name string) error {
	if name == "" {
		return b.sendText(chatID, "Usage: /newcategory name")
	}
	cat, err := b.coord.AddCategory(name).Wait(ctx)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}
	return b.sendText(chatID, fmt.Sprintf("🏷️ Category <b>#%d</b> %s added.", cat.ID, escape(cat.Name)))
}

func (b *Bot) handleDeleteCategory(ctx context.Context, chatID int64, raw string) error {
	id, err := parseID(raw)
	if err != nil {
		return b.sendText(chatID, "Usage: /delcategory id")
	}
	cat, err := b.categories.GetByID(ctx, id)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}
	if cat == nil {
		return b.sendText(chatID, "Category not found.")
	}
	if _, err := b.coord.RemoveCategory(*cat).Wait(ctx); err != nil {
		return b.sendText(chatID, fmt.Sprintf("Error: %s", escape(err.Error())))
	}
	return b.sendText(chatID, fmt.Sprintf("🗑 Category %s and its tasks deleted.", escape(cat.Name)))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.Message == nil || cb.Message.Chat == nil || cb.Message.Chat.ID != b.chatID {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("callback ack", "err", err)
	}

	chatID := cb.Message.Chat.ID
	data := cb.Data
	var err error
	switch {
	case strings.HasPrefix(data, cbDonePrefix):
		err = b.handleToggle(ctx, chatID, strings.TrimPrefix(data, cbDonePrefix), true)
	case strings.HasPrefix(data, cbUndoPrefix):
		err = b.handleToggle(ctx, chatID, strings.TrimPrefix(data, cbUndoPrefix), false)
	case strings.HasPrefix(data, cbDeletePrefix):
		err = b.handleDelete(ctx, chatID, strings.TrimPrefix(data, cbDeletePrefix))
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64) error {
	tasks, err := b.tasks.ListAll(ctx)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load tasks: %s", escape(err.Error())))
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, "No tasks. Add one with /add.")
	}

	categories, err := b.categories.List(ctx)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load categories: %s", escape(err.Error())))
	}
	catNames := make(map[uint]string, len(categories))
	for _, cat := range categories {
		catNames[cat.ID] = cat.Name
	}

	now := b.now()
	var builder strings.Builder
	builder.WriteString("📋 <b>Tasks</b>\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		builder.WriteString(formatTask(task, catNames, now))
		toggle := tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("✅ #%d · %s", task.ID, shortTitle(task.Name, 24)),
			fmt.Sprintf("%s%d", cbDonePrefix, task.ID),
		)
		if task.IsDone {
			toggle = tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("↩️ #%d · %s", task.ID, shortTitle(task.Name, 24)),
				fmt.Sprintf("%s%d", cbUndoPrefix, task.ID),
			)
		}
		remove := tgbotapi.NewInlineKeyboardButtonData("🗑", fmt.Sprintf("%s%d", cbDeletePrefix, task.ID))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(toggle, remove))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) lookupTask(ctx context.Context, raw string) (*model.Task, error) {
	id, err := parseID(raw)
	if err != nil {
		return nil, fmt.Errorf("task id must be a number")
	}
	task, err := b.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d: %w", id, errNotFound)
	}
	return task, nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}

func shortTitle(title string, maxLen int) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= maxLen {
		return string(runes)
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func formatTask(task model.Task, catNames map[uint]string, now time.Time) string {
	var b strings.Builder
	icon := iconDefault
	due, hasDue := task.DueAt()
	if hasDue {
		due = due.In(now.Location())
	}
	switch {
	case task.IsDone:
		icon = iconDone
	case hasDue && !now.Before(due):
		icon = iconOverdue
	case hasDue && due.Sub(now) <= 48*time.Hour:
		icon = iconDue
	}

	category := noCategory
	if task.CategoryID != nil {
		if name, ok := catNames[*task.CategoryID]; ok && strings.TrimSpace(name) != "" {
			category = strings.TrimSpace(name)
		}
	}

	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s <i>(%s)</i>\n", icon, task.ID, escape(normalizeTitle(task.Name)), escape(category)))
	if hasDue {
		b.WriteString(fmt.Sprintf("   ⏰ %s\n", due.Format(service.DueLayout)))
	}
	return b.String()
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

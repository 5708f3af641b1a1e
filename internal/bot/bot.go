package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/studentbot/config"
	"github.com/tazhate/studentbot/internal/domain"
	"github.com/tazhate/studentbot/internal/service"
	"github.com/tazhate/studentbot/internal/storage"
)

// sender is the part of the Telegram client the bot talks through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Subscribers stores the chats that get schedule notifications.
type Subscribers interface {
	Subscribe(chatID int64, name string) error
	Unsubscribe(chatID int64) error
	SetMuted(chatID int64, muted bool) error
	GetSubscriber(chatID int64) (*storage.Subscriber, error)
	ListSubscribers() ([]*storage.Subscriber, error)
}

// pendingNote is a note waiting for its text after discipline and mode
// were picked with buttons.
type pendingNote struct {
	discipline string
	mode       domain.Mode
}

type Bot struct {
	api             *tgbotapi.BotAPI
	out             sender
	cfg             *config.Config
	subscribers     Subscribers
	scheduleService *service.ScheduleService
	noteService     *service.NoteService
	settingsService *service.SettingsService

	pendingMu sync.Mutex
	pending   map[int64]pendingNote
}

func New(cfg *config.Config, subs Subscribers, scheduleSvc *service.ScheduleService, noteSvc *service.NoteService, settingsSvc *service.SettingsService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("Authorized as @%s", api.Self.UserName)

	bot := newBot(api, cfg, subs, scheduleSvc, noteSvc, settingsSvc)
	bot.api = api

	// Set bot commands (menu button)
	bot.setCommands()

	return bot, nil
}

func newBot(out sender, cfg *config.Config, subs Subscribers, scheduleSvc *service.ScheduleService, noteSvc *service.NoteService, settingsSvc *service.SettingsService) *Bot {
	return &Bot{
		out:             out,
		cfg:             cfg,
		subscribers:     subs,
		scheduleService: scheduleSvc,
		noteService:     noteSvc,
		settingsService: settingsSvc,
		pending:         make(map[int64]pendingNote),
	}
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "today", Description: "📅 Пары на сегодня"},
		{Command: "tomorrow", Description: "➡️ Пары на завтра"},
		{Command: "week", Description: "🗓 Расписание на неделю"},
		{Command: "notes", Description: "📝 Заметки"},
		{Command: "addnote", Description: "➕ Новая заметка"},
		{Command: "settings", Description: "⚙️ Настройки"},
		{Command: "help", Description: "❓ Справка по командам"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.out.Request(cfg); err != nil {
		log.Printf("Failed to set commands: %v", err)
	}
}

func (b *Bot) SetupWebhook() error {
	webhookURL := b.cfg.WebhookURL + "/bot"

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	_, err = b.api.Request(wh)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}

	if info.LastErrorDate != 0 {
		log.Printf("Webhook last error: %s", info.LastErrorMessage)
	}

	log.Printf("Webhook set to: %s", webhookURL)
	return nil
}

// Start receives updates until ctx is done. With a webhook URL updates
// arrive on mux at /bot, otherwise the bot long-polls.
func (b *Bot) Start(ctx context.Context, mux *http.ServeMux) error {
	var updates tgbotapi.UpdatesChannel

	if b.cfg.WebhookURL != "" {
		if err := b.SetupWebhook(); err != nil {
			return err
		}
		ch := make(chan tgbotapi.Update, b.api.Buffer)
		mux.HandleFunc("/bot", webhookHandler(ctx, b.api.HandleUpdate, ch))
		updates = ch
	} else {
		if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.Printf("Failed to delete webhook: %v", err)
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates = b.api.GetUpdatesChan(u)
		defer b.api.StopReceivingUpdates()
		log.Printf("Polling for updates")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

// webhookHandler queues decoded updates on ch. It gives up when the bot has
// stopped or the request is gone, so a full queue never hangs a request.
func webhookHandler(ctx context.Context, decode func(*http.Request) (*tgbotapi.Update, error), ch chan<- tgbotapi.Update) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		update, err := decode(r)
		if err != nil {
			log.Printf("Bad webhook update: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		select {
		case ch <- *update:
		case <-ctx.Done():
			http.Error(w, "bot stopped", http.StatusServiceUnavailable)
		case <-r.Context().Done():
		}
	}
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	_, err := b.out.Send(msg)
	return err
}

// Notify broadcasts a notice to every subscribed chat. It fails only when
// nobody received it.
func (b *Bot) Notify(_ context.Context, title, body string) error {
	subs, err := b.subscribers.ListSubscribers()
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}
	if len(subs) == 0 {
		return errors.New("no subscribers")
	}

	text := fmt.Sprintf("🔔 <b>%s</b>\n\n%s", html.EscapeString(title), formatNoticeBody(body))
	var errs []error
	for _, sub := range subs {
		if err := b.SendMessage(sub.ChatID, text); err != nil {
			log.Printf("Error notifying chat %d: %v", sub.ChatID, err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(subs) {
		return errors.Join(errs...)
	}
	return nil
}

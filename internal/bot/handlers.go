package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/studentbot/internal/domain"
	"github.com/tazhate/studentbot/internal/service"
)

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	if !b.cfg.IsAllowedUser(msg.From.ID) {
		b.SendMessage(chatID, "⛔ Доступ запрещён")
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		// Любая команда отменяет незаконченную заметку
		b.takePending(chatID)
		b.handleCommand(ctx, msg)
		return
	}

	// Текст после выбора дисциплины и режима становится заметкой
	if p, ok := b.takePending(chatID); ok {
		note, err := b.noteService.Add(p.discipline, p.mode, text)
		if err != nil {
			b.SendMessage(chatID, "❌ "+userMessage(err))
			return
		}
		b.SendMessageWithKeyboard(chatID, "✅ Заметка добавлена\n\n"+formatNote(note, b.scheduleService.Today()), noteKeyboard(note.ID))
		return
	}

	b.SendMessage(chatID, "Чтобы добавить заметку, начни с /addnote. /help — список команд")
}

func (b *Bot) setPending(chatID int64, p pendingNote) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	b.pending[chatID] = p
}

func (b *Bot) takePending(chatID int64) (pendingNote, bool) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	p, ok := b.pending[chatID]
	delete(b.pending, chatID)
	return p, ok
}

func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	msgID := callback.Message.MessageID

	if !b.cfg.IsAllowedUser(callback.From.ID) {
		b.answer(callback.ID, "⛔ Доступ запрещён")
		return
	}

	parts := strings.Split(callback.Data, ":")

	switch parts[0] {
	case "nd":
		// nd:disciplineIndex
		if len(parts) < 2 {
			return
		}
		idx := atoi(parts[1])
		disciplines := b.scheduleService.Disciplines()
		if idx < 0 || idx >= len(disciplines) {
			b.answer(callback.ID, "Расписание изменилось, начни заново: /addnote")
			return
		}
		b.answer(callback.ID, "")
		kb := modeKeyboard(idx)
		b.editMessage(chatID, msgID, fmt.Sprintf("<b>%s</b>\n\nДо какой пары действует заметка?", html.EscapeString(disciplines[idx])), &kb)

	case "nm":
		// nm:disciplineIndex:modeIndex
		if len(parts) < 3 {
			return
		}
		idx, m := atoi(parts[1]), atoi(parts[2])
		disciplines := b.scheduleService.Disciplines()
		modes := domain.Modes()
		if idx < 0 || idx >= len(disciplines) || m < 0 || m >= len(modes) {
			b.answer(callback.ID, "Расписание изменилось, начни заново: /addnote")
			return
		}
		b.setPending(chatID, pendingNote{discipline: disciplines[idx], mode: modes[m]})
		b.answer(callback.ID, "")
		b.editMessage(chatID, msgID, fmt.Sprintf("<b>%s</b> (%s)\n\nНапиши текст заметки", html.EscapeString(disciplines[idx]), modes[m]), nil)

	case "ext":
		if len(parts) < 2 {
			return
		}
		note, err := b.noteService.Extend(parts[1])
		if err != nil {
			b.answer(callback.ID, "❌ "+userMessage(err))
			return
		}
		b.answer(callback.ID, "⏩ Продлено до "+formatValidUntil(note.ValidUntil))
		kb := noteKeyboard(note.ID)
		b.editMessage(chatID, msgID, formatNote(note, b.scheduleService.Today()), &kb)

	case "del":
		if len(parts) < 2 {
			return
		}
		if err := b.noteService.Delete(parts[1]); err != nil {
			b.answer(callback.ID, "❌ "+userMessage(err))
			return
		}
		b.answer(callback.ID, "🗑 Удалено")
		b.editMessage(chatID, msgID, "🗑 Заметка удалена", nil)

	case "em":
		// em:noteID:modeIndex
		if len(parts) < 3 {
			return
		}
		modes := domain.Modes()
		m := atoi(parts[2])
		if m < 0 || m >= len(modes) {
			return
		}
		note, err := b.noteService.Get(parts[1])
		if err != nil {
			b.answer(callback.ID, "❌ "+userMessage(err))
			return
		}
		note, err = b.noteService.Edit(note.ID, note.Text, modes[m])
		if err != nil {
			b.answer(callback.ID, "❌ "+userMessage(err))
			return
		}
		b.answer(callback.ID, string(modes[m]))
		kb := noteKeyboard(note.ID)
		b.editMessage(chatID, msgID, formatNote(note, b.scheduleService.Today()), &kb)

	case "per":
		if len(parts) < 2 {
			return
		}
		period := domain.ParsePeriod(parts[1])
		b.answer(callback.ID, "")
		kb := periodKeyboard()
		b.editMessage(chatID, msgID, formatDays(period, b.scheduleService.Days(period), b.scheduleService.Now()), &kb)

	case "set":
		if len(parts) < 2 {
			return
		}
		b.handleSettingsCallback(callback, parts[1:])

	default:
		b.answer(callback.ID, "")
	}
}

func (b *Bot) handleSettingsCallback(callback *tgbotapi.CallbackQuery, parts []string) {
	var s domain.Settings
	switch parts[0] {
	case "notify":
		s = b.settingsService.SetNotifications(!b.settingsService.Get().ScheduleNotifications)
	case "theme":
		b.settingsService.ToggleTheme()
		s = b.settingsService.Get()
	case "expiry":
		if len(parts) < 2 {
			return
		}
		days := b.settingsService.Get().ExpiryDays
		if parts[1] == "+" {
			days++
		} else {
			days--
		}
		var err error
		if s, err = b.settingsService.SetExpiryDays(days); err != nil {
			b.answer(callback.ID, userMessage(err))
			return
		}
	default:
		return
	}

	b.answer(callback.ID, "✅")
	kb := settingsKeyboard(s)
	b.editMessage(callback.Message.Chat.ID, callback.Message.MessageID, formatSettings(s), &kb)
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.out.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.Printf("Error answering callback: %v", err)
	}
}

func (b *Bot) editMessage(chatID int64, msgID int, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = "HTML"
	edit.ReplyMarkup = kb
	if _, err := b.out.Send(edit); err != nil {
		log.Printf("Error editing message: %v", err)
	}
}

// userMessage turns a service error into text for the chat.
func userMessage(err error) string {
	var ue *domain.UserError
	switch {
	case errors.As(err, &ue):
		return ue.Message
	case errors.Is(err, service.ErrNoteNotFound):
		return "Заметка не найдена"
	case errors.Is(err, service.ErrFetchFailed):
		return "Не удалось загрузить расписание, показываю сохранённое"
	default:
		return "Ошибка: " + err.Error()
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

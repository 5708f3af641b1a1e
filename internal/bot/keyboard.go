package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/studentbot/internal/domain"
)

// Discipline picker for a new note. Buttons carry the index into the
// discipline list because names can exceed the callback data limit.
func disciplineKeyboard(disciplines []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, d := range disciplines {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(truncate(d, 40), fmt.Sprintf("nd:%d", i)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Mode picker for the discipline at index idx
func modeKeyboard(idx int) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for m, mode := range domain.Modes() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(string(mode), fmt.Sprintf("nm:%d:%d", idx, m)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Note actions: extend, delete and switch mode
func noteKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	modes := domain.Modes()
	modeRow := make([]tgbotapi.InlineKeyboardButton, 0, len(modes))
	for m, mode := range modes {
		modeRow = append(modeRow, tgbotapi.NewInlineKeyboardButtonData(modeShort(mode), fmt.Sprintf("em:%s:%d", id, m)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏩ Продлить", "ext:"+id),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", "del:"+id),
		),
		modeRow,
	)
}

func modeShort(m domain.Mode) string {
	switch m {
	case domain.ModeLecture:
		return "Лек"
	case domain.ModePractice:
		return "Пр"
	case domain.ModeLab:
		return "Лаб"
	default:
		return "Любая"
	}
}

func periodKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Сегодня", "per:"+string(domain.PeriodToday)),
			tgbotapi.NewInlineKeyboardButtonData("Завтра", "per:"+string(domain.PeriodTomorrow)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Неделя", "per:"+string(domain.PeriodWeek)),
			tgbotapi.NewInlineKeyboardButtonData("Месяц", "per:"+string(domain.PeriodMonth)),
		),
	)
}

func settingsKeyboard(s domain.Settings) tgbotapi.InlineKeyboardMarkup {
	notify := "🔕 Выключить уведомления"
	if !s.ScheduleNotifications {
		notify = "🔔 Включить уведомления"
	}
	theme := "🌙 Тёмная тема"
	if s.Theme == domain.ThemeDark {
		theme = "☀️ Светлая тема"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(notify, "set:notify")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➖ день", "set:expiry:-"),
			tgbotapi.NewInlineKeyboardButtonData("➕ день", "set:expiry:+"),
		),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(theme, "set:theme")),
	)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

package bot

import (
	"context"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/studentbot/internal/domain"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	switch cmd {
	case "start":
		b.cmdStart(msg)
	case "stop":
		b.cmdStop(chatID)
	case "mute":
		b.cmdMute(chatID)
	case "help":
		b.cmdHelp(chatID)
	case "today":
		b.cmdSchedule(chatID, domain.PeriodToday)
	case "tomorrow":
		b.cmdSchedule(chatID, domain.PeriodTomorrow)
	case "week":
		b.cmdSchedule(chatID, domain.PeriodWeek)
	case "month":
		b.cmdSchedule(chatID, domain.PeriodMonth)
	case "disciplines":
		b.SendMessage(chatID, formatDisciplines(b.scheduleService.Disciplines()))
	case "next":
		b.cmdNext(chatID, args)
	case "notes":
		b.cmdNotes(chatID)
	case "addnote":
		b.cmdAddNote(chatID)
	case "editnote":
		b.cmdEditNote(chatID, args)
	case "extend":
		b.cmdExtend(chatID, args)
	case "delnote":
		b.cmdDeleteNote(chatID, args)
	case "changes":
		b.cmdChanges(chatID)
	case "refresh":
		b.cmdRefresh(ctx, chatID)
	case "group":
		b.cmdGroup(ctx, chatID, args)
	case "settings":
		b.cmdSettings(chatID)
	case "notify":
		b.cmdNotify(chatID, args)
	case "expiry":
		b.cmdExpiry(chatID, args)
	case "theme":
		theme := b.settingsService.ToggleTheme()
		b.SendMessage(chatID, "🎨 Тема: "+theme)
	default:
		b.SendMessage(chatID, "Неизвестная команда. /help для списка команд")
	}
}

func (b *Bot) cmdStart(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	name := msg.From.FirstName
	if msg.From.LastName != "" {
		name += " " + msg.From.LastName
	}

	if err := b.subscribers.Subscribe(chatID, name); err != nil {
		log.Printf("Error subscribing chat %d: %v", chatID, err)
		b.SendMessage(chatID, "❌ Ошибка подписки: "+err.Error())
		return
	}

	text := fmt.Sprintf("👋 Привет, %s!\n\nЯ показываю расписание и напоминаю о заметках к парам.", html.EscapeString(name))
	if b.settingsService.Get().GroupID == "" {
		text += "\n\nСначала выбери группу: /group 26616"
	}
	text += "\n\n/help — список команд"
	b.SendMessage(chatID, text)
}

func (b *Bot) cmdStop(chatID int64) {
	if err := b.subscribers.Unsubscribe(chatID); err != nil {
		b.SendMessage(chatID, "❌ Ошибка: "+err.Error())
		return
	}
	b.SendMessage(chatID, "🔕 Уведомления для этого чата отключены. /start — включить снова")
}

// cmdMute toggles notifications for the chat without dropping its subscription.
func (b *Bot) cmdMute(chatID int64) {
	sub, err := b.subscribers.GetSubscriber(chatID)
	if err != nil {
		b.SendMessage(chatID, "❌ Ошибка: "+err.Error())
		return
	}
	if sub == nil {
		b.SendMessage(chatID, "Чат не подписан. /start — подписаться")
		return
	}

	if err := b.subscribers.SetMuted(chatID, !sub.Muted); err != nil {
		log.Printf("Error muting chat %d: %v", chatID, err)
		b.SendMessage(chatID, "❌ Ошибка: "+err.Error())
		return
	}
	if sub.Muted {
		b.SendMessage(chatID, "🔔 Уведомления снова включены")
	} else {
		b.SendMessage(chatID, "🔇 Уведомления приглушены. /mute — включить")
	}
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `<b>Команды:</b>

<b>Расписание</b>
/today — пары на сегодня
/tomorrow — пары на завтра
/week — неделя
/month — месяц
/disciplines — список дисциплин
/next дисциплина; режим — когда следующая пара
/changes — последние изменения
/refresh — обновить расписание

<b>Заметки</b>
/notes — список заметок
/addnote — новая заметка
/editnote N текст — изменить текст
/extend N — продлить до следующей пары
/delnote N — удалить

<b>Настройки</b>
/group ID — выбрать группу (/group reset — сбросить)
/settings — настройки
/notify on|off — уведомления об изменениях
/expiry N — за сколько дней напоминать о заметках
/theme — сменить тему
/mute — приглушить уведомления в этом чате (повторно — включить)
/stop — отписаться от уведомлений`

	b.SendMessage(chatID, text)
}

func (b *Bot) cmdSchedule(chatID int64, period domain.Period) {
	days := b.scheduleService.Days(period)
	b.SendMessageWithKeyboard(chatID, formatDays(period, days, b.scheduleService.Now()), periodKeyboard())
}

// cmdNext handles "/next Математика; practice".
func (b *Bot) cmdNext(chatID int64, args string) {
	if args == "" {
		b.SendMessage(chatID, "Укажи дисциплину: /next Математика; лекция")
		return
	}

	discipline, modeArg, _ := strings.Cut(args, ";")
	mode := domain.ModeUntilNextClass
	if strings.TrimSpace(modeArg) != "" {
		m, ok := domain.ParseMode(modeArg)
		if !ok {
			b.SendMessage(chatID, "Неизвестный режим. Варианты: лекция, практика, лабораторная, любая")
			return
		}
		mode = m
	}

	discipline = b.matchDiscipline(strings.TrimSpace(discipline))
	date := b.scheduleService.NextOccurrence(discipline, mode, b.scheduleService.Today())
	b.SendMessage(chatID, fmt.Sprintf("📚 <b>%s</b> (%s)\nСледующая пара: %s",
		html.EscapeString(discipline), html.EscapeString(string(mode)), formatValidUntil(date)))
}

// matchDiscipline maps user input to a discipline name, ignoring case.
func (b *Bot) matchDiscipline(input string) string {
	for _, d := range b.scheduleService.Disciplines() {
		if strings.EqualFold(d, input) {
			return d
		}
	}
	lower := strings.ToLower(input)
	for _, d := range b.scheduleService.Disciplines() {
		if strings.Contains(strings.ToLower(d), lower) {
			return d
		}
	}
	return input
}

func (b *Bot) cmdNotes(chatID int64) {
	notes := b.noteService.List()
	b.SendMessage(chatID, formatNotes(notes, b.scheduleService.Today()))
}

func (b *Bot) cmdAddNote(chatID int64) {
	disciplines := b.scheduleService.Disciplines()
	if len(disciplines) == 0 {
		b.SendMessage(chatID, "📚 "+domain.NoDisciplines+". Выбери группу: /group ID")
		return
	}
	b.SendMessageWithKeyboard(chatID, "Выбери дисциплину:", disciplineKeyboard(disciplines))
}

// noteByNumber resolves the 1-based position shown by /notes.
func (b *Bot) noteByNumber(arg string) (domain.Note, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	notes := b.noteService.List()
	if err != nil || n < 1 || n > len(notes) {
		return domain.Note{}, false
	}
	return notes[n-1], true
}

func (b *Bot) cmdEditNote(chatID int64, args string) {
	num, text, _ := strings.Cut(args, " ")
	note, ok := b.noteByNumber(num)
	if !ok {
		b.SendMessage(chatID, "Укажи номер заметки и новый текст: /editnote 1 Принести тетрадь")
		return
	}

	updated, err := b.noteService.Edit(note.ID, text, note.Mode)
	if err != nil {
		b.SendMessage(chatID, "❌ "+userMessage(err))
		return
	}
	b.SendMessageWithKeyboard(chatID, "✏️ Заметка изменена\n\n"+formatNote(updated, b.scheduleService.Today()), noteKeyboard(updated.ID))
}

func (b *Bot) cmdExtend(chatID int64, args string) {
	note, ok := b.noteByNumber(args)
	if !ok {
		b.SendMessage(chatID, "Укажи номер заметки: /extend 1")
		return
	}

	updated, err := b.noteService.Extend(note.ID)
	if err != nil {
		b.SendMessage(chatID, "❌ "+userMessage(err))
		return
	}
	b.SendMessage(chatID, "⏩ Заметка продлена\n\n"+formatNote(updated, b.scheduleService.Today()))
}

func (b *Bot) cmdDeleteNote(chatID int64, args string) {
	note, ok := b.noteByNumber(args)
	if !ok {
		b.SendMessage(chatID, "Укажи номер заметки: /delnote 1")
		return
	}

	if err := b.noteService.Delete(note.ID); err != nil {
		b.SendMessage(chatID, "❌ "+userMessage(err))
		return
	}
	b.SendMessage(chatID, "🗑 Заметка удалена")
}

func (b *Bot) cmdChanges(chatID int64) {
	records, err := b.scheduleService.History(10)
	if err != nil {
		b.SendMessage(chatID, "❌ Ошибка: "+err.Error())
		return
	}
	b.SendMessage(chatID, formatHistory(records, b.cfg.Timezone))
}

func (b *Bot) cmdRefresh(ctx context.Context, chatID int64) {
	changes, err := b.scheduleService.Refresh(ctx)
	if err != nil {
		b.SendMessage(chatID, "❌ "+userMessage(err))
		return
	}
	if len(changes) == 0 {
		if !b.settingsService.Get().ScheduleNotifications {
			b.SendMessage(chatID, "✅ Расписание обновлено. Изменения не отслеживаются: уведомления выключены (/notify on)")
			return
		}
		b.SendMessage(chatID, "✅ Расписание обновлено, изменений нет")
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("✅ Расписание обновлено, изменений: %d\n\n%s", len(changes), formatNoticeBody(changes.String())))
}

func (b *Bot) cmdGroup(ctx context.Context, chatID int64, args string) {
	switch {
	case args == "":
		group := b.settingsService.Get().GroupID
		if group == "" {
			b.SendMessage(chatID, "Группа не выбрана. /group 26616")
			return
		}
		b.SendMessage(chatID, "👥 Группа: "+html.EscapeString(group))
		return
	case strings.EqualFold(args, "reset"):
		b.scheduleService.ChangeGroup()
		b.SendMessage(chatID, "Группа сброшена, заметки удалены. /group ID — выбрать новую")
		return
	}

	snap, err := b.scheduleService.SelectGroup(ctx, args)
	if err != nil {
		b.SendMessage(chatID, "❌ "+userMessage(err))
		return
	}
	text := fmt.Sprintf("✅ Группа %s выбрана\n\n%s", html.EscapeString(snap.GroupID), formatDisciplines(domain.UniqueDisciplines(snap.Schedules)))
	b.SendMessage(chatID, text)
}

func (b *Bot) cmdSettings(chatID int64) {
	s := b.settingsService.Get()
	b.SendMessageWithKeyboard(chatID, formatSettings(s), settingsKeyboard(s))
}

func (b *Bot) cmdNotify(chatID int64, args string) {
	var on bool
	switch strings.ToLower(args) {
	case "on", "вкл":
		on = true
	case "off", "выкл":
	default:
		b.SendMessage(chatID, "Используй: /notify on или /notify off")
		return
	}
	s := b.settingsService.SetNotifications(on)
	b.SendMessage(chatID, formatSettings(s))
}

func (b *Bot) cmdExpiry(chatID int64, args string) {
	days, err := strconv.Atoi(args)
	if err != nil {
		b.SendMessage(chatID, "Укажи число дней: /expiry 3")
		return
	}
	s, err := b.settingsService.SetExpiryDays(days)
	if err != nil {
		b.SendMessage(chatID, "❌ "+userMessage(err))
		return
	}
	b.SendMessage(chatID, formatSettings(s))
}

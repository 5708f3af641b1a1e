package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/tazhate/studentbot/internal/domain"
	"github.com/tazhate/studentbot/internal/storage"
)

var periodTitles = map[domain.Period]string{
	domain.PeriodToday:    "Сегодня",
	domain.PeriodTomorrow: "Завтра",
	domain.PeriodWeek:     "Неделя",
	domain.PeriodMonth:    "Месяц",
}

var dayStatusLabels = map[domain.DayStatus]string{
	domain.DayToday:    " · сегодня",
	domain.DayTomorrow: " · завтра",
}

func statusEmoji(s domain.NoteStatus) string {
	switch s {
	case domain.StatusStale:
		return "⚫"
	case domain.StatusExpired:
		return "🔴"
	case domain.StatusDueSoon:
		return "🟡"
	default:
		return "🟢"
	}
}

// formatDays renders the lessons of a period. The running lesson is marked
// with its bell times.
func formatDays(period domain.Period, days []domain.DatedDay, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 <b>%s</b>\n", periodTitles[period])

	if len(days) == 0 {
		sb.WriteString("\nПар нет 🎉")
		return sb.String()
	}

	for _, d := range days {
		status := domain.StatusOfDay(d.Date, now)
		fmt.Fprintf(&sb, "\n<b>%s %s</b>%s\n", html.EscapeString(d.Day.DayWeek), domain.FormatDate(d.Date), dayStatusLabels[status])

		for _, l := range d.Day.MainSchedule {
			marker := "•"
			if domain.IsCurrent(d.Date, l, now) {
				marker = "▶️"
			}
			fmt.Fprintf(&sb, "%s %s <b>%s</b>", marker, l.TimeRange(), html.EscapeString(l.Discipline()))
			if t := l.Type(); t != "" {
				fmt.Fprintf(&sb, " (%s)", html.EscapeString(t))
			}
			if r := l.Room(); r != "" {
				fmt.Fprintf(&sb, ", ауд. %s", html.EscapeString(r))
			}
			if teacher := l.Teacher(); teacher != "" {
				fmt.Fprintf(&sb, ", %s", html.EscapeString(teacher))
			}
			sb.WriteString("\n")

			if marker != "•" {
				if brk, end, ok := domain.Bells(l.TimeStart()); ok {
					fmt.Fprintf(&sb, "   🔔 перерыв %s, конец %s\n", brk, end)
				}
			}
		}
	}
	return sb.String()
}

func formatNotes(notes []domain.Note, today time.Time) string {
	if len(notes) == 0 {
		return "📝 Заметок нет\n\n/addnote — добавить"
	}

	var sb strings.Builder
	sb.WriteString("📝 <b>Заметки</b>\n")
	for i, n := range notes {
		fmt.Fprintf(&sb, "\n%d. %s <b>%s</b> (%s)\n   %s\n   до %s\n",
			i+1,
			statusEmoji(n.Status(today)),
			html.EscapeString(n.Discipline),
			html.EscapeString(string(n.Mode)),
			html.EscapeString(n.Text),
			formatValidUntil(n.ValidUntil),
		)
	}
	sb.WriteString("\n/editnote N текст · /extend N · /delnote N")
	return sb.String()
}

func formatNote(n domain.Note, today time.Time) string {
	return fmt.Sprintf("%s <b>%s</b> (%s)\n%s\nдо %s",
		statusEmoji(n.Status(today)),
		html.EscapeString(n.Discipline),
		html.EscapeString(string(n.Mode)),
		html.EscapeString(n.Text),
		formatValidUntil(n.ValidUntil),
	)
}

func formatValidUntil(v string) string {
	if v == domain.UnknownDate {
		return "неизвестно"
	}
	return v
}

func formatDisciplines(disciplines []string) string {
	if len(disciplines) == 0 {
		return "📚 " + domain.NoDisciplines
	}
	var sb strings.Builder
	sb.WriteString("📚 <b>Дисциплины</b>\n\n")
	for _, d := range disciplines {
		sb.WriteString("• " + html.EscapeString(d) + "\n")
	}
	return sb.String()
}

func formatHistory(records []*storage.ChangeRecord, tz *time.Location) string {
	if len(records) == 0 {
		return "Изменений в расписании не было"
	}
	var sb strings.Builder
	sb.WriteString("🔄 <b>Изменения расписания</b>\n\n")
	for _, r := range records {
		fmt.Fprintf(&sb, "<i>%s</i> %s\n", r.DetectedAt.In(tz).Format("02.01 15:04"), html.EscapeString(r.Text))
	}
	return sb.String()
}

func formatSettings(s domain.Settings) string {
	notifications := "выкл"
	if s.ScheduleNotifications {
		notifications = "вкл"
	}
	group := s.GroupID
	if group == "" {
		group = "не выбрана"
	}
	return fmt.Sprintf("⚙️ <b>Настройки</b>\n\nГруппа: %s\nУведомления об изменениях: %s\nНапоминать о заметках за: %d дн.\nТема: %s\n\n/group ID · /notify on|off · /expiry N · /theme",
		html.EscapeString(group), notifications, s.ExpiryDays, s.Theme)
}

// formatNoticeBody puts each "; " separated change on its own line.
func formatNoticeBody(body string) string {
	lines := strings.Split(body, "; ")
	for i, l := range lines {
		lines[i] = "• " + html.EscapeString(l)
	}
	return strings.Join(lines, "\n")
}

package domain

import (
	"sort"
	"time"
)

// Period is one of the schedule views.
type Period string

const (
	PeriodToday    Period = "today"
	PeriodTomorrow Period = "tomorrow"
	PeriodWeek     Period = "week"
	PeriodMonth    Period = "month"
)

// ParsePeriod defaults to PeriodToday for unknown input.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case PeriodTomorrow, PeriodWeek, PeriodMonth:
		return Period(s)
	}
	return PeriodToday
}

// Range returns the inclusive date range of the period around today.
// Weeks start on Monday.
func (p Period) Range(today time.Time) (from, to time.Time) {
	today = DateOnly(today)
	switch p {
	case PeriodTomorrow:
		t := today.AddDate(0, 0, 1)
		return t, t
	case PeriodWeek:
		offset := (int(today.Weekday()) + 6) % 7
		from = today.AddDate(0, 0, -offset)
		return from, from.AddDate(0, 0, 6)
	case PeriodMonth:
		from = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, -1)
	default:
		return today, today
	}
}

// DatedDay is a schedule day with its parsed date.
type DatedDay struct {
	Date time.Time
	Day  Day
}

// DaysBetween returns the days of s within [from, to], ordered by date.
// Days of several groups on the same date are kept separately.
func DaysBetween(s Schedule, from, to time.Time) []DatedDay {
	from, to = DateOnly(from), DateOnly(to)
	var out []DatedDay
	s.EachDay(func(_ int, d Day) {
		date, err := d.Date()
		if err != nil {
			logSkippedDate("period view", d.DatePair, err)
			return
		}
		if date.Before(from) || date.After(to) {
			return
		}
		out = append(out, DatedDay{Date: date, Day: d})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// DayStatus classifies a date relative to today for highlighting.
type DayStatus string

const (
	DayPast     DayStatus = "past"
	DayToday    DayStatus = "today"
	DayTomorrow DayStatus = "tomorrow"
	DayFuture   DayStatus = "future"
)

func StatusOfDay(date, today time.Time) DayStatus {
	date, today = DateOnly(date), DateOnly(today)
	switch {
	case date.Before(today):
		return DayPast
	case date.Equal(today):
		return DayToday
	case date.Equal(today.AddDate(0, 0, 1)):
		return DayTomorrow
	default:
		return DayFuture
	}
}

// bellSchedule maps a lesson start to the end of its two halves.
var bellSchedule = map[string][2]string{
	"08:30": {"09:15", "10:00"},
	"10:15": {"11:00", "11:45"},
	"12:00": {"12:45", "13:30"},
	"13:45": {"14:30", "15:15"},
	"15:30": {"16:15", "17:00"},
	"17:15": {"18:00", "18:45"},
	"19:00": {"19:45", "20:30"},
}

// Bells returns the break and end times for a lesson starting at start.
func Bells(start string) (breakAt, endAt string, ok bool) {
	b, ok := bellSchedule[start]
	return b[0], b[1], ok
}

// lessonLength is how long a lesson is treated as running.
const lessonLength = 90 * time.Minute

// IsCurrent reports whether the lesson on date is running at now.
func IsCurrent(date time.Time, l Lesson, now time.Time) bool {
	if !DateOnly(date).Equal(DateOnly(now)) {
		return false
	}
	start, err := l.StartClock()
	if err != nil {
		return false
	}
	clock := time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute
	return start <= clock && clock-start <= lessonLength
}

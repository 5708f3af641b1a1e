package domain

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the DD.MM.YYYY format used by the schedule API and by notes.
const DateLayout = "02.01.2006"

// ErrInvalidSchedule is wrapped by every structural validation failure.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Schedule is the full fetched calendar: one entry per group, paired by position.
type Schedule []GroupSchedule

// GroupSchedule is either an error marker or a list of months.
type GroupSchedule struct {
	Error *string `json:"error,omitempty"`
	Month []Month `json:"Month,omitempty"`
}

// Month groups schedule days.
type Month struct {
	Sched []Day `json:"Sched"`
}

// Day is a single calendar date with its lessons.
type Day struct {
	DatePair     string   `json:"datePair"`
	DayWeek      string   `json:"dayWeek"`
	MainSchedule []Lesson `json:"mainSchedule"`
}

// Failed returns a group schedule carrying only an error message.
func Failed(msg string) GroupSchedule {
	return GroupSchedule{Error: &msg}
}

// Failedf is Failed with fmt formatting.
func Failedf(format string, args ...any) GroupSchedule {
	return Failed(fmt.Sprintf(format, args...))
}

// HasError reports whether the schedule carries the error key.
func (g GroupSchedule) HasError() bool {
	return g.Error != nil
}

// ErrorMessage returns the error text or an empty string.
func (g GroupSchedule) ErrorMessage() string {
	if g.Error == nil {
		return ""
	}
	return *g.Error
}

// Validate checks the structure required before a fetched schedule may
// replace the cached one.
func (g GroupSchedule) Validate() error {
	if g.HasError() {
		return fmt.Errorf("%w: %s", ErrInvalidSchedule, *g.Error)
	}
	if len(g.Month) == 0 {
		return fmt.Errorf("%w: no Month", ErrInvalidSchedule)
	}
	for mi, m := range g.Month {
		if len(m.Sched) == 0 {
			return fmt.Errorf("%w: month %d has no Sched", ErrInvalidSchedule, mi)
		}
		for _, d := range m.Sched {
			if strings.TrimSpace(d.DatePair) == "" {
				return fmt.Errorf("%w: day without datePair in month %d", ErrInvalidSchedule, mi)
			}
			if len(d.MainSchedule) == 0 {
				return fmt.Errorf("%w: day %s has no mainSchedule", ErrInvalidSchedule, d.DatePair)
			}
			for _, l := range d.MainSchedule {
				if l.Discipline() == "" {
					return fmt.Errorf("%w: lesson without discipline on %s", ErrInvalidSchedule, d.DatePair)
				}
			}
		}
	}
	return nil
}

// IsValid is Validate without the reason.
func (g GroupSchedule) IsValid() bool {
	return g.Validate() == nil
}

// AnyValid reports whether at least one group schedule passes validation.
func (s Schedule) AnyValid() bool {
	for _, g := range s {
		if g.IsValid() {
			return true
		}
	}
	return false
}

// AllFailed reports whether every entry is an error marker (true for an empty schedule).
func (s Schedule) AllFailed() bool {
	for _, g := range s {
		if !g.HasError() {
			return false
		}
	}
	return true
}

// Errors collects the messages of all error entries.
func (s Schedule) Errors() []string {
	var out []string
	for _, g := range s {
		if g.HasError() {
			out = append(out, *g.Error)
		}
	}
	return out
}

// EachDay calls fn for every day of every non-error group schedule.
func (s Schedule) EachDay(fn func(group int, d Day)) {
	for gi, g := range s {
		if g.HasError() {
			continue
		}
		for _, m := range g.Month {
			for _, d := range m.Sched {
				fn(gi, d)
			}
		}
	}
}

// EachLesson calls fn for every lesson of every non-error group schedule.
func (s Schedule) EachLesson(fn func(d Day, l Lesson)) {
	s.EachDay(func(_ int, d Day) {
		for _, l := range d.MainSchedule {
			fn(d, l)
		}
	})
}

// Date parses datePair.
func (d Day) Date() (time.Time, error) {
	return ParseDate(d.DatePair)
}

// ParseDate parses a DD.MM.YYYY string as a calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// FormatDate renders t as DD.MM.YYYY.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DateOnly strips the clock and location so dates compare by calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Lesson keeps the raw source object so fields we do not model survive
// a save/load cycle. Logical fields are read through the accessors below.
type Lesson map[string]any

var (
	disciplineKeys = []string{"SubjName", "Dis", "SubjSN"}
	typeKeys       = []string{"LoadKindSN", "Type"}
	roomKeys       = []string{"Aud", "Room"}
	teacherKeys    = []string{"FIO", "Teacher"}
	timeStartKeys  = []string{"TimeStart", "timeStart"}
	timeEndKeys    = []string{"TimeEnd", "timeEnd"}
)

func (l Lesson) first(keys []string) string {
	for _, k := range keys {
		v, ok := l[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			s = strconv.Itoa(val)
		case bool:
			s = strconv.FormatBool(val)
		default:
			s = fmt.Sprint(val)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func (l Lesson) Discipline() string { return l.first(disciplineKeys) }
func (l Lesson) Type() string       { return l.first(typeKeys) }
func (l Lesson) Room() string       { return l.first(roomKeys) }
func (l Lesson) Teacher() string    { return l.first(teacherKeys) }
func (l Lesson) TimeStart() string  { return l.first(timeStartKeys) }
func (l Lesson) TimeEnd() string    { return l.first(timeEndKeys) }

// TimeRange returns "start-end", or just start when the end is unknown.
func (l Lesson) TimeRange() string {
	if end := l.TimeEnd(); end != "" {
		return l.TimeStart() + "-" + end
	}
	return l.TimeStart()
}

// StartClock parses TimeStart as HH:MM.
func (l Lesson) StartClock() (time.Duration, error) {
	t, err := time.Parse("15:04", l.TimeStart())
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// ScrapedLesson builds a lesson using the field names of the HTML source.
func ScrapedLesson(discipline, lessonType, room, teacher, start, end string) Lesson {
	return Lesson{
		"Dis":       discipline,
		"Type":      lessonType,
		"Room":      room,
		"Teacher":   teacher,
		"timeStart": start,
		"timeEnd":   end,
	}
}

func logSkippedDate(where, value string, err error) {
	log.Printf("%s: skipping day with invalid date %q: %v", where, value, err)
}

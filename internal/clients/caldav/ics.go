package caldav

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/tazhate/studentbot/internal/domain"
)

const (
	uidSuffix = "@studentbot"
	productID = "-//StudentBot//Schedule//EN"

	defaultLessonLength = 90 * time.Minute
)

// LessonEvents turns every lesson of s into an event. UIDs are derived from
// the group position, date, start time, discipline and type, so re-exporting
// the same schedule yields the same UIDs. A repeated key gets a counter.
func LessonEvents(s domain.Schedule, tz *time.Location) []Event {
	var events []Event
	seen := map[string]int{}
	s.EachDay(func(gi int, d domain.Day) {
		date, err := d.Date()
		if err != nil {
			return
		}
		for _, l := range d.MainSchedule {
			key := lessonKey(gi, domain.FormatDate(date), l)
			if n := seen[key]; n > 0 {
				seen[key] = n + 1
				key = fmt.Sprintf("%s|%d", key, n)
			} else {
				seen[key] = 1
			}
			events = append(events, lessonEvent(date, l, tz, key))
		}
	})
	return events
}

func lessonEvent(date time.Time, l domain.Lesson, tz *time.Location, key string) Event {
	ev := Event{
		UID:         lessonUID(key),
		Summary:     l.Discipline(),
		Location:    l.Room(),
		Description: strings.TrimSpace(strings.Join([]string{l.Type(), l.Teacher()}, "\n")),
	}
	if t := l.Type(); t != "" {
		ev.Summary = fmt.Sprintf("%s (%s)", l.Discipline(), t)
	}

	start, err := l.StartClock()
	if err != nil {
		ev.AllDay = true
		ev.StartTime = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, tz)
		ev.EndTime = ev.StartTime.AddDate(0, 0, 1)
		return ev
	}

	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, tz)
	ev.StartTime = midnight.Add(start)
	ev.EndTime = ev.StartTime.Add(defaultLessonLength)
	if end, err := time.Parse("15:04", l.TimeEnd()); err == nil {
		e := midnight.Add(time.Duration(end.Hour())*time.Hour + time.Duration(end.Minute())*time.Minute)
		if e.After(ev.StartTime) {
			ev.EndTime = e
		}
	}
	return ev
}

func lessonKey(group int, date string, l domain.Lesson) string {
	return strings.Join([]string{strconv.Itoa(group), date, l.TimeStart(), l.Discipline(), l.Type()}, "|")
}

func lessonUID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String() + uidSuffix
}

// ownUID reports whether the event was created by this exporter.
func ownUID(uid string) bool {
	return strings.HasSuffix(uid, uidSuffix)
}

// ScheduleCalendar builds a VCALENDAR holding every lesson of s.
func ScheduleCalendar(s domain.Schedule, tz *time.Location, stamp time.Time) *ical.Calendar {
	cal := newCalendar()
	for _, ev := range LessonEvents(s, tz) {
		cal.Children = append(cal.Children, eventComponent(ev, stamp))
	}
	return cal
}

// WriteICS encodes the schedule as an .ics document.
func WriteICS(w io.Writer, s domain.Schedule, tz *time.Location, stamp time.Time) error {
	return ical.NewEncoder(w).Encode(ScheduleCalendar(s, tz, stamp))
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

// eventToICS wraps a single event in its own calendar object for PUT.
func eventToICS(ev Event, stamp time.Time) *ical.Calendar {
	cal := newCalendar()
	cal.Children = append(cal.Children, eventComponent(ev, stamp))
	return cal
}

func eventComponent(ev Event, stamp time.Time) *ical.Component {
	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, ev.UID)
	vevent.Props.SetText(ical.PropSummary, ev.Summary)
	if ev.Description != "" {
		vevent.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		vevent.Props.SetText(ical.PropLocation, ev.Location)
	}

	if ev.AllDay {
		vevent.Props.SetDate(ical.PropDateTimeStart, ev.StartTime)
		vevent.Props.SetDate(ical.PropDateTimeEnd, ev.EndTime)
	} else {
		vevent.Props.SetDateTime(ical.PropDateTimeStart, ev.StartTime.UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, ev.EndTime.UTC())
	}
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())

	return vevent.Component
}

// parseEvent reads the first VEVENT of a calendar object.
func parseEvent(cal *ical.Calendar) (Event, bool) {
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		ev := Event{}
		if prop := comp.Props.Get(ical.PropUID); prop != nil {
			ev.UID = prop.Value
		}
		if prop := comp.Props.Get(ical.PropSummary); prop != nil {
			ev.Summary = prop.Value
		}
		if prop := comp.Props.Get(ical.PropDescription); prop != nil {
			ev.Description = prop.Value
		}
		if prop := comp.Props.Get(ical.PropLocation); prop != nil {
			ev.Location = prop.Value
		}
		if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil {
			if t, err := prop.DateTime(time.UTC); err == nil {
				ev.StartTime = t
			}
			if prop.Params.Get(ical.ParamValue) == string(ical.ValueDate) {
				ev.AllDay = true
			}
		}
		if prop := comp.Props.Get(ical.PropDateTimeEnd); prop != nil {
			if t, err := prop.DateTime(time.UTC); err == nil {
				ev.EndTime = t
			}
		}
		return ev, true
	}
	return Event{}, false
}

package domain

import (
	"fmt"
	"strings"
)

// DiffKey selects how lessons of two snapshots are paired.
type DiffKey string

const (
	// KeyDateDisciplineTime pairs lessons by (date, discipline, start time).
	// A different discipline in the same slot is reported as a new lesson.
	KeyDateDisciplineTime DiffKey = "discipline"
	// KeyDateTime pairs lessons by (date, start time) only. When two
	// disciplines share a slot the last one in document order wins.
	KeyDateTime DiffKey = "slot"
)

// ParseDiffKey maps a config value to a DiffKey, defaulting to
// KeyDateDisciplineTime.
func ParseDiffKey(s string) DiffKey {
	if DiffKey(strings.ToLower(strings.TrimSpace(s))) == KeyDateTime {
		return KeyDateTime
	}
	return KeyDateDisciplineTime
}

type ChangeKind string

const (
	ChangeNew      ChangeKind = "new"
	ChangeModified ChangeKind = "modified"
)

// FieldChange is one differing field of a lesson.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

func (f FieldChange) String() string {
	return fmt.Sprintf("%s: %s → %s", f.Field, f.Old, f.New)
}

// Change describes one lesson that is new or differs from the previous snapshot.
type Change struct {
	Kind       ChangeKind    `json:"kind"`
	Date       string        `json:"date"`
	Discipline string        `json:"discipline"`
	TimeStart  string        `json:"time_start"`
	Fields     []FieldChange `json:"fields,omitempty"`
}

func (c Change) String() string {
	if c.Kind == ChangeNew {
		return fmt.Sprintf("new lesson: %s (%s)", c.Discipline, c.Date)
	}
	parts := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("%s (%s): %s", c.Discipline, c.Date, strings.Join(parts, ", "))
}

// Changes is the result of Diff.
type Changes []Change

// Lines renders every change.
func (cs Changes) Lines() []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.String())
	}
	return out
}

// String joins all lines into one notification body.
func (cs Changes) String() string {
	return strings.Join(cs.Lines(), "; ")
}

type lessonKey struct {
	date       string
	discipline string
	start      string
}

func (k DiffKey) of(date string, l Lesson) lessonKey {
	key := lessonKey{date: date, start: l.TimeStart()}
	if k != KeyDateTime {
		key.discipline = l.Discipline()
	}
	return key
}

// Diff compares two snapshots group by group. Pairs where either side is an
// error marker are skipped.
func Diff(prev, next Schedule, key DiffKey) Changes {
	var changes Changes
	n := len(prev)
	if len(next) < n {
		n = len(next)
	}
	for i := 0; i < n; i++ {
		if prev[i].HasError() || next[i].HasError() {
			continue
		}
		changes = append(changes, diffGroup(prev[i], next[i], key)...)
	}
	return changes
}

func diffGroup(prev, next GroupSchedule, key DiffKey) []Change {
	old := make(map[lessonKey]Lesson)
	eachDatedLesson(prev, func(date string, l Lesson) {
		old[key.of(date, l)] = l
	})

	// With KeyDateTime a later lesson in the same slot replaces an earlier one,
	// so collect the survivors first and report them in document order.
	type slot struct {
		date   string
		lesson Lesson
	}
	latest := make(map[lessonKey]int)
	var order []slot
	eachDatedLesson(next, func(date string, l Lesson) {
		k := key.of(date, l)
		if idx, ok := latest[k]; ok {
			order[idx] = slot{date, l}
			return
		}
		latest[k] = len(order)
		order = append(order, slot{date, l})
	})

	var out []Change
	for _, s := range order {
		nl := s.lesson
		ol, ok := old[key.of(s.date, nl)]
		if !ok {
			out = append(out, Change{
				Kind:       ChangeNew,
				Date:       s.date,
				Discipline: nl.Discipline(),
				TimeStart:  nl.TimeStart(),
			})
			continue
		}
		if fields := compareLessons(ol, nl); len(fields) > 0 {
			out = append(out, Change{
				Kind:       ChangeModified,
				Date:       s.date,
				Discipline: nl.Discipline(),
				TimeStart:  nl.TimeStart(),
				Fields:     fields,
			})
		}
	}
	return out
}

func compareLessons(old, cur Lesson) []FieldChange {
	var fields []FieldChange
	if old.Type() != cur.Type() {
		fields = append(fields, FieldChange{Field: "Type", Old: old.Type(), New: cur.Type()})
	}
	if old.Room() != cur.Room() {
		fields = append(fields, FieldChange{Field: "Room", Old: old.Room(), New: cur.Room()})
	}
	if old.TimeStart() != cur.TimeStart() || old.TimeEnd() != cur.TimeEnd() {
		fields = append(fields, FieldChange{Field: "Time", Old: old.TimeRange(), New: cur.TimeRange()})
	}
	return fields
}

// eachDatedLesson walks lessons whose day has a parsable date.
func eachDatedLesson(g GroupSchedule, fn func(date string, l Lesson)) {
	for _, m := range g.Month {
		for _, d := range m.Sched {
			if _, err := d.Date(); err != nil {
				logSkippedDate("diff", d.DatePair, err)
				continue
			}
			for _, l := range d.MainSchedule {
				fn(d.DatePair, l)
			}
		}
	}
}

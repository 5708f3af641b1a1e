package domain

import (
	"log"
	"sort"
	"time"
)

// UniqueDisciplines returns the sorted set of disciplines taught in s.
func UniqueDisciplines(s Schedule) []string {
	seen := make(map[string]struct{})
	s.EachLesson(func(d Day, l Lesson) {
		name := l.Discipline()
		if name == "" {
			log.Printf("disciplines: lesson without discipline on %s", d.DatePair)
			return
		}
		seen[name] = struct{}{}
	})

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NextOccurrence finds the earliest date strictly after ref on which
// discipline has a lesson accepted by mode.
func NextOccurrence(s Schedule, discipline string, mode Mode, ref time.Time) (time.Time, bool) {
	ref = DateOnly(ref)
	var next time.Time
	found := false

	s.EachDay(func(_ int, d Day) {
		date, err := d.Date()
		if err != nil {
			logSkippedDate("next occurrence", d.DatePair, err)
			return
		}
		if !date.After(ref) {
			return
		}
		if found && !date.Before(next) {
			return
		}
		for _, l := range d.MainSchedule {
			if l.Discipline() != discipline || !mode.Matches(l.Type()) {
				continue
			}
			next = date
			found = true
			return
		}
	})

	return next, found
}

// NextValidUntil is NextOccurrence rendered as a note expiry value.
func NextValidUntil(s Schedule, discipline string, mode Mode, ref time.Time) string {
	next, ok := NextOccurrence(s, discipline, mode, ref)
	if !ok {
		log.Printf("no upcoming lessons for %s (%s) after %s", discipline, mode, FormatDate(ref))
		return UnknownDate
	}
	return FormatDate(next)
}

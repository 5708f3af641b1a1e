package ursei

import (
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tazhate/studentbot/internal/domain"
)

// Column order of the legacy timetable table.
const (
	colDate = iota
	colWeekday
	colTime
	colDiscipline
	colType
	colRoom
	colTeacher
	columnCount
)

// parseTables turns timetable rows into months of days. A row with an empty
// date cell, or without the date and weekday cells because the row above
// spans them with rowspan, belongs to the date of the row above it.
func parseTables(tables *goquery.Selection) domain.GroupSchedule {
	var (
		months   []domain.Month
		monthIdx = map[string]int{}
		curDate  string
		curWeek  string
	)

	dayFor := func(date, weekday string) *domain.Day {
		key := monthKey(date)
		mi, ok := monthIdx[key]
		if !ok {
			months = append(months, domain.Month{})
			mi = len(months) - 1
			monthIdx[key] = mi
		}
		m := &months[mi]
		if n := len(m.Sched); n > 0 && m.Sched[n-1].DatePair == date {
			return &m.Sched[n-1]
		}
		m.Sched = append(m.Sched, domain.Day{DatePair: date, DayWeek: weekday})
		return &m.Sched[len(m.Sched)-1]
	}

	tables.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		offset := 0
		switch n := cells.Length(); {
		case n == 0:
			return
		case n == columnCount-colTime:
			offset = colTime
		case n < columnCount:
			log.Printf("Skipping timetable row with %d cells", n)
			return
		}

		text := make([]string, columnCount)
		cells.EachWithBreak(func(i int, cell *goquery.Selection) bool {
			if i+offset >= columnCount {
				return false
			}
			text[i+offset] = strings.Join(strings.Fields(cell.Text()), " ")
			return true
		})

		if text[colDate] != "" {
			curDate = text[colDate]
			curWeek = text[colWeekday]
		}
		if curDate == "" || text[colDiscipline] == "" {
			return
		}

		start, end := splitTimeRange(text[colTime])
		d := dayFor(curDate, curWeek)
		d.MainSchedule = append(d.MainSchedule, domain.ScrapedLesson(
			text[colDiscipline], text[colType], text[colRoom], text[colTeacher], start, end,
		))
	})

	return domain.GroupSchedule{Month: months}
}

// monthKey is the MM.YYYY suffix of a DD.MM.YYYY date.
func monthKey(date string) string {
	if len(date) >= 7 {
		return date[len(date)-7:]
	}
	return date
}

func splitTimeRange(s string) (start, end string) {
	s = strings.ReplaceAll(s, "–", "-")
	start, end, _ = strings.Cut(s, "-")
	return strings.TrimSpace(start), strings.TrimSpace(end)
}

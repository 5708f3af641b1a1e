package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(date string, lessons ...Lesson) Day {
	return Day{DatePair: date, DayWeek: "", MainSchedule: lessons}
}

func group(days ...Day) GroupSchedule {
	return GroupSchedule{Month: []Month{{Sched: days}}}
}

func apiLesson(discipline, lessonType, room, start, end string) Lesson {
	return Lesson{
		"SubjName":   discipline,
		"LoadKindSN": lessonType,
		"Aud":        room,
		"FIO":        "Иванов И.И.",
		"TimeStart":  start,
		"TimeEnd":    end,
	}
}

func date(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestLessonAccessorsFallBackBetweenNamings(t *testing.T) {
	api := apiLesson("Math", "Лекция", "101", "08:30", "10:00")
	scraped := ScrapedLesson("Math", "Лекция", "101", "Иванов И.И.", "08:30", "10:00")

	for _, l := range []Lesson{api, scraped} {
		assert.Equal(t, "Math", l.Discipline())
		assert.Equal(t, "Лекция", l.Type())
		assert.Equal(t, "101", l.Room())
		assert.Equal(t, "Иванов И.И.", l.Teacher())
		assert.Equal(t, "08:30", l.TimeStart())
		assert.Equal(t, "10:00", l.TimeEnd())
		assert.Equal(t, "08:30-10:00", l.TimeRange())
	}
}

func TestLessonAccessorPriorityAndEmptyFallthrough(t *testing.T) {
	l := Lesson{"SubjName": "  ", "Dis": "Physics", "Aud": 305.0}
	assert.Equal(t, "Physics", l.Discipline())
	assert.Equal(t, "305", l.Room())

	l = Lesson{"SubjName": "Math", "Dis": "Physics"}
	assert.Equal(t, "Math", l.Discipline())

	l = Lesson{"SubjSN": "Hist"}
	assert.Equal(t, "Hist", l.Discipline())
}

func TestGroupScheduleJSONKeepsUnknownLessonFields(t *testing.T) {
	raw := `[{"Month":[{"Sched":[{"datePair":"10.05.2025","dayWeek":"Сб","mainSchedule":[{"SubjName":"Math","Group":"ИС-21","Num":2}]}]}]},{"error":"timeout"}]`

	var s Schedule
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	require.Len(t, s, 2)
	assert.False(t, s[0].HasError())
	assert.True(t, s[1].HasError())
	assert.Equal(t, "timeout", s[1].ErrorMessage())

	lesson := s[0].Month[0].Sched[0].MainSchedule[0]
	assert.Equal(t, "Math", lesson.Discipline())
	assert.Equal(t, "ИС-21", lesson["Group"])

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestValidate(t *testing.T) {
	valid := group(day("10.05.2025", apiLesson("Math", "Лекция", "101", "08:30", "10:00")))

	tests := []struct {
		name  string
		sched GroupSchedule
		ok    bool
	}{
		{"valid", valid, true},
		{"scraped naming", group(day("10.05.2025", ScrapedLesson("Math", "", "", "", "08:30", ""))), true},
		{"error key", Failed("boom"), false},
		{"error key with months", valid.withError(""), false},
		{"no months", GroupSchedule{}, false},
		{"empty Sched", GroupSchedule{Month: []Month{{}}}, false},
		{"no datePair", group(day("", apiLesson("Math", "", "", "08:30", ""))), false},
		{"no mainSchedule", group(day("10.05.2025")), false},
		{"no discipline", group(day("10.05.2025", Lesson{"Aud": "101"})), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sched.Validate()
			assert.Equal(t, tt.ok, err == nil, "err: %v", err)
			if err != nil {
				assert.ErrorIs(t, err, ErrInvalidSchedule)
			}
			assert.Equal(t, tt.ok, tt.sched.IsValid())
		})
	}
}

// withError sets an error marker while keeping months, to check that the
// error key alone invalidates a schedule.
func (g GroupSchedule) withError(msg string) GroupSchedule {
	g.Error = &msg
	return g
}

func TestScheduleAggregates(t *testing.T) {
	ok := group(day("10.05.2025", apiLesson("Math", "", "", "08:30", "")))

	assert.True(t, Schedule{Failed("a"), ok}.AnyValid())
	assert.False(t, Schedule{Failed("a"), Failed("b")}.AnyValid())
	assert.True(t, Schedule{Failed("a"), Failed("b")}.AllFailed())
	assert.False(t, Schedule{Failed("a"), ok}.AllFailed())
	assert.Equal(t, []string{"a"}, Schedule{Failed("a"), ok}.Errors())
}

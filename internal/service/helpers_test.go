package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tazhate/studentbot/internal/domain"
	"github.com/tazhate/studentbot/internal/storage"
)

type fakeFetcher struct {
	mu     sync.Mutex
	result func(ids []string) domain.Schedule
	calls  [][]string
}

func (f *fakeFetcher) FetchAll(_ context.Context, ids []string) domain.Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ids)
	return f.result(ids)
}

func (f *fakeFetcher) returns(s domain.Schedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = func([]string) domain.Schedule { return s }
}

type memChangeLog struct {
	records []*storage.ChangeRecord
	cleared int
}

func (m *memChangeLog) RecordChanges(groupID string, changes domain.Changes, at time.Time) error {
	for _, c := range changes {
		m.records = append(m.records, &storage.ChangeRecord{
			GroupID: groupID, Kind: string(c.Kind), Date: c.Date, Discipline: c.Discipline, Text: c.String(), DetectedAt: at,
		})
	}
	return nil
}

func (m *memChangeLog) ListChanges(int) ([]*storage.ChangeRecord, error) {
	return m.records, nil
}

func (m *memChangeLog) ClearChanges() error {
	m.records = nil
	m.cleared++
	return nil
}

type sentNotice struct{ title, body string }

type recordingNotifier struct{ sent []sentNotice }

func (r *recordingNotifier) Notify(_ context.Context, title, body string) error {
	r.sent = append(r.sent, sentNotice{title, body})
	return nil
}

type env struct {
	files    *storage.Files
	settings *SettingsService
	fetcher  *fakeFetcher
	changes  *memChangeLog
	notifier *recordingNotifier
	schedule *ScheduleService
	notes    *NoteService
	clock    *time.Time
}

// newEnv wires the services over a temp dir with the clock at 12.05.2025 09:00.
func newEnv(t *testing.T) *env {
	t.Helper()
	files, err := storage.NewFiles(t.TempDir())
	require.NoError(t, err)

	e := &env{
		files:    files,
		fetcher:  &fakeFetcher{},
		changes:  &memChangeLog{},
		notifier: &recordingNotifier{},
	}
	now := time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC)
	e.clock = &now

	e.fetcher.returns(domain.Schedule{domain.Failed("not stubbed")})
	e.settings = NewSettingsService(files)
	e.schedule = NewScheduleService(files, e.settings, e.fetcher, e.changes, e.notifier, ScheduleOptions{
		Timezone: time.UTC,
	})
	e.schedule.now = func() time.Time { return *e.clock }
	e.notes = NewNoteService(files, e.schedule)
	e.schedule.OnGroupChange(e.notes.Clear)

	ids := 0
	e.notes.newID = func() string {
		ids++
		return fmt.Sprintf("note-%d", ids)
	}
	return e
}

func lesson(discipline, lessonType, room, start, end string) domain.Lesson {
	return domain.Lesson{
		"SubjName":   discipline,
		"LoadKindSN": lessonType,
		"Aud":        room,
		"TimeStart":  start,
		"TimeEnd":    end,
	}
}

func day(date string, lessons ...domain.Lesson) domain.Day {
	return domain.Day{DatePair: date, MainSchedule: lessons}
}

func group(days ...domain.Day) domain.GroupSchedule {
	return domain.GroupSchedule{Month: []domain.Month{{Sched: days}}}
}

// mathSchedule has Math lectures on 10.05 and 17.05, a practice on 14.05
// and a lab on 24.05.
func mathSchedule() domain.Schedule {
	return domain.Schedule{group(
		day("10.05.2025", lesson("Math", "Лекция", "101", "10:15", "11:45")),
		day("14.05.2025", lesson("Math", "Практ зан", "202", "08:30", "10:00")),
		day("17.05.2025", lesson("Math", "Лекция", "101", "10:15", "11:45")),
		day("24.05.2025", lesson("Math", "Лабораторная работа", "305", "12:00", "13:30")),
		day("31.05.2025", lesson("Math", "Лекция", "101", "10:15", "11:45")),
	)}
}

func storageSnapshot(s domain.Schedule) storage.Snapshot {
	return storage.Snapshot{Schedules: s}
}

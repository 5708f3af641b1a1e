package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/studentbot/internal/domain"
	"github.com/tazhate/studentbot/internal/storage"
)

func TestSelectGroupStoresSnapshotAndSettings(t *testing.T) {
	e := newEnv(t)
	e.fetcher.returns(mathSchedule())

	snap, err := e.schedule.SelectGroup(context.Background(), " 26616 ")
	require.NoError(t, err)
	assert.Equal(t, "26616", snap.GroupID)
	assert.Equal(t, []string{"26616"}, e.fetcher.calls[0])
	assert.Equal(t, "26616", e.settings.Get().GroupID)
	assert.Equal(t, []string{"Math"}, e.schedule.Disciplines())

	onDisk, err := e.files.LoadSchedules()
	require.NoError(t, err)
	assert.Equal(t, "26616", onDisk.GroupID)
	valid, err := e.files.LoadLastValid()
	require.NoError(t, err)
	assert.True(t, valid.Schedules.AnyValid())
}

func TestSelectGroupRejectsFailuresWithoutChangingState(t *testing.T) {
	e := newEnv(t)
	e.fetcher.returns(domain.Schedule{domain.Failed("HTTP 404")})

	_, err := e.schedule.SelectGroup(context.Background(), "999")
	var ue *domain.UserError
	require.ErrorAs(t, err, &ue)
	assert.Empty(t, e.settings.Get().GroupID)
	assert.Empty(t, e.schedule.Schedule())

	_, err = e.schedule.SelectGroup(context.Background(), " , ")
	require.ErrorAs(t, err, &ue)
}

func TestSwitchingGroupClearsNotesAndHistory(t *testing.T) {
	e := newEnv(t)
	e.fetcher.returns(mathSchedule())
	_, err := e.schedule.SelectGroup(context.Background(), "1")
	require.NoError(t, err)
	_, err = e.notes.Add("Math", domain.ModeLecture, "bring calculator")
	require.NoError(t, err)

	// same group again keeps the notes
	_, err = e.schedule.SelectGroup(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, e.notes.List(), 1)

	_, err = e.schedule.SelectGroup(context.Background(), "2")
	require.NoError(t, err)
	assert.Empty(t, e.notes.List())
	assert.Equal(t, 1, e.changes.cleared)
	assert.Equal(t, "2", e.settings.Get().GroupID)
}

func TestChangeGroupResetsEverything(t *testing.T) {
	e := newEnv(t)
	e.fetcher.returns(mathSchedule())
	_, err := e.schedule.SelectGroup(context.Background(), "1")
	require.NoError(t, err)
	_, err = e.notes.Add("Math", domain.ModeLecture, "x")
	require.NoError(t, err)

	e.schedule.ChangeGroup()
	assert.Empty(t, e.settings.Get().GroupID)
	assert.Empty(t, e.schedule.Schedule())
	assert.Empty(t, e.notes.List())

	snap, err := e.files.LoadSchedules()
	require.NoError(t, err)
	assert.Empty(t, snap.Schedules)

	_, err = e.schedule.Refresh(context.Background())
	var ue *domain.UserError
	assert.ErrorAs(t, err, &ue)
}

func TestRefreshDiffsAndNotifies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	prev := domain.Schedule{group(day("10.05.2025", lesson("Math", "Лекция", "101", "10:00", "11:30")))}
	next := domain.Schedule{group(day("10.05.2025", lesson("Math", "Лекция", "205", "10:00", "11:30")))}

	e.fetcher.returns(prev)
	_, err := e.schedule.SelectGroup(ctx, "26616")
	require.NoError(t, err)

	e.fetcher.returns(next)
	changes, err := e.schedule.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Contains(t, changes[0].String(), "Room: 101 → 205")

	require.Len(t, e.notifier.sent, 1)
	assert.Equal(t, "Schedule changes", e.notifier.sent[0].title)
	assert.Equal(t, "Math (10.05.2025): Room: 101 → 205", e.notifier.sent[0].body)

	history, err := e.schedule.History(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "26616", history[0].GroupID)

	previous, err := e.files.LoadPrevious()
	require.NoError(t, err)
	assert.Equal(t, "101", previous.Schedules[0].Month[0].Sched[0].MainSchedule[0].Room())
	assert.Equal(t, "205", e.schedule.Schedule()[0].Month[0].Sched[0].MainSchedule[0].Room())
}

func TestRefreshWithNotificationsOffStillReplaces(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fetcher.returns(domain.Schedule{group(day("10.05.2025", lesson("Math", "Лекция", "101", "10:00", "11:30")))})
	_, err := e.schedule.SelectGroup(ctx, "1")
	require.NoError(t, err)
	e.settings.SetNotifications(false)

	e.fetcher.returns(domain.Schedule{group(day("10.05.2025", lesson("Math", "Лекция", "205", "10:00", "11:30")))})
	changes, err := e.schedule.Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Empty(t, e.notifier.sent)
	assert.Equal(t, "205", e.schedule.Schedule()[0].Month[0].Sched[0].MainSchedule[0].Room())
}

func TestRefreshFailureKeepsCachedSchedule(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fetcher.returns(mathSchedule())
	_, err := e.schedule.SelectGroup(ctx, "1")
	require.NoError(t, err)

	e.fetcher.returns(domain.Schedule{domain.Failed("HTTP 502")})
	_, err = e.schedule.Refresh(ctx)
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "HTTP 502")
	assert.Equal(t, []string{"Math"}, e.schedule.Disciplines())
	assert.Empty(t, e.notifier.sent)
}

func TestLoadFallsBackToLastValid(t *testing.T) {
	e := newEnv(t)
	e.fetcher.returns(mathSchedule())
	_, err := e.schedule.SelectGroup(context.Background(), "1")
	require.NoError(t, err)

	// a broken schedules.json written by an older version
	require.NoError(t, e.files.SaveSchedules(storageSnapshot(domain.Schedule{domain.Failed("boom")})))

	require.NoError(t, e.schedule.Load())
	assert.Equal(t, []string{"Math"}, e.schedule.Disciplines())
}

func TestLoadFallsBackWhenCacheIsTruncated(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.files.SaveLastValid(storage.Snapshot{GroupID: "1", Schedules: mathSchedule()}))
	require.NoError(t, os.WriteFile(filepath.Join(e.files.Dir(), storage.SchedulesFile), []byte(`{"schedules": [{"Month": [`), 0o600))

	require.NoError(t, e.schedule.Load())
	assert.Equal(t, []string{"Math"}, e.schedule.Disciplines())
	assert.Equal(t, "1", e.schedule.Snapshot().GroupID)
}

func TestLoadTruncatedCacheWithoutFallback(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.files.Dir(), storage.SchedulesFile), []byte(`{"schedules": [`), 0o600))

	assert.Error(t, e.schedule.Load())
	assert.Empty(t, e.schedule.Disciplines())
}

func TestEnsureFresh(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fetcher.returns(mathSchedule())
	e.settings.setGroupID("1")

	refreshed, err := e.schedule.EnsureFresh(ctx)
	require.NoError(t, err)
	assert.True(t, refreshed, "empty cache is stale")

	*e.clock = e.clock.Add(23 * time.Hour)
	refreshed, err = e.schedule.EnsureFresh(ctx)
	require.NoError(t, err)
	assert.False(t, refreshed)

	*e.clock = e.clock.Add(2 * time.Hour)
	refreshed, err = e.schedule.EnsureFresh(ctx)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Len(t, e.fetcher.calls, 2)
}

func TestDefaultGroupsUntilSelection(t *testing.T) {
	e := newEnv(t)
	e.schedule.opts.DefaultGroups = []string{"42"}
	e.fetcher.returns(mathSchedule())

	_, err := e.schedule.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, e.fetcher.calls[0])
}

func TestDaysAndNextOccurrence(t *testing.T) {
	e := newEnv(t)
	e.fetcher.returns(mathSchedule())
	_, err := e.schedule.SelectGroup(context.Background(), "1")
	require.NoError(t, err)

	week := e.schedule.Days(domain.PeriodWeek)
	require.Len(t, week, 2)
	assert.Equal(t, "14.05.2025", week[0].Day.DatePair)
	assert.Equal(t, "17.05.2025", week[1].Day.DatePair)

	assert.Empty(t, e.schedule.Days(domain.PeriodToday))
	assert.Equal(t, "17.05.2025", e.schedule.NextOccurrence("Math", domain.ModeLecture, e.schedule.Today()))
	assert.Equal(t, domain.UnknownDate, e.schedule.NextOccurrence("Chemistry", domain.ModeUntilNextClass, e.schedule.Today()))
}

package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/studentbot/internal/domain"
)

func newStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "db", "studentbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := newStorage(t)
	require.NoError(t, s.migrate())
}

func TestSubscribers(t *testing.T) {
	s := newStorage(t)

	require.NoError(t, s.Subscribe(42, "anna"))
	require.NoError(t, s.Subscribe(7, "boris"))
	require.NoError(t, s.Subscribe(42, "anna k"))

	sub, err := s.GetSubscriber(42)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "anna k", sub.Name)

	missing, err := s.GetSubscriber(1)
	require.NoError(t, err)
	assert.Nil(t, missing)

	subs, err := s.ListSubscribers()
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, int64(7), subs[0].ChatID)

	require.NoError(t, s.SetMuted(7, true))
	subs, err = s.ListSubscribers()
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(42), subs[0].ChatID)

	muted, err := s.GetSubscriber(7)
	require.NoError(t, err)
	assert.True(t, muted.Muted)

	// subscribing again unmutes
	require.NoError(t, s.Subscribe(7, "boris"))
	subs, _ = s.ListSubscribers()
	assert.Len(t, subs, 2)

	require.NoError(t, s.Unsubscribe(42))
	subs, _ = s.ListSubscribers()
	assert.Len(t, subs, 1)
}

func TestChangeHistory(t *testing.T) {
	s := newStorage(t)
	first := time.Date(2025, 5, 10, 5, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordChanges("26616", nil, first))
	require.NoError(t, s.RecordChanges("26616", domain.Changes{
		{Kind: domain.ChangeNew, Date: "11.05.2025", Discipline: "Physics"},
	}, first))
	require.NoError(t, s.RecordChanges("26616", domain.Changes{
		{
			Kind: domain.ChangeModified, Date: "12.05.2025", Discipline: "Math",
			Fields: []domain.FieldChange{{Field: "Room", Old: "101", New: "205"}},
		},
	}, first.Add(24*time.Hour)))

	got, err := s.ListChanges(0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Math (12.05.2025): Room: 101 → 205", got[0].Text)
	assert.Equal(t, string(domain.ChangeModified), got[0].Kind)
	assert.Equal(t, "new lesson: Physics (11.05.2025)", got[1].Text)

	limited, err := s.ListChanges(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, s.ClearChanges())
	got, err = s.ListChanges(10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffRoomChangeScenario(t *testing.T) {
	prev := Schedule{group(day("10.05.2025", apiLesson("Math", "Лекция", "101", "10:00", "11:30")))}
	next := Schedule{group(day("10.05.2025", apiLesson("Math", "Лекция", "205", "10:00", "11:30")))}

	for _, key := range []DiffKey{KeyDateDisciplineTime, KeyDateTime} {
		changes := Diff(prev, next, key)
		require.Len(t, changes, 1, key)
		assert.Equal(t, ChangeModified, changes[0].Kind)
		assert.Contains(t, changes[0].String(), "Room: 101 → 205")
		assert.Equal(t, "Math (10.05.2025): Room: 101 → 205", changes[0].String())
	}
}

func TestDiffListsEveryChangedFieldOnOneLine(t *testing.T) {
	prev := Schedule{group(day("10.05.2025", apiLesson("Math", "Лекция", "101", "10:00", "11:30")))}
	next := Schedule{group(day("10.05.2025", ScrapedLesson("Math", "Практ зан", "205", "", "10:00", "12:00")))}

	changes := Diff(prev, next, KeyDateDisciplineTime)
	require.Len(t, changes, 1)
	assert.Equal(t,
		"Math (10.05.2025): Type: Лекция → Практ зан, Room: 101 → 205, Time: 10:00-11:30 → 10:00-12:00",
		changes[0].String())
	assert.Len(t, changes[0].Fields, 3)
}

func TestDiffNewLesson(t *testing.T) {
	prev := Schedule{group(day("10.05.2025", apiLesson("Math", "Лекция", "101", "10:00", "11:30")))}
	next := Schedule{group(
		day("10.05.2025", apiLesson("Math", "Лекция", "101", "10:00", "11:30")),
		day("11.05.2025", apiLesson("Physics", "Лекция", "301", "08:30", "10:00")),
	)}

	changes := Diff(prev, next, KeyDateDisciplineTime)
	require.Len(t, changes, 1)
	assert.Equal(t, "new lesson: Physics (11.05.2025)", changes[0].String())
	assert.Equal(t, "new lesson: Physics (11.05.2025)", changes.String())
}

func TestDiffNoChanges(t *testing.T) {
	s := Schedule{group(day("10.05.2025", apiLesson("Math", "Лекция", "101", "10:00", "11:30")))}
	assert.Empty(t, Diff(s, s, KeyDateDisciplineTime))
	assert.Empty(t, Diff(s, s, KeyDateTime))
}

func TestDiffSkipsPairsWithErrorOnEitherSide(t *testing.T) {
	a := Schedule{group(day("10.05.2025", apiLesson("Math", "Лекция", "101", "10:00", "11:30")))}
	b := Schedule{group(day("12.05.2025", apiLesson("Physics", "Лекция", "999", "08:30", "10:00")))}

	assert.Empty(t, Diff(Schedule{Failed("old broke")}, b, KeyDateDisciplineTime))
	assert.Empty(t, Diff(a, Schedule{Failed("new broke")}, KeyDateDisciplineTime))
	assert.Empty(t, Diff(Schedule{a[0].withError("x")}, b, KeyDateTime))

	// other pairs are still compared
	changes := Diff(Schedule{Failed("old broke"), a[0]}, Schedule{b[0], b[0]}, KeyDateDisciplineTime)
	require.Len(t, changes, 1)
	assert.Equal(t, "new lesson: Physics (12.05.2025)", changes[0].String())
}

func TestDiffPairsByPositionUpToShorterSnapshot(t *testing.T) {
	a := group(day("10.05.2025", apiLesson("Math", "Лекция", "101", "10:00", "11:30")))
	b := group(day("10.05.2025", apiLesson("Math", "Лекция", "202", "10:00", "11:30")))

	assert.Len(t, Diff(Schedule{a}, Schedule{b, b}, KeyDateDisciplineTime), 1)
	assert.Empty(t, Diff(nil, Schedule{b}, KeyDateDisciplineTime))
}

// Two disciplines share a start time: the keys disagree on what matched.
func TestDiffSharedStartTimeUnderBothKeys(t *testing.T) {
	prev := Schedule{group(day("10.05.2025",
		apiLesson("Math", "Лекция", "101", "10:00", "11:30"),
		apiLesson("English", "Практ зан", "202", "10:00", "11:30"),
	))}
	next := Schedule{group(day("10.05.2025",
		apiLesson("Math", "Лекция", "101", "10:00", "11:30"),
		apiLesson("English", "Практ зан", "303", "10:00", "11:30"),
	))}

	byDiscipline := Diff(prev, next, KeyDateDisciplineTime)
	require.Len(t, byDiscipline, 1)
	assert.Equal(t, "English (10.05.2025): Room: 202 → 303", byDiscipline[0].String())

	// slot keys collapse both lessons onto the last one in each snapshot
	bySlot := Diff(prev, next, KeyDateTime)
	require.Len(t, bySlot, 1)
	assert.Equal(t, "English (10.05.2025): Room: 202 → 303", bySlot[0].String())

	// a lesson replaced by another discipline in the same slot
	swapped := Schedule{group(day("10.05.2025", apiLesson("History", "Лекция", "101", "10:00", "11:30")))}
	single := Schedule{group(day("10.05.2025", apiLesson("Math", "Лекция", "101", "10:00", "11:30")))}

	assert.Equal(t, []string{"new lesson: History (10.05.2025)"}, Diff(single, swapped, KeyDateDisciplineTime).Lines())
	assert.Empty(t, Diff(single, swapped, KeyDateTime))
}

func TestDiffSkipsUnparsableDates(t *testing.T) {
	prev := Schedule{group(day("10.05.2025", apiLesson("Math", "Лекция", "101", "10:00", "11:30")))}
	next := Schedule{group(
		day("bad-date", apiLesson("Math", "Лекция", "999", "10:00", "11:30")),
		day("10.05.2025", apiLesson("Math", "Лекция", "101", "10:00", "11:30")),
	)}

	assert.Empty(t, Diff(prev, next, KeyDateDisciplineTime))
}

func TestParseDiffKey(t *testing.T) {
	assert.Equal(t, KeyDateTime, ParseDiffKey("slot"))
	assert.Equal(t, KeyDateTime, ParseDiffKey(" SLOT "))
	assert.Equal(t, KeyDateDisciplineTime, ParseDiffKey("discipline"))
	assert.Equal(t, KeyDateDisciplineTime, ParseDiffKey(""))
}

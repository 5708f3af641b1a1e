package domain

import (
	"strings"
	"time"
)

const (
	// NoDisciplines is offered when the schedule has no disciplines yet.
	// Notes cannot be attached to it.
	NoDisciplines = "Нет дисциплин"

	// UnknownDate marks a note whose discipline has no upcoming lesson.
	UnknownDate = "Unknown"

	legacyUnknownDate = "Неизвестно"
)

// Mode decides which lesson closes a note.
type Mode string

const (
	ModeLecture        Mode = "Лекция"
	ModePractice       Mode = "Практика"
	ModeLab            Mode = "Лабораторная"
	ModeUntilNextClass Mode = "До следующей пары"
)

// modeLessonTypes maps a note mode to the lesson type token it waits for.
// An empty token means any lesson of the discipline.
var modeLessonTypes = []struct {
	mode  Mode
	token string
}{
	{ModeLecture, "Лекция"},
	{ModePractice, "Практ зан"},
	{ModeLab, "Лабор"},
	{ModeUntilNextClass, ""},
}

// Modes returns all modes in display order.
func Modes() []Mode {
	out := make([]Mode, 0, len(modeLessonTypes))
	for _, m := range modeLessonTypes {
		out = append(out, m.mode)
	}
	return out
}

// ParseMode accepts a label or an English alias (lecture, practice, lab, any).
func ParseMode(s string) (Mode, bool) {
	s = strings.TrimSpace(s)
	for _, m := range modeLessonTypes {
		if strings.EqualFold(s, string(m.mode)) {
			return m.mode, true
		}
	}
	switch strings.ToLower(s) {
	case "lecture":
		return ModeLecture, true
	case "practice":
		return ModePractice, true
	case "lab":
		return ModeLab, true
	case "any", "next", "":
		return ModeUntilNextClass, true
	}
	return "", false
}

// LessonTypeToken returns the lesson type token for the mode; ok is false for
// unknown modes.
func (m Mode) LessonTypeToken() (token string, ok bool) {
	for _, mt := range modeLessonTypes {
		if mt.mode == m {
			return mt.token, true
		}
	}
	return "", false
}

// Matches reports whether a lesson of the given type satisfies the mode.
// Tokens are matched as case-insensitive substrings.
func (m Mode) Matches(lessonType string) bool {
	token, ok := m.LessonTypeToken()
	if !ok || token == "" {
		return true
	}
	return strings.Contains(strings.ToLower(lessonType), strings.ToLower(token))
}

// Note is a free-text reminder attached to a discipline.
type Note struct {
	ID         string `json:"id,omitempty"`
	Discipline string `json:"discipline"`
	Mode       Mode   `json:"mode"`
	Text       string `json:"text"`
	ValidUntil string `json:"valid_until"`
}

// Normalize rewrites the legacy unknown-date sentinel.
func (n *Note) Normalize() {
	if n.ValidUntil == legacyUnknownDate || n.ValidUntil == "" {
		n.ValidUntil = UnknownDate
	}
}

// ValidUntilDate parses ValidUntil; ok is false for the sentinel or garbage.
func (n Note) ValidUntilDate() (time.Time, bool) {
	if n.ValidUntil == UnknownDate || n.ValidUntil == legacyUnknownDate {
		return time.Time{}, false
	}
	t, err := ParseDate(n.ValidUntil)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NoteStatus is the freshness class of a note relative to today.
type NoteStatus string

const (
	StatusActive  NoteStatus = "active"
	StatusDueSoon NoteStatus = "due_soon"
	StatusExpired NoteStatus = "expired"
	StatusStale   NoteStatus = "stale"
)

// Status classifies the note: stale after a week past its date, expired once
// the date has passed, due soon today and tomorrow. Unknown dates stay active.
func (n Note) Status(today time.Time) NoteStatus {
	until, ok := n.ValidUntilDate()
	if !ok {
		return StatusActive
	}
	today = DateOnly(today)
	switch {
	case until.Before(today.AddDate(0, 0, -7)):
		return StatusStale
	case until.Before(today):
		return StatusExpired
	case !until.After(today.AddDate(0, 0, 1)):
		return StatusDueSoon
	default:
		return StatusActive
	}
}

// UserError is an input problem reported verbatim to the user.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

// NewUserError wraps msg in a UserError.
func NewUserError(msg string) error {
	return &UserError{Message: msg}
}

package service

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tazhate/studentbot/internal/domain"
	"github.com/tazhate/studentbot/internal/storage"
)

var ErrNoteNotFound = errors.New("note not found")

// ScheduleSource provides the schedule notes are resolved against.
type ScheduleSource interface {
	Schedule() domain.Schedule
	Today() time.Time
}

type NoteService struct {
	mu        sync.Mutex
	files     *storage.Files
	schedules ScheduleSource
	notes     []domain.Note
	newID     func() string
}

func NewNoteService(files *storage.Files, schedules ScheduleSource) *NoteService {
	return &NoteService{
		files:     files,
		schedules: schedules,
		newID:     uuid.NewString,
	}
}

// Load reads notes.json. Notes written before ids existed get one.
func (s *NoteService) Load() error {
	notes, err := s.files.LoadNotes()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	assigned := false
	for i := range notes {
		if notes[i].ID == "" {
			notes[i].ID = s.newID()
			assigned = true
		}
	}
	s.notes = notes
	if assigned {
		s.save()
	}
	return nil
}

func (s *NoteService) List() []domain.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Note, len(s.notes))
	copy(out, s.notes)
	return out
}

func (s *NoteService) Get(id string) (domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return domain.Note{}, ErrNoteNotFound
	}
	return s.notes[i], nil
}

// Add creates a note whose expiry is the next matching lesson after today.
func (s *NoteService) Add(discipline string, mode domain.Mode, text string) (domain.Note, error) {
	discipline = strings.TrimSpace(discipline)
	text = strings.TrimSpace(text)
	if discipline == "" || discipline == domain.NoDisciplines {
		return domain.Note{}, domain.NewUserError("Выберите дисциплину")
	}
	if text == "" {
		return domain.Note{}, domain.NewUserError("Заполните текст заметки")
	}
	if _, ok := mode.LessonTypeToken(); !ok {
		return domain.Note{}, domain.NewUserError("Неизвестный режим заметки")
	}

	note := domain.Note{
		ID:         s.newID(),
		Discipline: discipline,
		Mode:       mode,
		Text:       text,
		ValidUntil: domain.NextValidUntil(s.schedules.Schedule(), discipline, mode, s.schedules.Today()),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, note)
	s.save()

	log.Printf("Note %s added for %s, valid until %s", note.ID, discipline, note.ValidUntil)
	return note, nil
}

// Edit changes text and mode. The expiry is recomputed from the old expiry
// date, or from today when the mode changed or the old date is unknown.
func (s *NoteService) Edit(id, text string, mode domain.Mode) (domain.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Note{}, domain.NewUserError("Заполните текст заметки")
	}
	if _, ok := mode.LessonTypeToken(); !ok {
		return domain.Note{}, domain.NewUserError("Неизвестный режим заметки")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return domain.Note{}, ErrNoteNotFound
	}
	note := s.notes[i]
	if note.Discipline == domain.NoDisciplines {
		return domain.Note{}, domain.NewUserError("Выберите дисциплину")
	}

	ref := s.schedules.Today()
	if mode == note.Mode {
		if until, ok := note.ValidUntilDate(); ok {
			ref = until
		}
	}

	note.Text = text
	note.Mode = mode
	note.ValidUntil = domain.NextValidUntil(s.schedules.Schedule(), note.Discipline, mode, ref)
	s.notes[i] = note
	s.save()
	return note, nil
}

// Extend moves the expiry to the next lesson of any type after the current
// expiry date. The note keeps its mode.
func (s *NoteService) Extend(id string) (domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return domain.Note{}, ErrNoteNotFound
	}
	note := s.notes[i]
	if note.Discipline == domain.NoDisciplines {
		return domain.Note{}, domain.NewUserError("Заметку без дисциплины нельзя продлить")
	}

	ref := s.schedules.Today()
	if until, ok := note.ValidUntilDate(); ok {
		ref = until
	}
	note.ValidUntil = domain.NextValidUntil(s.schedules.Schedule(), note.Discipline, domain.ModeUntilNextClass, ref)
	s.notes[i] = note
	s.save()
	return note, nil
}

func (s *NoteService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return ErrNoteNotFound
	}
	s.notes = append(s.notes[:i], s.notes[i+1:]...)
	s.save()
	return nil
}

// Clear drops every note, used when the group changes.
func (s *NoteService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = nil
	s.save()
}

// Expiring returns notes whose date falls within the next days days,
// today included.
func (s *NoteService) Expiring(days int) []domain.Note {
	today := s.schedules.Today()
	last := today.AddDate(0, 0, days)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Note
	for _, n := range s.notes {
		until, ok := n.ValidUntilDate()
		if !ok || until.Before(today) || until.After(last) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// index must be called with mu held.
func (s *NoteService) index(id string) int {
	for i, n := range s.notes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// save must be called with mu held. In-memory state stays as is on failure.
func (s *NoteService) save() {
	if err := s.files.SaveNotes(s.notes); err != nil {
		log.Printf("Error saving notes: %v", err)
	}
}

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/tazhate/studentbot/internal/domain"
)

const (
	SchedulesFile         = "schedules.json"
	PreviousSchedulesFile = "previous_schedules.json"
	LastValidFile         = "last_valid_schedules.json"
	NotesFile             = "notes.json"
	SettingsFile          = "settings.json"

	filePerm = 0o600
)

// Snapshot is the on-disk envelope of a fetched schedule.
type Snapshot struct {
	Schedules   domain.Schedule `json:"schedules"`
	GroupID     string          `json:"group_id,omitempty"`
	LastFetched *time.Time      `json:"last_fetched,omitempty"`
}

// lastFetchedLayouts are tried in order. Older files carry a timestamp
// without a zone, read as local time.
var lastFetchedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON keeps the schedules when last_fetched cannot be parsed. The
// timestamp is dropped, so the snapshot reads as stale.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	aux := struct {
		*plain
		LastFetched json.RawMessage `json:"last_fetched,omitempty"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	s.LastFetched = nil
	if len(aux.LastFetched) == 0 || string(aux.LastFetched) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(aux.LastFetched, &raw); err != nil {
		log.Printf("Ignoring last_fetched %s: %v", aux.LastFetched, err)
		return nil
	}
	if t, ok := parseLastFetched(raw); ok {
		s.LastFetched = &t
	} else {
		log.Printf("Ignoring unparsable last_fetched %q", raw)
	}
	return nil
}

func parseLastFetched(raw string) (time.Time, bool) {
	for _, layout := range lastFetchedLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Files keeps the application state as pretty-printed JSON files in one
// directory. Every save overwrites the whole file.
type Files struct {
	dir string
}

func NewFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Files{dir: dir}, nil
}

func (f *Files) Dir() string {
	return f.dir
}

func (f *Files) path(name string) string {
	return filepath.Join(f.dir, name)
}

// LoadSchedules reads schedules.json. A missing file yields an empty snapshot.
func (f *Files) LoadSchedules() (Snapshot, error) {
	return f.loadSnapshot(SchedulesFile)
}

func (f *Files) SaveSchedules(s Snapshot) error {
	return f.writeJSON(SchedulesFile, s)
}

func (f *Files) LoadPrevious() (Snapshot, error) {
	return f.loadSnapshot(PreviousSchedulesFile)
}

func (f *Files) SavePrevious(s Snapshot) error {
	return f.writeJSON(PreviousSchedulesFile, s)
}

// LoadLastValid reads the last snapshot that passed validation.
func (f *Files) LoadLastValid() (Snapshot, error) {
	return f.loadSnapshot(LastValidFile)
}

func (f *Files) SaveLastValid(s Snapshot) error {
	return f.writeJSON(LastValidFile, s)
}

// ClearSchedules removes every schedule snapshot file.
func (f *Files) ClearSchedules() error {
	var errs []error
	for _, name := range []string{SchedulesFile, PreviousSchedulesFile, LastValidFile} {
		if err := os.Remove(f.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Files) loadSnapshot(name string) (Snapshot, error) {
	var s Snapshot
	ok, err := f.readJSON(name, &s)
	if err != nil || !ok {
		return Snapshot{}, err
	}
	return s, nil
}

// LoadNotes reads notes.json, keeping file order.
func (f *Files) LoadNotes() ([]domain.Note, error) {
	var notes []domain.Note
	if _, err := f.readJSON(NotesFile, &notes); err != nil {
		return nil, err
	}
	for i := range notes {
		notes[i].Normalize()
	}
	return notes, nil
}

func (f *Files) SaveNotes(notes []domain.Note) error {
	if notes == nil {
		notes = []domain.Note{}
	}
	return f.writeJSON(NotesFile, notes)
}

// LoadSettings reads settings.json on top of the defaults, so keys missing
// from the file keep their default values.
func (f *Files) LoadSettings() (domain.Settings, error) {
	s := domain.DefaultSettings()
	if _, err := f.readJSON(SettingsFile, &s); err != nil {
		return domain.DefaultSettings(), err
	}
	s.Normalize()
	return s, nil
}

func (f *Files) SaveSettings(s domain.Settings) error {
	s.Normalize()
	return f.writeJSON(SettingsFile, s)
}

// readJSON reports false without error when the file does not exist.
func (f *Files) readJSON(name string, v any) (bool, error) {
	data, err := os.ReadFile(f.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// writeJSON writes through a temp file in the same directory and renames it
// over the target, so a crash never leaves a half-written file behind.
func (f *Files) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(f.dir, "."+name+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path(name))
}

package service

import (
	"log"
	"strings"
	"sync"

	"github.com/tazhate/studentbot/internal/domain"
	"github.com/tazhate/studentbot/internal/storage"
)

const maxExpiryDays = 30

type SettingsService struct {
	mu       sync.Mutex
	files    *storage.Files
	settings domain.Settings
}

// NewSettingsService loads settings.json. A broken file is logged and the
// defaults are used.
func NewSettingsService(files *storage.Files) *SettingsService {
	s, err := files.LoadSettings()
	if err != nil {
		log.Printf("Error loading settings, using defaults: %v", err)
	}
	return &SettingsService{files: files, settings: s}
}

func (s *SettingsService) Get() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Update replaces every user-editable field. The group is changed only
// through the schedule service.
func (s *SettingsService) Update(next domain.Settings) (domain.Settings, error) {
	if next.ExpiryDays < 1 || next.ExpiryDays > maxExpiryDays {
		return s.Get(), domain.NewUserError("Срок должен быть от 1 до 30 дней")
	}
	if next.Theme != domain.ThemeLight && next.Theme != domain.ThemeDark {
		return s.Get(), domain.NewUserError("Тема может быть только light или dark")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next.GroupID = s.settings.GroupID
	s.settings = next
	s.save()
	return s.settings, nil
}

func (s *SettingsService) SetNotifications(on bool) domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.ScheduleNotifications = on
	s.save()
	return s.settings
}

func (s *SettingsService) SetExpiryDays(days int) (domain.Settings, error) {
	if days < 1 || days > maxExpiryDays {
		return s.Get(), domain.NewUserError("Срок должен быть от 1 до 30 дней")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.ExpiryDays = days
	s.save()
	return s.settings, nil
}

// ToggleTheme switches between light and dark and returns the new theme.
func (s *SettingsService) ToggleTheme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings.Theme == domain.ThemeDark {
		s.settings.Theme = domain.ThemeLight
	} else {
		s.settings.Theme = domain.ThemeDark
	}
	s.save()
	return s.settings.Theme
}

// GroupIDs splits the stored group id; several groups are comma separated.
func (s *SettingsService) GroupIDs() []string {
	s.mu.Lock()
	raw := s.settings.GroupID
	s.mu.Unlock()
	return SplitGroupIDs(raw)
}

func (s *SettingsService) setGroupID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.GroupID = id
	s.save()
}

// save must be called with mu held.
func (s *SettingsService) save() {
	if err := s.files.SaveSettings(s.settings); err != nil {
		log.Printf("Error saving settings: %v", err)
	}
}

// SplitGroupIDs parses "26616, 26617" into trimmed non-empty ids.
func SplitGroupIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

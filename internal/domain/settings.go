package domain

const (
	ThemeLight = "light"
	ThemeDark  = "dark"

	DefaultExpiryDays = 1
)

// Settings are the user preferences persisted in settings.json.
type Settings struct {
	ScheduleNotifications bool   `json:"schedule_notifications"`
	ExpiryDays            int    `json:"expiry_days"`
	Theme                 string `json:"theme"`
	GroupID               string `json:"group_id,omitempty"`
}

// DefaultSettings returns the first-run preferences.
func DefaultSettings() Settings {
	return Settings{
		ScheduleNotifications: true,
		ExpiryDays:            DefaultExpiryDays,
		Theme:                 ThemeLight,
	}
}

// Normalize repairs values a hand-edited file may have broken.
func (s *Settings) Normalize() {
	if s.ExpiryDays <= 0 {
		s.ExpiryDays = DefaultExpiryDays
	}
	switch s.Theme {
	case ThemeLight, ThemeDark:
	default:
		s.Theme = ThemeLight
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// File mirrors the optional YAML file named by CONFIG_FILE. Environment
// variables override whatever it sets.
type File struct {
	TelegramToken   string   `yaml:"telegram_token"`
	OwnerTelegramID int64    `yaml:"owner_telegram_id"`
	DataDir         string   `yaml:"data_dir"`
	DatabasePath    string   `yaml:"database_path"`
	Timezone        string   `yaml:"timezone"`
	CheckTime       string   `yaml:"check_time"`
	NotesTime       string   `yaml:"notes_time"`
	ScheduleSource  string   `yaml:"schedule_source"`
	ScheduleAPIURL  string   `yaml:"schedule_api_url"`
	ScheduleLegacy  string   `yaml:"schedule_legacy_url"`
	GroupIDs        []string `yaml:"group_ids"`
	HTTPTimeout     string   `yaml:"http_timeout"`
	MaxAge          string   `yaml:"schedule_max_age"`
	DiffKey         string   `yaml:"diff_key"`
	WebhookURL      string   `yaml:"webhook_url"`
	ServerPort      string   `yaml:"server_port"`
	APIUsername     string   `yaml:"api_username"`
	APIPassword     string   `yaml:"api_password"`
	CalDAV          struct {
		URL      string `yaml:"url"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Calendar string `yaml:"calendar"`
	} `yaml:"caldav"`
}

type Config struct {
	TelegramToken   string
	OwnerTelegramID int64
	DataDir         string
	DatabasePath    string
	Timezone        *time.Location
	CheckTime       string
	NotesTime       string

	ScheduleSource    string
	ScheduleAPIURL    string
	ScheduleLegacyURL string
	GroupIDs          []string
	HTTPTimeout       time.Duration
	MaxAge            time.Duration
	DiffKey           string

	WebhookURL  string
	ServerPort  string
	APIUsername string
	APIPassword string

	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
	CalDAVCalendar string
}

func Load() (*Config, error) {
	var f File
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse CONFIG_FILE: %w", err)
		}
	}
	return fromFile(f)
}

func fromFile(f File) (*Config, error) {
	cfg := &Config{
		TelegramToken:     env("TELEGRAM_BOT_TOKEN", f.TelegramToken),
		OwnerTelegramID:   f.OwnerTelegramID,
		DataDir:           env("DATA_DIR", f.DataDir, "./data"),
		CheckTime:         env("CHECK_TIME", f.CheckTime, "05:00"),
		NotesTime:         env("NOTES_TIME", f.NotesTime, "19:00"),
		ScheduleSource:    env("SCHEDULE_SOURCE", f.ScheduleSource, "api"),
		ScheduleAPIURL:    env("SCHEDULE_API_URL", f.ScheduleAPIURL),
		ScheduleLegacyURL: env("SCHEDULE_LEGACY_URL", f.ScheduleLegacy),
		GroupIDs:          f.GroupIDs,
		DiffKey:           env("DIFF_KEY", f.DiffKey, "discipline"),
		WebhookURL:        env("WEBHOOK_URL", f.WebhookURL),
		ServerPort:        env("SERVER_PORT", f.ServerPort, "8080"),
		APIUsername:       env("API_USERNAME", f.APIUsername),
		APIPassword:       env("API_PASSWORD", f.APIPassword),
		CalDAVURL:         env("CALDAV_URL", f.CalDAV.URL),
		CalDAVUsername:    env("CALDAV_USERNAME", f.CalDAV.Username),
		CalDAVPassword:    env("CALDAV_PASSWORD", f.CalDAV.Password),
		CalDAVCalendar:    env("CALDAV_CALENDAR", f.CalDAV.Calendar, "Schedule"),
	}
	cfg.DatabasePath = env("DATABASE_PATH", f.DatabasePath, cfg.DataDir+"/studentbot.db")

	if v := os.Getenv("OWNER_TELEGRAM_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("OWNER_TELEGRAM_ID must be a number")
		}
		cfg.OwnerTelegramID = id
	}

	if v := os.Getenv("GROUP_IDS"); v != "" {
		cfg.GroupIDs = nil
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.GroupIDs = append(cfg.GroupIDs, id)
			}
		}
	}

	tz, err := time.LoadLocation(env("TIMEZONE", f.Timezone, "Asia/Yekaterinburg"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Timezone = tz

	if cfg.HTTPTimeout, err = duration("HTTP_TIMEOUT", f.HTTPTimeout, "10s"); err != nil {
		return nil, err
	}
	if cfg.MaxAge, err = duration("SCHEDULE_MAX_AGE", f.MaxAge, "24h"); err != nil {
		return nil, err
	}

	for name, v := range map[string]string{"CHECK_TIME": cfg.CheckTime, "NOTES_TIME": cfg.NotesTime} {
		if _, _, err := ParseClock(v); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	switch cfg.ScheduleSource {
	case "api", "legacy":
	default:
		return nil, fmt.Errorf("SCHEDULE_SOURCE must be api or legacy, got %q", cfg.ScheduleSource)
	}

	return cfg, nil
}

// IsAllowedUser reports whether the Telegram user may use the bot.
// Without an owner the bot is open to everyone.
func (c *Config) IsAllowedUser(telegramID int64) bool {
	return c.OwnerTelegramID == 0 || telegramID == c.OwnerTelegramID
}

func (c *Config) CalDAVEnabled() bool {
	return c.CalDAVURL != "" && c.CalDAVUsername != ""
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

// env returns the variable if set, else the first non-empty fallback.
func env(key string, fallbacks ...string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	for _, v := range fallbacks {
		if v != "" {
			return v
		}
	}
	return ""
}

// duration accepts Go durations plus day and week units ("1d", "2w").
func duration(key, fileValue, def string) (time.Duration, error) {
	raw := env(key, fileValue, def)
	d, err := str2duration.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

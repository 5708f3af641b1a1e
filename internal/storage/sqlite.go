package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tazhate/studentbot/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// Subscriber is a Telegram chat receiving schedule notifications.
type Subscriber struct {
	ChatID    int64
	Name      string
	Muted     bool
	CreatedAt time.Time
}

// ChangeRecord is one detected schedule change kept for history.
type ChangeRecord struct {
	ID         int64     `json:"id"`
	GroupID    string    `json:"group_id"`
	Kind       string    `json:"kind"`
	Date       string    `json:"date"`
	Discipline string    `json:"discipline"`
	Text       string    `json:"text"`
	DetectedAt time.Time `json:"detected_at"`
}

// Storage holds the data that does not belong to the JSON session files:
// notification subscribers and the change history.
type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS subscribers (
			chat_id INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			date TEXT NOT NULL,
			discipline TEXT NOT NULL,
			text TEXT NOT NULL,
			detected_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_changes_detected ON schedule_changes(detected_at)`,
		// Mute flag: keep the subscription but stop change notifications
		`ALTER TABLE subscribers ADD COLUMN muted INTEGER DEFAULT 0`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// === Subscribers ===

// Subscribe adds the chat or clears its mute flag.
func (s *Storage) Subscribe(chatID int64, name string) error {
	_, err := s.db.Exec(
		`INSERT INTO subscribers (chat_id, name) VALUES (?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET name = excluded.name, muted = 0`,
		chatID, name,
	)
	return err
}

func (s *Storage) Unsubscribe(chatID int64) error {
	_, err := s.db.Exec(`DELETE FROM subscribers WHERE chat_id = ?`, chatID)
	return err
}

// SetMuted keeps the subscription but stops or resumes notifications.
func (s *Storage) SetMuted(chatID int64, muted bool) error {
	_, err := s.db.Exec(`UPDATE subscribers SET muted = ? WHERE chat_id = ?`, muted, chatID)
	return err
}

func (s *Storage) GetSubscriber(chatID int64) (*Subscriber, error) {
	sub := &Subscriber{}
	err := s.db.QueryRow(
		`SELECT chat_id, name, muted, created_at FROM subscribers WHERE chat_id = ?`,
		chatID,
	).Scan(&sub.ChatID, &sub.Name, &sub.Muted, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

// ListSubscribers returns chats that are not muted.
func (s *Storage) ListSubscribers() ([]*Subscriber, error) {
	rows, err := s.db.Query(`SELECT chat_id, name, created_at FROM subscribers WHERE muted = 0 ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscriber
	for rows.Next() {
		sub := &Subscriber{}
		if err := rows.Scan(&sub.ChatID, &sub.Name, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// === Schedule changes ===

// RecordChanges stores all changes of one refresh in a single transaction.
func (s *Storage) RecordChanges(groupID string, changes domain.Changes, at time.Time) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO schedule_changes (group_id, kind, date, discipline, text, detected_at) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range changes {
		if _, err := stmt.Exec(groupID, string(c.Kind), c.Date, c.Discipline, c.String(), at.UTC()); err != nil {
			return fmt.Errorf("insert change: %w", err)
		}
	}
	return tx.Commit()
}

// ListChanges returns the most recent changes first.
func (s *Storage) ListChanges(limit int) ([]*ChangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, group_id, kind, date, discipline, text, detected_at
		 FROM schedule_changes ORDER BY detected_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChangeRecord
	for rows.Next() {
		c := &ChangeRecord{}
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Kind, &c.Date, &c.Discipline, &c.Text, &c.DetectedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClearChanges drops the history, used when the group changes.
func (s *Storage) ClearChanges() error {
	_, err := s.db.Exec(`DELETE FROM schedule_changes`)
	return err
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tazhate/studentbot/internal/domain"
	"github.com/tazhate/studentbot/internal/notify"
	"github.com/tazhate/studentbot/internal/storage"
)

// ErrFetchFailed is returned by Refresh when no group could be loaded.
var ErrFetchFailed = errors.New("schedule fetch failed")

// Fetcher loads the schedules of several groups, one entry per id.
type Fetcher interface {
	FetchAll(ctx context.Context, ids []string) domain.Schedule
}

// ChangeLog keeps the history of detected schedule changes.
type ChangeLog interface {
	RecordChanges(groupID string, changes domain.Changes, at time.Time) error
	ListChanges(limit int) ([]*storage.ChangeRecord, error)
	ClearChanges() error
}

type ScheduleOptions struct {
	DiffKey  domain.DiffKey
	MaxAge   time.Duration
	Timezone *time.Location
	// DefaultGroups is used while the user has not picked a group.
	DefaultGroups []string
}

type ScheduleService struct {
	mu sync.Mutex
	// fetchMu serialises fetches so snapshots are replaced in order.
	fetchMu  sync.Mutex
	files    *storage.Files
	settings *SettingsService
	fetcher  Fetcher
	changes  ChangeLog
	notifier notify.Notifier
	opts     ScheduleOptions
	now      func() time.Time

	current       storage.Snapshot
	onGroupChange []func()
}

func NewScheduleService(files *storage.Files, settings *SettingsService, fetcher Fetcher, changes ChangeLog, notifier notify.Notifier, opts ScheduleOptions) *ScheduleService {
	if opts.Timezone == nil {
		opts.Timezone = time.Local
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	if opts.DiffKey == "" {
		opts.DiffKey = domain.KeyDateDisciplineTime
	}
	if notifier == nil {
		notifier = notify.Log{}
	}
	return &ScheduleService{
		files:    files,
		settings: settings,
		fetcher:  fetcher,
		changes:  changes,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// OnGroupChange registers fn to run after the group was reset.
func (s *ScheduleService) OnGroupChange(fn func()) {
	s.onGroupChange = append(s.onGroupChange, fn)
}

// Load reads the cached snapshot. When it is unreadable or holds no usable
// schedule the last known good snapshot is served instead.
func (s *ScheduleService) Load() error {
	snap, loadErr := s.files.LoadSchedules()
	if !snap.Schedules.AnyValid() {
		valid, err := s.files.LoadLastValid()
		if err != nil {
			log.Printf("Error loading last valid schedule: %v", err)
		} else if valid.Schedules.AnyValid() {
			if loadErr != nil {
				log.Printf("Cached schedule unreadable (%v), serving last valid snapshot", loadErr)
			} else {
				log.Printf("Cached schedule unusable, serving last valid snapshot from group %s", valid.GroupID)
			}
			snap = valid
			loadErr = nil
		}
	}
	if loadErr != nil {
		return fmt.Errorf("load schedules: %w", loadErr)
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
	return nil
}

// Today returns the current calendar date in the configured timezone.
func (s *ScheduleService) Today() time.Time {
	return domain.DateOnly(s.now().In(s.opts.Timezone))
}

// Now returns the wall clock in the configured timezone.
func (s *ScheduleService) Now() time.Time {
	return s.now().In(s.opts.Timezone)
}

func (s *ScheduleService) Snapshot() storage.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *ScheduleService) Schedule() domain.Schedule {
	return s.Snapshot().Schedules
}

func (s *ScheduleService) groupIDs() []string {
	if ids := s.settings.GroupIDs(); len(ids) > 0 {
		return ids
	}
	return s.opts.DefaultGroups
}

// SelectGroup fetches the schedule of a new group and makes it current.
// Nothing changes when every group fails to load.
func (s *ScheduleService) SelectGroup(ctx context.Context, raw string) (storage.Snapshot, error) {
	ids := SplitGroupIDs(raw)
	if len(ids) == 0 {
		return storage.Snapshot{}, domain.NewUserError("Введите номер группы")
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	fetched := s.fetcher.FetchAll(ctx, ids)
	if fetched.AllFailed() {
		log.Printf("Group %s not selected: %s", raw, strings.Join(fetched.Errors(), "; "))
		return storage.Snapshot{}, domain.NewUserError(
			"Не удалось загрузить расписание. Проверьте подключение или выберите другую группу.")
	}

	groupID := strings.Join(ids, ",")
	if old := strings.Join(s.settings.GroupIDs(), ","); old != "" && old != groupID {
		s.resetGroupData()
	}
	s.settings.setGroupID(groupID)

	now := s.now()
	snap := storage.Snapshot{Schedules: fetched, GroupID: groupID, LastFetched: &now}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	s.persist(snap, nil)
	log.Printf("Group %s selected, %d disciplines", groupID, len(domain.UniqueDisciplines(fetched)))
	return snap, nil
}

// ChangeGroup forgets the group together with its schedules and notes.
func (s *ScheduleService) ChangeGroup() {
	s.resetGroupData()
	s.settings.setGroupID("")
	log.Printf("Group reset")
}

func (s *ScheduleService) resetGroupData() {
	s.mu.Lock()
	s.current = storage.Snapshot{}
	s.mu.Unlock()

	if err := s.files.ClearSchedules(); err != nil {
		log.Printf("Error clearing schedules: %v", err)
	}
	if s.changes != nil {
		if err := s.changes.ClearChanges(); err != nil {
			log.Printf("Error clearing change history: %v", err)
		}
	}
	for _, fn := range s.onGroupChange {
		fn()
	}
}

// Stale reports whether the cached schedule is missing or older than MaxAge.
func (s *ScheduleService) Stale() bool {
	snap := s.Snapshot()
	if len(snap.Schedules) == 0 || snap.LastFetched == nil {
		return true
	}
	return s.now().Sub(*snap.LastFetched) > s.opts.MaxAge
}

// EnsureFresh refreshes when the cache is stale. It reports whether a
// refresh happened.
func (s *ScheduleService) EnsureFresh(ctx context.Context) (bool, error) {
	if !s.Stale() {
		return false, nil
	}
	_, err := s.Refresh(ctx)
	return err == nil, err
}

// Refresh fetches all groups. A result with at least one valid group
// replaces the current snapshot wholesale; the old one is kept as the
// previous snapshot and diffed against the new one.
func (s *ScheduleService) Refresh(ctx context.Context) (domain.Changes, error) {
	ids := s.groupIDs()
	if len(ids) == 0 {
		return nil, domain.NewUserError("Сначала выберите группу")
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	fetched := s.fetcher.FetchAll(ctx, ids)
	if !fetched.AnyValid() {
		msg := strings.Join(fetched.Errors(), "; ")
		log.Printf("Refresh failed, keeping cached schedule: %s", msg)
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, msg)
	}
	for _, e := range fetched.Errors() {
		log.Printf("Refresh: %s", e)
	}

	now := s.now()
	groupID := strings.Join(ids, ",")

	s.mu.Lock()
	prev := s.current
	s.current = storage.Snapshot{Schedules: fetched, GroupID: groupID, LastFetched: &now}
	next := s.current
	s.mu.Unlock()

	s.persist(next, &prev)

	if !s.settings.Get().ScheduleNotifications || len(prev.Schedules) == 0 {
		return nil, nil
	}

	changes := domain.Diff(prev.Schedules, fetched, s.opts.DiffKey)
	if len(changes) == 0 {
		log.Printf("Schedule refreshed, no changes")
		return nil, nil
	}

	log.Printf("Schedule refreshed, %d changes", len(changes))
	if s.changes != nil {
		if err := s.changes.RecordChanges(groupID, changes, now); err != nil {
			log.Printf("Error recording changes: %v", err)
		}
	}
	if err := s.notifier.Notify(ctx, "Schedule changes", changes.String()); err != nil {
		log.Printf("Error sending change notification: %v", err)
	}
	return changes, nil
}

func (s *ScheduleService) persist(next storage.Snapshot, prev *storage.Snapshot) {
	if prev != nil {
		if err := s.files.SavePrevious(*prev); err != nil {
			log.Printf("Error saving previous schedules: %v", err)
		}
	}
	if err := s.files.SaveSchedules(next); err != nil {
		log.Printf("Error saving schedules: %v", err)
	}
	if next.Schedules.AnyValid() {
		if err := s.files.SaveLastValid(next); err != nil {
			log.Printf("Error saving last valid schedules: %v", err)
		}
	}
}

// History returns the most recent recorded changes.
func (s *ScheduleService) History(limit int) ([]*storage.ChangeRecord, error) {
	if s.changes == nil {
		return nil, nil
	}
	return s.changes.ListChanges(limit)
}

func (s *ScheduleService) Disciplines() []string {
	return domain.UniqueDisciplines(s.Schedule())
}

// NextOccurrence resolves the next lesson date after ref, or UnknownDate.
func (s *ScheduleService) NextOccurrence(discipline string, mode domain.Mode, ref time.Time) string {
	return domain.NextValidUntil(s.Schedule(), discipline, mode, ref)
}

// Days returns the schedule days of the period around today.
func (s *ScheduleService) Days(period domain.Period) []domain.DatedDay {
	from, to := period.Range(s.Today())
	return domain.DaysBetween(s.Schedule(), from, to)
}

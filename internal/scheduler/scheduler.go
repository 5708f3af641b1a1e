package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/tazhate/studentbot/config"
	"github.com/tazhate/studentbot/internal/domain"
	"github.com/tazhate/studentbot/internal/notify"
	"github.com/tazhate/studentbot/internal/service"
)

// CalendarSyncer pushes the current schedule to an external calendar.
type CalendarSyncer interface {
	SyncSchedule(ctx context.Context, s domain.Schedule) error
}

type Scheduler struct {
	cron            *cron.Cron
	cfg             *config.Config
	scheduleService *service.ScheduleService
	noteService     *service.NoteService
	settingsService *service.SettingsService
	notifier        notify.Notifier
	syncer          CalendarSyncer
}

func New(cfg *config.Config, scheduleSvc *service.ScheduleService, noteSvc *service.NoteService, settingsSvc *service.SettingsService, notifier notify.Notifier) *Scheduler {
	c := cron.New(cron.WithLocation(cfg.Timezone))

	return &Scheduler{
		cron:            c,
		cfg:             cfg,
		scheduleService: scheduleSvc,
		noteService:     noteSvc,
		settingsService: settingsSvc,
		notifier:        notifier,
	}
}

// SetSyncer enables the calendar push after each refresh.
func (s *Scheduler) SetSyncer(syncer CalendarSyncer) {
	s.syncer = syncer
}

func (s *Scheduler) Start(ctx context.Context) error {
	// Ежедневная проверка расписания
	checkSpec, err := DailySpec(s.cfg.CheckTime)
	if err != nil {
		return fmt.Errorf("check time: %w", err)
	}
	if _, err := s.cron.AddFunc(checkSpec, func() { s.dailyCheck(ctx) }); err != nil {
		return fmt.Errorf("add daily check: %w", err)
	}

	// Напоминание о заметках
	notesSpec, err := DailySpec(s.cfg.NotesTime)
	if err != nil {
		return fmt.Errorf("notes time: %w", err)
	}
	if _, err := s.cron.AddFunc(notesSpec, func() { s.notesReminder(ctx) }); err != nil {
		return fmt.Errorf("add notes reminder: %w", err)
	}

	s.cron.Start()
	log.Printf("Scheduler started (TZ: %s, check: %s, notes: %s)",
		s.cfg.Timezone, s.cfg.CheckTime, s.cfg.NotesTime)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

// DailySpec converts "HH:MM" into a daily cron spec.
func DailySpec(clock string) (string, error) {
	hour, minute, err := config.ParseClock(clock)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

func (s *Scheduler) dailyCheck(ctx context.Context) {
	log.Println("Checking for schedule changes...")
	changes, err := s.scheduleService.Refresh(ctx)
	if err != nil {
		log.Printf("Daily schedule check failed: %v", err)
		return
	}
	log.Printf("Daily schedule check done, %d changes", len(changes))

	s.syncCalendar(ctx)
}

func (s *Scheduler) syncCalendar(ctx context.Context) {
	if s.syncer == nil {
		return
	}
	if err := s.syncer.SyncSchedule(ctx, s.scheduleService.Schedule()); err != nil {
		log.Printf("Error syncing calendar: %v", err)
	}
}

func (s *Scheduler) notesReminder(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	days := s.settingsService.Get().ExpiryDays
	notes := s.noteService.Expiring(days)
	if len(notes) == 0 {
		return
	}

	if err := s.notifier.Notify(ctx, "Notes due soon", FormatExpiring(notes)); err != nil {
		log.Printf("Error sending notes reminder: %v", err)
	}
}

// FormatExpiring lists notes as "discipline (date): text" lines.
func FormatExpiring(notes []domain.Note) string {
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		lines = append(lines, fmt.Sprintf("%s (%s): %s", n.Discipline, n.ValidUntil, n.Text))
	}
	return strings.Join(lines, "\n")
}

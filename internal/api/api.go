package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/justinas/alice"

	"github.com/tazhate/studentbot/config"
	"github.com/tazhate/studentbot/internal/domain"
	"github.com/tazhate/studentbot/internal/service"
	"github.com/tazhate/studentbot/internal/storage"
)

// APIResponse wraps every JSON reply.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type LessonResponse struct {
	Discipline string `json:"discipline"`
	Type       string `json:"type,omitempty"`
	Room       string `json:"room,omitempty"`
	Teacher    string `json:"teacher,omitempty"`
	TimeStart  string `json:"time_start"`
	TimeEnd    string `json:"time_end,omitempty"`
	Current    bool   `json:"current"`
}

type DayResponse struct {
	Date    string           `json:"date"`
	DayWeek string           `json:"day_week,omitempty"`
	Status  domain.DayStatus `json:"status"`
	Lessons []LessonResponse `json:"lessons"`
}

type ScheduleResponse struct {
	Period      domain.Period `json:"period"`
	GroupID     string        `json:"group_id,omitempty"`
	LastFetched *string       `json:"last_fetched,omitempty"`
	Stale       bool          `json:"stale"`
	Errors      []string      `json:"errors,omitempty"`
	Days        []DayResponse `json:"days"`
}

type NoteResponse struct {
	ID         string            `json:"id"`
	Discipline string            `json:"discipline"`
	Mode       domain.Mode       `json:"mode"`
	Text       string            `json:"text"`
	ValidUntil string            `json:"valid_until"`
	Status     domain.NoteStatus `json:"status"`
}

type NextResponse struct {
	Discipline string      `json:"discipline"`
	Mode       domain.Mode `json:"mode"`
	Date       string      `json:"date"`
}

type RefreshResponse struct {
	Count   int            `json:"count"`
	Changes domain.Changes `json:"changes"`
}

// Server exposes the schedule, notes and settings over HTTP for the
// companion front end.
type Server struct {
	cfg       *config.Config
	schedules *service.ScheduleService
	notes     *service.NoteService
	settings  *service.SettingsService
}

func New(cfg *config.Config, schedules *service.ScheduleService, notes *service.NoteService, settings *service.SettingsService) *Server {
	return &Server{cfg: cfg, schedules: schedules, notes: notes, settings: settings}
}

// Register adds the routes to mux. Without API credentials the routes are
// served unauthenticated, which is only meant for a local front end.
func (s *Server) Register(mux *http.ServeMux) {
	if s.cfg.APIUsername == "" || s.cfg.APIPassword == "" {
		log.Printf("API credentials not set, API is open")
	}

	mux.HandleFunc("/health", s.health)

	api := alice.New(recoverPanic, s.basicAuth)

	// Schedule
	mux.Handle("/api/schedule", api.ThenFunc(s.apiSchedule))
	mux.Handle("/api/disciplines", api.ThenFunc(s.apiDisciplines))
	mux.Handle("/api/next", api.ThenFunc(s.apiNext))
	mux.Handle("/api/changes", api.ThenFunc(s.apiChanges))
	mux.Handle("/api/refresh", api.ThenFunc(s.apiRefresh))
	mux.Handle("/api/calendar.ics", api.ThenFunc(s.apiCalendar))

	// Notes
	mux.Handle("/api/notes", api.ThenFunc(s.apiNotes))
	mux.Handle("/api/notes/expiring", api.ThenFunc(s.apiNotesExpiring))
	mux.Handle("/api/notes/", api.ThenFunc(s.apiNote))

	// Settings
	mux.Handle("/api/settings", api.ThenFunc(s.apiSettings))
	mux.Handle("/api/group", api.ThenFunc(s.apiGroup))
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	if s.cfg.APIUsername == "" || s.cfg.APIPassword == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != s.cfg.APIUsername || password != s.cfg.APIPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="StudentBot API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic answers 500 when a handler panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic in %s %s: %v", r.Method, r.URL.Path, err)
				w.Header().Set("Connection", "close")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data}); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}

// serviceError maps service errors to HTTP statuses.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	var ue *domain.UserError
	switch {
	case errors.As(err, &ue):
		s.jsonError(w, ue.Message, http.StatusBadRequest)
	case errors.Is(err, service.ErrNoteNotFound):
		s.jsonError(w, "Note not found", http.StatusNotFound)
	case errors.Is(err, service.ErrFetchFailed):
		s.jsonError(w, err.Error(), http.StatusBadGateway)
	default:
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
}

func noteToResponse(n domain.Note, today time.Time) NoteResponse {
	return NoteResponse{
		ID:         n.ID,
		Discipline: n.Discipline,
		Mode:       n.Mode,
		Text:       n.Text,
		ValidUntil: n.ValidUntil,
		Status:     n.Status(today),
	}
}

func notesToResponse(notes []domain.Note, today time.Time) []NoteResponse {
	result := make([]NoteResponse, 0, len(notes))
	for _, n := range notes {
		result = append(result, noteToResponse(n, today))
	}
	return result
}

func daysToResponse(days []domain.DatedDay, now time.Time) []DayResponse {
	result := make([]DayResponse, 0, len(days))
	for _, d := range days {
		day := DayResponse{
			Date:    domain.FormatDate(d.Date),
			DayWeek: d.Day.DayWeek,
			Status:  domain.StatusOfDay(d.Date, now),
			Lessons: make([]LessonResponse, 0, len(d.Day.MainSchedule)),
		}
		for _, l := range d.Day.MainSchedule {
			day.Lessons = append(day.Lessons, LessonResponse{
				Discipline: l.Discipline(),
				Type:       l.Type(),
				Room:       l.Room(),
				Teacher:    l.Teacher(),
				TimeStart:  l.TimeStart(),
				TimeEnd:    l.TimeEnd(),
				Current:    domain.IsCurrent(d.Date, l, now),
			})
		}
		result = append(result, day)
	}
	return result
}

func changesToResponse(records []*storage.ChangeRecord) []*storage.ChangeRecord {
	if records == nil {
		return []*storage.ChangeRecord{}
	}
	return records
}

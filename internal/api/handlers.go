package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/studentbot/internal/clients/caldav"
	"github.com/tazhate/studentbot/internal/domain"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// GET /api/schedule?period=today|tomorrow|week|month
func (s *Server) apiSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}

	period := domain.ParsePeriod(r.URL.Query().Get("period"))
	snap := s.schedules.Snapshot()

	resp := ScheduleResponse{
		Period:  period,
		GroupID: snap.GroupID,
		Stale:   s.schedules.Stale(),
		Errors:  snap.Schedules.Errors(),
		Days:    daysToResponse(s.schedules.Days(period), s.schedules.Now()),
	}
	if snap.LastFetched != nil {
		ts := snap.LastFetched.Format(time.RFC3339)
		resp.LastFetched = &ts
	}
	s.jsonResponse(w, resp)
}

// GET /api/disciplines
func (s *Server) apiDisciplines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	s.jsonResponse(w, s.schedules.Disciplines())
}

// GET /api/next?discipline=...&mode=...&ref=DD.MM.YYYY
func (s *Server) apiNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	discipline := strings.TrimSpace(q.Get("discipline"))
	if discipline == "" {
		s.jsonError(w, "discipline is required", http.StatusBadRequest)
		return
	}
	mode, ok := domain.ParseMode(q.Get("mode"))
	if !ok {
		s.jsonError(w, "unknown mode", http.StatusBadRequest)
		return
	}

	ref := s.schedules.Today()
	if raw := q.Get("ref"); raw != "" {
		t, err := domain.ParseDate(raw)
		if err != nil {
			s.jsonError(w, "ref must be DD.MM.YYYY", http.StatusBadRequest)
			return
		}
		ref = t
	}

	s.jsonResponse(w, NextResponse{
		Discipline: discipline,
		Mode:       mode,
		Date:       s.schedules.NextOccurrence(discipline, mode, ref),
	})
}

// GET /api/changes?limit=N
func (s *Server) apiChanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.schedules.History(limit)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, changesToResponse(records))
}

// POST /api/refresh
func (s *Server) apiRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}
	changes, err := s.schedules.Refresh(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if changes == nil {
		changes = domain.Changes{}
	}
	s.jsonResponse(w, RefreshResponse{Count: len(changes), Changes: changes})
}

// GET /api/calendar.ics - the cached schedule for calendar subscriptions
func (s *Server) apiCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	if err := caldav.WriteICS(w, s.schedules.Schedule(), s.cfg.Timezone, time.Now()); err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

type noteRequest struct {
	Discipline string `json:"discipline"`
	Mode       string `json:"mode"`
	Text       string `json:"text"`
}

// GET /api/notes - list notes
// POST /api/notes - create note
func (s *Server) apiNotes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.jsonResponse(w, notesToResponse(s.notes.List(), s.schedules.Today()))

	case http.MethodPost:
		var req noteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		mode, ok := domain.ParseMode(req.Mode)
		if !ok {
			s.jsonError(w, "unknown mode", http.StatusBadRequest)
			return
		}
		note, err := s.notes.Add(req.Discipline, mode, req.Text)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, noteToResponse(note, s.schedules.Today()))

	default:
		s.methodNotAllowed(w)
	}
}

// GET /api/notes/expiring?days=N
func (s *Server) apiNotesExpiring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days < 0 {
		days = s.settings.Get().ExpiryDays
	}
	s.jsonResponse(w, notesToResponse(s.notes.Expiring(days), s.schedules.Today()))
}

// GET|PUT|DELETE /api/notes/{id}
// POST /api/notes/{id}/extend
func (s *Server) apiNote(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/notes/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		s.jsonError(w, "Note ID required", http.StatusBadRequest)
		return
	}
	id := parts[0]
	today := s.schedules.Today()

	if len(parts) > 1 {
		if parts[1] != "extend" {
			s.jsonError(w, "Not found", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}
		note, err := s.notes.Extend(id)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, noteToResponse(note, today))
		return
	}

	switch r.Method {
	case http.MethodGet:
		note, err := s.notes.Get(id)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, noteToResponse(note, today))

	case http.MethodPut:
		current, err := s.notes.Get(id)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		req := noteRequest{Text: current.Text, Mode: string(current.Mode)}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		mode, ok := domain.ParseMode(req.Mode)
		if !ok {
			s.jsonError(w, "unknown mode", http.StatusBadRequest)
			return
		}
		note, err := s.notes.Edit(id, req.Text, mode)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, noteToResponse(note, today))

	case http.MethodDelete:
		if err := s.notes.Delete(id); err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, map[string]bool{"deleted": true})

	default:
		s.methodNotAllowed(w)
	}
}

// GET /api/settings
// PUT /api/settings - fields missing from the body keep their values
func (s *Server) apiSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.jsonResponse(w, s.settings.Get())

	case http.MethodPut:
		next := s.settings.Get()
		if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
			s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		updated, err := s.settings.Update(next)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, updated)

	default:
		s.methodNotAllowed(w)
	}
}

// GET /api/group - current group
// POST /api/group {"group_id": "26616"} - select a group
// DELETE /api/group - forget the group and its notes
func (s *Server) apiGroup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.jsonResponse(w, map[string]string{"group_id": s.settings.Get().GroupID})

	case http.MethodPost:
		var req struct {
			GroupID string `json:"group_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		snap, err := s.schedules.SelectGroup(r.Context(), req.GroupID)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, map[string]interface{}{
			"group_id":    snap.GroupID,
			"disciplines": domain.UniqueDisciplines(snap.Schedules),
		})

	case http.MethodDelete:
		s.schedules.ChangeGroup()
		s.jsonResponse(w, map[string]bool{"reset": true})

	default:
		s.methodNotAllowed(w)
	}
}

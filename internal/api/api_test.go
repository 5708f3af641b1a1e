package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/studentbot/config"
	"github.com/tazhate/studentbot/internal/domain"
	"github.com/tazhate/studentbot/internal/service"
	"github.com/tazhate/studentbot/internal/storage"
)

type stubFetcher struct{ schedule domain.Schedule }

func (s stubFetcher) FetchAll(context.Context, []string) domain.Schedule { return s.schedule }

func futureSchedule() domain.Schedule {
	return domain.Schedule{{Month: []domain.Month{{Sched: []domain.Day{
		{DatePair: "01.09.2099", DayWeek: "Вт", MainSchedule: []domain.Lesson{
			{"SubjName": "Математика", "LoadKindSN": "Лекция", "Aud": "101", "TimeStart": "08:30", "TimeEnd": "10:00"},
		}},
		{DatePair: "03.09.2099", DayWeek: "Чт", MainSchedule: []domain.Lesson{
			{"SubjName": "Математика", "LoadKindSN": "Практ зан", "Aud": "202", "TimeStart": "10:15", "TimeEnd": "11:45"},
		}},
		{DatePair: "08.09.2099", DayWeek: "Вт", MainSchedule: []domain.Lesson{
			{"SubjName": "Математика", "LoadKindSN": "Лекция", "Aud": "101", "TimeStart": "08:30", "TimeEnd": "10:00"},
		}},
		{DatePair: "10.09.2099", DayWeek: "Чт", MainSchedule: []domain.Lesson{
			{"SubjName": "Математика", "LoadKindSN": "Практ зан", "Aud": "202", "TimeStart": "10:15", "TimeEnd": "11:45"},
		}},
	}}}}}
}

type fixture struct {
	mux   *http.ServeMux
	notes *service.NoteService
}

func newFixture(t *testing.T, user, pass string, fetched domain.Schedule) *fixture {
	t.Helper()
	files, err := storage.NewFiles(t.TempDir())
	require.NoError(t, err)

	settings := service.NewSettingsService(files)
	schedules := service.NewScheduleService(files, settings, stubFetcher{fetched}, nil, nil, service.ScheduleOptions{Timezone: time.UTC})
	notes := service.NewNoteService(files, schedules)
	schedules.OnGroupChange(notes.Clear)

	cfg := &config.Config{APIUsername: user, APIPassword: pass, Timezone: time.UTC}
	mux := http.NewServeMux()
	New(cfg, schedules, notes, settings).Register(mux)
	return &fixture{mux: mux, notes: notes}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	var resp APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Code != http.StatusUnauthorized {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func (f *fixture) selectGroup(t *testing.T) {
	t.Helper()
	rec, resp := f.do(t, http.MethodPost, "/api/group", `{"group_id":"26616"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, resp.Success)
}

func TestBasicAuth(t *testing.T) {
	f := newFixture(t, "admin", "secret", futureSchedule())

	rec, _ := f.do(t, http.MethodGet, "/api/notes", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGroupAndSchedule(t *testing.T) {
	f := newFixture(t, "", "", futureSchedule())

	rec, resp := f.do(t, http.MethodGet, "/api/disciplines", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp.Data)

	rec, resp = f.do(t, http.MethodPost, "/api/group", `{"group_id":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)

	f.selectGroup(t)

	_, resp = f.do(t, http.MethodGet, "/api/disciplines", "")
	assert.Equal(t, []interface{}{"Математика"}, resp.Data)

	_, resp = f.do(t, http.MethodGet, "/api/next?discipline=Математика&mode=practice", "")
	next := resp.Data.(map[string]interface{})
	assert.Equal(t, "03.09.2099", next["date"])
	assert.Equal(t, string(domain.ModePractice), next["mode"])

	_, resp = f.do(t, http.MethodGet, "/api/next?discipline=Математика&mode=lecture&ref=01.09.2099", "")
	assert.Equal(t, "08.09.2099", resp.Data.(map[string]interface{})["date"])

	rec, _ = f.do(t, http.MethodGet, "/api/next?discipline=Математика&ref=2099-09-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/next?discipline=Математика&mode=seminar", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, resp = f.do(t, http.MethodGet, "/api/schedule?period=week", "")
	sched := resp.Data.(map[string]interface{})
	assert.Equal(t, "week", sched["period"])
	assert.Equal(t, "26616", sched["group_id"])
	assert.Equal(t, false, sched["stale"])

	rec, _ = f.do(t, http.MethodPost, "/api/schedule", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRefreshFailure(t *testing.T) {
	f := newFixture(t, "", "", domain.Schedule{domain.Failed("HTTP 500")})

	rec, resp := f.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no group selected yet")
	assert.False(t, resp.Success)

	rec, _ = f.do(t, http.MethodPost, "/api/group", `{"group_id":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotesCRUD(t *testing.T) {
	f := newFixture(t, "", "", futureSchedule())
	f.selectGroup(t)

	rec, resp := f.do(t, http.MethodPost, "/api/notes", `{"discipline":"Математика","mode":"lecture","text":"Выучить теорему"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := resp.Data.(map[string]interface{})
	id := created["id"].(string)
	assert.Equal(t, "01.09.2099", created["valid_until"])
	assert.Equal(t, string(domain.StatusActive), created["status"])

	rec, _ = f.do(t, http.MethodPost, "/api/notes", `{"discipline":"Математика","text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, resp = f.do(t, http.MethodPut, "/api/notes/"+id, `{"text":"Выучить две теоремы"}`)
	edited := resp.Data.(map[string]interface{})
	assert.Equal(t, "Выучить две теоремы", edited["text"])
	assert.Equal(t, string(domain.ModeLecture), edited["mode"])
	assert.Equal(t, "08.09.2099", edited["valid_until"], "same mode resolves from the old date")

	_, resp = f.do(t, http.MethodPost, "/api/notes/"+id+"/extend", "")
	extended := resp.Data.(map[string]interface{})
	assert.Equal(t, "10.09.2099", extended["valid_until"])

	_, resp = f.do(t, http.MethodGet, "/api/notes", "")
	assert.Len(t, resp.Data, 1)

	rec, _ = f.do(t, http.MethodDelete, "/api/notes/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = f.do(t, http.MethodDelete, "/api/notes/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Note not found", resp.Error)
}

func TestGroupResetClearsNotes(t *testing.T) {
	f := newFixture(t, "", "", futureSchedule())
	f.selectGroup(t)

	_, err := f.notes.Add("Математика", domain.ModeUntilNextClass, "x")
	require.NoError(t, err)

	rec, _ := f.do(t, http.MethodDelete, "/api/group", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.notes.List())

	_, resp := f.do(t, http.MethodGet, "/api/group", "")
	assert.Equal(t, map[string]interface{}{"group_id": ""}, resp.Data)
}

func TestSettings(t *testing.T) {
	f := newFixture(t, "", "", futureSchedule())

	_, resp := f.do(t, http.MethodPut, "/api/settings", `{"expiry_days":5}`)
	settings := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(5), settings["expiry_days"])
	assert.Equal(t, true, settings["schedule_notifications"])

	rec, _ := f.do(t, http.MethodPut, "/api/settings", `{"expiry_days":90}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPut, "/api/settings", `{"theme":"neon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarExport(t *testing.T) {
	f := newFixture(t, "", "", futureSchedule())
	f.selectGroup(t)

	rec, _ := f.do(t, http.MethodGet, "/api/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Equal(t, 4, strings.Count(body, "BEGIN:VEVENT"))
}

func TestRecoverPanic(t *testing.T) {
	h := recoverPanic(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notes", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

package caldav

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-webdav/caldav"

	"github.com/tazhate/studentbot/internal/domain"
)

// Client pushes the lesson schedule into one calendar of a CalDAV account.
type Client struct {
	baseURL      string
	username     string
	password     string
	calendarName string
	tz           *time.Location
	timeout      time.Duration

	client       *caldav.Client
	calendarPath string
}

func NewClient(baseURL, username, password, calendarName string, tz *time.Location, timeout time.Duration) *Client {
	if tz == nil {
		tz = time.UTC
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      baseURL,
		username:     username,
		password:     password,
		calendarName: calendarName,
		tz:           tz,
		timeout:      timeout,
	}
}

func (c *Client) IsConfigured() bool {
	return c.baseURL != "" && c.username != "" && c.password != ""
}

func (c *Client) connect() (*caldav.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
		},
		Timeout: c.timeout,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	c.client = client
	return client, nil
}

type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// DiscoverCalendars returns all calendars of the account.
func (c *Client) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	result := make([]Calendar, 0, len(cals))
	for _, cal := range cals {
		result = append(result, Calendar{Path: cal.Path, DisplayName: cal.Name})
	}
	return result, nil
}

// resolveCalendar finds the calendar named calendarName, or the first one.
func (c *Client) resolveCalendar(ctx context.Context) (string, error) {
	if c.calendarPath != "" {
		return c.calendarPath, nil
	}
	cals, err := c.DiscoverCalendars(ctx)
	if err != nil {
		return "", err
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("no calendars on server")
	}

	path := cals[0].Path
	for _, cal := range cals {
		if strings.EqualFold(cal.DisplayName, c.calendarName) {
			path = cal.Path
			break
		}
	}
	c.calendarPath = path
	return path, nil
}

// SyncSchedule makes the calendar mirror s: lessons are created or updated
// and events this client created earlier that are no longer in s are removed.
// Events made by anyone else are left alone.
func (c *Client) SyncSchedule(ctx context.Context, s domain.Schedule) error {
	if !c.IsConfigured() {
		return nil
	}
	client, err := c.connect()
	if err != nil {
		return err
	}
	calendarPath, err := c.resolveCalendar(ctx)
	if err != nil {
		return err
	}

	want := LessonEvents(s, c.tz)
	if len(want) == 0 {
		return nil
	}
	from, to := window(want)

	existing, err := c.eventsBetween(ctx, client, calendarPath, from, to)
	if err != nil {
		return err
	}

	put, remove := plan(existing, want)
	stamp := time.Now()
	for _, ev := range put {
		if _, err := client.PutCalendarObject(ctx, eventPath(calendarPath, ev.UID), eventToICS(ev, stamp)); err != nil {
			return fmt.Errorf("put event %s: %w", ev.UID, err)
		}
	}
	for _, uid := range remove {
		if err := client.RemoveAll(ctx, eventPath(calendarPath, uid)); err != nil {
			log.Printf("Error removing calendar event %s: %v", uid, err)
		}
	}

	log.Printf("CalDAV sync: %d lessons, %d written, %d removed", len(want), len(put), len(remove))
	return nil
}

func (c *Client) eventsBetween(ctx context.Context, client *caldav.Client, calendarPath string, from, to time.Time) ([]Event, error) {
	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: from,
				End:   to,
			}},
		},
	}

	objects, err := client.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	var events []Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		if ev, ok := parseEvent(obj.Data); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// plan returns the events to write and the UIDs of own events to delete.
// Unchanged events are skipped.
func plan(existing, want []Event) (put []Event, remove []string) {
	have := make(map[string]Event, len(existing))
	for _, ev := range existing {
		if ownUID(ev.UID) {
			have[ev.UID] = ev
		}
	}

	keep := make(map[string]bool, len(want))
	for _, ev := range want {
		keep[ev.UID] = true
		if old, ok := have[ev.UID]; ok && sameEvent(old, ev) {
			continue
		}
		put = append(put, ev)
	}
	for _, ev := range existing {
		if ownUID(ev.UID) && !keep[ev.UID] {
			remove = append(remove, ev.UID)
		}
	}
	return put, remove
}

func sameEvent(a, b Event) bool {
	return a.Summary == b.Summary &&
		a.Location == b.Location &&
		a.Description == b.Description &&
		a.AllDay == b.AllDay &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime)
}

func window(events []Event) (from, to time.Time) {
	for i, ev := range events {
		if i == 0 || ev.StartTime.Before(from) {
			from = ev.StartTime
		}
		if i == 0 || ev.EndTime.After(to) {
			to = ev.EndTime
		}
	}
	return from, to
}

func eventPath(calendarPath, uid string) string {
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}
	return calendarPath + uid + ".ics"
}

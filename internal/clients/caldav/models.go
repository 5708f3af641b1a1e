package caldav

import "time"

// Calendar is a calendar collection found on the server.
type Calendar struct {
	Path        string
	DisplayName string
}

// Event is one lesson as a calendar event.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	// AllDay is set for lessons whose start time could not be parsed.
	AllDay bool
}

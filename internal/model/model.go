package model

import (
	"time"

	"lunaralarm/internal/lunar"
)

// CalendarEvent is a single occurrence of a calendar entry as returned by an
// event source (after recurrence expansion and timezone normalization).
// Instances are re-fetched on every run and never cached across runs.
type CalendarEvent struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID, stable across fetches

	Summary  string
	Location string

	AllDay bool

	// Start / End are in the configured timezone. End may be zero.
	Start time.Time
	End   time.Time

	// Lunar is the structured anniversary (X-LUNAR-DATE), if the event
	// carries one. Titles with an embedded "(음력 ...)" marker are handled
	// by the matcher instead.
	Lunar *lunar.Date
}

// Identity returns the key used for de-duplication: the UID when present,
// otherwise summary plus start.
func (e CalendarEvent) Identity() string {
	if e.UID != "" {
		return e.UID
	}
	return e.Summary + "@" + e.Start.Format(time.RFC3339)
}

// Notification is one rendered message, ready for the delivery dispatcher.
type Notification struct {
	EventID    string     `json:"event_id"`
	Summary    string     `json:"summary"`
	TargetDate time.Time  `json:"target_date"`
	Offset     int        `json:"offset_days"`
	Label      string     `json:"label"`
	Lunar      lunar.Date `json:"lunar"`
	Body       string     `json:"body"`
}

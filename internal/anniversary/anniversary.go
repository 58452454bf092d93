// Package anniversary decides which calendar events are lunar anniversaries
// landing on a given target date.
//
// Two strategies are available. PatternMatcher reads the lunar month/day from
// the event itself (X-LUNAR-DATE or a "(음력 1월 15일)" title marker) and is
// the default. SlotMatcher looks for marker-tagged events stored on the
// "virtual" solar date whose month/day equal the target's lunar month/day.
package anniversary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lunaralarm/internal/lunar"
	"lunaralarm/internal/model"
)

var (
	// ErrCalendarFetch wraps any failure of the event source.
	ErrCalendarFetch = errors.New("anniversary: calendar fetch failed")
	// ErrInvalidCalendarDate is returned by SlotMatcher when the virtual
	// lookup date does not exist (e.g. lunar 2/30 read as a solar date).
	ErrInvalidCalendarDate = errors.New("anniversary: lookup date does not exist")
)

const (
	StrategyPattern = "pattern"
	StrategySlot    = "slot"

	DefaultWindowDays = 400
)

// DefaultMarkers are the title substrings SlotMatcher treats as lunar tags.
var DefaultMarkers = []string{"음력", "Lunar"}

// EventSource returns every event occurrence intersecting [start, end).
type EventSource interface {
	FetchEvents(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error)
}

// Matcher prepares a Session for one daily run.
type Matcher interface {
	Begin(ctx context.Context, today time.Time, maxOffset int) (Session, error)
}

// Session answers per-offset queries within one run.
type Session interface {
	Match(ctx context.Context, target time.Time, offset int) ([]Candidate, error)
}

// Candidate is one event matched to a target date.
type Candidate struct {
	EventID string
	Event   model.CalendarEvent
	Target  time.Time
	Offset  int
	Label   string
	Lunar   lunar.Date
}

// Label returns the ledger notification type for an offset.
func Label(offset int) string {
	return fmt.Sprintf("lunar_%dday", offset)
}

// Options selects and tunes a strategy.
type Options struct {
	Strategy   string
	Markers    []string
	WindowDays int
}

// New builds the matcher named by opts.Strategy. An empty strategy means
// StrategyPattern.
func New(src EventSource, opts Options) (Matcher, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Strategy)) {
	case "", StrategyPattern:
		return NewPatternMatcher(src, opts.WindowDays), nil
	case StrategySlot:
		return NewSlotMatcher(src, opts.Markers), nil
	default:
		return nil, fmt.Errorf("anniversary: unknown strategy %q", opts.Strategy)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func fetchError(err error) error {
	if errors.Is(err, ErrCalendarFetch) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCalendarFetch, err)
}

package anniversary

import (
	"context"
	"fmt"
	"sort"
	"time"

	appLog "lunaralarm/internal/log"
	"lunaralarm/internal/lunar"
	"lunaralarm/internal/model"
)

// PatternMatcher matches events that carry their own lunar date.
type PatternMatcher struct {
	source     EventSource
	windowDays int
}

// NewPatternMatcher returns a PatternMatcher fetching windowDays past the
// largest offset. windowDays <= 0 uses DefaultWindowDays, which is wide
// enough for every yearly recurrence to show up at least once.
func NewPatternMatcher(src EventSource, windowDays int) *PatternMatcher {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &PatternMatcher{source: src, windowDays: windowDays}
}

type tagged struct {
	event model.CalendarEvent
	date  lunar.Date
}

type patternSession struct {
	entries []tagged
}

// Begin fetches the window once for the whole run.
func (m *PatternMatcher) Begin(ctx context.Context, today time.Time, maxOffset int) (Session, error) {
	entries, err := m.collect(ctx, today, maxOffset)
	if err != nil {
		return nil, err
	}
	return &patternSession{entries: entries}, nil
}

func (m *PatternMatcher) collect(ctx context.Context, today time.Time, extraDays int) ([]tagged, error) {
	start := startOfDay(today)
	end := start.AddDate(0, 0, m.windowDays+extraDays+1)

	events, err := m.source.FetchEvents(ctx, start, end)
	if err != nil {
		return nil, fetchError(err)
	}

	seen := make(map[string]struct{}, len(events))
	entries := make([]tagged, 0)
	for _, ev := range events {
		d, ok := anniversaryOf(ev)
		if !ok {
			continue
		}
		id := ev.Identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		entries = append(entries, tagged{event: ev, date: d})
	}

	appLog.Debug("anniversary: pattern window loaded",
		"events", len(events), "anniversaries", len(entries),
		"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))
	return entries, nil
}

// Match returns the anniversaries whose occurrence in the target's lunar
// year is the target date.
func (s *patternSession) Match(_ context.Context, target time.Time, offset int) ([]Candidate, error) {
	target = startOfDay(target)
	ld, err := lunar.FromSolar(target)
	if err != nil {
		return nil, fmt.Errorf("anniversary: target %s: %w", target.Format(time.DateOnly), err)
	}

	out := make([]Candidate, 0)
	for _, e := range s.entries {
		ok, err := lunar.OccursOn(target, e.date)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		a := e.date
		a.Year = ld.Year
		out = append(out, Candidate{
			EventID: e.event.Identity(),
			Event:   e.event,
			Target:  target,
			Offset:  offset,
			Label:   Label(offset),
			Lunar:   a,
		})
	}
	return out, nil
}

// Upcoming lists anniversaries whose next occurrence falls within
// [today, today+days), soonest first. Offset holds the days remaining.
func (m *PatternMatcher) Upcoming(ctx context.Context, today time.Time, days int) ([]Candidate, error) {
	if days <= 0 {
		return nil, nil
	}
	day := startOfDay(today)
	entries, err := m.collect(ctx, day, days)
	if err != nil {
		return nil, err
	}

	limit := day.AddDate(0, 0, days)
	out := make([]Candidate, 0)
	for _, e := range entries {
		next, ok := lunar.NextOccurrence(day, e.date)
		if !ok || !next.Before(limit) {
			continue
		}
		ld, err := lunar.FromSolar(next)
		if err != nil {
			continue
		}
		a := e.date
		a.Year = ld.Year
		offset := daysBetween(day, next)
		out = append(out, Candidate{
			EventID: e.event.Identity(),
			Event:   e.event,
			Target:  next,
			Offset:  offset,
			Label:   Label(offset),
			Lunar:   a,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Target.Equal(out[j].Target) {
			return out[i].Target.Before(out[j].Target)
		}
		return out[i].Event.Summary < out[j].Event.Summary
	})
	return out, nil
}

// anniversaryOf prefers the structured property over the title marker.
func anniversaryOf(ev model.CalendarEvent) (lunar.Date, bool) {
	if ev.Lunar != nil {
		d := *ev.Lunar
		d.Year = 0
		return d, true
	}
	return lunar.ParseMarker(ev.Summary)
}

// daysBetween counts calendar days, ignoring DST-length days.
func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

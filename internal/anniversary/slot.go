package anniversary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lunaralarm/internal/lunar"
)

// SlotMatcher finds anniversaries stored on a "virtual" solar date: an event
// titled "할머니 기일 음력" on 3/15 means lunar 3/15. Every Match issues its
// own one-day fetch.
type SlotMatcher struct {
	source  EventSource
	markers []string
}

// NewSlotMatcher returns a SlotMatcher; an empty markers list uses
// DefaultMarkers.
func NewSlotMatcher(src EventSource, markers []string) *SlotMatcher {
	ms := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = lunar.Normalize(strings.TrimSpace(m)); m != "" {
			ms = append(ms, m)
		}
	}
	if len(ms) == 0 {
		ms = append(ms, DefaultMarkers...)
	}
	return &SlotMatcher{source: src, markers: ms}
}

// Begin has nothing to prefetch.
func (m *SlotMatcher) Begin(context.Context, time.Time, int) (Session, error) {
	return m, nil
}

func (m *SlotMatcher) Match(ctx context.Context, target time.Time, offset int) ([]Candidate, error) {
	target = startOfDay(target)
	ld, err := lunar.FromSolar(target)
	if err != nil {
		return nil, fmt.Errorf("anniversary: target %s: %w", target.Format(time.DateOnly), err)
	}

	slot := time.Date(target.Year(), time.Month(ld.Month), ld.Day, 0, 0, 0, 0, target.Location())
	if int(slot.Month()) != ld.Month || slot.Day() != ld.Day {
		return nil, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidCalendarDate, target.Year(), ld.Month, ld.Day)
	}
	slotEnd := slot.AddDate(0, 0, 1)

	events, err := m.source.FetchEvents(ctx, slot, slotEnd)
	if err != nil {
		return nil, fetchError(err)
	}

	seen := make(map[string]struct{})
	out := make([]Candidate, 0)
	for _, ev := range events {
		if ev.Start.Before(slot) || !ev.Start.Before(slotEnd) {
			continue
		}
		if !m.tagged(ev.Summary) {
			continue
		}
		id := ev.Identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Candidate{
			EventID: id,
			Event:   ev,
			Target:  target,
			Offset:  offset,
			Label:   Label(offset),
			Lunar:   ld,
		})
	}
	return out, nil
}

func (m *SlotMatcher) tagged(summary string) bool {
	s := lunar.Normalize(summary)
	for _, marker := range m.markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

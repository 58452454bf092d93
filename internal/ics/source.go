package ics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	appLog "lunaralarm/internal/log"
	"lunaralarm/internal/model"
)

// ErrNoSources is returned when no feed is configured.
var ErrNoSources = errors.New("ics: no calendar sources configured")

// FeedSource serves calendar events from a set of ICS feeds.
//
// Parsed feeds are kept in memory for a short TTL so that several lookups in
// the same run (one per day-offset) do not refetch and reparse every feed.
type FeedSource struct {
	fetcher  *Fetcher
	sources  []Source
	location *time.Location
	ttl      time.Duration

	mu        sync.Mutex
	parsed    []ParsedEvent
	updatedAt time.Time
}

// NewFeedSource builds a FeedSource. loc is the timezone events are
// normalized into; ttl <= 0 disables the in-memory cache.
func NewFeedSource(fetcher *Fetcher, sources []Source, loc *time.Location, ttl time.Duration) *FeedSource {
	if loc == nil {
		loc = time.Local
	}
	return &FeedSource{
		fetcher:  fetcher,
		sources:  sources,
		location: loc,
		ttl:      ttl,
	}
}

// FetchEvents returns every occurrence intersecting [start, end), sorted by
// start time. It fails only when no feed could be loaded at all.
func (s *FeedSource) FetchEvents(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error) {
	parsed, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: s.location,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(res.Events, func(i, j int) bool {
		return res.Events[i].Start.Before(res.Events[j].Start)
	})
	return res.Events, nil
}

func (s *FeedSource) load(ctx context.Context) ([]ParsedEvent, error) {
	if len(s.sources) == 0 {
		return nil, ErrNoSources
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.parsed != nil && s.ttl > 0 && time.Since(s.updatedAt) < s.ttl {
		return s.parsed, nil
	}

	results, errs := s.fetcher.FetchAll(ctx, s.sources)

	parsed := make([]ParsedEvent, 0)
	loaded := 0
	for _, res := range results {
		events, err := ParseICS(res.Source, res.Body)
		if err != nil {
			errs = append(errs, fmt.Errorf("ics: parse %s: %w", res.Source.ID, err))
			continue
		}
		loaded++
		parsed = append(parsed, events...)
	}

	if loaded == 0 {
		return nil, fmt.Errorf("ics: none of %d sources could be loaded: %w", len(s.sources), errors.Join(errs...))
	}
	if len(errs) > 0 {
		appLog.Warn("ics: some sources failed; continuing with the rest",
			"failed", len(errs), "total", len(s.sources), "err", errors.Join(errs...))
	}

	s.parsed = parsed
	s.updatedAt = time.Now()
	return parsed, nil
}

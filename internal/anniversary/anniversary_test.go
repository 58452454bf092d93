package anniversary

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/text/unicode/norm"

	"lunaralarm/internal/lunar"
	"lunaralarm/internal/model"
)

var kst = time.FixedZone("KST", 9*60*60)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, kst)
}

func allDay(uid, summary string, start time.Time) model.CalendarEvent {
	return model.CalendarEvent{UID: uid, Summary: summary, AllDay: true, Start: start, End: start.AddDate(0, 0, 1)}
}

type fakeSource struct {
	events []model.CalendarEvent
	err    error
	calls  [][2]time.Time
}

func (f *fakeSource) FetchEvents(_ context.Context, start, end time.Time) ([]model.CalendarEvent, error) {
	f.calls = append(f.calls, [2]time.Time{start, end})
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.CalendarEvent, 0)
	for _, ev := range f.events {
		if !ev.Start.Before(start) && ev.Start.Before(end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// The yearly birthday as a calendar server would expand it: lunar 1/15 is
// 2025-02-12 and 2026-03-03.
func birthdayFeed() *fakeSource {
	const title = "어머니 생신 (음력 1월 15일)"
	return &fakeSource{events: []model.CalendarEvent{
		allDay("mom", title, day(2025, time.February, 12)),
		allDay("mom", title, day(2026, time.March, 3)),
		{UID: "meeting", Summary: "Team meeting", Start: day(2025, time.February, 12).Add(10 * time.Hour)},
		{UID: "standup", Summary: "Team meeting", Start: day(2025, time.January, 15).Add(9 * time.Hour)},
	}}
}

func TestLabel(t *testing.T) {
	if got := Label(7); got != "lunar_7day" {
		t.Errorf("Label(7) = %q", got)
	}
}

func TestNew(t *testing.T) {
	src := &fakeSource{}
	if m, err := New(src, Options{}); err != nil {
		t.Fatalf("New(default) error = %v", err)
	} else if _, ok := m.(*PatternMatcher); !ok {
		t.Errorf("default strategy = %T, want *PatternMatcher", m)
	}
	if m, err := New(src, Options{Strategy: "SLOT"}); err != nil {
		t.Fatalf("New(slot) error = %v", err)
	} else if _, ok := m.(*SlotMatcher); !ok {
		t.Errorf("slot strategy = %T, want *SlotMatcher", m)
	}
	if _, err := New(src, Options{Strategy: "solar"}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestPatternMatcher_OffsetDeterminism(t *testing.T) {
	offsets := []int{0, 1, 7, 30}
	tests := []struct {
		today      time.Time
		wantOffset int
	}{
		{day(2025, time.February, 12), 0},
		{day(2025, time.February, 11), 1},
		{day(2025, time.February, 5), 7},
		{day(2025, time.January, 13), 30},
		{day(2025, time.February, 10), -1},
		{day(2025, time.January, 20), -1},
	}

	for _, tt := range tests {
		t.Run(tt.today.Format(time.DateOnly), func(t *testing.T) {
			m := NewPatternMatcher(birthdayFeed(), 0)
			sess, err := m.Begin(context.Background(), tt.today, 30)
			if err != nil {
				t.Fatalf("Begin() error = %v", err)
			}

			matched := -1
			for _, d := range offsets {
				got, err := sess.Match(context.Background(), tt.today.AddDate(0, 0, d), d)
				if err != nil {
					t.Fatalf("Match(offset %d) error = %v", d, err)
				}
				for _, c := range got {
					if c.EventID != "mom" {
						t.Errorf("unexpected candidate %q at offset %d", c.Event.Summary, d)
						continue
					}
					if matched != -1 {
						t.Errorf("matched at offsets %d and %d", matched, d)
					}
					matched = d
					if want := day(2025, time.February, 12); !c.Target.Equal(want) {
						t.Errorf("Target = %v, want %v", c.Target, want)
					}
					if c.Label != Label(d) || c.Offset != d {
						t.Errorf("Label/Offset = %q/%d", c.Label, c.Offset)
					}
					if c.Lunar != (lunar.Date{Year: 2025, Month: 1, Day: 15}) {
						t.Errorf("Lunar = %+v", c.Lunar)
					}
				}
			}
			if matched != tt.wantOffset {
				t.Errorf("matched offset = %d, want %d", matched, tt.wantOffset)
			}
		})
	}
}

func TestPatternMatcher_FetchWindow(t *testing.T) {
	src := birthdayFeed()
	today := day(2025, time.February, 12).Add(7 * time.Hour)
	if _, err := NewPatternMatcher(src, 0).Begin(context.Background(), today, 30); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if len(src.calls) != 1 {
		t.Fatalf("FetchEvents called %d times, want 1", len(src.calls))
	}
	if start := src.calls[0][0]; !start.Equal(day(2025, time.February, 12)) {
		t.Errorf("window start = %v", start)
	}
	if end := src.calls[0][1]; !end.Equal(day(2025, time.February, 12).AddDate(0, 0, DefaultWindowDays+31)) {
		t.Errorf("window end = %v", end)
	}
}

func TestPatternMatcher_StructuredAndJanuary(t *testing.T) {
	src := &fakeSource{events: []model.CalendarEvent{
		// Structured date wins even without a title marker.
		{UID: "aunt", Summary: "이모 생일", AllDay: true, Start: day(2025, time.March, 1),
			Lunar: &lunar.Date{Month: 1, Day: 15}},
		// Lunar 12/1 of lunar year 2025 lands in January 2026.
		allDay("grandma", "할머니 기일 (음력 12월 1일)", day(2025, time.December, 20)),
	}}

	sess, err := NewPatternMatcher(src, 0).Begin(context.Background(), day(2025, time.February, 1), 0)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	got, err := sess.Match(context.Background(), day(2025, time.February, 12), 0)
	if err != nil || len(got) != 1 || got[0].EventID != "aunt" {
		t.Fatalf("Match(2025-02-12) = %+v, %v", got, err)
	}

	got, err = sess.Match(context.Background(), day(2026, time.January, 19), 0)
	if err != nil || len(got) != 1 || got[0].EventID != "grandma" {
		t.Fatalf("Match(2026-01-19) = %+v, %v", got, err)
	}
	if got[0].Lunar.Year != 2025 {
		t.Errorf("Lunar.Year = %d, want 2025", got[0].Lunar.Year)
	}
}

func TestPatternMatcher_MissingDaySkipped(t *testing.T) {
	// Lunar 2025 month 2 has 29 days.
	src := &fakeSource{events: []model.CalendarEvent{
		allDay("x", "제사 (음력 2월 30일)", day(2025, time.March, 10)),
	}}
	sess, err := NewPatternMatcher(src, 0).Begin(context.Background(), day(2025, time.March, 1), 0)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	for d := day(2025, time.March, 1); d.Before(day(2025, time.May, 1)); d = d.AddDate(0, 0, 1) {
		got, err := sess.Match(context.Background(), d, 0)
		if err != nil {
			t.Fatalf("Match(%s) error = %v", d.Format(time.DateOnly), err)
		}
		if len(got) != 0 {
			t.Fatalf("Match(%s) = %+v, want none", d.Format(time.DateOnly), got)
		}
	}
}

func TestPatternMatcher_FetchError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := NewPatternMatcher(&fakeSource{err: boom}, 0).Begin(context.Background(), day(2025, time.February, 1), 7)
	if !errors.Is(err, ErrCalendarFetch) || !errors.Is(err, boom) {
		t.Fatalf("error = %v, want ErrCalendarFetch wrapping the source error", err)
	}
}

func TestPatternMatcher_UnsupportedYear(t *testing.T) {
	sess, err := NewPatternMatcher(birthdayFeed(), 0).Begin(context.Background(), day(2025, time.February, 1), 0)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := sess.Match(context.Background(), day(2099, time.January, 1), 0); !errors.Is(err, lunar.ErrUnsupportedYear) {
		t.Fatalf("error = %v, want ErrUnsupportedYear", err)
	}
}

func TestPatternMatcher_Upcoming(t *testing.T) {
	got, err := NewPatternMatcher(birthdayFeed(), 0).Upcoming(context.Background(), day(2025, time.January, 13), 60)
	if err != nil {
		t.Fatalf("Upcoming() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Upcoming() = %+v, want one entry", got)
	}
	if got[0].Offset != 30 || !got[0].Target.Equal(day(2025, time.February, 12)) {
		t.Errorf("Upcoming()[0] = offset %d target %v", got[0].Offset, got[0].Target)
	}

	got, err = NewPatternMatcher(birthdayFeed(), 0).Upcoming(context.Background(), day(2025, time.January, 13), 20)
	if err != nil || len(got) != 0 {
		t.Fatalf("Upcoming(20 days) = %+v, %v; want none", got, err)
	}
}

func TestSlotMatcher_Match(t *testing.T) {
	// Target 2025-02-12 is lunar 1/15, so the slot is 2025-01-15.
	slot := day(2025, time.January, 15)
	src := &fakeSource{events: []model.CalendarEvent{
		allDay("grandma", norm.NFD.String("할머니 생신 음력"), slot),
		allDay("uncle", "Uncle birthday (Lunar)", slot),
		{UID: "standup", Summary: "Team meeting", Start: slot.Add(9 * time.Hour)},
		allDay("other", "다른 날 음력", slot.AddDate(0, 0, 1)),
	}}

	m := NewSlotMatcher(src, nil)
	sess, err := m.Begin(context.Background(), day(2025, time.February, 12), 0)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	got, err := sess.Match(context.Background(), day(2025, time.February, 12), 0)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(got) != 2 || got[0].EventID != "grandma" || got[1].EventID != "uncle" {
		t.Fatalf("Match() = %+v, want grandma and uncle", got)
	}
	if got[0].Lunar.Month != 1 || got[0].Lunar.Day != 15 || got[0].Label != "lunar_0day" {
		t.Errorf("candidate = %+v", got[0])
	}
	if len(src.calls) != 1 || !src.calls[0][0].Equal(slot) || !src.calls[0][1].Equal(slot.AddDate(0, 0, 1)) {
		t.Errorf("fetch window = %v", src.calls)
	}
}

func TestSlotMatcher_CustomMarkers(t *testing.T) {
	slot := day(2025, time.January, 15)
	src := &fakeSource{events: []model.CalendarEvent{
		allDay("a", "할머니 생신 음력", slot),
		allDay("b", "할머니 생신 [lunar]", slot),
	}}
	got, err := NewSlotMatcher(src, []string{" [lunar] "}).Match(context.Background(), day(2025, time.February, 12), 0)
	if err != nil || len(got) != 1 || got[0].EventID != "b" {
		t.Fatalf("Match() = %+v, %v", got, err)
	}
}

func TestSlotMatcher_InvalidLookupDate(t *testing.T) {
	// 2025-03-28 is lunar 2/29; February 29 does not exist in 2025.
	src := &fakeSource{}
	_, err := NewSlotMatcher(src, nil).Match(context.Background(), day(2025, time.March, 28), 0)
	if !errors.Is(err, ErrInvalidCalendarDate) {
		t.Fatalf("error = %v, want ErrInvalidCalendarDate", err)
	}
	if len(src.calls) != 0 {
		t.Errorf("source queried for an invalid slot")
	}
}

func TestSlotMatcher_FetchError(t *testing.T) {
	_, err := NewSlotMatcher(&fakeSource{err: errors.New("401")}, nil).Match(context.Background(), day(2025, time.February, 12), 0)
	if !errors.Is(err, ErrCalendarFetch) {
		t.Fatalf("error = %v, want ErrCalendarFetch", err)
	}
}

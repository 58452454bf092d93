package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lunaralarm/internal/anniversary"
	"lunaralarm/internal/config"
	"lunaralarm/internal/dispatch"
	"lunaralarm/internal/ledger"
	"lunaralarm/internal/model"
	"lunaralarm/internal/notify"
)

var kst = time.FixedZone("KST", 9*60*60)

const familyCalendar = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//lunaralarm//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:mom-birthday\r\n" +
	"DTSTART;VALUE=DATE:20250212\r\n" +
	"DTEND;VALUE=DATE:20250213\r\n" +
	"SUMMARY:어머니 생신 (음력 1월 15일)\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type staticSource struct{ events []model.CalendarEvent }

func (s staticSource) FetchEvents(_ context.Context, start, end time.Time) ([]model.CalendarEvent, error) {
	out := make([]model.CalendarEvent, 0)
	for _, ev := range s.events {
		if !ev.Start.Before(start) && ev.Start.Before(end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

type recordingChannel struct {
	mu     sync.Mutex
	got    []model.Notification
	ctxErr error
}

func (r *recordingChannel) Name() string { return "record" }

func (r *recordingChannel) Send(ctx context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	r.ctxErr = ctx.Err()
	return nil
}

func newService(t *testing.T, m anniversary.Matcher, ch dispatch.Channel) *Service {
	t.Helper()
	policy, err := notify.NewDayOffsetPolicy([]int{0, 1, 7, 30})
	if err != nil {
		t.Fatal(err)
	}
	orch := notify.NewOrchestrator(m, ledger.NewClient(ledger.NewMemoryStore()), kst)
	return NewService(orch, policy, dispatch.New(ch), kst)
}

func momSource() staticSource {
	start := time.Date(2025, time.February, 12, 0, 0, 0, 0, kst)
	return staticSource{events: []model.CalendarEvent{{
		UID: "mom", Summary: "어머니 생신 (음력 1월 15일)", AllDay: true, Start: start, End: start.AddDate(0, 0, 1),
	}}}
}

func TestService_RunDelivers(t *testing.T) {
	ch := &recordingChannel{}
	svc := newService(t, anniversary.NewPatternMatcher(momSource(), 0), ch)

	// 2025-01-13 is thirty days before lunar 1/15.
	res, err := svc.Run(context.Background(), time.Date(2025, time.January, 13, 7, 0, 0, 0, kst))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Notifications) != 1 || res.Notifications[0].Label != "lunar_30day" {
		t.Fatalf("Notifications = %+v", res.Notifications)
	}
	if res.Report.Sent != 1 || len(ch.got) != 1 {
		t.Errorf("Report = %+v, delivered = %d", res.Report, len(ch.got))
	}

	again, err := svc.Run(context.Background(), time.Date(2025, time.January, 13, 9, 0, 0, 0, kst))
	if err != nil || len(again.Notifications) != 0 || len(ch.got) != 1 {
		t.Errorf("second run = %+v, %v; delivered = %d", again, err, len(ch.got))
	}
}

// cancelAfterFirst cancels the run context after the first offset matched.
type cancelAfterFirst struct {
	inner  anniversary.Matcher
	cancel context.CancelFunc
}

func (c cancelAfterFirst) Begin(ctx context.Context, today time.Time, maxOffset int) (anniversary.Session, error) {
	s, err := c.inner.Begin(ctx, today, maxOffset)
	if err != nil {
		return nil, err
	}
	return cancelSession{inner: s, cancel: c.cancel}, nil
}

type cancelSession struct {
	inner  anniversary.Session
	cancel context.CancelFunc
}

func (c cancelSession) Match(ctx context.Context, target time.Time, offset int) ([]anniversary.Candidate, error) {
	out, err := c.inner.Match(ctx, target, offset)
	c.cancel()
	return out, err
}

func TestService_CancelledRunStillDeliversMarked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := &recordingChannel{}
	m := cancelAfterFirst{inner: anniversary.NewPatternMatcher(momSource(), 0), cancel: cancel}
	svc := newService(t, m, ch)

	res, err := svc.Run(ctx, time.Date(2025, time.February, 12, 7, 0, 0, 0, kst))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(res.Notifications) != 1 || res.Report.Sent != 1 {
		t.Fatalf("Result = %+v", res)
	}
	if ch.ctxErr != nil {
		t.Errorf("delivery ran with a cancelled context: %v", ch.ctxErr)
	}
}

func TestService_NothingToDeliver(t *testing.T) {
	ch := &recordingChannel{}
	svc := newService(t, anniversary.NewPatternMatcher(momSource(), 0), ch)

	res, err := svc.Run(context.Background(), time.Date(2025, time.March, 1, 7, 0, 0, 0, kst))
	if err != nil || len(res.Notifications) != 0 || len(ch.got) != 0 {
		t.Errorf("Run() = %+v, %v", res, err)
	}
	if !res.Today.Equal(time.Date(2025, time.March, 1, 0, 0, 0, 0, kst)) {
		t.Errorf("Today = %v", res.Today)
	}
}

func TestBuild_DryRunAgainstFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(familyCalendar))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.CacheDir = ""
	cfg.ICS = []config.ICSConfig{{ID: "family", URL: srv.URL + "/family.ics"}}
	cfg.Telegram = &config.TelegramConfig{Token: "unused", ChatID: "1"}

	a, err := Build(context.Background(), cfg, BuildOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer a.Close()

	today := time.Date(2025, time.February, 12, 7, 0, 0, 0, a.Location)
	res, err := a.Service.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Notifications) != 1 {
		t.Fatalf("Notifications = %+v", res.Notifications)
	}
	n := res.Notifications[0]
	if n.EventID != "mom-birthday" || n.Label != "lunar_0day" || !strings.Contains(n.Body, "오늘 (02월 12일)") {
		t.Errorf("notification = %+v", n)
	}
	if res.Report.Sent != 0 || res.Report.Failed != 0 {
		t.Errorf("dry run delivered: %+v", res.Report)
	}

	up, err := a.Upcoming.Upcoming(context.Background(), today.AddDate(0, 0, -3), 10)
	if err != nil || len(up) != 1 || up[0].Offset != 3 {
		t.Errorf("Upcoming() = %+v, %v", up, err)
	}
}

func TestBuild_RejectsUnknownStrategy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Matcher.Strategy = "solar"
	if _, err := Build(context.Background(), cfg, BuildOptions{DryRun: true}); err == nil {
		t.Fatal("Build() succeeded, want error")
	}
}

// Package notify runs the daily lunar-anniversary check: walk the configured
// day-offsets, match anniversaries, filter through the ledger and render the
// messages to deliver.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lunaralarm/internal/anniversary"
	"lunaralarm/internal/ledger"
	appLog "lunaralarm/internal/log"
	"lunaralarm/internal/lunar"
	"lunaralarm/internal/metrics"
	"lunaralarm/internal/model"
)

// ErrRunInProgress is returned when RunDailyCheck is called while another
// run is still active.
var ErrRunInProgress = errors.New("notify: daily check already running")

// Orchestrator owns one matcher and one ledger. It is safe for concurrent use;
// overlapping runs are rejected rather than queued.
type Orchestrator struct {
	matcher  anniversary.Matcher
	ledger   *ledger.Client
	location *time.Location

	running sync.Mutex
}

// NewOrchestrator returns an Orchestrator that computes dates in loc.
func NewOrchestrator(m anniversary.Matcher, l *ledger.Client, loc *time.Location) *Orchestrator {
	if loc == nil {
		loc = time.Local
	}
	return &Orchestrator{matcher: m, ledger: l, location: loc}
}

// RunDailyCheck returns the notifications to deliver for today.
//
// Every returned notification has already been marked in the ledger: keys are
// marked before the message leaves this function, so a crash between marking
// and delivery loses the message instead of repeating it. If ctx is cancelled
// between offsets, the notifications marked so far are returned together
// with ctx.Err().
func (o *Orchestrator) RunDailyCheck(ctx context.Context, today time.Time, policy DayOffsetPolicy) ([]model.Notification, error) {
	if !o.running.TryLock() {
		metrics.RunsTotal.WithLabelValues("busy").Inc()
		return nil, ErrRunInProgress
	}
	defer o.running.Unlock()

	started := time.Now()
	runID := uuid.NewString()
	y, m, d := today.In(o.location).Date()
	today = time.Date(y, m, d, 0, 0, 0, 0, o.location)

	offsets := policy.Offsets()
	appLog.Info("daily check start", "run_id", runID, "today", today.Format(time.DateOnly), "offsets", offsets)
	if len(offsets) == 0 {
		metrics.ObserveRun("ok", time.Since(started))
		return nil, nil
	}

	session, err := o.matcher.Begin(ctx, today, policy.Max())
	if err != nil {
		if !errors.Is(err, anniversary.ErrCalendarFetch) {
			err = fmt.Errorf("%w: %w", anniversary.ErrCalendarFetch, err)
		}
		appLog.Error("daily check aborted: calendar unavailable", err, "run_id", runID)
		metrics.ObserveRun("failed", time.Since(started))
		return nil, err
	}

	run := &runState{id: runID, seen: make(map[ledger.Key]struct{})}
	for _, offset := range offsets {
		if err := ctx.Err(); err != nil {
			return o.finish(run, started, err)
		}
		o.checkOffset(ctx, run, session, today, offset)
	}
	if err := ctx.Err(); err != nil {
		return o.finish(run, started, err)
	}

	if run.fetchFailures > 0 && run.fetchFailures == run.fetchAttempts {
		err := fmt.Errorf("%w: every calendar lookup failed", anniversary.ErrCalendarFetch)
		appLog.Error("daily check failed", err, "run_id", runID)
		metrics.ObserveRun("failed", time.Since(started))
		return nil, err
	}
	return o.finish(run, started, nil)
}

type runState struct {
	id            string
	seen          map[ledger.Key]struct{}
	results       []model.Notification
	fetchAttempts int
	fetchFailures int
	skipped       int
}

func (o *Orchestrator) checkOffset(ctx context.Context, run *runState, session anniversary.Session, today time.Time, offset int) {
	target := today.AddDate(0, 0, offset)
	label := anniversary.Label(offset)

	candidates, err := session.Match(ctx, target, offset)
	if err == nil || errors.Is(err, anniversary.ErrCalendarFetch) {
		run.fetchAttempts++
	}
	if err != nil {
		run.skipped++
		switch {
		case errors.Is(err, anniversary.ErrInvalidCalendarDate):
			metrics.IncOffsetError("invalid_date")
			appLog.Info("offset skipped: lookup date does not exist", "run_id", run.id, "offset", offset, "err", err)
		case errors.Is(err, lunar.ErrUnsupportedYear):
			metrics.IncOffsetError("unsupported_year")
			appLog.Warn("offset skipped: date outside lunar table", "run_id", run.id, "offset", offset, "target", target.Format(time.DateOnly))
		case errors.Is(err, anniversary.ErrCalendarFetch):
			run.fetchFailures++
			metrics.IncOffsetError("fetch")
			appLog.Error("offset skipped: calendar fetch failed", err, "run_id", run.id, "offset", offset)
		default:
			metrics.IncOffsetError("match")
			appLog.Error("offset skipped: match failed", err, "run_id", run.id, "offset", offset)
		}
		return
	}

	for _, c := range candidates {
		key := ledger.NewKey(c.EventID, target, label)
		if _, dup := run.seen[key]; dup {
			continue
		}
		run.seen[key] = struct{}{}

		sent, err := o.ledger.IsAlreadyNotified(ctx, key)
		metrics.IncLedgerOp("exists", err)
		if err != nil {
			appLog.Error("ledger check failed; suppressing notification", err, "run_id", run.id, "key", key.String())
			continue
		}
		if sent {
			appLog.Debug("already notified", "run_id", run.id, "key", key.String())
			continue
		}

		inserted, err := o.ledger.MarkNotified(ctx, key)
		metrics.IncLedgerOp("mark", err)
		if err != nil {
			appLog.Error("ledger mark failed; suppressing notification", err, "run_id", run.id, "key", key.String())
			continue
		}
		if !inserted {
			// Another writer marked it between check and mark.
			continue
		}

		c.Label = label
		n := Render(c)
		run.results = append(run.results, n)
		metrics.IncNotification(label)
		appLog.Info("notification ready", "run_id", run.id, "key", key.String(), "summary", n.Summary)
	}
}

func (o *Orchestrator) finish(run *runState, started time.Time, err error) ([]model.Notification, error) {
	sortNotifications(run.results)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "cancelled"
	case run.skipped > 0:
		outcome = "partial"
	}
	metrics.ObserveRun(outcome, time.Since(started))
	appLog.Info("daily check done", "run_id", run.id, "outcome", outcome,
		"notifications", len(run.results), "skipped_offsets", run.skipped, "elapsed", time.Since(started).String())
	return run.results, err
}

// sortNotifications orders by target date, then body.
func sortNotifications(ns []model.Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		if !ns[i].TargetDate.Equal(ns[j].TargetDate) {
			return ns[i].TargetDate.Before(ns[j].TargetDate)
		}
		return ns[i].Body < ns[j].Body
	})
}

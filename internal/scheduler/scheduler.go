// Package scheduler fires the daily check once a day at a fixed wall-clock
// time in a named timezone.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "lunaralarm/internal/log"
)

// Job receives today's date in the scheduler's timezone.
type Job func(ctx context.Context, today time.Time)

// Scheduler runs one Job on a daily cron schedule. Runs never overlap: a
// tick that fires while the previous run is still busy is skipped, and a
// panicking run is logged and recovered.
type Scheduler struct {
	loc      *time.Location
	spec     string
	schedule cron.Schedule
	job      Job
	now      func() time.Time

	cron *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	wrapped cron.Job
}

// Spec returns the five-field cron spec for hour:minute every day.
func Spec(hour, minute int) string {
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// New validates hour:minute and builds a stopped Scheduler.
func New(loc *time.Location, hour, minute int, job Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("scheduler: invalid time %02d:%02d", hour, minute)
	}
	spec := Spec(hour, minute)
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", spec, err)
	}

	logger := cronLogger{}
	s := &Scheduler{
		loc:      loc,
		spec:     spec,
		schedule: sched,
		job:      job,
		now:      time.Now,
		ctx:      context.Background(),
		cron:     cron.New(cron.WithLocation(loc), cron.WithLogger(logger)),
	}
	s.wrapped = cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(s.fire))
	return s, nil
}

// Start registers the job and starts the cron loop. ctx is handed to every
// run; cancel it to abort an in-flight run. With runNow the job also runs
// once immediately in the background.
func (s *Scheduler) Start(ctx context.Context, runNow bool) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Schedule(s.schedule, s.wrapped)
	s.cron.Start()
	appLog.Info("scheduler started", "spec", s.spec, "timezone", s.loc.String(), "next_run", s.NextRun(s.now()).Format(time.RFC3339))

	if runNow {
		go s.wrapped.Run()
	}
}

// Stop stops the cron loop; the returned context is done once a running job
// has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunNow runs the job synchronously through the same skip/recover chain.
func (s *Scheduler) RunNow() {
	s.wrapped.Run()
}

// NextRun returns the first scheduled time strictly after t.
func (s *Scheduler) NextRun(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	s.job(ctx, s.now().In(s.loc))
}

// cronLogger routes cron's logr-style calls into the package logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

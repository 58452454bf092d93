// Package app wires configuration into a running daily-check service and
// exposes the one entry point shared by the scheduler, the CLI and the
// operator API.
package app

import (
	"context"
	"errors"
	"time"

	"lunaralarm/internal/dispatch"
	appLog "lunaralarm/internal/log"
	"lunaralarm/internal/model"
	"lunaralarm/internal/notify"
)

// deliveryTimeout bounds delivery of notifications that were already marked
// when the run context was cancelled.
const deliveryTimeout = 30 * time.Second

// Result is the outcome of one check: what was marked and how delivery went.
type Result struct {
	Today         time.Time            `json:"today"`
	Notifications []model.Notification `json:"notifications"`
	Report        dispatch.Report      `json:"report"`
}

// Service runs the daily check and hands its output to the dispatcher.
type Service struct {
	orch       *notify.Orchestrator
	policy     notify.DayOffsetPolicy
	dispatcher *dispatch.Dispatcher
	loc        *time.Location
}

// NewService returns a Service. A nil dispatcher only collects notifications.
func NewService(orch *notify.Orchestrator, policy notify.DayOffsetPolicy, d *dispatch.Dispatcher, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	if d == nil {
		d = dispatch.New()
	}
	return &Service{orch: orch, policy: policy, dispatcher: d, loc: loc}
}

// Location is the timezone the check runs in.
func (s *Service) Location() *time.Location { return s.loc }

// Policy returns the configured day-offsets.
func (s *Service) Policy() notify.DayOffsetPolicy { return s.policy }

// Run checks today and delivers the result.
//
// Notifications returned by the orchestrator are already marked in the
// ledger, so they are delivered even when ctx was cancelled mid-run; that
// delivery gets its own short deadline. The run error is returned alongside.
func (s *Service) Run(ctx context.Context, today time.Time) (Result, error) {
	y, m, d := today.In(s.loc).Date()
	res := Result{Today: time.Date(y, m, d, 0, 0, 0, 0, s.loc)}

	ns, runErr := s.orch.RunDailyCheck(ctx, res.Today, s.policy)
	res.Notifications = ns
	if len(ns) == 0 {
		return res, runErr
	}

	deliverCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		deliverCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
	}
	res.Report = s.dispatcher.Dispatch(deliverCtx, ns)
	if res.Report.Failed > 0 {
		appLog.Warn("delivery incomplete", "sent", res.Report.Sent, "failed", res.Report.Failed)
	}
	return res, runErr
}

// ScheduledRun adapts Run to the scheduler job signature; errors are logged.
func (s *Service) ScheduledRun(ctx context.Context, today time.Time) {
	res, err := s.Run(ctx, today)
	switch {
	case errors.Is(err, notify.ErrRunInProgress):
		appLog.Warn("scheduled check skipped: previous run still active")
	case err != nil:
		appLog.Error("scheduled check failed", err, "today", res.Today.Format(time.DateOnly), "notifications", len(res.Notifications))
	default:
		appLog.Info("scheduled check done", "today", res.Today.Format(time.DateOnly), "notifications", len(res.Notifications), "sent", res.Report.Sent)
	}
}

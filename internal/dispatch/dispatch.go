// Package dispatch delivers rendered notifications to the configured
// channels. Delivery failures are logged and counted; they never touch the
// ledger, so a failed send is not retried on the next run.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	appLog "lunaralarm/internal/log"
	"lunaralarm/internal/metrics"
	"lunaralarm/internal/model"
)

// Channel is one delivery transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
}

// Report summarizes one Dispatch call.
type Report struct {
	Sent   int
	Failed int
	Errors []error
}

// MarshalJSON renders Errors as strings.
func (r Report) MarshalJSON() ([]byte, error) {
	msgs := make([]string, 0, len(r.Errors))
	for _, err := range r.Errors {
		msgs = append(msgs, err.Error())
	}
	return json.Marshal(struct {
		Sent   int      `json:"sent"`
		Failed int      `json:"failed"`
		Errors []string `json:"errors,omitempty"`
	}{r.Sent, r.Failed, msgs})
}

// Dispatcher fans notifications out to every channel.
type Dispatcher struct {
	channels []Channel
}

func New(channels ...Channel) *Dispatcher {
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			out = append(out, ch)
		}
	}
	return &Dispatcher{channels: out}
}

// Channels returns the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch sends every notification to every channel, in order. A cancelled
// context stops delivery; the remaining attempts are counted as failed.
func (d *Dispatcher) Dispatch(ctx context.Context, ns []model.Notification) Report {
	var rep Report
	if len(d.channels) == 0 && len(ns) > 0 {
		appLog.Warn("dispatch: no channels configured; notifications dropped", "count", len(ns))
		return rep
	}

	for _, n := range ns {
		for _, ch := range d.channels {
			if err := ctx.Err(); err != nil {
				rep.Failed++
				rep.Errors = append(rep.Errors, fmt.Errorf("%s: %w", ch.Name(), err))
				continue
			}

			err := ch.Send(ctx, n)
			metrics.IncDelivery(ch.Name(), err)
			if err != nil {
				rep.Failed++
				rep.Errors = append(rep.Errors, fmt.Errorf("%s: %w", ch.Name(), err))
				appLog.Error("dispatch: send failed", err, "channel", ch.Name(), "event_id", n.EventID, "label", n.Label)
				continue
			}
			rep.Sent++
			appLog.Info("dispatch: sent", "channel", ch.Name(), "event_id", n.EventID, "label", n.Label)
		}
	}
	return rep
}

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncLedgerOp(t *testing.T) {
	okBefore := testutil.ToFloat64(LedgerOpsTotal.WithLabelValues("mark", "ok"))
	errBefore := testutil.ToFloat64(LedgerOpsTotal.WithLabelValues("mark", "error"))

	IncLedgerOp("mark", nil)
	IncLedgerOp("mark", errors.New("disk full"))
	IncLedgerOp("mark", nil)

	if got := testutil.ToFloat64(LedgerOpsTotal.WithLabelValues("mark", "ok")) - okBefore; got != 2 {
		t.Errorf("ok delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(LedgerOpsTotal.WithLabelValues("mark", "error")) - errBefore; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

func TestIncDelivery(t *testing.T) {
	before := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("telegram", "failed"))
	IncDelivery("telegram", errors.New("timeout"))
	if got := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("telegram", "failed")) - before; got != 1 {
		t.Errorf("failed delta = %v, want 1", got)
	}
}

func TestObserveRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("partial"))
	ObserveRun("partial", 120*time.Millisecond)
	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("partial")) - before; got != 1 {
		t.Errorf("runs delta = %v, want 1", got)
	}
}

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

var kst = time.FixedZone("KST", 9*60*60)

func TestCronSpec(t *testing.T) {
	if got := Spec(7, 0); got != "0 7 * * *" {
		t.Errorf("Spec(7, 0) = %q", got)
	}
}

func TestNew_RejectsInvalidTime(t *testing.T) {
	for _, hm := range [][2]int{{24, 0}, {-1, 0}, {7, 60}} {
		if _, err := New(kst, hm[0], hm[1], func(context.Context, time.Time) {}); err == nil {
			t.Errorf("New(%d:%d) succeeded, want error", hm[0], hm[1])
		}
	}
}

func TestNextRun(t *testing.T) {
	s, err := New(kst, 7, 0, func(context.Context, time.Time) {})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		after time.Time
		want  time.Time
	}{
		{time.Date(2025, time.February, 12, 6, 0, 0, 0, kst), time.Date(2025, time.February, 12, 7, 0, 0, 0, kst)},
		{time.Date(2025, time.February, 12, 7, 0, 0, 0, kst), time.Date(2025, time.February, 13, 7, 0, 0, 0, kst)},
		// 23:30 UTC on the 11th is already 08:30 KST on the 12th.
		{time.Date(2025, time.February, 11, 23, 30, 0, 0, time.UTC), time.Date(2025, time.February, 13, 7, 0, 0, 0, kst)},
	}
	for _, tt := range tests {
		if got := s.NextRun(tt.after); !got.Equal(tt.want) {
			t.Errorf("NextRun(%v) = %v, want %v", tt.after, got, tt.want)
		}
	}
}

func TestRunNow_PassesTodayInLocation(t *testing.T) {
	var got time.Time
	s, err := New(kst, 7, 0, func(_ context.Context, today time.Time) { got = today })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, time.February, 11, 22, 0, 0, 0, time.UTC) }

	s.RunNow()
	if got.Location() != kst || got.Day() != 12 {
		t.Errorf("job got %v, want 2025-02-12 in KST", got)
	}
}

func TestRunNow_RecoversPanics(t *testing.T) {
	s, err := New(kst, 7, 0, func(context.Context, time.Time) { panic("boom") })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.RunNow()
}

func TestRunNow_SkipsWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	s, err := New(kst, 7, 0, func(context.Context, time.Time) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.RunNow()
		close(done)
	}()
	<-started
	s.RunNow() // skipped
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("job ran %d times, want 1", calls)
	}
}

func TestStartStop(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := New(kst, 7, 0, func(context.Context, time.Time) { ran <- struct{}{} })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx, true)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("run-on-start did not fire")
	}
	<-s.Stop().Done()
}

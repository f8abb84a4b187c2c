package reminder_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basket/udo/internal/reminder"
)

// waitFor polls check at short intervals until it returns true or the deadline
// elapses. This avoids fixed time.Sleep calls that cause flaky tests.
func waitFor(t *testing.T, deadline time.Duration, check func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestScheduler_FiresWhenCheckHolds(t *testing.T) {
	var fired atomic.Int32
	s, err := reminder.NewScheduler(reminder.Config{
		Interval: 20 * time.Millisecond,
		Check:    func() bool { return true },
		Fire:     func(context.Context) { fired.Add(1) },
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return fired.Load() >= 2 })
}

func TestScheduler_SkipsWhenCheckFails(t *testing.T) {
	var fired, checked atomic.Int32
	s, err := reminder.NewScheduler(reminder.Config{
		Interval: 10 * time.Millisecond,
		Check: func() bool {
			checked.Add(1)
			return false
		},
		Fire: func(context.Context) { fired.Add(1) },
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return checked.Load() >= 3 })
	s.Stop()

	if n := fired.Load(); n != 0 {
		t.Fatalf("expected no reminders, got %d", n)
	}
}

func TestScheduler_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var fired atomic.Int32
	s, err := reminder.NewScheduler(reminder.Config{
		Interval: 10 * time.Millisecond,
		Fire:     func(context.Context) { fired.Add(1) },
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Start(ctx)
	waitFor(t, 2*time.Second, func() bool { return fired.Load() >= 1 })
	cancel()
	s.Stop()

	after := fired.Load()
	time.Sleep(50 * time.Millisecond)
	if fired.Load() != after {
		t.Fatalf("scheduler kept firing after cancel")
	}
}

func TestNewScheduler_Validation(t *testing.T) {
	if _, err := reminder.NewScheduler(reminder.Config{}); err == nil {
		t.Fatalf("expected error without Fire")
	}
	_, err := reminder.NewScheduler(reminder.Config{
		Schedule: "not a cron",
		Fire:     func(context.Context) {},
	})
	if err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
	if _, err := reminder.NewScheduler(reminder.Config{
		Schedule: "*/30 9-17 * * 1-5",
		Fire:     func(context.Context) {},
	}); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
}

func TestNextRunTime(t *testing.T) {
	after := time.Date(2024, 6, 3, 9, 10, 0, 0, time.UTC) // Monday
	tests := []struct {
		expr string
		want time.Time
	}{
		{"*/30 * * * *", time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)},
		{"0 17 * * *", time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC)},
		{"0 9 * * 6", time.Date(2024, 6, 8, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, err := reminder.NextRunTime(tc.expr, after)
		if err != nil {
			t.Fatalf("NextRunTime(%q): %v", tc.expr, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("NextRunTime(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
	if _, err := reminder.NextRunTime("bad", after); err == nil {
		t.Fatalf("expected parse error")
	}
}

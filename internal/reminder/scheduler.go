// Package reminder fires a handoff reminder on an interval or cron schedule
// while a session is running without a recent handoff.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Config holds the scheduler dependencies. Schedule, when set, takes
// precedence over Interval.
type Config struct {
	Interval time.Duration // defaults to 30 minutes
	Schedule string        // optional cron expression
	Check    func() bool   // fire only when this returns true; nil means always
	Fire     func(ctx context.Context)
	Logger   *slog.Logger
}

// Scheduler calls Fire on every due tick for which Check holds.
type Scheduler struct {
	interval time.Duration
	schedule cronlib.Schedule
	check    func() bool
	fire     func(ctx context.Context)
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates cfg and returns a stopped scheduler.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Fire == nil {
		return nil, fmt.Errorf("reminder: Fire is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	check := cfg.Check
	if check == nil {
		check = func() bool { return true }
	}
	s := &Scheduler{interval: interval, check: check, fire: cfg.Fire, logger: logger}
	if cfg.Schedule != "" {
		sched, err := cronParser.Parse(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("reminder: parse schedule %q: %w", cfg.Schedule, err)
		}
		s.schedule = sched
	}
	return s, nil
}

// Start begins the loop in a background goroutine bound to ctx.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	if s.schedule != nil {
		s.logger.Info("reminder scheduler started", "mode", "cron")
	} else {
		s.logger.Info("reminder scheduler started", "interval", s.interval)
	}
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		timer := time.NewTimer(s.next(time.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

// next returns the wait until the following due time.
func (s *Scheduler) next(now time.Time) time.Duration {
	if s.schedule == nil {
		return s.interval
	}
	d := s.schedule.Next(now).Sub(now)
	if d < 0 {
		d = 0
	}
	return d
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.check() {
		s.logger.Debug("reminder: skipped, handoff is recent or no session")
		return
	}
	s.fire(ctx)
	s.logger.Info("reminder: fired")
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

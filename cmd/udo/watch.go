package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/basket/udo/internal/ledger"
	"github.com/basket/udo/internal/link"
	"github.com/basket/udo/internal/reminder"
	"github.com/basket/udo/internal/shared"
	"github.com/basket/udo/internal/state"
	"github.com/basket/udo/internal/synth"
	"github.com/basket/udo/internal/tui"
	"github.com/basket/udo/internal/watch"
)

func watchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Track a work session until interrupted",
		Long: `Track a work session: keep the context file current as the state,
lessons and session files change, remind about checkpoints while no
handoff has been saved, and write an auto-save record on exit when the
session ended without one.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.watch(cmd.Context())
		},
	}
}

func (a *app) watch(ctx context.Context) error {
	p, err := a.loadProject(ctx)
	if err != nil {
		return err
	}
	ctx = shared.WithProject(ctx, p.WorkingPath)

	tracker := ledger.NewTracker(a.now)
	tracker.Start()
	started, _ := tracker.Started()
	ctx = shared.WithSessionID(ctx, ledger.Stamp(started))
	l := a.ledger(p, tracker)
	w := a.writer()

	watcher := watch.NewWatcher(watch.Config{
		StatePath:   p.Store().Path(),
		LessonsPath: filepath.Join(p.StoragePath, state.LessonsFile),
		SessionsDir: p.SessionsPath(),
		Logger:      a.logger,
	})
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	if a.cfg.ReminderEnabled {
		sched, err := reminder.NewScheduler(reminder.Config{
			Interval: a.cfg.ReminderInterval(),
			Schedule: a.cfg.ReminderSchedule,
			Check: func() bool {
				return tracker.Active() && !tracker.HasRecentHandoff()
			},
			Fire: func(ctx context.Context) {
				fmt.Fprintf(a.err, "UDO: consider saving a checkpoint (session %s, run `udo handoff`)\n",
					tracker.DurationFormatted())
				a.count(ctx, reminderCounter, "checkpoint")
			},
			Logger: a.logger,
		})
		if err != nil {
			return err
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	if _, err := w.Update(ctx, p, l); err != nil {
		return err
	}
	fmt.Fprintln(a.out, tui.StatusLine(p, tracker))
	a.logger.Info("watch started", append(shared.LogAttrs(ctx),
		"storage", p.StoragePath, "config", a.cfg.Fingerprint())...)

	for ev := range watcher.Events() {
		if ev.IsNewHandoff() {
			tracker.MarkHandoff()
			a.count(ctx, handoffCounter, "detected")
			fmt.Fprintf(a.out, "handoff saved: %s\n", filepath.Base(ev.Path))
		}
		if ev.Kind == watch.KindState {
			p.State = p.Store().Load()
		}
		if _, err := w.Update(ctx, p, l); err != nil {
			a.logger.Warn("context update failed", "error", err, "trigger", ev.Kind.String())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return a.endSession(shutdownCtx, p, l, w)
}

// endSession writes the auto-save record when the session closes without a
// recent handoff and auto-save is enabled.
func (a *app) endSession(ctx context.Context, p *link.Project, l *ledger.Ledger, w *synth.Writer) error {
	tracker := l.Tracker()
	if tracker.Active() && a.cfg.AutoHandoffOnClose && a.cfg.AutoSaveOnClose && !tracker.HasRecentHandoff() {
		started, _ := tracker.Started()
		path, err := l.AutoSave(ctx, p.Store().Load(), started, a.now())
		if err != nil {
			a.logger.Error("auto-save failed", "error", err)
		} else {
			a.count(ctx, autoSaveCounter, "close")
			fmt.Fprintf(a.out, "auto-saved %s\n", filepath.Base(path))
		}
	}
	a.logger.Info("watch stopped", append(shared.LogAttrs(ctx), "duration", tracker.DurationFormatted())...)
	tracker.End()
	_, err := w.Update(ctx, p, l)
	return err
}

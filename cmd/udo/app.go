package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/basket/udo/internal/config"
	"github.com/basket/udo/internal/ledger"
	"github.com/basket/udo/internal/link"
	otelPkg "github.com/basket/udo/internal/otel"
	"github.com/basket/udo/internal/shared"
	"github.com/basket/udo/internal/synth"
	"github.com/basket/udo/internal/telemetry"
)

// app holds what every command needs after setup. It is built once per
// invocation.
type app struct {
	streams

	dir     string
	verbose bool

	cfg      config.Config
	logger   *slog.Logger
	closer   io.Closer
	provider *otelPkg.Provider
	metrics  *otelPkg.Metrics
	span     trace.Span
	resolver *link.Resolver
	now      func() time.Time

	prevLogger *slog.Logger
}

func newApp(s streams) *app {
	return &app{
		streams: s,
		logger:  slog.Default(),
		now:     time.Now,
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "udo",
		Short: "Durable project memory for AI-assisted work",
		Long: `udo keeps a per-project state record, a log of work sessions and a
synthesized context document outside the project tree, so an AI
collaborator can pick up where the last session stopped.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			ctx, err := a.setup(cmd.Context(), cmd.CommandPath())
			if err != nil {
				return err
			}
			cmd.SetContext(ctx)
			return nil
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: 2, err: err}
	})
	root.PersistentFlags().StringVarP(&a.dir, "dir", "C", ".", "project directory")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "mirror logs to stderr")

	root.AddCommand(
		initCmd(a),
		migrateCmd(a),
		linkCmd(a),
		openCmd(a),
		statusCmd(a),
		stateCmd(a),
		contextCmd(a),
		sessionsCmd(a),
		autosaveCmd(a),
		handoffCmd(a),
		promptCmd(a),
		watchCmd(a),
		doctorCmd(a),
		configCmd(a),
		projectsCmd(a),
		versionCmd(),
	)
	return root
}

// setup loads config, installs the logger and telemetry, and stamps a trace
// id for this invocation.
func (a *app) setup(ctx context.Context, op string) (context.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		return ctx, fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, !a.verbose)
	if err != nil {
		return ctx, fmt.Errorf("init logger: %w", err)
	}
	a.logger, a.closer = logger, closer
	a.prevLogger = slog.Default()
	slog.SetDefault(logger)

	provider, err := otelPkg.Init(ctx, cfg.OTel)
	if err != nil {
		logger.Warn("otel init failed; telemetry disabled", "error", err)
		provider = otelPkg.Noop()
	}
	a.provider = provider
	if m, err := otelPkg.NewMetrics(provider.Meter); err != nil {
		logger.Warn("otel metrics unavailable", "error", err)
	} else {
		a.metrics = m
	}

	ctx = shared.WithTraceID(ctx, shared.NewTraceID())
	ctx, a.span = otelPkg.StartSpan(ctx, provider.Tracer, op, otelPkg.AttrOperation.String(op))

	a.resolver = link.NewResolver(link.Config{
		Registry:    link.NewRegistry(cfg.IndexPath(), logger),
		ProjectsDir: cfg.ProjectsDir(),
		Logger:      logger,
		Now:         a.now,
	})
	logger.Debug("command start", append(shared.LogAttrs(ctx), "command", op)...)
	return ctx, nil
}

func (a *app) close(ctx context.Context) {
	if a.span != nil {
		a.span.End()
	}
	if a.provider != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if counters, err := a.provider.Counters(shutdownCtx); err == nil && len(counters) > 0 {
			a.logger.Debug("metrics", "counters", counters)
		}
		if err := a.provider.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("otel shutdown", "error", err)
		}
		cancel()
	}
	if a.closer != nil {
		if a.prevLogger != nil {
			slog.SetDefault(a.prevLogger)
		}
		_ = a.closer.Close()
	}
}

// targetDir is the absolute --dir value, used by commands that create links.
func (a *app) targetDir() (string, error) {
	abs, err := filepath.Abs(a.dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", a.dir, err)
	}
	return abs, nil
}

// workingPath resolves --dir to the nearest linked ancestor, falling back to
// the directory itself.
func (a *app) workingPath() (string, error) {
	dir, err := a.targetDir()
	if err != nil {
		return "", err
	}
	if root, ok := link.FindRoot(dir); ok {
		return root, nil
	}
	return dir, nil
}

// loadProject loads the linked project or fails with exit code 2.
func (a *app) loadProject(ctx context.Context) (*link.Project, error) {
	wp, err := a.workingPath()
	if err != nil {
		return nil, err
	}
	p, err := a.resolver.Load(ctx, wp)
	if errors.Is(err, link.ErrNotLinked) {
		return nil, &exitError{code: 2, err: fmt.Errorf("%w: %s (run `udo init`)", err, wp)}
	}
	if err != nil {
		return nil, err
	}
	if a.span != nil {
		a.span.SetAttributes(otelPkg.AttrProject.String(p.WorkingPath), otelPkg.AttrStorageID.String(p.StorageID))
	}
	return p, nil
}

// optionalProject is loadProject without the not-linked failure.
func (a *app) optionalProject(ctx context.Context) (*link.Project, error) {
	p, err := a.loadProject(ctx)
	if errors.Is(err, link.ErrNotLinked) {
		return nil, nil
	}
	return p, err
}

func (a *app) ledger(p *link.Project, tr *ledger.Tracker) *ledger.Ledger {
	if tr == nil {
		tr = ledger.NewTracker(a.now)
	}
	return ledger.New(p.SessionsPath(), tr, a.logger)
}

func (a *app) writer() *synth.Writer {
	return synth.NewWriter(synth.WriterConfig{
		Path:         a.cfg.ContextFilePath,
		SummaryChars: a.cfg.SummaryChars,
		Logger:       a.logger,
		Metrics:      a.metrics,
	})
}

// refreshContext rewrites the context file for p. A nil p writes the
// no-project document.
func (a *app) refreshContext(ctx context.Context, p *link.Project) error {
	var l *ledger.Ledger
	if p != nil {
		l = a.ledger(p, nil)
		ctx = shared.WithProject(ctx, p.WorkingPath)
	}
	_, err := a.writer().Update(ctx, p, l)
	return err
}

type counterFunc func(*otelPkg.Metrics) metric.Int64Counter

var (
	linkedCounter   counterFunc = func(m *otelPkg.Metrics) metric.Int64Counter { return m.ProjectsLinked }
	autoSaveCounter counterFunc = func(m *otelPkg.Metrics) metric.Int64Counter { return m.AutoSaves }
	handoffCounter  counterFunc = func(m *otelPkg.Metrics) metric.Int64Counter { return m.Handoffs }
	reminderCounter counterFunc = func(m *otelPkg.Metrics) metric.Int64Counter { return m.Reminders }
)

func (a *app) count(ctx context.Context, pick counterFunc, op string) {
	if a.metrics == nil {
		return
	}
	otelPkg.Inc(ctx, pick(a.metrics), attribute.String("op", op))
}

// exactArgs reports arity mistakes as usage errors.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErrorf("%s takes %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return usageErrorf("%s needs at least %d argument(s)", cmd.CommandPath(), n)
		}
		return nil
	}
}

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/basket/udo/internal/catalog"
	"github.com/basket/udo/internal/ledger"
	"github.com/basket/udo/internal/link"
	otelPkg "github.com/basket/udo/internal/otel"
	"github.com/basket/udo/internal/synth"
	"github.com/basket/udo/internal/templates"
)

func contextCmd(a *app) *cobra.Command {
	var write, remove bool
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Render the context document",
		Long: `Render the context document for the current project. Without flags the
document is printed; --write replaces the configured context file and
--clear removes it.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if write && remove {
				return usageErrorf("--write and --clear are mutually exclusive")
			}
			if remove {
				if err := a.writer().Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "removed %s\n", a.cfg.ContextFilePath)
				return nil
			}
			p, err := a.optionalProject(ctx)
			if err != nil {
				return err
			}
			if write {
				if err := a.refreshContext(ctx, p); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "wrote %s\n", a.cfg.ContextFilePath)
				return nil
			}
			var l *ledger.Ledger
			if p != nil {
				l = a.ledger(p, nil)
			}
			fmt.Fprint(a.out, synth.Render(p, synth.Gather(p, l, a.cfg.SummaryChars)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "write the context file")
	cmd.Flags().BoolVar(&remove, "clear", false, "remove the context file")
	return cmd
}

func sessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse the session ledger",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions, newest first",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.loadProject(cmd.Context())
			if err != nil {
				return err
			}
			n := limit
			if n <= 0 {
				n = a.cfg.RecentSessions
			}
			l := a.ledger(p, nil)
			files, err := l.Recent(n)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(a.out, "No sessions recorded.")
				return nil
			}
			for _, f := range files {
				s, err := l.Read(f)
				if err != nil {
					fmt.Fprintf(a.out, "%s\n", f)
					continue
				}
				fmt.Fprintf(a.out, "%s  %s\n", f, s.Tags)
				if s.Summary != "" {
					fmt.Fprintf(a.out, "    %s\n", ledger.Excerpt(firstLine(s.Summary), 100))
				}
			}
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 0, "number of sessions (default from config)")

	var all bool
	search := &cobra.Command{
		Use:   "search <tag>",
		Short: "Find sessions whose tag line mentions tag",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return a.searchAll(cmd.Context(), args[0])
			}
			p, err := a.loadProject(cmd.Context())
			if err != nil {
				return err
			}
			files, err := a.ledger(p, nil).SearchByTag(args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintf(a.out, "No sessions tagged %q.\n", args[0])
				return nil
			}
			for _, f := range files {
				fmt.Fprintln(a.out, f)
			}
			return nil
		},
	}
	search.Flags().BoolVar(&all, "all", false, "search every linked project through the catalog")

	cmd.AddCommand(list, search)
	return cmd
}

// searchAll syncs every registered project into the catalog, then queries it.
// Projects whose link marker is gone are dropped from the catalog.
func (a *app) searchAll(ctx context.Context, tag string) error {
	cat, err := catalog.Open(a.cfg.CatalogPath(), a.logger)
	if err != nil {
		return err
	}
	defer cat.Close()

	tracker := ledger.NewTracker(a.now)
	for _, e := range a.resolver.Registry().Entries() {
		m, err := link.ReadMarker(e.WorkingPath)
		if err != nil {
			a.logger.Debug("catalog: skipping project", "working_path", e.WorkingPath, "error", err)
			if err := cat.Forget(ctx, e.WorkingPath); err != nil {
				return err
			}
			continue
		}
		p := &link.Project{
			WorkingPath: e.WorkingPath,
			StoragePath: m.StoragePath,
			Name:        e.Name,
			StorageID:   e.StorageID,
			InProject:   m.InProject,
		}
		if _, err := cat.Sync(ctx, p, ledger.New(p.SessionsPath(), tracker, a.logger)); err != nil {
			return err
		}
	}

	hits, err := cat.SearchTag(ctx, tag)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Fprintf(a.out, "No sessions tagged %q.\n", tag)
		return nil
	}
	for _, h := range hits {
		fmt.Fprintf(a.out, "%-20s %s  %s\n", h.ProjectName, h.Filename, h.Tags)
	}
	return nil
}

func autosaveCmd(a *app) *cobra.Command {
	var started string
	cmd := &cobra.Command{
		Use:   "autosave",
		Short: "Write an automatic session record from the current state",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var start time.Time
			if started != "" {
				t, err := time.Parse(time.RFC3339, started)
				if err != nil {
					return usageErrorf("--started: %v", err)
				}
				start = t
			}
			p, err := a.loadProject(ctx)
			if err != nil {
				return err
			}
			path, err := a.ledger(p, nil).AutoSave(ctx, p.State, start, a.now())
			if err != nil {
				return err
			}
			a.count(ctx, autoSaveCounter, "manual")
			if err := a.refreshContext(ctx, p); err != nil {
				a.logger.Warn("context update failed", "error", err)
			}
			fmt.Fprintln(a.out, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&started, "started", "", "session start time (RFC3339)")
	return cmd
}

func handoffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "handoff",
		Short: "Print the quick-handoff prompt with a fresh session file path",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.printPrompt(cmd.Context(), "quick-handoff")
		},
	}
}

func promptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "prompt <kind>",
		Short:     "Print an assistant prompt (resume, deep-resume, quick-handoff, ...)",
		Args:      exactArgs(1),
		ValidArgs: templates.PromptKinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printPrompt(cmd.Context(), args[0])
		},
	}
}

func (a *app) printPrompt(ctx context.Context, kind string) error {
	if !isPromptKind(kind) {
		return usageErrorf("unknown prompt %q (have %v)", kind, templates.PromptKinds())
	}
	p, err := a.loadProject(ctx)
	if err != nil {
		return err
	}
	l := a.ledger(p, nil)
	data := templates.PromptData{
		WorkingPath: p.WorkingPath,
		StoragePath: p.StoragePath,
		SessionsDir: l.Dir(),
		ContextFile: a.cfg.ContextFilePath,
	}
	if templates.MarksHandoff(kind) {
		path, err := l.QuickHandoffPath(a.now())
		if err != nil {
			return err
		}
		data.HandoffFile = filepath.Base(path)
		a.count(ctx, handoffCounter, kind)
		a.span.SetAttributes(otelPkg.AttrSessionFile.String(path))
	}
	text, err := templates.Prompt(kind, data)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, text)
	return nil
}

func isPromptKind(kind string) bool {
	for _, k := range templates.PromptKinds() {
		if k == kind {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

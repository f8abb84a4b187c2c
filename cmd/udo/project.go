package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/basket/udo/internal/link"
	"github.com/basket/udo/internal/tui"
)

type linkFunc func(ctx context.Context, workingPath string) (*link.Project, error)

func initCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create external storage for this project and link it",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			wp, err := a.targetDir()
			if err != nil {
				return err
			}
			if link.HasLink(wp) && !force {
				return fmt.Errorf("%s is already linked (use --force to allocate new storage)", wp)
			}
			if a.resolver.HasExistingFiles(wp) {
				fmt.Fprintln(a.err, "note: UDO files found in the project; `udo migrate` would move them into storage")
			}
			return a.link(cmd.Context(), wp, "init", a.resolver.Initialize)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-initialize an already linked project")
	return cmd
}

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Move in-project UDO files into external storage",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			wp, err := a.targetDir()
			if err != nil {
				return err
			}
			if !a.resolver.HasExistingFiles(wp) {
				return fmt.Errorf("no UDO files to migrate in %s", wp)
			}
			return a.link(cmd.Context(), wp, "migrate", a.resolver.Migrate)
		},
	}
}

func linkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "link",
		Short: "Link the project with its UDO files kept in place",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			wp, err := a.targetDir()
			if err != nil {
				return err
			}
			return a.link(cmd.Context(), wp, "link", a.resolver.LinkInPlace)
		},
	}
}

func (a *app) link(ctx context.Context, wp, op string, fn linkFunc) error {
	p, err := fn(ctx, wp)
	if err != nil {
		return err
	}
	a.count(ctx, linkedCounter, op)
	if err := a.refreshContext(ctx, p); err != nil {
		a.logger.Warn("context update failed", "error", err)
	}
	fmt.Fprintf(a.out, "Linked %s\n  storage id: %s\n  storage:    %s\n", p.Name, p.StorageID, p.StoragePath)
	return nil
}

func openCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Load the project, or offer to set it up",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
}

func (a *app) open(ctx context.Context) error {
	wp, err := a.workingPath()
	if err != nil {
		return err
	}
	if link.HasLink(wp) {
		p, err := a.loadProject(ctx)
		if err != nil {
			return err
		}
		if err := a.refreshContext(ctx, p); err != nil {
			return err
		}
		fmt.Fprintln(a.out, tui.StatusLine(p, nil))
		return nil
	}

	if err := a.refreshContext(ctx, nil); err != nil {
		a.logger.Warn("context update failed", "error", err)
	}

	if a.resolver.HasExistingFiles(wp) {
		if !a.interactive {
			fmt.Fprintln(a.out, "UDO files detected. Run `udo migrate` to move them to external storage, or `udo link` to keep them in the project.")
			return nil
		}
		choice, err := tui.Choose(ctx, "UDO files detected. Move them to external storage?", []tui.Option{
			{Label: "Migrate", Hint: "move files out of the project"},
			{Label: "Keep in project", Hint: "link in place"},
			{Label: "Ignore"},
		}, a.in, a.out)
		if errors.Is(err, tui.ErrCancelled) {
			return nil
		}
		if err != nil {
			return err
		}
		switch choice {
		case 0:
			return a.link(ctx, wp, "migrate", a.resolver.Migrate)
		case 1:
			return a.link(ctx, wp, "link", a.resolver.LinkInPlace)
		}
		return nil
	}

	if !a.interactive {
		fmt.Fprintln(a.out, "No UDO project here. Run `udo init` to start one.")
		return nil
	}
	choice, err := tui.Choose(ctx, "Initialize UDO for this project?", []tui.Option{
		{Label: "Initialize", Hint: "enables continuity across sessions"},
		{Label: "Not now"},
	}, a.in, a.out)
	if errors.Is(err, tui.ErrCancelled) || (err == nil && choice != 0) {
		return nil
	}
	if err != nil {
		return err
	}
	return a.link(ctx, wp, "init", a.resolver.Initialize)
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the project's phase, work items and latest session",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.loadProject(cmd.Context())
			if err != nil {
				return err
			}
			st := p.State
			out := a.out
			fmt.Fprintln(out, tui.StatusLine(p, nil))
			fmt.Fprintf(out, "Working path: %s\n", p.WorkingPath)
			fmt.Fprintf(out, "Storage:      %s (%s)\n", p.StoragePath, p.StorageID)
			fmt.Fprintf(out, "Phase:        %s\n", st.Phase)
			fmt.Fprintf(out, "Goal:         %s\n", orNone(st.Goal))
			fmt.Fprintf(out, "Todos: %d  In progress: %d  Completed: %d  Blockers: %d\n",
				len(st.Todos), len(st.InProgress), len(st.Completed), len(st.Blockers))
			for _, ref := range st.DanglingBlockerRefs() {
				fmt.Fprintf(out, "  warning: blocker %q references unknown todo %s\n", ref.Blocker, ref.TodoID)
			}

			latest, ok, err := a.ledger(p, nil).Latest()
			switch {
			case err != nil:
				a.logger.Warn("read latest session", "error", err)
			case ok:
				fmt.Fprintf(out, "Last session: %s\n", latest.Filename)
				if latest.Tags != "" {
					fmt.Fprintf(out, "  Tags: %s\n", latest.Tags)
				}
			default:
				fmt.Fprintln(out, "Last session: none")
			}
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

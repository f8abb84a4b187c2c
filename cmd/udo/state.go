package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/basket/udo/internal/link"
	"github.com/basket/udo/internal/state"
)

func stateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Read or edit PROJECT_STATE.json",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the state record as JSON",
			Args:  exactArgs(0),
			RunE: func(cmd *cobra.Command, _ []string) error {
				p, err := a.loadProject(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(p.State)
			},
		},
		stateEdit(a, "set-phase <phase>", "Set the project phase", exactArgs(1),
			func(st state.ProjectState, args []string) (state.ProjectState, string, error) {
				st.Phase = args[0]
				return st, "phase: " + st.Phase, nil
			}),
		stateEdit(a, "set-goal <goal>", "Set the project goal", minArgs(1),
			func(st state.ProjectState, args []string) (state.ProjectState, string, error) {
				st.Goal = strings.Join(args, " ")
				return st, "goal: " + st.Goal, nil
			}),
		addTodoCmd(a),
		addBlockerCmd(a),
		stateEdit(a, "start <id>", "Move a todo to in progress", exactArgs(1),
			func(st state.ProjectState, args []string) (state.ProjectState, string, error) {
				st, err := st.Start(args[0])
				return st, "started " + args[0], err
			}),
		stateEdit(a, "complete <id>", "Mark a todo or in-progress item completed", exactArgs(1),
			func(st state.ProjectState, args []string) (state.ProjectState, string, error) {
				st, err := st.Complete(args[0])
				return st, "completed " + args[0], err
			}),
		stateEdit(a, "resolve <id>", "Remove a blocker", exactArgs(1),
			func(st state.ProjectState, args []string) (state.ProjectState, string, error) {
				st, err := st.Resolve(args[0])
				return st, "resolved " + args[0], err
			}),
	)
	return cmd
}

type editFunc func(st state.ProjectState, args []string) (state.ProjectState, string, error)

func stateEdit(a *app, use, short string, args cobra.PositionalArgs, fn editFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.editState(cmd, args, fn)
		},
	}
}

// editState applies fn to the loaded record, saves it and refreshes the
// context file.
func (a *app) editState(cmd *cobra.Command, args []string, fn editFunc) error {
	ctx := cmd.Context()
	p, err := a.loadProject(ctx)
	if err != nil {
		return err
	}
	st, msg, err := fn(p.State, args)
	if err != nil {
		return err
	}
	if err := p.SaveState(st); err != nil {
		return err
	}
	a.warnDangling(p)
	if err := a.refreshContext(ctx, p); err != nil {
		a.logger.Warn("context update failed", "error", err)
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *app) warnDangling(p *link.Project) {
	for _, ref := range p.State.DanglingBlockerRefs() {
		fmt.Fprintf(a.err, "warning: blocker %q references unknown todo %s\n", ref.Blocker, ref.TodoID)
	}
}

func addTodoCmd(a *app) *cobra.Command {
	var priority string
	cmd := stateEdit(a, "add-todo <title>", "Append a todo", minArgs(1),
		func(st state.ProjectState, args []string) (state.ProjectState, string, error) {
			st, it := st.AddTodo(strings.Join(args, " "), priority, a.now())
			return st, fmt.Sprintf("added %s: %s", it.ID(), it.Label()), nil
		})
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "todo priority")
	return cmd
}

func addBlockerCmd(a *app) *cobra.Command {
	var blocks []string
	cmd := stateEdit(a, "add-blocker <description>", "Record a blocker", minArgs(1),
		func(st state.ProjectState, args []string) (state.ProjectState, string, error) {
			st, it := st.AddBlocker(strings.Join(args, " "), blocks, a.now())
			return st, fmt.Sprintf("added %s: %s", it.ID(), it.Label()), nil
		})
	cmd.Flags().StringSliceVar(&blocks, "blocks", nil, "ids of the todos this blocker holds up")
	return cmd
}

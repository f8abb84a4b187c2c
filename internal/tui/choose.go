package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned by Choose when the user backs out.
var ErrCancelled = errors.New("tui: cancelled")

// Option is one entry of a Choose prompt.
type Option struct {
	Label string
	Hint  string
}

// chooseModel is a single-step Bubbletea model for picking one option.
type chooseModel struct {
	title   string
	options []Option
	cursor  int
	done    bool
	quit    bool
}

func newChooseModel(title string, options []Option) chooseModel {
	return chooseModel{title: title, options: options}
}

func (m chooseModel) Init() tea.Cmd {
	return nil
}

func (m chooseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.quit = true
			return m, tea.Quit
		case "enter", "ctrl+m", "ctrl+j":
			if len(m.options) > 0 {
				m.done = true
				return m, tea.Quit
			}
			return m, nil
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}
		default:
			// Digits jump straight to an option.
			if s := msg.String(); len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
				if i := int(s[0] - '1'); i < len(m.options) {
					m.cursor = i
					m.done = true
					return m, tea.Quit
				}
			}
		}
	}
	return m, nil
}

func (m chooseModel) View() string {
	if m.quit || m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n  " + titleStyle.Render(m.title) + "\n\n")
	for i, opt := range m.options {
		cursor := "  "
		label := opt.Label
		if i == m.cursor {
			cursor = "> "
			label = focusStyle.Render(label)
		}
		b.WriteString(fmt.Sprintf("  %s%d. %s", cursor, i+1, label))
		if opt.Hint != "" {
			b.WriteString("  " + dimStyle.Render(opt.Hint))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n  " + dimStyle.Render("[Up/Down] Navigate  [Enter] Select  [Esc] Cancel") + "\n")
	return b.String()
}

// Choose shows options and returns the chosen index. in and out default to
// the terminal when nil.
func Choose(ctx context.Context, title string, options []Option, in io.Reader, out io.Writer) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("tui: no options")
	}
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	p := tea.NewProgram(newChooseModel(title, options), opts...)
	finalModel, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
			return 0, ErrCancelled
		}
		return 0, err
	}
	final, ok := finalModel.(chooseModel)
	if !ok || final.quit || !final.done {
		return 0, ErrCancelled
	}
	return final.cursor, nil
}

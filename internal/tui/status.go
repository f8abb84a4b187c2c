package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/basket/udo/internal/ledger"
	"github.com/basket/udo/internal/link"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	focusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// StatusLine renders the one-line project summary. tr may be nil.
func StatusLine(p *link.Project, tr *ledger.Tracker) string {
	if p == nil {
		return dimStyle.Render("UDO: no project")
	}
	parts := []string{
		titleStyle.Render("UDO: " + p.Name),
		p.State.Phase,
	}
	if n := len(p.State.Todos); n > 0 {
		parts = append(parts, fmt.Sprintf("%d todo", n))
	}
	if n := len(p.State.Blockers); n > 0 {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("%d blocked", n)))
	}
	if tr != nil {
		if tr.Active() {
			parts = append(parts, tr.DurationFormatted())
		}
		if tr.HasRecentHandoff() {
			parts = append(parts, okStyle.Render("handoff saved"))
		}
	}
	return strings.Join(parts, dimStyle.Render(" | "))
}

// CheckLine renders one diagnostic result with a coloured status badge.
func CheckLine(status, name, message string) string {
	var badge string
	switch status {
	case "PASS":
		badge = okStyle.Render("[PASS]")
	case "WARN":
		badge = warnStyle.Render("[WARN]")
	case "FAIL":
		badge = errStyle.Render("[FAIL]")
	default:
		badge = dimStyle.Render("[" + status + "]")
	}
	return fmt.Sprintf("%s %-12s %s", badge, name, message)
}

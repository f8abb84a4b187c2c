package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/basket/udo/internal/shared"
	"github.com/basket/udo/internal/state"
)

const isoLayout = "2006-01-02T15:04:05.000Z"

// AutoSave writes an unattended session record of st and marks the handoff
// at now. A zero sessionStart is rendered as "Unknown".
func (l *Ledger) AutoSave(ctx context.Context, st state.ProjectState, sessionStart, now time.Time) (string, error) {
	path, err := l.write(FileName(now, SuffixAuto), AutoSaveContent(st, sessionStart, now))
	if err != nil {
		return "", err
	}
	l.tracker.MarkHandoffAt(now)
	l.logger.Info("session auto-saved", append(shared.LogAttrs(ctx), "path", path)...)
	return path, nil
}

// AutoSaveContent renders the auto-save document.
func AutoSaveContent(st state.ProjectState, sessionStart, now time.Time) string {
	started := "Unknown"
	if !sessionStart.IsZero() {
		started = sessionStart.UTC().Format(isoLayout)
	}
	phase := st.Phase
	if phase == "" {
		phase = "Unknown"
	}
	goal := st.Goal
	if goal == "" {
		goal = "Not defined"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Session: %s [AUTO-GENERATED]\n\n", Stamp(now))
	b.WriteString("Tags: #auto-save\n\n")
	b.WriteString("LLM: Unknown (auto-generated on close)\n")
	fmt.Fprintf(&b, "Started: %s\n", started)
	fmt.Fprintf(&b, "Ended: %s\n\n", now.UTC().Format(isoLayout))
	b.WriteString("## Summary\n\nAuto-generated session save. Full handoff was not performed.\n\n")
	b.WriteString("## State at Close\n\n")
	fmt.Fprintf(&b, "### Phase\n%s\n\n", phase)
	fmt.Fprintf(&b, "### Goal\n%s\n\n", goal)
	fmt.Fprintf(&b, "### Todos\n%s\n\n", FormatList(st.Todos))
	fmt.Fprintf(&b, "### In Progress\n%s\n\n", FormatList(st.InProgress))
	fmt.Fprintf(&b, "### Blockers\n%s\n\n", FormatList(st.Blockers))
	b.WriteString("## Next Session Should\n\n")
	b.WriteString("1. Review this auto-save\n2. Verify state is accurate\n3. Continue from PROJECT_STATE.json todos\n\n")
	b.WriteString("## Note\n\n")
	b.WriteString("This handoff was auto-generated because the session closed without a manual handoff.\n")
	b.WriteString("Run \"udo prompt deep-resume\" to fully reconstruct context.\n")
	return b.String()
}

// FormatList renders items as "- label" lines, or "None" when empty.
func FormatList(items []state.Item) string {
	if len(items) == 0 {
		return "None"
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it.Label()
	}
	return strings.Join(lines, "\n")
}

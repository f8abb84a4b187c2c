// Package synth composes the current-context document handed to an AI
// collaborator from a project's state, lessons and latest session.
package synth

import (
	"fmt"
	"strings"

	"github.com/basket/udo/internal/ledger"
	"github.com/basket/udo/internal/lessons"
	"github.com/basket/udo/internal/link"
)

// DefaultSummaryChars bounds the latest-session excerpt.
const DefaultSummaryChars = 300

// NoProject is rendered when nothing is linked.
const NoProject = `# UDO Context

**Status:** No active project

No UDO project is currently loaded. To set one up:
1. cd into the project folder
2. Run: udo init
`

// Sources are the documents merged into the context besides the state.
type Sources struct {
	Lessons      string          // raw LESSONS_LEARNED.md, "" when absent
	Latest       *ledger.Session // nil when the ledger is empty
	SummaryChars int             // <= 0 means DefaultSummaryChars
}

// Gather reads the sources of p. Read failures degrade to placeholders.
func Gather(p *link.Project, l *ledger.Ledger, summaryChars int) Sources {
	src := Sources{SummaryChars: summaryChars}
	if p == nil {
		return src
	}
	if store := p.Store(); store != nil {
		src.Lessons = store.ReadLessons()
	}
	if l != nil {
		if s, ok, err := l.Latest(); err == nil && ok {
			src.Latest = &s
		}
	}
	return src
}

// Render builds the context document. A nil project yields NoProject.
func Render(p *link.Project, src Sources) string {
	if p == nil {
		return NoProject
	}
	st := p.State

	lessonText, ok := lessons.Summary(src.Lessons)
	if !ok {
		lessonText = "No critical or high-priority lessons."
	}

	var b strings.Builder
	b.WriteString("# UDO Active Context\n\n")
	fmt.Fprintf(&b, "**Project:** %s\n", p.Name)
	fmt.Fprintf(&b, "**Storage Path:** %s\n\n", p.StoragePath)
	b.WriteString("---\n\n")
	b.WriteString("## Before Responding\n\n")
	b.WriteString("1. **Read HARD_STOPS.md** - These rules are ABSOLUTE, never violate\n")
	b.WriteString("2. **Check PROJECT_STATE.json** - Current todos and status\n")
	b.WriteString("3. **Review critical lessons below** - High-priority rules\n\n")
	b.WriteString("---\n\n")
	b.WriteString("## Current State\n\n")
	fmt.Fprintf(&b, "**Phase:** %s\n", orDefault(st.Phase, "unknown"))
	fmt.Fprintf(&b, "**Goal:** %s\n\n", orDefault(st.Goal, "Not defined"))
	fmt.Fprintf(&b, "### Todos\n%s\n\n", ledger.FormatList(st.Todos))
	fmt.Fprintf(&b, "### In Progress\n%s\n\n", ledger.FormatList(st.InProgress))
	fmt.Fprintf(&b, "### Blockers\n%s\n\n", ledger.FormatList(st.Blockers))
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "## Critical Lessons\n\n%s\n\n", lessonText)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "## Recent Session\n\n%s\n\n", recentSession(src))
	b.WriteString("---\n\n")
	b.WriteString(closing)
	return b.String()
}

func recentSession(src Sources) string {
	s := src.Latest
	if s == nil {
		return "No recent session found."
	}
	n := src.SummaryChars
	if n <= 0 {
		n = DefaultSummaryChars
	}
	summary := "No summary available."
	if s.Summary != "" {
		summary = ledger.Excerpt(s.Summary, n)
	}
	tags := ""
	if s.Tags != "" {
		tags = "**Tags:** " + s.Tags
	}
	return fmt.Sprintf("**Last Session:** %s\n%s\n%s", s.Filename, tags, summary)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

const closing = `## On Session End

When the user says "Handoff", "End session", or the conversation ends:
1. Create a session log in .project-catalog/sessions/
2. Include Tags: #topic1 #topic2 at the top
3. Update PROJECT_STATE.json
4. Confirm completion

---

## Quick Reference

| Need | Location |
|------|----------|
| Absolute rules | HARD_STOPS.md |
| All commands | COMMANDS.md |
| Full instructions | ORCHESTRATOR.md |
| Project rules | .rules/ |
| Past sessions | .project-catalog/sessions/ |
`

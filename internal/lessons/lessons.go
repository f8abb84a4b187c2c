package lessons

import (
	"fmt"
	"regexp"
	"strings"
)

// Priority levels, highest first.
const (
	Critical = "critical"
	High     = "high"
	Normal   = "normal"
	Low      = "low"
	Unknown  = "unknown"
)

// Lesson is one extracted rule.
type Lesson struct {
	ID       string
	Title    string
	Priority string
	Rule     string
}

var (
	priorityLine = regexp.MustCompile(`\*\*Priority\*\*: (\w+)`)
	ruleLine     = regexp.MustCompile(`\*\*Rule\*\*: (.+)`)
)

// Rank orders priorities: critical 0, high 1, normal 2, low 3, anything else 4.
func Rank(priority string) int {
	switch priority {
	case Critical:
		return 0
	case High:
		return 1
	case Normal:
		return 2
	case Low:
		return 3
	}
	return 4
}

// FromBlock reads priority and rule out of a lesson body.
func FromBlock(b LessonBlock) Lesson {
	l := Lesson{ID: b.ID, Title: b.Title, Priority: Unknown}
	if m := priorityLine.FindStringSubmatch(b.Body); m != nil {
		l.Priority = m[1]
	}
	if m := ruleLine.FindStringSubmatch(b.Body); m != nil {
		l.Rule = strings.TrimSpace(m[1])
	}
	return l
}

// surfaced is the inclusion test: the literal priority marker, case-sensitive.
func surfaced(body string) bool {
	return strings.Contains(body, "Priority**: "+Critical) || strings.Contains(body, "Priority**: "+High)
}

// All returns every active lesson in document order.
func All(text string) []Lesson {
	var out []Lesson
	for _, b := range Parse(text) {
		if lb, ok := b.(LessonBlock); ok && !lb.Archived {
			out = append(out, FromBlock(lb))
		}
	}
	return out
}

// CriticalLessons returns the active lessons marked critical or high, in
// document order. Archived lessons are skipped whatever their priority.
func CriticalLessons(text string) []Lesson {
	var out []Lesson
	for _, b := range Parse(text) {
		lb, ok := b.(LessonBlock)
		if !ok || lb.Archived || !surfaced(lb.Body) {
			continue
		}
		out = append(out, FromBlock(lb))
	}
	return out
}

// Summary renders the critical lessons for the context document. ok is false
// when no lesson qualified, so callers can print a placeholder instead.
func Summary(text string) (summary string, ok bool) {
	found := CriticalLessons(text)
	if len(found) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(found))
	for _, l := range found {
		parts = append(parts, fmt.Sprintf("- **[%s] %s: %s**\n  %s", strings.ToUpper(l.Priority), l.ID, l.Title, l.Rule))
	}
	return strings.Join(parts, "\n\n"), true
}

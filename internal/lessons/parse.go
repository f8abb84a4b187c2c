// Package lessons parses the lessons document into typed blocks and extracts
// the lessons that must be surfaced in every context.
package lessons

import (
	"regexp"
	"strings"
)

// Block is one element of a parsed lessons document: a LessonBlock, an
// ArchiveMarker or Unrecognized text.
type Block interface {
	// StartLine is the 1-based line the block starts on.
	StartLine() int
}

// LessonBlock is a "### L<n>: <title>" header plus its body.
type LessonBlock struct {
	ID    string
	Title string
	Body  string
	// Archived is set for lessons that appear after the archive marker.
	Archived bool
	Line     int
}

// ArchiveMarker is the "## Archived" heading. Everything after it is archived.
type ArchiveMarker struct {
	Line int
}

// Unrecognized is text outside any lesson block, including HTML comments.
type Unrecognized struct {
	Text string
	Line int
}

func (b LessonBlock) StartLine() int   { return b.Line }
func (b ArchiveMarker) StartLine() int { return b.Line }
func (b Unrecognized) StartLine() int  { return b.Line }

var lessonHeader = regexp.MustCompile(`^### (L\d+): (.+)$`)

// isArchiveMarker reports the "## Archived" heading. Lessons after it are
// flagged Archived and never surfaced, even when marked critical.
func isArchiveMarker(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "## Archived")
}

// Parse splits a lessons document into blocks in document order. A lesson
// body runs until the next lesson header, the archive marker or the end of
// the document; other headings stay inside the body. HTML comments never
// start a lesson and are not part of any lesson body.
func Parse(text string) []Block {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var (
		blocks    []Block
		current   *LessonBlock
		body      []string
		loose     []string
		looseAt   int
		archived  bool
		inComment bool
	)

	flushLesson := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimRight(strings.Join(body, "\n"), "\n ")
		blocks = append(blocks, *current)
		current, body = nil, nil
	}
	flushLoose := func() {
		if len(loose) == 0 {
			return
		}
		if text := strings.Join(loose, "\n"); strings.TrimSpace(text) != "" {
			blocks = append(blocks, Unrecognized{Text: text, Line: looseAt})
		}
		loose = nil
	}
	addLoose := func(line string, n int) {
		if len(loose) == 0 {
			looseAt = n
		}
		loose = append(loose, line)
	}

	for i, line := range lines {
		n := i + 1

		if inComment || strings.HasPrefix(strings.TrimSpace(line), "<!--") {
			// Comments inside a lesson are dropped from its body.
			if current == nil {
				addLoose(line, n)
			}
			inComment = !strings.Contains(line, "-->")
			continue
		}

		if isArchiveMarker(line) {
			flushLesson()
			flushLoose()
			blocks = append(blocks, ArchiveMarker{Line: n})
			archived = true
			continue
		}

		if m := lessonHeader.FindStringSubmatch(strings.TrimRight(line, " \t")); m != nil {
			flushLesson()
			flushLoose()
			current = &LessonBlock{ID: m[1], Title: strings.TrimSpace(m[2]), Archived: archived, Line: n}
			continue
		}

		if current != nil {
			body = append(body, line)
		} else {
			addLoose(line, n)
		}
	}
	flushLesson()
	flushLoose()
	return blocks
}

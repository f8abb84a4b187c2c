// Package ledger reads and writes the session log of a linked project. Each
// session is one markdown file named after the minute it was written.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/basket/udo/internal/memory"
)

// IndexFile is the reserved README inside the sessions directory.
const IndexFile = "README.md"

// File name suffixes for manual and unattended saves.
const (
	SuffixHandoff = "handoff"
	SuffixAuto    = "auto"
)

const stampLayout = "2006-01-02-15-04"

// Session is what the ledger extracts from one session file.
type Session struct {
	Filename string
	Tags     string // text after the first "Tags: "
	Summary  string // trimmed body of the first "## Summary" section
	Agent    string // text after "LLM: "
}

// Ledger is bound to one sessions directory.
type Ledger struct {
	dir     string
	tracker *Tracker
	logger  *slog.Logger
}

// New returns a ledger over dir. A nil tracker gets a fresh one.
func New(dir string, tracker *Tracker, logger *slog.Logger) *Ledger {
	if tracker == nil {
		tracker = NewTracker(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{dir: dir, tracker: tracker, logger: logger}
}

func (l *Ledger) Dir() string       { return l.dir }
func (l *Ledger) Tracker() *Tracker { return l.tracker }

// Stamp formats t the way session file names start.
func Stamp(t time.Time) string {
	return t.Format(stampLayout)
}

// FileName returns the session file name for t and suffix.
func FileName(t time.Time, suffix string) string {
	return Stamp(t) + "-" + suffix + ".md"
}

// Files lists every session file, newest first. A missing directory is
// an empty ledger.
func (l *Ledger) Files() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: list %s: %w", l.dir, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == IndexFile || !strings.HasSuffix(name, ".md") {
			continue
		}
		out = append(out, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// Recent returns at most n session file names, newest first.
func (l *Ledger) Recent(n int) ([]string, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(files) > n {
		files = files[:n]
	}
	return files, nil
}

// SearchByTag returns the sessions whose tag line contains tag, ignoring
// case, newest first. Unreadable files are skipped.
func (l *Ledger) SearchByTag(tag string) ([]string, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(tag)
	var out []string
	for _, name := range files {
		s, err := l.Read(name)
		if err != nil {
			l.logger.Warn("ledger: skip unreadable session", "file", name, "error", err)
			continue
		}
		if s.Tags != "" && strings.Contains(strings.ToLower(s.Tags), needle) {
			out = append(out, name)
		}
	}
	return out, nil
}

// Read parses one session file.
func (l *Ledger) Read(filename string) (Session, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, filepath.Base(filename)))
	if err != nil {
		return Session{}, fmt.Errorf("ledger: read %s: %w", filename, err)
	}
	s := Parse(string(data))
	s.Filename = filepath.Base(filename)
	return s, nil
}

// Latest returns the newest session, or false when the ledger is empty.
func (l *Ledger) Latest() (Session, bool, error) {
	files, err := l.Files()
	if err != nil || len(files) == 0 {
		return Session{}, false, err
	}
	s, err := l.Read(files[0])
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

// Parse extracts the tag line, agent and summary section from text.
func Parse(text string) Session {
	var s Session
	var summary []string
	inSummary, summaryDone := false, false
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if s.Tags == "" {
			if i := strings.Index(line, "Tags: "); i >= 0 {
				s.Tags = strings.TrimSpace(line[i+len("Tags: "):])
			}
		}
		if s.Agent == "" && strings.HasPrefix(line, "LLM: ") {
			s.Agent = strings.TrimSpace(strings.TrimPrefix(line, "LLM: "))
		}
		switch {
		case inSummary && strings.HasPrefix(line, "##"):
			inSummary, summaryDone = false, true
		case inSummary:
			summary = append(summary, line)
		case !summaryDone && strings.TrimRight(line, " \t") == "## Summary":
			inSummary = true
		}
	}
	s.Summary = strings.TrimSpace(strings.Join(summary, "\n"))
	return s
}

// Excerpt cuts s to at most n runes. n <= 0 leaves s unchanged.
func Excerpt(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// QuickHandoffPath returns where a manual handoff started at now should be
// written and marks the handoff. The file itself is written by the caller.
func (l *Ledger) QuickHandoffPath(now time.Time) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("ledger: create %s: %w", l.dir, err)
	}
	l.tracker.MarkHandoffAt(now)
	return filepath.Join(l.dir, FileName(now, SuffixHandoff)), nil
}

func (l *Ledger) write(name, content string) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("ledger: create %s: %w", l.dir, err)
	}
	path := filepath.Join(l.dir, name)
	if err := memory.WriteFileAtomic(path, []byte(content)); err != nil {
		return "", fmt.Errorf("ledger: write %s: %w", name, err)
	}
	return path, nil
}

// Package watch reports changes to the documents a context file is built
// from: the state record, the lessons document and the session ledger.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Kind classifies a change.
type Kind int

const (
	KindState Kind = iota + 1
	KindLessons
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindLessons:
		return "lessons"
	case KindSession:
		return "session"
	}
	return "unknown"
}

// Event is one relevant change.
type Event struct {
	Path string
	Kind Kind
	Op   fsnotify.Op
}

// IsNewHandoff reports whether the event is a manual handoff file appearing.
func (e Event) IsNewHandoff() bool {
	return e.Kind == KindSession && e.Op&fsnotify.Create != 0 &&
		strings.HasSuffix(filepath.Base(e.Path), "-handoff.md")
}

// Config names the watched files. Directories are watched rather than the
// files themselves so atomic replacements are seen.
type Config struct {
	StatePath   string
	LessonsPath string
	SessionsDir string
	Logger      *slog.Logger
}

type Watcher struct {
	cfg    Config
	logger *slog.Logger
	events chan Event
}

func NewWatcher(cfg Config) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, 16),
	}
}

// Events is closed when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins watching until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dirs := map[string]struct{}{}
	for _, p := range []string{w.cfg.StatePath, w.cfg.LessonsPath} {
		if p != "" {
			dirs[filepath.Dir(p)] = struct{}{}
		}
	}
	if w.cfg.SessionsDir != "" {
		dirs[w.cfg.SessionsDir] = struct{}{}
	}
	added := 0
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("watch: cannot watch directory", "dir", dir, "error", err)
			continue
		}
		added++
	}
	if added == 0 {
		_ = fsw.Close()
		return fmt.Errorf("watch: no watchable directories")
	}

	go func() {
		defer fsw.Close()
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				kind, ok := w.classify(ev.Name)
				if !ok {
					continue
				}
				select {
				case w.events <- Event{Path: ev.Name, Kind: kind, Op: ev.Op}:
				default:
				}
				w.logger.Debug("watched file changed", "path", ev.Name, "kind", kind.String(), "op", ev.Op.String())
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Error("watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (w *Watcher) classify(path string) (Kind, bool) {
	clean := filepath.Clean(path)
	base := filepath.Base(clean)
	if strings.HasSuffix(base, ".tmp") {
		return 0, false
	}
	switch {
	case w.cfg.StatePath != "" && clean == filepath.Clean(w.cfg.StatePath):
		return KindState, true
	case w.cfg.LessonsPath != "" && clean == filepath.Clean(w.cfg.LessonsPath):
		return KindLessons, true
	case w.cfg.SessionsDir != "" && filepath.Dir(clean) == filepath.Clean(w.cfg.SessionsDir):
		if strings.HasSuffix(base, ".md") && base != "README.md" {
			return KindSession, true
		}
	}
	return 0, false
}

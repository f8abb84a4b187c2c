package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/basket/udo/internal/memory"
)

// Document names inside a storage path.
const (
	FileName      = "PROJECT_STATE.json"
	LessonsFile   = "LESSONS_LEARNED.md"
	HardStopsFile = "HARD_STOPS.md"
)

// Store reads and writes the state record of one storage path. It is the only
// writer of PROJECT_STATE.json.
type Store struct {
	ws     *memory.Workspace
	logger *slog.Logger
}

// NewStore opens the store for storagePath, creating the directory if needed.
func NewStore(storagePath string, logger *slog.Logger) (*Store, error) {
	ws, err := memory.NewWorkspace(storagePath)
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{ws: ws, logger: logger}, nil
}

// Path returns the state record location.
func (s *Store) Path() string {
	p, _ := s.ws.Path(FileName)
	return p
}

// Load returns the stored record merged onto Default. A missing or corrupt
// file yields the default record; the corrupt file stays on disk untouched.
func (s *Store) Load() ProjectState {
	raw, err := s.ws.Read(FileName)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("state: read failed, using defaults", "path", s.Path(), "error", err)
		}
		return Default()
	}
	st, err := Parse([]byte(raw))
	if err != nil {
		s.logger.Warn("state: corrupt record, using defaults", "path", s.Path(), "error", err)
		return Default()
	}
	return st
}

// Save replaces the whole record atomically and returns what was written.
func (s *Store) Save(st ProjectState) (ProjectState, error) {
	st = st.Normalized()
	if err := s.ws.WriteJSON(FileName, st); err != nil {
		return st, fmt.Errorf("state: save: %w", err)
	}
	return st, nil
}

// ReadLessons returns the raw lessons document or "" when absent.
func (s *Store) ReadLessons() string {
	return s.readText(LessonsFile)
}

// ReadHardStops returns the raw hard-stop rules or "" when absent.
func (s *Store) ReadHardStops() string {
	return s.readText(HardStopsFile)
}

func (s *Store) readText(name string) string {
	text, err := s.ws.ReadIfExists(name)
	if err != nil {
		s.logger.Warn("state: read document failed", "file", name, "error", err)
		return ""
	}
	return text
}

// Parse decodes a state record and fills defaults.
func Parse(data []byte) (ProjectState, error) {
	var st ProjectState
	if err := json.Unmarshal(data, &st); err != nil {
		return Default(), err
	}
	return st, nil
}

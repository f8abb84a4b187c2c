package link

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/basket/udo/internal/memory"
)

// MarkerFile is written at the root of every linked working directory.
const MarkerFile = ".udo-link"

// Marker is the content of MarkerFile.
type Marker struct {
	StoragePath  string    `json:"storagePath"`
	CreatedAt    time.Time `json:"createdAt"`
	MigratedFrom string    `json:"migratedFrom,omitempty"`
	InProject    bool      `json:"inProject,omitempty"`
}

func markerPath(workingPath string) string {
	return filepath.Join(workingPath, MarkerFile)
}

func writeMarker(workingPath string, m Marker) error {
	if err := memory.WriteJSONAtomic(markerPath(workingPath), m); err != nil {
		return fmt.Errorf("link: write marker: %w", err)
	}
	return nil
}

// ReadMarker returns the marker of workingPath. A missing file is
// ErrNotLinked.
func ReadMarker(workingPath string) (Marker, error) {
	data, err := os.ReadFile(markerPath(workingPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Marker{}, ErrNotLinked
		}
		return Marker{}, fmt.Errorf("link: read marker: %w", err)
	}
	var m struct {
		Marker
		// Older markers named the storage path udoPath.
		LegacyPath string `json:"udoPath"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, fmt.Errorf("link: corrupt marker %s: %w", markerPath(workingPath), err)
	}
	if m.StoragePath == "" {
		m.StoragePath = m.LegacyPath
	}
	if strings.TrimSpace(m.StoragePath) == "" {
		return Marker{}, fmt.Errorf("link: marker %s has no storage path", markerPath(workingPath))
	}
	return m.Marker, nil
}

const gitignoreBlock = "# UDO link file\n" + MarkerFile + "\n"

// ensureIgnored makes sure .gitignore lists the marker file: the file is
// created if absent and appended to only when the pattern is missing.
func ensureIgnored(workingPath string) error {
	path := filepath.Join(workingPath, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("link: read .gitignore: %w", err)
		}
		if err := os.WriteFile(path, []byte(gitignoreBlock), 0o644); err != nil {
			return fmt.Errorf("link: create .gitignore: %w", err)
		}
		return nil
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == MarkerFile {
			return nil
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("link: open .gitignore: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString("\n" + gitignoreBlock); err != nil {
		return fmt.Errorf("link: append .gitignore: %w", err)
	}
	return nil
}

package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces path with data through a synced temp file in the
// same directory. Parent directories are created; the result is mode 0644.
func WriteFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("memory: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".udo-*.tmp")
	if err != nil {
		return fmt.Errorf("memory: create temp: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("memory: write temp: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("memory: chmod temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("memory: sync temp: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("memory: close temp: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("memory: rename: %w", err)
	}
	return nil
}

// WriteJSONAtomic writes v as two-space indented JSON with a trailing newline.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: marshal %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

package memory

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileLock is an advisory lock held on a sidecar file. On platforms without
// flock(2) it only serialises callers inside one process.
type FileLock struct {
	f *os.File
}

// Lock blocks until an exclusive advisory lock on path is held. The lock file
// is created if needed and never removed.
func Lock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("memory: mkdir lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("memory: open lock: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("memory: lock %s: %w", filepath.Base(path), err)
	}
	return &FileLock{f: f}, nil
}

// Unlock releases the lock. Calling it twice is harmless.
func (l *FileLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}

package link

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxAllocAttempts = 16

// ErrIDExhausted is returned when no free storage id could be claimed.
var ErrIDExhausted = errors.New("link: could not allocate a unique storage id")

// sanitizeName lowercases name and keeps only [a-z0-9_-], collapsing runs of
// anything else into one dash.
func sanitizeName(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "project"
	}
	return out
}

// idAllocator hands out "<name>-<token>" ids. A candidate is accepted only
// when the index does not know it and its storage directory can be created
// exclusively, which claims it against other processes.
type idAllocator struct {
	projectsDir string
	token       func() string
}

func newIDAllocator(projectsDir string) *idAllocator {
	return &idAllocator{
		projectsDir: projectsDir,
		token: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		},
	}
}

// claim returns a fresh id and its newly created storage directory.
func (a *idAllocator) claim(name string, idx Index) (string, string, error) {
	if err := os.MkdirAll(a.projectsDir, 0o755); err != nil {
		return "", "", fmt.Errorf("link: create projects dir: %w", err)
	}
	base := sanitizeName(name)
	for i := 0; i < maxAllocAttempts; i++ {
		id := base + "-" + a.token()
		if idx.HasStorageID(id) {
			continue
		}
		dir := filepath.Join(a.projectsDir, id)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return id, dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", "", fmt.Errorf("link: create storage dir: %w", err)
		}
	}
	return "", "", ErrIDExhausted
}

// inPlaceID returns "<name>-inproject", suffixed with a token only when a
// different working path already holds that id.
func (a *idAllocator) inPlaceID(name, workingPath string, idx Index) (string, error) {
	base := sanitizeName(name) + "-inproject"
	if owner, ok := ownerOf(idx, base); !ok || owner == workingPath {
		return base, nil
	}
	for i := 0; i < maxAllocAttempts; i++ {
		id := base + "-" + a.token()
		if !idx.HasStorageID(id) {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

func ownerOf(idx Index, id string) (string, bool) {
	for path, e := range idx.Projects {
		if e.StorageID == id {
			return path, true
		}
	}
	return "", false
}

// Package memory is the file layer under a project's storage path. Every
// name is confined to the storage root and writes are atomic.
package memory

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for names that resolve outside the storage root,
// through ".." segments, absolute paths or symlinks.
var ErrOutsideRoot = errors.New("memory: path traversal blocked")

// Workspace addresses files by slash-separated names relative to a root.
type Workspace struct {
	root string
}

// NewWorkspace creates root if needed. The root itself is symlink-resolved
// once so later containment checks compare resolved paths.
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("memory: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("memory: create root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("memory: resolve root: %w", err)
	}
	return &Workspace{root: resolved}, nil
}

func (w *Workspace) Root() string { return w.root }

// Path returns the absolute location of name.
func (w *Workspace) Path(name string) (string, error) {
	return w.confine(name)
}

func (w *Workspace) confine(name string) (string, error) {
	if name == "" {
		return "", errors.New("memory: empty path")
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	full := filepath.Join(w.root, filepath.FromSlash(name))
	resolved, err := realPath(full)
	if err != nil {
		return "", fmt.Errorf("memory: resolve %s: %w", name, err)
	}
	if !within(w.root, resolved) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	return resolved, nil
}

func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}

// realPath resolves symlinks on the longest existing prefix of p and keeps
// the missing tail as written, so names of files yet to be created resolve.
func realPath(p string) (string, error) {
	var tail []string
	for cur := p; ; {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

// Read returns the whole content of name. Missing files wrap fs.ErrNotExist.
// There is no size limit: state and lessons documents are durable records.
func (w *Workspace) Read(name string) (string, error) {
	p, err := w.confine(name)
	if err != nil {
		return "", err
	}
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("memory: read: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	switch {
	case err != nil:
		return "", fmt.Errorf("memory: stat: %w", err)
	case info.IsDir():
		return "", fmt.Errorf("memory: %s is a directory", name)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("memory: read: %w", err)
	}
	return string(data), nil
}

// ReadIfExists reports a missing file as empty content.
func (w *Workspace) ReadIfExists(name string) (string, error) {
	s, err := w.Read(name)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return s, err
}

func (w *Workspace) Write(name, content string) error {
	p, err := w.confine(name)
	if err != nil {
		return err
	}
	return WriteFileAtomic(p, []byte(content))
}

func (w *Workspace) WriteJSON(name string, v any) error {
	p, err := w.confine(name)
	if err != nil {
		return err
	}
	return WriteJSONAtomic(p, v)
}

func (w *Workspace) MkdirAll(name string) error {
	p, err := w.confine(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return fmt.Errorf("memory: mkdir: %w", err)
	}
	return nil
}

// Adopt moves src, a file or directory outside the workspace, to name.
// A rename across filesystems falls back to copy then remove.
func (w *Workspace) Adopt(src, name string) error {
	dst, err := w.confine(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("memory: mkdir: %w", err)
	}
	if os.Rename(src, dst) == nil {
		return nil
	}
	if err := copyTree(src, dst); err != nil {
		return fmt.Errorf("memory: copy %s: %w", src, err)
	}
	if err := os.RemoveAll(src); err != nil {
		return fmt.Errorf("memory: remove %s: %w", src, err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(src, p)
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}

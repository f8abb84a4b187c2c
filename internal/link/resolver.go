// Package link maps working directories to their external storage paths.
// A marker file in the working directory records the storage path and the
// global index records every linked project.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/basket/udo/internal/memory"
	"github.com/basket/udo/internal/shared"
	"github.com/basket/udo/internal/state"
	"github.com/basket/udo/internal/templates"
)

// ErrNotLinked is returned by Load when the working directory has no marker.
var ErrNotLinked = errors.New("link: project is not linked")

// Config holds the resolver dependencies.
type Config struct {
	Registry    *Registry
	ProjectsDir string // parent of allocated storage paths
	Logger      *slog.Logger
	Now         func() time.Time
}

// Resolver creates, migrates and loads project links.
type Resolver struct {
	registry *Registry
	ids      *idAllocator
	logger   *slog.Logger
	now      func() time.Time
}

// NewResolver builds a resolver from cfg.
func NewResolver(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		registry: cfg.Registry,
		ids:      newIDAllocator(cfg.ProjectsDir),
		logger:   logger,
		now:      now,
	}
}

// Registry returns the index the resolver writes to.
func (r *Resolver) Registry() *Registry { return r.registry }

// HasLink reports whether workingPath carries a marker file.
func (r *Resolver) HasLink(workingPath string) bool { return HasLink(workingPath) }

// FindRoot walks up from dir to the nearest directory holding a marker file.
func (r *Resolver) FindRoot(dir string) (string, bool) { return FindRoot(dir) }

// HasLink reports whether workingPath carries a marker file.
func HasLink(workingPath string) bool {
	_, err := os.Stat(markerPath(workingPath))
	return err == nil
}

// FindRoot walks up from dir to the nearest directory holding a marker file.
func FindRoot(dir string) (string, bool) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		if HasLink(abs) {
			return abs, true
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", false
		}
		abs = parent
	}
}

// HasExistingFiles reports whether project files already live inside the
// working tree, which makes Migrate the sensible first step.
func (r *Resolver) HasExistingFiles(workingPath string) bool {
	for _, name := range []string{"ORCHESTRATOR.md", ".project-catalog"} {
		if _, err := os.Stat(filepath.Join(workingPath, name)); err == nil {
			return true
		}
	}
	return false
}

// Initialize allocates fresh storage for workingPath, seeds it with the
// directory skeleton and onboarding templates, links it and returns the
// loaded project. Calling it on an already linked path allocates new storage
// and repoints the link; the previous storage is left alone.
func (r *Resolver) Initialize(ctx context.Context, workingPath string) (*Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	workingPath, err := cleanPath(workingPath)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(workingPath)

	id, storagePath, err := r.claimStorage(name)
	if err != nil {
		return nil, err
	}
	ws, err := memory.NewWorkspace(storagePath)
	if err != nil {
		return nil, err
	}
	for _, dir := range skeletonDirs {
		if err := ws.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("link: create skeleton: %w", err)
		}
	}
	files, err := templates.Files()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := ws.Write(f.Path, f.Content); err != nil {
			return nil, fmt.Errorf("link: write template %s: %w", f.Path, err)
		}
	}

	now := r.now()
	if err := r.finishLink(workingPath, id, name, Marker{StoragePath: storagePath, CreatedAt: now}); err != nil {
		return nil, err
	}
	r.logger.Info("project initialized", append(shared.LogAttrs(ctx),
		"working_path", workingPath, "storage_id", id, "templates", len(files))...)
	return r.Load(ctx, workingPath)
}

// Migrate moves project files that live inside the working tree into newly
// allocated storage. Only allow-listed top-level names move.
func (r *Resolver) Migrate(ctx context.Context, workingPath string) (*Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	workingPath, err := cleanPath(workingPath)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(workingPath)

	id, storagePath, err := r.claimStorage(name)
	if err != nil {
		return nil, err
	}
	ws, err := memory.NewWorkspace(storagePath)
	if err != nil {
		return nil, err
	}

	var moved []string
	for _, entry := range append(append([]string{}, migrateFiles...), migrateDirs...) {
		src := filepath.Join(workingPath, entry)
		if _, err := os.Lstat(src); err != nil {
			continue
		}
		if err := ws.Adopt(src, entry); err != nil {
			return nil, fmt.Errorf("link: migrate %s: %w", entry, err)
		}
		moved = append(moved, entry)
	}
	for _, dir := range skeletonDirs {
		if err := ws.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("link: create skeleton: %w", err)
		}
	}

	marker := Marker{StoragePath: storagePath, CreatedAt: r.now(), MigratedFrom: "in-project"}
	if err := r.finishLink(workingPath, id, name, marker); err != nil {
		return nil, err
	}
	r.logger.Info("project migrated", append(shared.LogAttrs(ctx),
		"working_path", workingPath, "storage_id", id, "moved", len(moved))...)
	return r.Load(ctx, workingPath)
}

// LinkInPlace registers the working directory as its own storage path.
// No files move and .gitignore is left alone.
func (r *Resolver) LinkInPlace(ctx context.Context, workingPath string) (*Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	workingPath, err := cleanPath(workingPath)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(workingPath)
	now := r.now()

	var id string
	err = r.registry.Update(func(idx *Index) error {
		var err error
		id, err = r.ids.inPlaceID(name, workingPath, *idx)
		if err != nil {
			return err
		}
		idx.Projects[workingPath] = IndexEntry{StorageID: id, Name: name, CreatedAt: now, LastAccessedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := writeMarker(workingPath, Marker{StoragePath: workingPath, CreatedAt: now, InProject: true}); err != nil {
		return nil, err
	}
	r.logger.Info("project linked in place", append(shared.LogAttrs(ctx),
		"working_path", workingPath, "storage_id", id)...)
	return r.Load(ctx, workingPath)
}

// Load reads the marker, bumps the index access time when the project is
// registered and returns a fresh snapshot. A missing marker is ErrNotLinked.
func (r *Resolver) Load(ctx context.Context, workingPath string) (*Project, error) {
	workingPath, err := cleanPath(workingPath)
	if err != nil {
		return nil, err
	}
	m, err := ReadMarker(workingPath)
	if err != nil {
		return nil, err
	}

	now := r.now()
	entry, _, err := r.registry.Touch(workingPath, now)
	if err != nil {
		r.logger.Warn("registry: touch failed", append(shared.LogAttrs(ctx), "error", err)...)
		entry, _ = r.registry.Lookup(workingPath)
	}

	store, err := state.NewStore(m.StoragePath, r.logger)
	if err != nil {
		return nil, err
	}
	p := &Project{
		WorkingPath:  workingPath,
		StoragePath:  m.StoragePath,
		Name:         filepath.Base(workingPath),
		StorageID:    entry.StorageID,
		InProject:    m.InProject,
		State:        store.Load(),
		SessionStart: now,
		store:        store,
	}
	r.logger.Debug("project loaded", append(shared.LogAttrs(ctx),
		"working_path", workingPath, "storage_path", m.StoragePath, "phase", p.State.Phase)...)
	return p, nil
}

// claimStorage allocates an id and its directory while holding the index lock.
func (r *Resolver) claimStorage(name string) (string, string, error) {
	var id, dir string
	err := r.registry.WithLock(func(idx Index) error {
		var err error
		id, dir, err = r.ids.claim(name, idx)
		return err
	})
	if err != nil {
		return "", "", err
	}
	return id, dir, nil
}

func (r *Resolver) finishLink(workingPath, id, name string, m Marker) error {
	if err := writeMarker(workingPath, m); err != nil {
		return err
	}
	if err := ensureIgnored(workingPath); err != nil {
		return err
	}
	return r.registry.Register(workingPath, IndexEntry{
		StorageID:      id,
		Name:           name,
		CreatedAt:      m.CreatedAt,
		LastAccessedAt: m.CreatedAt,
	})
}

func cleanPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("link: resolve %s: %w", p, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("link: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("link: %s is not a directory", abs)
	}
	return abs, nil
}

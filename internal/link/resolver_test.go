package link

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/basket/udo/internal/state"
)

type fixture struct {
	home     string
	work     string
	resolver *Resolver
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	home := t.TempDir()
	work := filepath.Join(t.TempDir(), "My App")
	if err := os.MkdirAll(work, 0o755); err != nil {
		t.Fatalf("mkdir work: %v", err)
	}
	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{home: home, work: work, clock: &clock}
	f.resolver = NewResolver(Config{
		Registry:    NewRegistry(filepath.Join(home, "index.json"), nil),
		ProjectsDir: filepath.Join(home, "projects"),
		Now:         func() time.Time { return *f.clock },
	})
	return f
}

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

func TestInitialize_CreatesStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if f.resolver.HasLink(f.work) {
		t.Fatalf("fresh directory must not be linked")
	}
	p, err := f.resolver.Initialize(ctx, f.work)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !f.resolver.HasLink(f.work) {
		t.Fatalf("expected marker after Initialize")
	}
	if !strings.HasPrefix(p.StorageID, "my-app-") {
		t.Fatalf("expected sanitized id prefix, got %q", p.StorageID)
	}
	if p.StoragePath != filepath.Join(f.home, "projects", p.StorageID) {
		t.Fatalf("unexpected storage path %q", p.StoragePath)
	}
	for _, dir := range skeletonDirs {
		if info, err := os.Stat(filepath.Join(p.StoragePath, dir)); err != nil || !info.IsDir() {
			t.Errorf("missing skeleton dir %s", dir)
		}
	}
	for _, file := range []string{"START_HERE.md", "PROJECT_STATE.json", ".takeover/discovery.json", ".project-catalog/sessions/README.md"} {
		if _, err := os.Stat(filepath.Join(p.StoragePath, file)); err != nil {
			t.Errorf("missing template %s: %v", file, err)
		}
	}

	if p.State.Phase != state.DefaultPhase {
		t.Fatalf("expected initialized phase, got %q", p.State.Phase)
	}
	if p.State.Notes == "" {
		t.Fatalf("expected template notes to be loaded")
	}
	if !p.SessionStart.Equal(*f.clock) {
		t.Fatalf("expected session start %v, got %v", *f.clock, p.SessionStart)
	}

	raw, err := os.ReadFile(filepath.Join(f.work, MarkerFile))
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	var marker map[string]any
	if err := json.Unmarshal(raw, &marker); err != nil {
		t.Fatalf("marker is not JSON: %v", err)
	}
	if marker["storagePath"] != p.StoragePath {
		t.Fatalf("marker storagePath = %v", marker["storagePath"])
	}
	if _, ok := marker["inProject"]; ok {
		t.Fatalf("initialized marker must not set inProject")
	}

	gi, err := os.ReadFile(filepath.Join(f.work, ".gitignore"))
	if err != nil {
		t.Fatalf("read .gitignore: %v", err)
	}
	if string(gi) != "# UDO link file\n.udo-link\n" {
		t.Fatalf("unexpected .gitignore %q", gi)
	}

	entry, ok := f.resolver.Registry().Lookup(f.work)
	if !ok || entry.StorageID != p.StorageID || entry.Name != "My App" {
		t.Fatalf("unexpected index entry %+v ok=%v", entry, ok)
	}
}

func TestInitialize_TwiceAllocatesDistinctIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.resolver.Initialize(ctx, f.work)
	if err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	second, err := f.resolver.Initialize(ctx, f.work)
	if err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if first.StorageID == second.StorageID {
		t.Fatalf("expected distinct storage ids, both %q", first.StorageID)
	}
	if _, err := os.Stat(filepath.Join(first.StoragePath, "START_HERE.md")); err != nil {
		t.Fatalf("first storage must survive: %v", err)
	}
	gi, _ := os.ReadFile(filepath.Join(f.work, ".gitignore"))
	if n := strings.Count(string(gi), MarkerFile); n != 1 {
		t.Fatalf("ignore pattern must appear once, got %d in %q", n, gi)
	}
}

func TestEnsureIgnored_AppendsOnlyWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	if err := os.WriteFile(path, []byte("node_modules/\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ensureIgnored(dir); err != nil {
		t.Fatalf("ensureIgnored: %v", err)
	}
	if err := ensureIgnored(dir); err != nil {
		t.Fatalf("ensureIgnored again: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "node_modules/\n\n# UDO link file\n.udo-link\n" {
		t.Fatalf("unexpected .gitignore %q", got)
	}
}

func TestMigrate_MovesAllowListOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(f.work, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	write("ORCHESTRATOR.md", "# orchestrator")
	write("PROJECT_STATE.json", `{"goal":"carry over","phase":"build"}`)
	write(".project-catalog/sessions/2024-01-01-10-00-handoff.md", "Tags: #old")
	write("main.go", "package main")
	write("README.md", "readme")

	if !f.resolver.HasExistingFiles(f.work) {
		t.Fatalf("expected existing project files to be detected")
	}

	p, err := f.resolver.Migrate(ctx, f.work)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if p.State.Goal != "carry over" || p.State.Phase != "build" {
		t.Fatalf("state not carried over: %+v", p.State)
	}
	for _, moved := range []string{"ORCHESTRATOR.md", "PROJECT_STATE.json", ".project-catalog"} {
		if _, err := os.Stat(filepath.Join(f.work, moved)); !os.IsNotExist(err) {
			t.Errorf("%s should have moved out of the working tree", moved)
		}
	}
	if _, err := os.Stat(filepath.Join(p.StoragePath, ".project-catalog/sessions/2024-01-01-10-00-handoff.md")); err != nil {
		t.Fatalf("session not migrated: %v", err)
	}
	for _, kept := range []string{"main.go", "README.md"} {
		if _, err := os.Stat(filepath.Join(f.work, kept)); err != nil {
			t.Errorf("%s must stay in place: %v", kept, err)
		}
	}
	if _, err := os.Stat(filepath.Join(p.StoragePath, ".memory/working")); err != nil {
		t.Fatalf("missing skeleton dirs are created after migration: %v", err)
	}

	m, err := ReadMarker(f.work)
	if err != nil {
		t.Fatalf("ReadMarker: %v", err)
	}
	if m.MigratedFrom != "in-project" || m.InProject {
		t.Fatalf("unexpected marker %+v", m)
	}
	if f.resolver.HasExistingFiles(f.work) {
		t.Fatalf("working tree should be clean after migration")
	}
}

func TestLinkInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(f.work, "ORCHESTRATOR.md"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := f.resolver.LinkInPlace(ctx, f.work)
	if err != nil {
		t.Fatalf("LinkInPlace: %v", err)
	}
	if p.StoragePath != f.work || !p.InProject {
		t.Fatalf("expected in-place project, got %+v", p)
	}
	if p.StorageID != "my-app-inproject" {
		t.Fatalf("unexpected id %q", p.StorageID)
	}
	if _, err := os.Stat(filepath.Join(f.work, "ORCHESTRATOR.md")); err != nil {
		t.Fatalf("files must not move: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.home, "projects")); !os.IsNotExist(err) {
		t.Fatalf("in-place link must not allocate storage")
	}
	if _, err := os.Stat(filepath.Join(f.work, ".gitignore")); !os.IsNotExist(err) {
		t.Fatalf("in-place link must not touch .gitignore, stat err=%v", err)
	}

	// Same basename, different directory: the id must stay unique.
	other := filepath.Join(t.TempDir(), "My App")
	if err := os.MkdirAll(other, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	q, err := f.resolver.LinkInPlace(ctx, other)
	if err != nil {
		t.Fatalf("LinkInPlace other: %v", err)
	}
	if q.StorageID == p.StorageID {
		t.Fatalf("expected distinct in-place ids, both %q", q.StorageID)
	}

	// Relinking the first path keeps its id.
	again, err := f.resolver.LinkInPlace(ctx, f.work)
	if err != nil {
		t.Fatalf("LinkInPlace again: %v", err)
	}
	if again.StorageID != p.StorageID {
		t.Fatalf("relink changed id %q -> %q", p.StorageID, again.StorageID)
	}
}

func TestLoad_NotLinked(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Load(context.Background(), f.work)
	if !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}
}

func TestLoad_CorruptMarker(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(filepath.Join(f.work, MarkerFile), []byte("nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := f.resolver.Load(context.Background(), f.work)
	if err == nil || errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected a corrupt marker error, got %v", err)
	}
}

func TestLoad_LegacyMarkerKey(t *testing.T) {
	f := newFixture(t)
	storage := t.TempDir()
	if err := os.WriteFile(filepath.Join(f.work, MarkerFile), []byte(`{"udoPath":"`+storage+`","created":"x"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := f.resolver.Load(context.Background(), f.work)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.StoragePath != storage {
		t.Fatalf("expected legacy storage path, got %q", p.StoragePath)
	}
}

func TestLoad_TouchesOnlyOnLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.resolver.Initialize(ctx, f.work); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	created, _ := f.resolver.Registry().Lookup(f.work)

	f.advance(time.Hour)
	_ = f.resolver.Registry().Entries()
	if e, _ := f.resolver.Registry().Lookup(f.work); !e.LastAccessedAt.Equal(created.LastAccessedAt) {
		t.Fatalf("read-only queries must not touch the entry")
	}

	if _, err := f.resolver.Load(ctx, f.work); err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, _ := f.resolver.Registry().Lookup(f.work)
	if !e.LastAccessedAt.Equal(*f.clock) {
		t.Fatalf("expected last access %v, got %v", *f.clock, e.LastAccessedAt)
	}
	if !e.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("createdAt must not change")
	}
}

func TestLoad_CorruptIndexTolerated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.resolver.Initialize(ctx, f.work)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := os.WriteFile(f.resolver.Registry().Path(), []byte("{{{"), 0o644); err != nil {
		t.Fatalf("corrupt index: %v", err)
	}
	loaded, err := f.resolver.Load(ctx, f.work)
	if err != nil {
		t.Fatalf("Load with corrupt index: %v", err)
	}
	if loaded.StoragePath != p.StoragePath {
		t.Fatalf("marker should still resolve storage")
	}
}

func TestFindRoot(t *testing.T) {
	f := newFixture(t)
	if _, err := f.resolver.LinkInPlace(context.Background(), f.work); err != nil {
		t.Fatalf("LinkInPlace: %v", err)
	}
	sub := filepath.Join(f.work, "internal", "pkg")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	root, ok := f.resolver.FindRoot(sub)
	if !ok || root != f.work {
		t.Fatalf("expected root %q, got %q ok=%v", f.work, root, ok)
	}
	if _, ok := f.resolver.FindRoot(t.TempDir()); ok {
		t.Fatalf("unlinked tree must not resolve")
	}
}

func TestProject_SaveState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.resolver.Initialize(ctx, f.work)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	st := p.State
	st.Goal = "Ship v1"
	st, _ = st.AddTodo("Write parser", "high", *f.clock)
	if err := p.SaveState(st); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if p.State.Goal != "Ship v1" {
		t.Fatalf("snapshot not updated")
	}
	reloaded, err := f.resolver.Load(ctx, f.work)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.State.Goal != "Ship v1" || len(reloaded.State.Todos) != 1 {
		t.Fatalf("state not persisted: %+v", reloaded.State)
	}
	if reloaded.SessionsPath() != filepath.Join(p.StoragePath, ".project-catalog", "sessions") {
		t.Fatalf("unexpected sessions path %q", reloaded.SessionsPath())
	}
}

func TestCleanPath_RejectsFiles(t *testing.T) {
	f := newFixture(t)
	file := filepath.Join(f.work, "x.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := f.resolver.Initialize(context.Background(), file); err == nil {
		t.Fatalf("expected error for a file path")
	}
}

func TestInitialize_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.resolver.Initialize(ctx, f.work); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

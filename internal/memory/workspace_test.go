package memory

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWorkspace_ReadWrite(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	content := "# Lessons Learned\n\n## Active Lessons\n"
	if err := ws.Write("LESSONS_LEARNED.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ws.Read("LESSONS_LEARNED.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != content {
		t.Errorf("Read mismatch:\n  got:  %q\n  want: %q", got, content)
	}

	// Overwrite and re-read to verify atomic replacement.
	if err := ws.Write("LESSONS_LEARNED.md", "replaced"); err != nil {
		t.Fatalf("Write overwrite: %v", err)
	}
	got, err = ws.Read("LESSONS_LEARNED.md")
	if err != nil {
		t.Fatalf("Read after overwrite: %v", err)
	}
	if got != "replaced" {
		t.Errorf("expected replaced content, got %q", got)
	}

	entries, err := os.ReadDir(ws.Root())
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWorkspace_ReadIfExists(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	got, err := ws.ReadIfExists("HARD_STOPS.md")
	if err != nil {
		t.Fatalf("ReadIfExists on missing file: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if _, err := ws.Read("HARD_STOPS.md"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Read on missing file should wrap fs.ErrNotExist, got %v", err)
	}
}

func TestWorkspace_WriteJSON(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	if err := ws.WriteJSON("nested/state.json", map[string]string{"phase": "build"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	raw, err := ws.Read("nested/state.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.HasSuffix(raw, "}\n") || !strings.Contains(raw, "\n  \"phase\"") {
		t.Fatalf("expected indented JSON with trailing newline, got %q", raw)
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["phase"] != "build" {
		t.Fatalf("unexpected decoded value: %v", decoded)
	}
}

func TestWorkspace_MkdirAllAndPath(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	if err := ws.MkdirAll(".project-catalog/sessions"); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	p, err := ws.Path(".project-catalog/sessions")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if want := filepath.Join(ws.Root(), ".project-catalog", "sessions"); p != want {
		t.Fatalf("Path = %q, want %q", p, want)
	}
	if info, err := os.Stat(p); err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %s: %v", p, err)
	}
	if _, err := ws.Read(".project-catalog/sessions"); err == nil {
		t.Fatalf("reading a directory must fail")
	}
}

func TestWorkspace_PathTraversalBlocked(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	for _, p := range []string{"../etc/passwd", "../../etc/shadow", "foo/../../..", "/etc/passwd"} {
		if _, err := ws.Read(p); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Read(%q) = %v, want ErrOutsideRoot", p, err)
		}
		if err := ws.Write(p, "evil"); err == nil {
			t.Errorf("Write(%q) should have failed", p)
		}
	}
}

func TestWorkspace_SymlinkTraversalBlocked(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(root)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	outsideDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outsideDir, "secret.txt"), []byte("top secret"), 0o644); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	if err := os.Symlink(outsideDir, filepath.Join(root, "escape")); err != nil {
		t.Fatalf("create symlink: %v", err)
	}

	if _, err := ws.Read("escape/secret.txt"); err == nil || !strings.Contains(err.Error(), "traversal") {
		t.Fatalf("expected traversal error for Read, got %v", err)
	}
	if err := ws.Write("escape/new.txt", "evil"); err == nil || !strings.Contains(err.Error(), "traversal") {
		t.Fatalf("expected traversal error for Write, got %v", err)
	}
}

func TestWorkspace_Adopt(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	src := t.TempDir()
	dir := filepath.Join(src, ".project-catalog", "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "2024-01-01-10-00-handoff.md"), []byte("Tags: #a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "ORCHESTRATOR.md"), []byte("orch"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := ws.Adopt(filepath.Join(src, ".project-catalog"), ".project-catalog"); err != nil {
		t.Fatalf("Adopt dir: %v", err)
	}
	if err := ws.Adopt(filepath.Join(src, "ORCHESTRATOR.md"), "ORCHESTRATOR.md"); err != nil {
		t.Fatalf("Adopt file: %v", err)
	}

	if got, err := ws.Read(".project-catalog/sessions/2024-01-01-10-00-handoff.md"); err != nil || got != "Tags: #a" {
		t.Fatalf("expected session file inside workspace, got %q, %v", got, err)
	}
	if got, _ := ws.Read("ORCHESTRATOR.md"); got != "orch" {
		t.Fatalf("unexpected adopted content %q", got)
	}
	if _, err := os.Stat(filepath.Join(src, ".project-catalog")); !os.IsNotExist(err) {
		t.Fatalf("source dir should be gone, stat err=%v", err)
	}
}

func TestWorkspace_ReadLargeFile(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	content := strings.Repeat("x", 3<<20)
	if err := ws.Write("big.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ws.Read("big.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != len(content) {
		t.Fatalf("read %d bytes, want %d", len(got), len(content))
	}
}

func TestWriteFileAtomic_OutsideWorkspace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", ".udo-link")
	if err := WriteFileAtomic(path, []byte("{}")); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("expected 0644, got %v", info.Mode().Perm())
	}
}

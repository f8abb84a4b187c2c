package link

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"My App":          "my-app",
		"api_server":      "api_server",
		"  --weird!!--":   "weird",
		"Ünïcode Project": "n-code-project",
		"":                "project",
		"$$$":             "project",
	}
	for in, want := range tests {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func sequence(tokens ...string) func() string {
	i := 0
	return func() string {
		tok := tokens[i%len(tokens)]
		i++
		return tok
	}
}

func TestClaim_SkipsRegistryAndDiskCollisions(t *testing.T) {
	dir := t.TempDir()
	a := newIDAllocator(dir)
	a.token = sequence("aaaa", "bbbb", "cccc")

	idx := emptyIndex()
	idx.Projects["/elsewhere"] = IndexEntry{StorageID: "demo-aaaa", CreatedAt: time.Now()}
	if err := os.MkdirAll(filepath.Join(dir, "demo-bbbb"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	id, path, err := a.claim("demo", idx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if id != "demo-cccc" || path != filepath.Join(dir, "demo-cccc") {
		t.Fatalf("unexpected claim %q %q", id, path)
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		t.Fatalf("claimed directory must exist")
	}
}

func TestClaim_Exhausted(t *testing.T) {
	dir := t.TempDir()
	a := newIDAllocator(dir)
	a.token = sequence("same")
	if err := os.MkdirAll(filepath.Join(dir, "demo-same"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, _, err := a.claim("demo", emptyIndex()); !errors.Is(err, ErrIDExhausted) {
		t.Fatalf("expected ErrIDExhausted, got %v", err)
	}
}

func TestClaim_RealTokensAreUnique(t *testing.T) {
	a := newIDAllocator(t.TempDir())
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, _, err := a.claim("demo", emptyIndex())
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

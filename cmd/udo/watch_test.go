package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/basket/udo/internal/link"
)

func waitFor(t *testing.T, deadline time.Duration, check func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if check() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", deadline)
}

type watchRun struct {
	cancel context.CancelFunc
	done   chan int
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func startWatch(t *testing.T, h *harness) *watchRun {
	t.Helper()
	if err := os.Remove(h.contextFile); err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &watchRun{cancel: cancel, done: make(chan int, 1), out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	go func() {
		w.done <- run(ctx, []string{"--dir=" + h.project, "watch"}, streams{
			in: strings.NewReader(""), out: w.out, err: w.errOut,
		})
	}()
	t.Cleanup(cancel)
	waitFor(t, 5*time.Second, func() bool {
		_, err := os.Stat(h.contextFile)
		return err == nil
	})
	return w
}

func (w *watchRun) stop(t *testing.T) int {
	t.Helper()
	w.cancel()
	select {
	case code := <-w.done:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not exit after cancel")
		return -1
	}
}

func sessionFiles(t *testing.T, h *harness, suffix string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(h.storagePath(t), filepath.FromSlash(link.SessionsDir), "*"+suffix))
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

func TestWatch_NotLinked(t *testing.T) {
	h := newHarness(t)
	if code, _, _ := h.run(t, "watch"); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestWatch_AutoSavesOnClose(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "init")
	h.mustRun(t, "state", "add-todo", "write docs")

	w := startWatch(t, h)
	if code := w.stop(t); code != 0 {
		t.Fatalf("watch exit %d: %s", code, w.errOut.String())
	}

	autos := sessionFiles(t, h, "-auto.md")
	if len(autos) != 1 {
		t.Fatalf("expected one auto-save, got %v", autos)
	}
	data, err := os.ReadFile(autos[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "- write docs") || strings.Contains(string(data), "Started: Unknown") {
		t.Fatalf("unexpected auto-save:\n%s", data)
	}
	if !strings.Contains(w.out.String(), "auto-saved") {
		t.Fatalf("expected auto-save notice, got %q", w.out.String())
	}

	doc, _ := os.ReadFile(h.contextFile)
	if !strings.Contains(string(doc), filepath.Base(autos[0])) {
		t.Fatalf("context not refreshed with the auto-save:\n%s", doc)
	}
}

func TestWatch_ManualHandoffSkipsAutoSave(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "init")

	w := startWatch(t, h)
	const name = "2099-01-01-00-00-handoff.md"
	h.writeSession(t, name, "Tags: #release\n\n## Summary\nShipped it.\n")
	waitFor(t, 5*time.Second, func() bool {
		doc, err := os.ReadFile(h.contextFile)
		return err == nil && strings.Contains(string(doc), name)
	})

	if code := w.stop(t); code != 0 {
		t.Fatalf("watch exit %d: %s", code, w.errOut.String())
	}
	if autos := sessionFiles(t, h, "-auto.md"); len(autos) != 0 {
		t.Fatalf("auto-save written despite a recent handoff: %v", autos)
	}
	if !strings.Contains(w.out.String(), "handoff saved: "+name) {
		t.Fatalf("expected handoff notice, got %q", w.out.String())
	}
}

func TestWatch_StateChangeRefreshesContext(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "init")
	if err := os.WriteFile(filepath.Join(h.home, "config.yaml"), []byte("auto_save_on_close: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := startWatch(t, h)
	statePath := filepath.Join(h.storagePath(t), "PROJECT_STATE.json")
	if err := os.WriteFile(statePath, []byte(`{"phase":"testing"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool {
		doc, err := os.ReadFile(h.contextFile)
		return err == nil && strings.Contains(string(doc), "**Phase:** testing")
	})
	if code := w.stop(t); code != 0 {
		t.Fatalf("watch exit %d: %s", code, w.errOut.String())
	}
	if autos := sessionFiles(t, h, "-auto.md"); len(autos) != 0 {
		t.Fatalf("auto-save disabled but written: %v", autos)
	}
}

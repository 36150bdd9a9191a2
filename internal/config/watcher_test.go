package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeWatchFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write watch file: %v", err)
	}
}

func TestWatcherReadsInitialValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.yaml")
	writeWatchFile(t, path, "count: 3\norg_allowlist:\n  - acme\n  - widgets\n")

	w := NewWatcher(path, 1, nil)
	got := w.Current()

	if got.LoopCount != 3 {
		t.Errorf("Expected initial loop count 3, got %d", got.LoopCount)
	}
	if len(got.OrgAllowlist) != 2 || got.OrgAllowlist[0] != "acme" {
		t.Errorf("Expected initial allowlist [acme widgets], got %v", got.OrgAllowlist)
	}
}

func TestWatcherFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	w := NewWatcher(path, 5, []string{"acme"})
	got := w.Current()

	if got.LoopCount != 5 {
		t.Errorf("Expected default loop count 5, got %d", got.LoopCount)
	}
	if len(got.OrgAllowlist) != 1 || got.OrgAllowlist[0] != "acme" {
		t.Errorf("Expected default allowlist [acme], got %v", got.OrgAllowlist)
	}
}

func TestWatcherFiresOnCountChangeOnReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.yaml")
	writeWatchFile(t, path, "count: 1\n")

	w := NewWatcher(path, 1, nil)

	changed := make(chan int, 1)
	w.OnCountChange(func(n int) {
		changed <- n
	})
	w.Watch()

	writeWatchFile(t, path, "count: 7\n")

	select {
	case n := <-changed:
		if n != 7 {
			t.Errorf("Expected onCountChange(7), got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onCountChange was not invoked after the file changed")
	}

	if got := w.Current().LoopCount; got != 7 {
		t.Errorf("Expected Current().LoopCount to reflect the reload, got %d", got)
	}
}

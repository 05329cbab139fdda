package schema

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ha1tch/sqlfix/pkg/log"
)

func TestIsSchemaFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/schemas/sales.xml", true},
		{"/schemas/sales.XML", true},
		{"/schemas/cubes.json", true},
		{"/schemas/cubes.yaml", true},
		{"/schemas/cubes.yml", true},
		{"/schemas/notes.txt", false},
		{"/schemas/sales.xml.bak", false},
		{"/schemas/README", false},
	}

	for _, tt := range tests {
		if got := isSchemaFile(tt.path); got != tt.want {
			t.Errorf("isSchemaFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatcherFlushesOnSchemaChange(t *testing.T) {
	dir := t.TempDir()

	flushed := make(chan []string, 1)
	w, err := NewWatcher(dir, func(paths []string) { flushed <- paths }, log.Nop(),
		WithDebounceDelay(50*time.Millisecond))
	if err != nil {
		t.Fatalf("create watcher: %v", err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Stop()

	if !w.IsRunning() {
		t.Fatal("watcher not running after Start")
	}

	path := filepath.Join(dir, "sales.xml")
	if err := os.WriteFile(path, []byte("<Schema name=\"sales\"/>"), 0o644); err != nil {
		t.Fatalf("write schema file: %v", err)
	}

	select {
	case paths := <-flushed:
		if len(paths) == 0 {
			t.Error("flush callback received no paths")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("flush callback never fired")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()

	flushed := make(chan []string, 1)
	w, err := NewWatcher(dir, func(paths []string) { flushed <- paths }, log.Nop(),
		WithDebounceDelay(50*time.Millisecond))
	if err != nil {
		t.Fatalf("create watcher: %v", err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("scratch"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	select {
	case <-flushed:
		t.Error("flush fired for a non-schema file")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherDebouncesBatches(t *testing.T) {
	dir := t.TempDir()

	flushed := make(chan []string, 4)
	w, err := NewWatcher(dir, func(paths []string) { flushed <- paths }, log.Nop(),
		WithDebounceDelay(200*time.Millisecond))
	if err != nil {
		t.Fatalf("create watcher: %v", err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Stop()

	// A redeploy touches several files in quick succession.
	for _, name := range []string{"sales.xml", "inventory.xml", "finance.xml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("<Schema/>"), 0o644); err != nil {
			t.Fatalf("write schema file: %v", err)
		}
	}

	var total int
	select {
	case paths := <-flushed:
		total = len(paths)
	case <-time.After(3 * time.Second):
		t.Fatal("flush callback never fired")
	}

	// Allow a second batch if the events straddled the debounce window,
	// but all three files must be accounted for in total.
	select {
	case paths := <-flushed:
		total += len(paths)
	case <-time.After(500 * time.Millisecond):
	}

	if total != 3 {
		t.Errorf("flush callbacks reported %d paths, want 3", total)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher(dir, func([]string) {}, log.Nop())
	if err != nil {
		t.Fatalf("create watcher: %v", err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop watcher: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if w.IsRunning() {
		t.Error("watcher still reports running after Stop")
	}
}

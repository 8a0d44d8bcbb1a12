package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherRoutesByExtension(t *testing.T) {
	dir := t.TempDir()
	shaders := filepath.Join(dir, "shaders")
	if err := os.Mkdir(shaders, 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher()
	if err != nil {
		t.Fatal(err)
	}
	changed := make(chan string, 16)
	w.Handle(".SPV", func(path string) { changed <- path })
	if err := w.Start(dir); err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// Files without a handler are ignored.
	if err := os.WriteFile(filepath.Join(shaders, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(shaders, "gradient.spv")
	if err := os.WriteFile(target, []byte{0x03, 0x02, 0x23, 0x07}, 0o644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case path := <-changed:
			if path != target {
				t.Fatalf("handler called for %s", path)
			}
			return
		case <-timeout:
			t.Fatal("no change reported for the shader")
		}
	}
}

func TestWatcherCloseTwice(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

package assets

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
	"github.com/TideSofDarK/RrFramework-sub001/engine/systems"
)

type fakeUploader struct {
	uploaded []*Texture
	released []*graph.Image
}

func (u *fakeUploader) Upload(tex *Texture) (*graph.Image, error) {
	u.uploaded = append(u.uploaded, tex)
	return &graph.Image{
		Name:   tex.Name,
		Format: vk.FormatR8g8b8a8Unorm,
		Width:  tex.Width,
		Height: tex.Height,
	}, nil
}

func (u *fakeUploader) Release(image *graph.Image) {
	u.released = append(u.released, image)
}

func newTestLoader(t *testing.T, queueSize int) (*Loader, *fakeUploader) {
	t.Helper()
	jobs, err := systems.NewJobSystem(2, 8)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { jobs.Shutdown() })

	up := &fakeUploader{}
	l, err := NewLoader(jobs, up, LoaderConfig{QueueSize: queueSize, RetireAfter: 2})
	if err != nil {
		t.Fatal(err)
	}
	return l, up
}

// drainUntil drains like the render loop would until done reports true.
func drainUntil(t *testing.T, l *Loader, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !done() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the loader")
		}
		l.Drain()
		time.Sleep(time.Millisecond)
	}
}

func TestLoaderBatch(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeTestImage(t, dir, "a.png", 4, 4),
		writeTestImage(t, dir, "b.png", 2, 8),
		filepath.Join(dir, "missing.png"),
	}
	// A queue smaller than the batch makes workers wait for drains.
	l, up := newTestLoader(t, 1)

	var done *Batch
	calls := 0
	id, err := l.LoadBatch(paths, func(b *Batch) {
		done = b
		calls++
	})
	if err != nil {
		t.Fatal(err)
	}
	drainUntil(t, l, func() bool { return done != nil })

	if done.ID != id {
		t.Errorf("callback for batch %s, want %s", done.ID, id)
	}
	if len(done.Textures) != 2 || len(done.Errors) != 1 {
		t.Errorf("batch has %d textures and %d errors", len(done.Textures), len(done.Errors))
	}
	if len(up.uploaded) != 2 {
		t.Errorf("uploaded %d textures", len(up.uploaded))
	}
	if img, ok := l.Texture("b"); !ok || img.Width != 2 || img.Height != 8 {
		t.Errorf("texture b = %+v, %t", img, ok)
	}

	l.Drain()
	if calls != 1 {
		t.Errorf("callback fired %d times", calls)
	}
}

func TestLoaderBatchLargerThanQueues(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 6; i++ {
		paths = append(paths, writeTestImage(t, dir, fmt.Sprintf("t%d.png", i), 2, 2))
	}
	// One worker, a job queue of one and a completion queue of one: the
	// batch only finishes if the caller keeps draining.
	jobs, err := systems.NewJobSystem(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer jobs.Shutdown()
	l, err := NewLoader(jobs, &fakeUploader{}, LoaderConfig{QueueSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Shutdown()

	var done *Batch
	started := make(chan error, 1)
	go func() {
		_, err := l.LoadBatch(paths, func(b *Batch) { done = b })
		started <- err
	}()
	select {
	case err := <-started:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("LoadBatch waited on the job queue")
	}

	drainUntil(t, l, func() bool { return done != nil })
	if len(done.Textures) != len(paths) || len(done.Errors) != 0 {
		t.Errorf("batch has %d textures and %d errors", len(done.Textures), len(done.Errors))
	}
}

func TestLoaderBatchAfterShutdown(t *testing.T) {
	l, _ := newTestLoader(t, 1)
	l.Shutdown()
	if _, err := l.LoadBatch([]string{"a.png"}, nil); !errors.Is(err, ErrLoaderClosed) {
		t.Errorf("got %v, want ErrLoaderClosed", err)
	}
}

func TestLoaderReloadRetiresOldImage(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "a.png", 4, 4)
	l, up := newTestLoader(t, 4)

	if err := l.Reload(path); err != nil {
		t.Fatal(err)
	}
	drainUntil(t, l, func() bool { return len(up.uploaded) == 1 })
	first, _ := l.Texture("a")

	if err := l.Reload(path); err != nil {
		t.Fatal(err)
	}
	drainUntil(t, l, func() bool { return len(up.uploaded) == 2 })
	second, _ := l.Texture("a")
	if first == second {
		t.Fatal("reload did not replace the image")
	}
	if len(up.released) != 0 {
		t.Fatal("old image released while frames may still use it")
	}

	l.Drain()
	l.Drain()
	if len(up.released) != 1 || up.released[0] != first {
		t.Errorf("released %v, want the first image", up.released)
	}

	l.Shutdown()
	if len(up.released) != 2 || up.released[1] != second {
		t.Errorf("shutdown released %v", up.released)
	}
	if _, ok := l.Texture("a"); ok {
		t.Error("texture still available after shutdown")
	}
}

func TestLoaderImport(t *testing.T) {
	l, _ := newTestLoader(t, 4)
	path := writeTestImage(t, t.TempDir(), "albedo.png", 4, 4)
	l.Reload(path)
	drainUntil(t, l, func() bool {
		_, ok := l.Texture("albedo")
		return ok
	})

	g := graph.New()
	g.Begin()
	if _, ok := l.Import(g, "unknown"); ok {
		t.Error("imported a texture that was never loaded")
	}
	h, ok := l.Import(g, "albedo")
	if !ok {
		t.Fatal("import failed")
	}
	if st := g.State(h); st.Last.Layout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("imported layout %d", st.Last.Layout)
	}
}

func TestNewLoaderRejectsEmptyQueue(t *testing.T) {
	if _, err := NewLoader(nil, &fakeUploader{}, LoaderConfig{}); err == nil {
		t.Error("zero queue size accepted")
	}
}

package assets

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/TideSofDarK/RrFramework-sub001/engine/containers"
	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
	"github.com/TideSofDarK/RrFramework-sub001/engine/renderer/graph"
	"github.com/TideSofDarK/RrFramework-sub001/engine/systems"
)

var ErrLoaderClosed = errors.New("asset loader is shut down")

// Uploader turns decoded textures into GPU images. Both methods are only
// called from Drain, on the render thread.
type Uploader interface {
	Upload(tex *Texture) (*graph.Image, error)
	Release(image *graph.Image)
}

// Batch is a group of textures requested together. Its callback fires once,
// on the render thread, after every texture was uploaded or failed.
type Batch struct {
	ID       uuid.UUID
	Textures map[string]*graph.Image
	Errors   []error

	pending    int
	onComplete func(*Batch)
}

type completion struct {
	batch   *Batch
	path    string
	texture *Texture
	err     error
}

type retired struct {
	image *graph.Image
	frame uint64
}

type LoaderConfig struct {
	// Size of the completion queue shared by the workers.
	QueueSize int
	// Textures larger than this on either axis are scaled down. Zero keeps
	// the original size.
	MaxTextureSize uint32
	// Drains to wait before a replaced image is released. Must exceed the
	// number of frames in flight.
	RetireAfter uint64
}

// Loader decodes textures on the job system and uploads them from the render
// thread.
type Loader struct {
	jobs     *systems.JobSystem
	uploader Uploader
	config   LoaderConfig

	mu          sync.Mutex
	notFull     *sync.Cond
	completions *containers.RingQueue[completion]
	closed      bool

	// Owned by the render thread.
	textures map[string]*graph.Image
	retiring []retired
	drains   uint64
}

func NewLoader(jobs *systems.JobSystem, uploader Uploader, config LoaderConfig) (*Loader, error) {
	if config.QueueSize < 1 {
		return nil, fmt.Errorf("asset loader needs a queue size of at least 1, got %d", config.QueueSize)
	}
	if config.RetireAfter == 0 {
		config.RetireAfter = 4
	}
	l := &Loader{
		jobs:        jobs,
		uploader:    uploader,
		config:      config,
		completions: containers.NewRingQueue[completion](config.QueueSize),
		textures:    make(map[string]*graph.Image),
	}
	l.notFull = sync.NewCond(&l.mu)
	return l, nil
}

// LoadBatch starts decoding every path and returns without waiting for the
// job queue. onComplete may be nil.
func (l *Loader) LoadBatch(paths []string, onComplete func(*Batch)) (uuid.UUID, error) {
	batch := &Batch{
		ID:         uuid.New(),
		Textures:   make(map[string]*graph.Image, len(paths)),
		pending:    len(paths),
		onComplete: onComplete,
	}
	if len(paths) == 0 {
		return batch.ID, fmt.Errorf("batch %s has no textures", batch.ID)
	}

	if l.isClosed() {
		return batch.ID, ErrLoaderClosed
	}
	if l.jobs.Closed() {
		return batch.ID, systems.ErrJobSystemClosed
	}

	core.LogDebug("loading batch %s with %d textures", batch.ID, len(paths))
	// Submit blocks while the job queue is full and workers block until Drain
	// makes room, so the render thread must never be the one submitting.
	go l.submit(batch, append([]string(nil), paths...))
	return batch.ID, nil
}

func (l *Loader) submit(batch *Batch, paths []string) {
	for i, path := range paths {
		if l.isClosed() {
			return
		}
		path := path
		err := l.jobs.Submit(systems.JobTask{
			Name: "decode " + path,
			Run: func() (any, error) {
				return DecodeTexture(path, l.config.MaxTextureSize)
			},
			OnComplete: func(result any) {
				l.push(completion{batch: batch, path: path, texture: result.(*Texture)})
			},
			OnFailure: func(err error) {
				l.push(completion{batch: batch, path: path, err: err})
			},
		})
		if err != nil {
			// The batch still completes, with an error per texture left.
			for _, rest := range paths[i:] {
				l.push(completion{batch: batch, path: rest, err: fmt.Errorf("failed to queue %s: %w", rest, err)})
			}
			return
		}
	}
}

func (l *Loader) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Reload decodes a single texture again, replacing the current image once
// uploaded.
func (l *Loader) Reload(path string) error {
	_, err := l.LoadBatch([]string{path}, nil)
	return err
}

// push runs on a worker. It waits while the queue is full.
func (l *Loader) push(c completion) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for !l.closed && l.completions.IsFull() {
		l.notFull.Wait()
	}
	if l.closed {
		return
	}
	if err := l.completions.Enqueue(c); err != nil {
		core.LogError("dropping texture %s: %s", c.path, err)
	}
}

func (l *Loader) pop() (completion, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, err := l.completions.Dequeue()
	if err != nil {
		return c, false
	}
	l.notFull.Signal()
	return c, true
}

// Drain uploads every finished texture and fires the callbacks of completed
// batches. Call once per frame from the render thread, before BeginFrame.
// Returns the number of textures processed.
func (l *Loader) Drain() int {
	l.drains++
	l.releaseRetired(false)

	n := 0
	for {
		c, ok := l.pop()
		if !ok {
			break
		}
		n++
		l.complete(c)
	}
	return n
}

func (l *Loader) complete(c completion) {
	batch := c.batch
	if c.err == nil {
		image, err := l.uploader.Upload(c.texture)
		if err != nil {
			c.err = fmt.Errorf("failed to upload %s: %w", c.path, err)
		} else {
			if old, ok := l.textures[c.texture.Name]; ok {
				l.retiring = append(l.retiring, retired{image: old, frame: l.drains})
			}
			l.textures[c.texture.Name] = image
			batch.Textures[c.texture.Name] = image
			core.LogDebug("texture '%s' uploaded (%dx%d %s)", c.texture.Name, c.texture.Width, c.texture.Height, c.texture.Format)
		}
	}
	if c.err != nil {
		core.LogError(c.err.Error())
		batch.Errors = append(batch.Errors, c.err)
	}

	batch.pending--
	if batch.pending == 0 {
		core.LogDebug("batch %s complete: %d textures, %d errors", batch.ID, len(batch.Textures), len(batch.Errors))
		if batch.onComplete != nil {
			batch.onComplete(batch)
		}
	}
}

func (l *Loader) releaseRetired(all bool) {
	kept := l.retiring[:0]
	for _, r := range l.retiring {
		if all || l.drains-r.frame >= l.config.RetireAfter {
			l.uploader.Release(r.image)
			continue
		}
		kept = append(kept, r)
	}
	l.retiring = kept
}

// Texture returns the latest uploaded image with the given name. It sits in
// the shader read-only layout.
func (l *Loader) Texture(name string) (*graph.Image, bool) {
	image, ok := l.textures[name]
	return image, ok
}

// Import registers the named texture in the graph with its upload state.
func (l *Loader) Import(g *graph.Graph, name string) (graph.Handle, bool) {
	image, ok := l.textures[name]
	if !ok {
		return graph.InvalidHandle, false
	}
	return g.Import(image, graph.UsageSampled.ResourceState), true
}

// Shutdown stops the workers from delivering and releases every image. The
// device must be idle.
func (l *Loader) Shutdown() {
	l.mu.Lock()
	l.closed = true
	l.notFull.Broadcast()
	l.mu.Unlock()

	l.releaseRetired(true)
	for name, image := range l.textures {
		l.uploader.Release(image)
		delete(l.textures, name)
	}
}

package assets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

// ChangeHandler is called from the watcher goroutine with the changed path.
type ChangeHandler func(path string)

// Watcher reports created or modified files under a directory tree, routed by
// file extension.
type Watcher struct {
	fsnotify *fsnotify.Watcher
	handlers map[string]ChangeHandler

	mutex    sync.RWMutex
	done     chan struct{}
	stopped  chan struct{}
	isClosed bool
}

func NewWatcher() (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsnotify: fsWatch,
		handlers: make(map[string]ChangeHandler),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Handle registers fn for files ending in ext (".spv", ".png", ...).
func (w *Watcher) Handle(ext string, fn ChangeHandler) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.handlers[strings.ToLower(ext)] = fn
}

// Start watches dir and every directory below it.
func (w *Watcher) Start(dir string) error {
	if err := w.watchRecursive(dir); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return nil
	}
	w.isClosed = true
	w.mutex.Unlock()

	close(w.done)
	<-w.stopped
	return nil
}

func (w *Watcher) run() {
	defer close(w.stopped)
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if e.Op&fsnotify.Create != 0 {
				if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
					if err := w.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
					continue
				}
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.dispatch(e.Name)
			}
			// Can't stat a deleted directory, so try to unwatch it either way.
			if e.Op&fsnotify.Remove != 0 {
				w.fsnotify.Remove(e.Name)
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-w.done:
			w.fsnotify.Close()
			return
		}
	}
}

func (w *Watcher) dispatch(path string) {
	w.mutex.RLock()
	fn, ok := w.handlers[strings.ToLower(filepath.Ext(path))]
	w.mutex.RUnlock()
	if !ok {
		return
	}
	core.LogDebug("asset changed: %s", path)
	fn(path)
}

// watchRecursive adds all directories under the given one to the watch list.
func (w *Watcher) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return w.fsnotify.Add(walkPath)
		}
		return nil
	})
}

package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/TideSofDarK/RrFramework-sub001/engine/core"
)

// JobTask is one unit of work run on a worker goroutine. Callbacks also run
// on the worker; anything touching the renderer must be handed back to the
// render thread.
type JobTask struct {
	Name       string
	Run        func() (any, error)
	OnComplete func(result any)
	OnFailure  func(err error)
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask) {
	result, err := job.Run()
	if err != nil {
		core.LogError("job '%s' failed: %s", job.Name, err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete(result)
	}
}

// Shutdown stops accepting work and waits for the queued jobs to finish.
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}

// Submit queues the job, blocking while the queue is full.
func (js *JobSystem) Submit(jt JobTask) error {
	if jt.Run == nil {
		return fmt.Errorf("job '%s' has nothing to run", jt.Name)
	}
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}

// Closed reports whether Shutdown was called.
func (js *JobSystem) Closed() bool {
	js.mu.RLock()
	defer js.mu.RUnlock()
	return js.closed
}

// AddWorkNonBlocking queues the job from a new goroutine and returns
// immediately.
func (js *JobSystem) AddWorkNonBlocking(jt JobTask) {
	go func() {
		if err := js.Submit(jt); err != nil {
			core.LogWarn("job '%s' dropped: %s", jt.Name, err)
		}
	}()
}

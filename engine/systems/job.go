package systems

import (
	"sync"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

/**
 * @brief Handle to a submitted job. Supports polling and a blocking wait;
 * jobs are never cancelled.
 */
type Task struct {
	name string
	done chan struct{}
	err  error
}

func newTask(name string) *Task {
	return &Task{name: name, done: make(chan struct{})}
}

func (t *Task) Name() string {
	return t.name
}

// IsDone reports whether the job has finished. A nil task is always done.
func (t *Task) IsDone() bool {
	if t == nil {
		return true
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the job has finished and returns its error.
func (t *Task) Wait() error {
	if t == nil {
		return nil
	}
	<-t.done
	return t.err
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

/**
 * @brief Creates a task that no worker runs. It completes when Trigger is
 * called, which lets jobs depend on work done elsewhere (a render command).
 */
func NewEvent(name string) *Task {
	return newTask(name)
}

// Trigger completes an event. It must be called exactly once.
func (t *Task) Trigger(err error) {
	t.finish(err)
}

type queuedJob struct {
	info metadata.JobTask
	task *Task
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan queuedJob
	wg         sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func NewJobSystem(numWorkers int, queueSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, core.ErrNoWorkers
	}
	if queueSize < 0 {
		return nil, core.ErrNegativeQueueSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan queuedJob, queueSize),
	}

	js.start()

	core.LogDebug("job system started with %d workers", numWorkers)
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				err := job.info.OnStart()
				if err != nil {
					core.LogError("job '%s' failed: %s", job.info.Name, err.Error())
					if job.info.OnFailure != nil {
						job.info.OnFailure(err)
					}
				} else if job.info.OnComplete != nil {
					job.info.OnComplete()
				}
				job.task.finish(err)
			}
		}()
	}
}

func (js *JobSystem) NumWorkers() int {
	return js.numWorkers
}

/**
 * @brief Submits the provided job. The job does not start before every task in
 * prereqs has finished, whether they succeeded or not. Never blocks the caller.
 * @returns A handle to wait on.
 */
func (js *JobSystem) Submit(info metadata.JobTask, prereqs ...*Task) *Task {
	task := newTask(info.Name)

	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		core.LogWarn("job '%s' submitted after shutdown", info.Name)
		task.finish(core.ErrJobSystemStopped)
		return task
	}
	js.pending.Add(1)
	js.mu.Unlock()

	job := queuedJob{info: info, task: task}

	if len(prereqs) == 0 {
		select {
		case js.jobQueue <- job:
			js.pending.Done()
			return task
		default:
		}
	}

	// Queue is full or the job has to wait: hand off to a goroutine so the caller never blocks.
	go func() {
		defer js.pending.Done()
		for _, p := range prereqs {
			_ = p.Wait()
		}
		js.jobQueue <- job
	}()
	return task
}

/**
 * @brief Shuts the job system down. Jobs already submitted run to completion.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	js.mu.Unlock()

	js.pending.Wait()
	close(js.jobQueue)
	js.wg.Wait()
	return nil
}

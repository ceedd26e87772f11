package renderer

import (
	"sync"

	"github.com/spaghettifunk/instancer/engine/containers"
	"github.com/spaghettifunk/instancer/engine/core"
)

// RenderCommandFn is the body of a command executed on the render thread.
type RenderCommandFn func(backend RendererBackend)

type renderCommand struct {
	name string
	fn   RenderCommandFn
}

/**
 * @brief An ordered, one-way command channel to a single goroutine that owns
 * the backend. Enqueueing never blocks the producer; the queue grows instead.
 */
type RenderThread struct {
	backend RendererBackend

	mu       sync.Mutex
	cond     *sync.Cond
	queue    *containers.RingQueue[renderCommand]
	stopping bool
	done     chan struct{}

	executed uint64
}

func NewRenderThread(backend RendererBackend, queueSize int) *RenderThread {
	rt := &RenderThread{
		backend: backend,
		queue:   containers.NewRingQueue[renderCommand](queueSize),
		done:    make(chan struct{}),
	}
	rt.cond = sync.NewCond(&rt.mu)
	go rt.loop()
	return rt
}

func (rt *RenderThread) loop() {
	defer close(rt.done)
	for {
		rt.mu.Lock()
		for rt.queue.IsEmpty() && !rt.stopping {
			rt.cond.Wait()
		}
		cmd, err := rt.queue.Dequeue()
		rt.mu.Unlock()
		if err != nil {
			// Empty and stopping.
			return
		}
		cmd.fn(rt.backend)
		rt.mu.Lock()
		rt.executed++
		rt.mu.Unlock()
	}
}

/**
 * @brief Queues fn to run on the render thread after every previously queued command.
 * @returns ErrRenderThreadStopped once Shutdown has been called.
 */
func (rt *RenderThread) EnqueueRenderCommand(name string, fn RenderCommandFn) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.stopping {
		core.LogWarn("render command '%s' dropped, render thread is stopped", name)
		return core.ErrRenderThreadStopped
	}
	rt.queue.EnqueueGrow(renderCommand{name: name, fn: fn})
	rt.cond.Signal()
	return nil
}

/**
 * @brief Blocks until every command queued before the call has executed.
 */
func (rt *RenderThread) Flush() {
	fence := make(chan struct{})
	if err := rt.EnqueueRenderCommand("FlushRenderingCommands", func(RendererBackend) {
		close(fence)
	}); err != nil {
		return
	}
	<-fence
}

/**
 * @brief Number of commands executed so far.
 */
func (rt *RenderThread) Executed() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.executed
}

func (rt *RenderThread) Backend() RendererBackend {
	return rt.backend
}

/**
 * @brief Drains the queue and stops the render thread.
 */
func (rt *RenderThread) Shutdown() error {
	rt.mu.Lock()
	if rt.stopping {
		rt.mu.Unlock()
		<-rt.done
		return nil
	}
	rt.stopping = true
	rt.cond.Broadcast()
	rt.mu.Unlock()
	<-rt.done
	return nil
}

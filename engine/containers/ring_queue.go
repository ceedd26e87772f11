package containers

import "github.com/spaghettifunk/instancer/engine/core"

// RingQueue is a FIFO over a fixed circular buffer. It is not safe for
// concurrent use; owners guard it with their own lock.
type RingQueue[T any] struct {
	data       []T
	size       int
	readIndex  int
	writeIndex int
	count      int
}

// Create a new RingQueue
func NewRingQueue[T any](size int) *RingQueue[T] {
	if size < 1 {
		size = 1
	}
	return &RingQueue[T]{
		data: make([]T, size),
		size: size,
	}
}

// Enqueue adds an element to the queue
func (rq *RingQueue[T]) Enqueue(value T) error {
	if rq.IsFull() {
		return core.ErrQueueFull
	}

	rq.data[rq.writeIndex] = value
	rq.writeIndex = (rq.writeIndex + 1) % rq.size
	rq.count++
	return nil
}

// EnqueueGrow adds an element, doubling the buffer first when it is full.
func (rq *RingQueue[T]) EnqueueGrow(value T) {
	if rq.IsFull() {
		rq.Grow(rq.size * 2)
	}
	// cannot fail after growing
	_ = rq.Enqueue(value)
}

// Dequeue removes and returns the front element in the queue
func (rq *RingQueue[T]) Dequeue() (T, error) {
	var zero T
	if rq.IsEmpty() {
		return zero, core.ErrQueueEmpty
	}

	value := rq.data[rq.readIndex]
	// drop the reference so the GC can reclaim it
	rq.data[rq.readIndex] = zero
	rq.readIndex = (rq.readIndex + 1) % rq.size
	rq.count--
	return value, nil
}

// Peek returns the front element without removing it
func (rq *RingQueue[T]) Peek() (T, error) {
	var zero T
	if rq.IsEmpty() {
		return zero, core.ErrQueueEmpty
	}
	return rq.data[rq.readIndex], nil
}

// Grow reallocates the buffer to newSize, keeping the queued elements in order.
// Sizes not larger than the current one are ignored.
func (rq *RingQueue[T]) Grow(newSize int) {
	if newSize <= rq.size {
		return
	}
	data := make([]T, newSize)
	for i := 0; i < rq.count; i++ {
		data[i] = rq.data[(rq.readIndex+i)%rq.size]
	}
	rq.data = data
	rq.size = newSize
	rq.readIndex = 0
	rq.writeIndex = rq.count
}

// Len returns the number of queued elements
func (rq *RingQueue[T]) Len() int {
	return rq.count
}

// Cap returns the buffer size
func (rq *RingQueue[T]) Cap() int {
	return rq.size
}

// IsEmpty checks if the queue is empty
func (rq *RingQueue[T]) IsEmpty() bool {
	return rq.count == 0
}

// IsFull checks if the queue is full
func (rq *RingQueue[T]) IsFull() bool {
	return rq.count == rq.size
}

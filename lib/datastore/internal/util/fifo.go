package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is a single element of the linked list
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// FIFO is an unbounded multi-producer single-consumer queue.
// Producers append with atomic operations on a linked list, a single internal goroutine
// hands the items to the consumer through the Recv() channel.
//
// Items pushed by one goroutine (or by several goroutines whose Push calls are serialized,
// e.g. by a mutex) are received in exactly the order they were pushed. Concurrent pushes
// are ordered by the moment their append succeeds.
type FIFO[T any] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan *T
	consumer sync.WaitGroup
	closed   atomic.Bool

	// wakes the forwarding goroutine
	mu   sync.Mutex
	cond *sync.Cond
}

// NewFIFO creates a new queue and starts its forwarding goroutine.
// The goroutine exits after Close once all pending items have been received.
func NewFIFO[T any]() *FIFO[T] {
	sentinel := &node[T]{}

	q := &FIFO[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.forward()

	return q
}

// Push appends an item to the queue.
// Returns false if the item is nil or the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *FIFO[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()

		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// may fail if another producer already advanced the tail, which is fine
				q.tail.CompareAndSwap(tailNode, newNode)
				q.signal()
				return true
			}
		} else {
			// another producer appended but has not moved the tail yet, help it
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin first, then yield under contention
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// signal wakes the forwarding goroutine. The lock is taken so that a wakeup
// between its emptiness check and cond.Wait() cannot get lost.
func (q *FIFO[T]) signal() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// forward moves items from the linked list to the output channel
func (q *FIFO[T]) forward() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		head := q.head.Load()
		next := head.next.Load()

		if next != nil {
			value := next.value
			q.head.Store(next)
			q.out <- value
			next.value = nil // release for the gc
			continue
		}

		if q.closed.Load() {
			return
		}

		q.mu.Lock()
		if q.head.Load().next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}

// Recv returns the channel the consumer reads items from.
// The channel is closed after Close once every pending item was received.
func (q *FIFO[T]) Recv() <-chan *T {
	return q.out
}

// Close prevents further pushes. Items already in the queue are still delivered.
func (q *FIFO[T]) Close() {
	q.closed.Store(true)
	q.signal()
}

// IsClosed returns true if the queue is closed.
func (q *FIFO[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate number of items waiting in the queue.
// This is O(n) and should only be used for debugging.
func (q *FIFO[T]) Len() int {
	count := 0
	for current := q.head.Load().next.Load(); current != nil; current = current.next.Load() {
		count++
	}
	return count
}

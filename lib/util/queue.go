// Package util provides a lock-free Multi-Producer Single-Consumer (MPSC) queue implementation.
//
// Features and Guarantees:
//
//   - Lock-Free: producers only use atomic operations, so Push never blocks, even
//     when called from a goroutine that holds the store lock
//   - Unbounded Size: the queue can grow to any size as needed, limited only by available memory
//   - Pull Based: the single consumer drains the queue with Pop whenever it wants,
//     optionally waiting on the Notify channel
//   - FIFO per Producer: values pushed by one goroutine are popped in push order.
//     Under concurrent Push() operations, the interleaving between producers is
//     determined by which producer completes its operation first
package util

import (
	"runtime"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Queue is a lock-free multi-producer single-consumer queue.
// Implementation uses a linked list of nodes with a sentinel head and
// atomic operations for concurrent push operations without locks.
type Queue[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	size   atomic.Int64
	notify chan struct{}
}

// NewQueue creates a new empty queue
func NewQueue[T any]() *Queue[T] {
	// Create a sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &Queue[T]{
		notify: make(chan struct{}, 1),
	}

	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	return q
}

// Push appends a value to the queue and wakes up a consumer waiting on Notify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *Queue[T]) Push(value T) {
	newNode := &node[T]{value: value}

	var backoff uint8 = 0
	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			// the tail has no next node yet, try to append our node
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// CAS may fail if another producer already moved the tail, that's fine
				q.tail.CompareAndSwap(tailNode, newNode)
				q.size.Add(1)
				q.signal()
				return
			}
		} else {
			// help a producer that appended a node but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin a little at low contention, yield afterwards
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Pop removes and returns the oldest value. The boolean is false if the queue is empty.
//
// Thread-safety: only one goroutine may call Pop at a time.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T

	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return zero, false
	}

	value := next.value

	// the popped node becomes the new sentinel
	q.head.Store(next)
	next.value = zero
	q.size.Add(-1)

	return value, true
}

// Notify returns a channel that receives a value after Push.
// Several pushes may be coalesced into a single notification, so consumers
// must drain the queue with Pop until it is empty after every wake up.
func (q *Queue[T]) Notify() <-chan struct{} {
	return q.notify
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	return int(q.size.Load())
}

// signal wakes up the consumer without blocking the producer
func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

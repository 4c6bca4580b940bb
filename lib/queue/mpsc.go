package queue

import (
	"runtime"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// MPSC is a lock-free multi-producer single-consumer queue.
// The implementation is a linked list with a sentinel head node.
type MPSC[T any] struct {
	head   atomic.Pointer[node[T]] // sentinel, owned by the consumer
	tail   atomic.Pointer[node[T]]
	closed atomic.Bool
	length atomic.Int64
}

// NewMPSC creates an empty queue
func NewMPSC[T any]() *MPSC[T] {
	sentinel := &node[T]{}
	q := &MPSC[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *MPSC[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// another producer may already have moved the tail, that is fine
				q.tail.CompareAndSwap(tailNode, newNode)
				q.length.Add(1)
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin while contention is low, yield once it grows
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// TryPop removes the oldest item. It reports false if the queue is empty.
func (q *MPSC[T]) TryPop() (T, bool) {
	var zero T
	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return zero, false
	}

	value := next.value
	q.head.Store(next)
	next.value = zero // the node is the new sentinel, drop the reference for the gc
	q.length.Add(-1)
	return value, true
}

// Drain pops items until the queue is empty or fn returns false.
// It returns the number of items handed to fn.
func (q *MPSC[T]) Drain(fn func(T) bool) int {
	n := 0
	for {
		v, ok := q.TryPop()
		if !ok {
			return n
		}
		n++
		if !fn(v) {
			return n
		}
	}
}

// Close prevents further pushes. Items already queued can still be popped.
func (q *MPSC[T]) Close() {
	q.closed.Store(true)
}

// IsClosed returns true if the queue is closed.
func (q *MPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate count of the queued items
func (q *MPSC[T]) Len() int {
	return int(q.length.Load())
}

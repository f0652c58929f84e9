package util

import (
	"runtime"
	"sync/atomic"
)

// node is a single link of the intake list
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue.
// Producers append to a linked list with CAS, a single forwarding goroutine
// moves the items into the channel returned by Recv().
//
// Items pushed by one goroutine are delivered in push order. Items pushed by
// different goroutines are delivered in the order their appends succeeded.
type LockFreeMPSC[T any] struct {
	head atomic.Pointer[node[T]]
	tail atomic.Pointer[node[T]]
	out  chan *T

	closed atomic.Bool

	// notify has capacity one, so a wake-up sent while the consumer is busy is never lost
	notify chan struct{}
}

// NewLockFreeMPSC creates a new queue and starts its forwarding goroutine.
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out:    make(chan *T),
		notify: make(chan struct{}, 1),
	}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.forward()

	return q
}

// --------------------------------------------------------------------------
// Producer side
// --------------------------------------------------------------------------

// Push appends an item to the queue.
// Returns false if the item is nil or the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	n := &node[T]{value: value}
	var backoff uint8

	for {
		tail := q.tail.Load()
		next := tail.next.Load()

		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// a failed CAS here means another producer already advanced the tail
				q.tail.CompareAndSwap(tail, n)
				q.wake()
				return true
			}
		} else {
			// another producer appended but has not moved the tail yet, help it
			q.tail.CompareAndSwap(tail, next)
		}

		// spin a little at low contention, yield at high contention
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// wake signals the forwarding goroutine without blocking
func (q *LockFreeMPSC[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// --------------------------------------------------------------------------
// Consumer side
// --------------------------------------------------------------------------

// forward moves items from the linked list into the output channel
func (q *LockFreeMPSC[T]) forward() {
	defer close(q.out)

	for {
		drained := true

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			drained = false

			value := next.value
			q.head.Store(next)
			q.out <- value

			// the old head is unreachable now, drop the value reference for the gc
			next.value = nil
		}

		if drained {
			if q.closed.Load() && q.head.Load().next.Load() == nil {
				return
			}
			<-q.notify
		}
	}
}

// Recv returns the channel the items are delivered on.
// The channel is closed once the queue is closed and all items were delivered.
func (q *LockFreeMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close stops accepting new items. Items already pushed are still delivered.
// A Push racing with Close may be dropped, callers that need every accepted
// item delivered must order their last Push before Close.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)
	q.wake()
}

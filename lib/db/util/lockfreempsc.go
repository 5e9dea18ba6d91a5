// Package util provides a lock-free Multi-Producer Single-Consumer (MPSC) queue implementation.
//
// Features and Guarantees:
//
//   - Lock-Free writes: producers append with atomic operations only, the mutex is used to wake the consumer
//   - Unbounded Size: Push never blocks, the queue grows as needed, limited only by available memory
//   - Thread-Safe writes: Allows any number of goroutines to safely Push() concurrently
//   - Single Consumer: one internal goroutine moves values into the Recv() channel, any number
//     of goroutines may receive from that channel
//   - Drain on Close: values pushed before Close() are still delivered, then Recv() is closed
//   - No Strict FIFO Guarantee across producers: under concurrent Push() operations the order is
//     determined by which producer completes its append first. Values of a single producer keep their order.
package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T interface{}] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue
// Implementation uses a linked list of nodes with atomic operations
// for concurrent push operations without locks
type LockFreeMPSC[T interface{}] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan *T
	consumer sync.WaitGroup
	closed   atomic.Bool

	// wakes the consumer when it is idle
	mu   sync.Mutex
	cond *sync.Cond
}

// NewLockFreeMPSC creates a new lock-free multi-producer single-consumer queue
func NewLockFreeMPSC[T interface{}]() *LockFreeMPSC[T] {
	// sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)

	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the queue is closed or value is nil.
//
// Push racing with Close may still succeed, callers that need a hard cut-off
// have to serialize Push and Close themselves (see pool.Pool).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}

	var backoff uint8 = 0
	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// CAS may fail if another producer already moved the tail, that's fine
				q.tail.CompareAndSwap(tailNode, newNode)
				q.wake()
				return true
			}
		} else {
			// help a producer that appended but has not moved the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 exponential backoff under contention:
		  - few retries: spin with Gosched to avoid scheduling overhead
		  - afterwards: yield once per retry
		*/
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// wake signals the consumer. The mutex is taken so the signal can't fall between
// the consumers emptiness check and its call to Wait().
func (q *LockFreeMPSC[T]) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// consume continuously sends items from the linked list to the output channel and frees memory
func (q *LockFreeMPSC[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			hasItems = true

			value := next.value
			q.head.Store(next)
			q.out <- value

			// help go gc - safe to clear after sending
			next.value = nil
		}

		if !hasItems && q.closed.Load() {
			return
		}

		if !hasItems {
			q.mu.Lock()
			// double-check after acquiring the lock
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns a receive-only channel for consuming from the queue.
// The channel is closed after Close() once all pending items are delivered.
func (q *LockFreeMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close closes the queue, preventing further writes.
// Any items already in the queue will still be delivered to the consumer.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)
	q.wake()
}

// Wait blocks until the queue is closed and every item was handed to a receiver.
func (q *LockFreeMPSC[T]) Wait() {
	q.consumer.Wait()
}

// IsClosed returns true if the queue is closed.
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate count of the number of items in the queue.
// This is O(n) and should only be used for debugging.
func (q *LockFreeMPSC[T]) Len() int {
	count := 0
	current := q.head.Load()
	for {
		next := current.next.Load()
		if next == nil {
			break
		}
		count++
		current = next
	}
	return count
}

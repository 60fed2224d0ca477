package cq

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Event is a single completion: the tag handed to the transport when the operation
// was requested and whether the operation succeeded.
type Event struct {
	Tag any
	OK  bool
}

// node represents a single element in the queue
type node struct {
	event Event
	next  atomic.Pointer[node]
}

// CompletionQueue is a lock-free multi-producer single-consumer queue of completion events.
// Implementation uses a linked list of nodes with atomic operations for concurrent
// pushes from transport goroutines, and a single consumer goroutine that feeds the
// channel returned by Recv.
type CompletionQueue struct {
	head     atomic.Pointer[node]
	tail     atomic.Pointer[node]
	out      chan Event
	consumer sync.WaitGroup
	closed   atomic.Bool

	// pushed and delivered count the events for debugging and metrics
	pushed    atomic.Uint64
	delivered atomic.Uint64

	// Condition variable for efficient waiting
	mu   sync.Mutex
	cond *sync.Cond
}

// New creates a new completion queue
func New() *CompletionQueue {
	// Create a sentinel node (dummy node at the beginning)
	sentinel := &node{}

	q := &CompletionQueue{
		out: make(chan Event),
	}

	// Initialize condition variable
	q.cond = sync.NewCond(&q.mu)

	// Set the initial head and tail to the sentinel node
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push posts a completion event to the queue.
// Returns true if the event was added, or false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *CompletionQueue) Push(ev Event) bool {
	if q.closed.Load() {
		return false
	}

	newNode := &node{event: ev}

	var backoff uint8 = 0

	for {
		tailNode := q.tail.Load()

		// try to atomically append our node to the current tail
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				/*
				 Successfully appended, now try to update tail
				 Note: CAS may fail if another producer helps update tail,
				 but that's okay - tail will still be updated eventually
				*/
				q.tail.CompareAndSwap(tailNode, newNode)
				q.pushed.Add(1)

				// Signal the consumer while holding the lock, an unlocked signal can
				// fire between the consumer's empty check and its Wait
				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()

				return true
			}
		} else {
			// help update the tail pointer if another producer has already appended a node but hasn't updated the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin at low contention, yield afterwards
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume continuously sends events from the linked list to the output channel and frees memory
func (q *CompletionQueue) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()

			if next == nil {
				break // No more items available
			}

			hasItems = true

			// Capture value before updating pointers
			ev := next.event

			// move head pointer (free up memory)
			q.head.Store(next)

			q.out <- ev
			q.delivered.Add(1)

			// help go gc - safe to clear after sending
			next.event = Event{}
		}

		// Exit if closed and no more items
		if !hasItems && q.closed.Load() {
			return
		}

		// If no items were processed, wait for signal
		if !hasItems {
			q.mu.Lock()
			// Double-check condition after acquiring lock
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Next blocks until the next completion event is available.
// It returns false once the queue is closed and fully drained.
func (q *CompletionQueue) Next() (Event, bool) {
	ev, ok := <-q.out
	return ev, ok
}

// Recv returns a receive-only channel for consuming from the queue.
// This allows the queue to be used with the '<-' operator in select statements.
func (q *CompletionQueue) Recv() <-chan Event {
	return q.out
}

// Close closes the queue, preventing further pushes.
// Any events already in the queue will still be delivered to the consumer.
func (q *CompletionQueue) Close() {
	q.closed.Store(true)

	// Wake up the consumer if it's waiting
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// IsClosed returns true if the queue is closed.
func (q *CompletionQueue) IsClosed() bool {
	return q.closed.Load()
}

// Pending returns the number of events pushed but not yet handed to the consumer
func (q *CompletionQueue) Pending() uint64 {
	return q.pushed.Load() - q.delivered.Load()
}

// Len returns an approximate count of the number of events in the queue.
// This is O(n) and should only be used for debugging.
func (q *CompletionQueue) Len() int {
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

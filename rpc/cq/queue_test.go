package cq

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

// TestBasicOperations tests basic push and consume functionality
func TestBasicOperations(t *testing.T) {
	q := New()
	defer q.Close()

	// Push 10 events
	for i := 0; i < 10; i++ {
		if !q.Push(Event{Tag: i, OK: i%2 == 0}) {
			t.Fatalf("Failed to push event %d", i)
		}
	}

	// Consume 10 events
	for i := 0; i < 10; i++ {
		select {
		case ev := <-q.Recv():
			if ev.Tag != i || ev.OK != (i%2 == 0) {
				t.Errorf("Expected {%d %v}, got %+v", i, i%2 == 0, ev)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for event %d", i)
		}
	}

	// Make sure queue is empty
	select {
	case ev := <-q.Recv():
		t.Errorf("Queue should be empty, but got %+v", ev)
	case <-time.After(10 * time.Millisecond):
		// Expected timeout, queue is empty
	}

	if p := q.Pending(); p != 0 {
		t.Errorf("Pending() = %d, want 0", p)
	}
}

// TestConcurrentProducers verifies the queue works correctly with multiple producers
func TestConcurrentProducers(t *testing.T) {
	q := New()
	defer q.Close()

	const numProducers = 10
	const eventsPerProducer = 1000
	totalEvents := numProducers * eventsPerProducer

	received := make(map[int]bool)
	done := make(chan struct{})

	go func() {
		defer close(done)

		for len(received) < totalEvents {
			select {
			case ev := <-q.Recv():
				id, ok := ev.Tag.(int)
				if !ok {
					t.Errorf("Received event with unexpected tag %v", ev.Tag)
					return
				}
				if received[id] {
					t.Errorf("Duplicate event received: %d", id)
				}
				received[id] = true
			case <-time.After(2 * time.Second):
				t.Errorf("Timeout waiting for events, received %d of %d", len(received), totalEvents)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(numProducers)

	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer wg.Done()

			base := producerID * eventsPerProducer
			for i := 0; i < eventsPerProducer; i++ {
				if !q.Push(Event{Tag: base + i, OK: true}) {
					t.Errorf("Producer %d failed to push event %d", producerID, i)
				}
				if i%100 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}

	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Timeout waiting for consumer to finish")
	}

	if len(received) != totalEvents {
		t.Errorf("Expected %d events, got %d", totalEvents, len(received))
	}
}

// TestCloseQueue verifies that a closed queue rejects pushes but still drains
func TestCloseQueue(t *testing.T) {
	q := New()

	for i := 0; i < 5; i++ {
		q.Push(Event{Tag: i, OK: true})
	}

	q.Close()

	if !q.IsClosed() {
		t.Error("IsClosed() = false after Close()")
	}
	if q.Push(Event{Tag: 100}) {
		t.Error("Should not be able to push after queue is closed")
	}

	for i := 0; i < 5; i++ {
		ev, ok := q.Next()
		if !ok {
			t.Fatalf("Next() returned false before queue was drained (event %d)", i)
		}
		if ev.Tag != i {
			t.Errorf("Expected %d, got %v", i, ev.Tag)
		}
	}

	// Next reports false once the queue is closed and drained
	done := make(chan bool)
	go func() {
		_, ok := q.Next()
		done <- ok
	}()
	select {
	case ok := <-done:
		if ok {
			t.Error("Next() = true on a closed and drained queue")
		}
	case <-time.After(time.Second):
		t.Fatal("Next() blocked on a closed and drained queue")
	}
}

// TestCloseWakesConsumer verifies that a blocked Next returns when the queue is closed
func TestCloseWakesConsumer(t *testing.T) {
	q := New()

	done := make(chan bool)
	go func() {
		_, ok := q.Next()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Next() = true after Close() on an empty queue")
		}
	case <-time.After(time.Second):
		t.Fatal("Close() did not wake the blocked consumer")
	}
}

// TestOrderingSingleProducer tests that a single producer's events arrive in order
func TestOrderingSingleProducer(t *testing.T) {
	q := New()
	defer q.Close()

	const eventCount = 10000
	go func() {
		for i := 0; i < eventCount; i++ {
			q.Push(Event{Tag: i, OK: true})
		}
	}()

	prev := -1
	for i := 0; i < eventCount; i++ {
		select {
		case ev := <-q.Recv():
			current := ev.Tag.(int)
			if current != prev+1 {
				t.Fatalf("Event out of order: got %d after %d", current, prev)
			}
			prev = current
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for event %d", i)
		}
	}
}

// TestLen tests the approximate length of a queue without a reader
func TestLen(t *testing.T) {
	q := New()
	defer q.Close()

	for i := 0; i < 3; i++ {
		q.Push(Event{Tag: i})
	}

	// the consumer goroutine holds at most one event while waiting for a reader
	deadline := time.Now().Add(time.Second)
	for q.Len() > 2 && time.Now().Before(deadline) {
		runtime.Gosched()
	}
	if l := q.Len(); l != 2 {
		t.Errorf("Len() = %d, want 2", l)
	}
}

// BenchmarkMultiProducer benchmarks the queue with multiple producers
func BenchmarkMultiProducer(b *testing.B) {
	q := New()
	defer q.Close()

	go func() {
		for range q.Recv() {
		}
	}()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			q.Push(Event{Tag: i, OK: true})
			i++
		}
	})
}

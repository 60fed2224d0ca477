// Package cq provides the completion queue that connects the transports to the
// worker threads of a server.
//
// A transport never calls into user code. Every asynchronous operation it accepts
// (accept a call, read a message, write a message, finish a call) is completed by
// pushing an Event onto the queue the operation was requested on. The Event carries
// the opaque tag given at request time and whether the operation succeeded.
//
// The queue is a lock-free Multi-Producer Single-Consumer linked list: any number
// of transport goroutines push concurrently, a single consumer goroutine feeds the
// channel that the owning worker reads with Next or Recv.
//
// Close stops further pushes. Events already queued are still delivered, after
// that Next returns false.
package cq

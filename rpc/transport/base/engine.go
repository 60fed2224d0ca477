package base

import (
	"github.com/ValentinKolb/cqrpc/rpc/cq"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"google.golang.org/grpc/codes"
	"sync"
)

// pendingAccept is an accept requested by a worker that was not matched with a call yet
type pendingAccept struct {
	q    *cq.CompletionQueue
	slot *transport.AcceptSlot
	tag  any
}

// acceptQueue holds the pending accepts and the unmatched calls of one method.
// At most one of both lists is non-empty.
type acceptQueue struct {
	accepts []pendingAccept
	backlog []*serverStream
}

// acceptEngine matches inbound calls with the accepts requested per method
type acceptEngine struct {
	mu      sync.Mutex
	methods map[string]*acceptQueue
	closed  bool
}

// newAcceptEngine creates a new accept engine without any known method
func newAcceptEngine() *acceptEngine {
	return &acceptEngine{methods: make(map[string]*acceptQueue)}
}

// methodKey returns the name of a method as sent in the open frame
func methodKey(service, method string) string {
	return service + "/" + method
}

// request registers an accept for a method. If a call is already waiting, it is
// delivered immediately. After shutdown the accept fails.
func (e *acceptEngine) request(q *cq.CompletionQueue, service, method string, slot *transport.AcceptSlot, tag any) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		q.Push(cq.Event{Tag: tag, OK: false})
		return
	}

	key := methodKey(service, method)
	aq, ok := e.methods[key]
	if !ok {
		aq = &acceptQueue{}
		e.methods[key] = aq
	}

	for len(aq.backlog) > 0 {
		s := aq.backlog[0]
		aq.backlog[0] = nil
		aq.backlog = aq.backlog[1:]

		// skip calls that failed while waiting
		if s.bind(q) {
			e.mu.Unlock()
			slot.Stream = s
			s.complete(tag, true)
			return
		}
	}

	aq.accepts = append(aq.accepts, pendingAccept{q: q, slot: slot, tag: tag})
	e.mu.Unlock()
}

// offer hands a newly opened call to a pending accept or queues it until one is requested.
// It returns codes.Unimplemented if no accept was ever requested for the method and
// codes.Unavailable after shutdown.
func (e *acceptEngine) offer(s *serverStream) codes.Code {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return codes.Unavailable
	}

	aq, ok := e.methods[s.method]
	if !ok {
		e.mu.Unlock()
		return codes.Unimplemented
	}

	if len(aq.accepts) > 0 && s.bind(aq.accepts[0].q) {
		pa := aq.accepts[0]
		aq.accepts[0] = pendingAccept{}
		aq.accepts = aq.accepts[1:]
		e.mu.Unlock()

		pa.slot.Stream = s
		s.complete(pa.tag, true)
		return codes.OK
	}

	aq.backlog = append(aq.backlog, s)
	e.mu.Unlock()
	return codes.OK
}

// shutdown fails all pending accepts, later requests fail immediately
func (e *acceptEngine) shutdown() {
	e.mu.Lock()
	e.closed = true
	var failed []pendingAccept
	for _, aq := range e.methods {
		failed = append(failed, aq.accepts...)
		aq.accepts = nil
		aq.backlog = nil
	}
	e.mu.Unlock()

	for _, pa := range failed {
		pa.q.Push(cq.Event{Tag: pa.tag, OK: false})
	}
}

// pending returns the number of pending accepts and waiting calls over all methods
func (e *acceptEngine) pending() (accepts int, backlog int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, aq := range e.methods {
		accepts += len(aq.accepts)
		backlog += len(aq.backlog)
	}
	return accepts, backlog
}

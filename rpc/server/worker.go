package server

import (
	"github.com/ValentinKolb/cqrpc/rpc/cq"
	"sync/atomic"
)

// worker owns one completion queue and drives the calls whose operations complete on it.
// Handler callbacks run on the worker goroutine.
type worker struct {
	id     int
	server *Server
	q      *cq.CompletionQueue
	events atomic.Uint64
}

// newWorker creates a worker with its own completion queue
func newWorker(s *Server, id int) *worker {
	return &worker{
		id:     id,
		server: s,
		q:      cq.New(),
	}
}

// armAll requests one accept per registered method
func (w *worker) armAll() {
	for _, desc := range w.server.methods {
		newCall(w.server, w, desc).arm()
	}
}

// run processes completions until the queue is closed and drained
func (w *worker) run() error {
	Logger.Debugf("Worker %d started", w.id)
	for {
		ev, ok := w.q.Next()
		if !ok {
			Logger.Debugf("Worker %d stopped after %d events", w.id, w.events.Load())
			return nil
		}
		w.events.Add(1)
		w.dispatch(ev)
	}
}

// dispatch hands a completion to the call it belongs to
func (w *worker) dispatch(ev cq.Event) {
	ce, ok := ev.Tag.(*callEvent)
	if !ok {
		Logger.Errorf("Worker %d received completion with unknown tag %T", w.id, ev.Tag)
		return
	}
	c := ce.call

	switch ce.op {
	case opAccept:
		if !ev.OK {
			// the transport shut down, the call never had a peer
			c.mu.Lock()
			c.pending = opNone
			c.state = StateDone
			c.mu.Unlock()
			return
		}

		// keep one accept outstanding per method on this queue
		if !w.server.stopping.Load() {
			newCall(w.server, w, c.desc).arm()
		}
		c.onAccept()
	case opRead:
		c.onRead(ev.OK)
	case opWrite:
		c.onWrite(ev.OK)
	case opFinish:
		c.onFinish(ev.OK)
	case opCancel:
		c.onCancel()
	default:
		Logger.Errorf("Worker %d received completion for unknown operation %v", w.id, ce.op)
	}
}

package base

import (
	"context"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/cq"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"sync"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Operation Accounting
// --------------------------------------------------------------------------

// opStats tracks the operation accounting of a server transport (see transport.Stats)
type opStats struct {
	streams        atomic.Uint64
	maxOutstanding atomic.Int64
	violations     atomic.Uint64
}

// observe records the number of operations currently outstanding on one stream
func (s *opStats) observe(outstanding int64) {
	for {
		current := s.maxOutstanding.Load()
		if outstanding <= current || s.maxOutstanding.CompareAndSwap(current, outstanding) {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Server Stream
// --------------------------------------------------------------------------

// pendingRead is a read waiting for the next inbound message
type pendingRead struct {
	dst *transport.ReadResult
	tag any
}

// serverStream implements transport.IServerStream for one call on a connection.
// Inbound messages that arrive before a read is requested are buffered in order.
type serverStream struct {
	id     uint64
	method string
	conn   *serverConn
	stats  *opStats
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	q           *cq.CompletionQueue
	inbound     [][]byte
	read        *pendingRead
	outstanding int64
	halfClosed  bool
	finished    bool
	failed      bool
}

// newServerStream creates a new stream for the call id of the given connection
func newServerStream(conn *serverConn, id uint64, method string) *serverStream {
	ctx, cancel := context.WithCancel(conn.t.ctx)
	return &serverStream{
		id:     id,
		method: method,
		conn:   conn,
		stats:  &conn.t.stats,
		ctx:    ctx,
		cancel: cancel,
	}
}

// bind attaches the stream to the completion queue of the accept it was matched with.
// The accept counts as the first outstanding operation. Returns false if the stream already failed.
func (s *serverStream) bind(q *cq.CompletionQueue) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return false
	}
	s.q = q
	s.beginLocked()
	return true
}

// beginLocked accounts for a newly requested operation, s.mu must be held
func (s *serverStream) beginLocked() {
	s.outstanding++
	s.stats.observe(s.outstanding)
	if s.outstanding > 1 {
		s.stats.violations.Add(1)
		Logger.Warningf("Call %d (%s) has %d outstanding operations", s.id, s.method, s.outstanding)
	}
}

// complete ends an outstanding operation and posts its completion.
// The operation is no longer counted once the event is visible to the worker.
func (s *serverStream) complete(tag any, ok bool) {
	s.mu.Lock()
	s.outstanding--
	q := s.q
	s.mu.Unlock()

	if !q.Push(cq.Event{Tag: tag, OK: ok}) {
		Logger.Debugf("Dropping completion for call %d (%s), queue closed", s.id, s.method)
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerStream)
// --------------------------------------------------------------------------

func (s *serverStream) RequestRead(dst *transport.ReadResult, tag any) {
	s.mu.Lock()
	s.beginLocked()

	switch {
	case s.failed:
		s.mu.Unlock()
		s.complete(tag, false)
	case len(s.inbound) > 0:
		dst.Data, dst.EOF = s.inbound[0], false
		s.inbound[0] = nil
		s.inbound = s.inbound[1:]
		s.mu.Unlock()
		s.complete(tag, true)
	case s.halfClosed:
		dst.Data, dst.EOF = nil, true
		s.mu.Unlock()
		s.complete(tag, true)
	default:
		s.read = &pendingRead{dst: dst, tag: tag}
		s.mu.Unlock()
	}
}

func (s *serverStream) RequestWrite(data []byte, tag any) {
	s.mu.Lock()
	s.beginLocked()
	if s.failed || s.finished {
		s.mu.Unlock()
		s.complete(tag, false)
		return
	}
	s.mu.Unlock()

	// writes of one stream never overlap, the next one is requested after this completion
	go func() {
		err := s.conn.write(Frame{CallID: s.id, Type: FrameMessage, Payload: data})
		if err != nil {
			s.fail()
		}
		s.complete(tag, err == nil)
	}()
}

func (s *serverStream) RequestFinish(status common.Status, tag any) {
	s.mu.Lock()
	s.beginLocked()
	if s.failed || s.finished {
		s.mu.Unlock()
		s.complete(tag, false)
		return
	}
	s.finished = true
	s.inbound = nil
	s.mu.Unlock()

	// frames arriving after the status are dropped
	s.conn.removeStream(s)

	go func() {
		err := s.conn.write(Frame{CallID: s.id, Type: FrameStatus, Payload: encodeStatus(status)})
		s.cancel()
		s.complete(tag, err == nil)
	}()
}

func (s *serverStream) Context() context.Context {
	return s.ctx
}

func (s *serverStream) Peer() string {
	return s.conn.conn.RemoteAddr()
}

// --------------------------------------------------------------------------
// Inbound Events (called by the connection read loop)
// --------------------------------------------------------------------------

// onMessage delivers one inbound message to a pending read or buffers it
func (s *serverStream) onMessage(data []byte) {
	s.mu.Lock()
	if s.failed || s.finished || s.halfClosed {
		s.mu.Unlock()
		Logger.Debugf("Dropping message for call %d (%s)", s.id, s.method)
		return
	}

	if r := s.read; r != nil {
		s.read = nil
		r.dst.Data, r.dst.EOF = data, false
		s.mu.Unlock()
		s.complete(r.tag, true)
		return
	}

	s.inbound = append(s.inbound, data)
	s.mu.Unlock()
}

// onHalfClose marks the end of the inbound messages
func (s *serverStream) onHalfClose() {
	s.mu.Lock()
	if s.failed || s.finished || s.halfClosed {
		s.mu.Unlock()
		return
	}
	s.halfClosed = true

	if r := s.read; r != nil && len(s.inbound) == 0 {
		s.read = nil
		r.dst.Data, r.dst.EOF = nil, true
		s.mu.Unlock()
		s.complete(r.tag, true)
		return
	}
	s.mu.Unlock()
}

// fail marks the stream as failed (peer cancelled or connection lost) and fails a pending read
func (s *serverStream) fail() {
	s.mu.Lock()
	if s.failed || s.finished {
		s.mu.Unlock()
		return
	}
	s.failed = true
	s.inbound = nil
	r := s.read
	s.read = nil
	s.mu.Unlock()

	s.cancel()
	if r != nil {
		s.complete(r.tag, false)
	}
}

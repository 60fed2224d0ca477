package base

import (
	"bytes"
	"errors"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/cq"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"github.com/kylelemons/godebug/pretty"
	"github.com/puzpuzpuz/xsync/v3"
	"google.golang.org/grpc/codes"
	"io"
	"sync"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Test Helper
// --------------------------------------------------------------------------

// recordingConn is a FrameConn that records all written frames
type recordingConn struct {
	mu       sync.Mutex
	frames   []Frame
	writeErr error
	closed   bool
}

func (c *recordingConn) ReadFrame() (Frame, error) { return Frame{}, io.EOF }
func (c *recordingConn) RemoteAddr() string        { return "test-peer" }

func (c *recordingConn) WriteFrame(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) written() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

// newTestConn creates a server connection of a transport without listener
func newTestConn() (*serverTransport, *serverConn, *recordingConn) {
	t := NewBaseServerTransport(nil).(*serverTransport)
	rc := &recordingConn{}
	c := &serverConn{
		t:       t,
		conn:    rc,
		streams: xsync.NewMapOf[uint64, *serverStream](),
	}
	return t, c, rc
}

// newBoundStream creates a stream that is accepted on q
func newBoundStream(t *testing.T, q *cq.CompletionQueue) (*serverStream, *serverTransport, *recordingConn) {
	tr, c, rc := newTestConn()
	tr.engine.request(q, "svc", "m", &transport.AcceptSlot{}, "accept")

	s := newServerStream(c, 1, methodKey("svc", "m"))
	c.streams.Store(1, s)
	if code := tr.engine.offer(s); code != codes.OK {
		t.Fatalf("offer() = %v, want OK", code)
	}
	if ev := nextEvent(t, q); ev.Tag != "accept" || !ev.OK {
		t.Fatalf("accept completion = %+v", ev)
	}
	return s, tr, rc
}

// nextEvent waits for the next completion
func nextEvent(t *testing.T, q *cq.CompletionQueue) cq.Event {
	t.Helper()
	select {
	case ev, ok := <-q.Recv():
		if !ok {
			t.Fatalf("queue closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("Timeout waiting for completion")
	}
	return cq.Event{}
}

// expectNoEvent makes sure no completion is posted
func expectNoEvent(t *testing.T, q *cq.CompletionQueue) {
	t.Helper()
	select {
	case ev := <-q.Recv():
		t.Fatalf("unexpected completion %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

// --------------------------------------------------------------------------
// Frame Tests
// --------------------------------------------------------------------------

// TestFrameRoundTrip tests encoding and decoding of frames in both representations
func TestFrameRoundTrip(t *testing.T) {
	frames := []Frame{
		{CallID: 1, Type: FrameOpen, Payload: []byte("cqrpc.Echo/Echo")},
		{CallID: 1<<64 - 1, Type: FrameMessage, Payload: bytes.Repeat([]byte("x"), 1024)},
		{CallID: 7, Type: FrameHalfClose, Payload: []byte{}},
		{CallID: 7, Type: FrameStatus, Payload: encodeStatus(common.NewStatus(codes.NotFound, "gone"))},
		{CallID: 9, Type: FrameCancel, Payload: []byte{}},
	}

	t.Run("stream", func(t *testing.T) {
		var buf bytes.Buffer
		for _, f := range frames {
			if err := writeFrame(&buf, f); err != nil {
				t.Fatalf("writeFrame() error = %v", err)
			}
		}

		var got []Frame
		for range frames {
			f, err := readFrame(&buf)
			if err != nil {
				t.Fatalf("readFrame() error = %v", err)
			}
			got = append(got, f)
		}
		if diff := pretty.Compare(frames, got); diff != "" {
			t.Errorf("readFrame() diff (-want +got):\n%s", diff)
		}

		if _, err := readFrame(&buf); !errors.Is(err, io.EOF) {
			t.Errorf("readFrame() on empty buffer error = %v, want EOF", err)
		}
	})

	t.Run("message", func(t *testing.T) {
		for _, f := range frames {
			got, err := DecodeFrame(EncodeFrame(f))
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}
			if diff := pretty.Compare(f, got); diff != "" {
				t.Errorf("DecodeFrame() diff (-want +got):\n%s", diff)
			}
		}
	})
}

// TestDecodeFrameInvalid tests corrupt frames
func TestDecodeFrameInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "short header", data: []byte{0, 0, 0, 0, 0, 0, 0, 1, 2}},
		{name: "length too large", data: []byte{0, 0, 0, 0, 0, 0, 0, 1, 2, 0, 0, 0, 5, 'a'}},
		{name: "length too small", data: []byte{0, 0, 0, 0, 0, 0, 0, 1, 2, 0, 0, 0, 0, 'a'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFrame(tt.data); err == nil {
				t.Errorf("DecodeFrame() expected error")
			}
		})
	}

	// truncated payload in stream representation
	if _, err := readFrame(bytes.NewReader([]byte{0, 0, 0, 0, 0, 0, 0, 1, 2, 0, 0, 0, 5, 'a'})); err == nil {
		t.Errorf("readFrame() of a truncated frame expected error")
	}
}

// TestStatusEncoding tests the status payload
func TestStatusEncoding(t *testing.T) {
	for _, s := range []common.Status{common.OK(), common.NewStatus(codes.Internal, "boom"), common.NewStatus(codes.Unimplemented, "")} {
		got, err := decodeStatus(encodeStatus(s))
		if err != nil {
			t.Fatalf("decodeStatus() error = %v", err)
		}
		if got != s {
			t.Errorf("decodeStatus() = %v, want %v", got, s)
		}
	}

	if _, err := decodeStatus([]byte{1}); err == nil {
		t.Errorf("decodeStatus() of a short payload expected error")
	}
}

// --------------------------------------------------------------------------
// Accept Engine Tests
// --------------------------------------------------------------------------

// TestAcceptEngine tests matching of calls and accepts in both orders
func TestAcceptEngine(t *testing.T) {
	q := cq.New()
	defer q.Close()
	tr, c, _ := newTestConn()

	// accept first, call second
	slot1 := &transport.AcceptSlot{}
	tr.engine.request(q, "svc", "m", slot1, "a1")
	expectNoEvent(t, q)

	s1 := newServerStream(c, 1, "svc/m")
	if code := tr.engine.offer(s1); code != codes.OK {
		t.Fatalf("offer() = %v, want OK", code)
	}
	if ev := nextEvent(t, q); ev.Tag != "a1" || !ev.OK {
		t.Errorf("completion = %+v, want a1 OK", ev)
	}
	if slot1.Stream != s1 {
		t.Errorf("slot holds %v, want the offered stream", slot1.Stream)
	}

	// call first, accept second
	s2 := newServerStream(c, 2, "svc/m")
	if code := tr.engine.offer(s2); code != codes.OK {
		t.Fatalf("offer() = %v, want OK", code)
	}
	slot2 := &transport.AcceptSlot{}
	tr.engine.request(q, "svc", "m", slot2, "a2")
	if ev := nextEvent(t, q); ev.Tag != "a2" || !ev.OK {
		t.Errorf("completion = %+v, want a2 OK", ev)
	}
	if slot2.Stream != s2 {
		t.Errorf("slot holds %v, want the offered stream", slot2.Stream)
	}

	// unknown method
	if code := tr.engine.offer(newServerStream(c, 3, "svc/unknown")); code != codes.Unimplemented {
		t.Errorf("offer() of an unknown method = %v, want Unimplemented", code)
	}

	// a queued call that failed is skipped
	s4 := newServerStream(c, 4, "svc/m")
	tr.engine.offer(s4)
	s4.fail()
	tr.engine.request(q, "svc", "m", &transport.AcceptSlot{}, "a3")
	expectNoEvent(t, q)
	if accepts, backlog := tr.engine.pending(); accepts != 1 || backlog != 0 {
		t.Errorf("pending() = %d, %d, want 1, 0", accepts, backlog)
	}

	// shutdown fails the pending accept and rejects new calls
	tr.engine.shutdown()
	if ev := nextEvent(t, q); ev.Tag != "a3" || ev.OK {
		t.Errorf("completion = %+v, want a3 failed", ev)
	}
	if code := tr.engine.offer(newServerStream(c, 5, "svc/m")); code != codes.Unavailable {
		t.Errorf("offer() after shutdown = %v, want Unavailable", code)
	}
	tr.engine.request(q, "svc", "m", &transport.AcceptSlot{}, "a4")
	if ev := nextEvent(t, q); ev.Tag != "a4" || ev.OK {
		t.Errorf("completion = %+v, want a4 failed", ev)
	}
}

// --------------------------------------------------------------------------
// Server Stream Tests
// --------------------------------------------------------------------------

// TestStreamReads tests buffering of inbound messages and end of stream
func TestStreamReads(t *testing.T) {
	q := cq.New()
	defer q.Close()
	s, _, _ := newBoundStream(t, q)

	// messages arriving before the read are buffered
	s.onMessage([]byte("a"))
	s.onMessage([]byte("b"))

	var got []string
	for i := 0; i < 2; i++ {
		var r transport.ReadResult
		s.RequestRead(&r, i)
		if ev := nextEvent(t, q); ev.Tag != i || !ev.OK {
			t.Fatalf("read completion = %+v", ev)
		}
		got = append(got, string(r.Data))
	}

	// a pending read is completed by the next message
	var r transport.ReadResult
	s.RequestRead(&r, "pending")
	expectNoEvent(t, q)
	s.onMessage([]byte("c"))
	if ev := nextEvent(t, q); ev.Tag != "pending" || !ev.OK {
		t.Fatalf("read completion = %+v", ev)
	}
	got = append(got, string(r.Data))

	if diff := pretty.Compare([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("read order diff (-want +got):\n%s", diff)
	}

	// half close ends the stream
	s.RequestRead(&r, "eof")
	s.onHalfClose()
	if ev := nextEvent(t, q); ev.Tag != "eof" || !ev.OK || !r.EOF {
		t.Fatalf("read completion = %+v, eof = %v", ev, r.EOF)
	}
	s.RequestRead(&r, "eof2")
	if ev := nextEvent(t, q); !ev.OK || !r.EOF {
		t.Fatalf("read after end of stream = %+v, eof = %v", ev, r.EOF)
	}
}

// TestStreamWriteFinish tests the frames written for messages and the status
func TestStreamWriteFinish(t *testing.T) {
	q := cq.New()
	defer q.Close()
	s, _, rc := newBoundStream(t, q)

	s.RequestWrite([]byte("hello"), "w")
	if ev := nextEvent(t, q); ev.Tag != "w" || !ev.OK {
		t.Fatalf("write completion = %+v", ev)
	}

	s.RequestFinish(common.OK(), "f")
	if ev := nextEvent(t, q); ev.Tag != "f" || !ev.OK {
		t.Fatalf("finish completion = %+v", ev)
	}

	want := []Frame{
		{CallID: 1, Type: FrameMessage, Payload: []byte("hello")},
		{CallID: 1, Type: FrameStatus, Payload: encodeStatus(common.OK())},
	}
	if diff := pretty.Compare(want, rc.written()); diff != "" {
		t.Errorf("written frames diff (-want +got):\n%s", diff)
	}

	select {
	case <-s.Context().Done():
	default:
		t.Errorf("context not cancelled after finish")
	}
	if _, ok := s.conn.streams.Load(1); ok {
		t.Errorf("stream still registered after finish")
	}

	// nothing can be sent after the finish
	s.RequestWrite([]byte("late"), "late")
	if ev := nextEvent(t, q); ev.OK {
		t.Errorf("write after finish succeeded")
	}
}

// TestStreamFailure tests that a failure completes the pending operation
func TestStreamFailure(t *testing.T) {
	q := cq.New()
	defer q.Close()
	s, _, _ := newBoundStream(t, q)

	var r transport.ReadResult
	s.RequestRead(&r, "r")
	s.fail()
	if ev := nextEvent(t, q); ev.Tag != "r" || ev.OK {
		t.Fatalf("read completion = %+v, want failed", ev)
	}

	s.RequestWrite([]byte("x"), "w")
	if ev := nextEvent(t, q); ev.OK {
		t.Errorf("write after failure succeeded")
	}
	s.RequestFinish(common.OK(), "f")
	if ev := nextEvent(t, q); ev.OK {
		t.Errorf("finish after failure succeeded")
	}
	if s.Context().Err() == nil {
		t.Errorf("context not cancelled after failure")
	}
}

// TestStreamWriteError tests that a failed write fails the operation
func TestStreamWriteError(t *testing.T) {
	q := cq.New()
	defer q.Close()
	s, _, rc := newBoundStream(t, q)

	rc.mu.Lock()
	rc.writeErr = errors.New("broken pipe")
	rc.mu.Unlock()

	s.RequestWrite([]byte("x"), "w")
	if ev := nextEvent(t, q); ev.OK {
		t.Errorf("write completion succeeded despite write error")
	}
	rc.mu.Lock()
	closed := rc.closed
	rc.mu.Unlock()
	if !closed {
		t.Errorf("connection not closed after write error")
	}
}

// TestStreamAccounting tests the detection of concurrently outstanding operations
func TestStreamAccounting(t *testing.T) {
	q := cq.New()
	defer q.Close()
	s, tr, _ := newBoundStream(t, q)

	var r1, r2 transport.ReadResult
	s.RequestRead(&r1, "r1")
	if got := tr.Stats(); got.Violations != 0 || got.MaxOutstanding != 1 {
		t.Errorf("Stats() = %+v, want no violation", got)
	}

	s.RequestRead(&r2, "r2")
	got := tr.Stats()
	want := transport.Stats{Streams: 0, MaxOutstanding: 2, Violations: 1}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("Stats() diff (-want +got):\n%s", diff)
	}
}

package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"google.golang.org/grpc/codes"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// errCallCancelled is returned by the client stream after Cancel
var errCallCancelled = errors.New("call cancelled")

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector  IClientConnector
	config     common.ClientConfig
	conn       FrameConn
	connMu     sync.Mutex // Protects writes to the connection
	streams    *xsync.MapOf[uint64, *clientStream]
	nextCallID atomic.Uint64
	closed     atomic.Bool
}

// clientStream implements transport.IClientStream
type clientStream struct {
	parent *clientTransport
	id     uint64

	mu     sync.Mutex
	inbox  [][]byte
	status *common.Status
	err    error
	notify chan struct{}
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
		streams:   xsync.NewMapOf[uint64, *clientStream](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if config.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	if t.conn != nil {
		return fmt.Errorf("already connected to %s", t.config.Endpoint)
	}

	conn, err := t.connector.Connect(config)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", config.Endpoint, err)
	}

	t.config = config
	t.conn = conn

	Logger.Debugf("Connected to %s using %s transport", config.Endpoint, t.connector.GetName())

	// Start the response reader
	go t.readResponses()
	return nil
}

func (t *clientTransport) Open(service, method string) (transport.IClientStream, error) {
	if t.conn == nil || t.closed.Load() {
		return nil, fmt.Errorf("%w: not connected", common.ErrTransportFailure)
	}

	s := &clientStream{
		parent: t,
		id:     t.nextCallID.Add(1),
		notify: make(chan struct{}, 1),
	}
	t.streams.Store(s.id, s)

	if err := t.write(Frame{CallID: s.id, Type: FrameOpen, Payload: []byte(methodKey(service, method))}); err != nil {
		t.streams.Delete(s.id)
		return nil, err
	}
	return s, nil
}

func (t *clientTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) || t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// write writes one frame to the connection
func (t *clientTransport) write(f Frame) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if err := t.conn.WriteFrame(f); err != nil {
		return fmt.Errorf("%w: failed to write %s frame: %v", common.ErrTransportFailure, f.Type, err)
	}
	return nil
}

// readResponses reads frames in a loop and distributes them to the open calls
func (t *clientTransport) readResponses() {
	for {
		f, err := t.conn.ReadFrame()
		if err != nil {
			if !t.closed.Load() {
				Logger.Debugf("Connection to %s lost: %v", t.config.Endpoint, err)
			}

			// all open calls fail
			cause := fmt.Errorf("%w: connection lost: %v", common.ErrTransportFailure, err)
			t.streams.Range(func(id uint64, s *clientStream) bool {
				s.abort(cause)
				return true
			})
			t.streams.Clear()
			return
		}

		s, found := t.streams.Load(f.CallID)
		if !found {
			Logger.Warningf("Received %s frame for unknown call %d", f.Type, f.CallID)
			continue
		}

		switch f.Type {
		case FrameMessage:
			s.deliver(f.Payload)
		case FrameStatus:
			status, err := decodeStatus(f.Payload)
			if err != nil {
				status = common.Statusf(codes.Internal, "malformed status: %v", err)
			}
			t.streams.Delete(f.CallID)
			s.finish(status)
		default:
			Logger.Warningf("Dropping %s frame for call %d", f.Type, f.CallID)
		}
	}
}

// signal wakes up a blocked Recv
func (s *clientStream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// deliver appends an inbound message
func (s *clientStream) deliver(data []byte) {
	s.mu.Lock()
	if s.status != nil || s.err != nil {
		s.mu.Unlock()
		return
	}
	s.inbox = append(s.inbox, data)
	s.mu.Unlock()
	s.signal()
}

// finish stores the final status of the call
func (s *clientStream) finish(status common.Status) {
	s.mu.Lock()
	if s.status == nil && s.err == nil {
		s.status = &status
	}
	s.mu.Unlock()
	s.signal()
}

// abort fails the call with the given error
func (s *clientStream) abort(err error) {
	s.mu.Lock()
	if s.status == nil && s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.signal()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientStream)
// --------------------------------------------------------------------------

func (s *clientStream) Send(data []byte) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.parent.write(Frame{CallID: s.id, Type: FrameMessage, Payload: data})
}

func (s *clientStream) CloseSend() error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.parent.write(Frame{CallID: s.id, Type: FrameHalfClose})
}

func (s *clientStream) Recv() ([]byte, error) {
	var timeoutCh <-chan time.Time
	if s.parent.config.TimeoutSecond > 0 {
		timer := time.NewTimer(time.Duration(s.parent.config.TimeoutSecond) * time.Second)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		s.mu.Lock()
		if len(s.inbox) > 0 {
			msg := s.inbox[0]
			s.inbox[0] = nil
			s.inbox = s.inbox[1:]
			s.mu.Unlock()
			return msg, nil
		}
		if s.status != nil {
			s.mu.Unlock()
			return nil, io.EOF
		}
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return nil, err
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-timeoutCh:
			return nil, fmt.Errorf("%w: call %d timed out", common.ErrTransportFailure, s.id)
		}
	}
}

func (s *clientStream) Status() common.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.status != nil:
		return *s.status
	case s.err != nil:
		return common.NewStatus(codes.Unavailable, s.err.Error())
	default:
		return common.NewStatus(codes.Unknown, "call not finished")
	}
}

func (s *clientStream) Cancel() error {
	s.mu.Lock()
	if s.status != nil || s.err != nil {
		s.mu.Unlock()
		return nil
	}
	s.err = errCallCancelled
	s.mu.Unlock()

	s.parent.streams.Delete(s.id)
	s.signal()
	return s.parent.write(Frame{CallID: s.id, Type: FrameCancel})
}

// usable returns an error if the call already ended
func (s *clientStream) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != nil {
		return fmt.Errorf("call %d already finished with %s", s.id, s.status)
	}
	return s.err
}

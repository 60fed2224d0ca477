package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/cq"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
	"google.golang.org/grpc/codes"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type serverTransport struct {
	connector IServerConnector
	config    common.ServerConfig
	listener  FrameListener
	engine    *acceptEngine
	stats     opStats

	// conns holds all open connections, connsMu orders registration against shutdown
	conns   *xsync.MapOf[*serverConn, struct{}]
	connsMu sync.Mutex
	wg      sync.WaitGroup

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	stopped atomic.Bool
}

// serverConn represents a single connection of a peer
type serverConn struct {
	t         *serverTransport
	conn      FrameConn
	writeMu   sync.Mutex // Protects writes to the connection
	streams   *xsync.MapOf[uint64, *serverStream]
	closeOnce sync.Once
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with the specified connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &serverTransport{
		connector: connector,
		engine:    newAcceptEngine(),
		conns:     xsync.NewMapOf[*serverConn, struct{}](),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.listener != nil {
		return common.NewConfigurationError("%s transport is already listening on %s", t.connector.GetName(), t.listener.Addr())
	}
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return common.NewBindError(config.Endpoint, err)
	}
	t.listener = listener

	Logger.Infof("Listening for %s connections on %s", t.connector.GetName(), listener.Addr())
	return nil
}

func (t *serverTransport) RequestAccept(q *cq.CompletionQueue, service, method string, slot *transport.AcceptSlot, tag any) {
	t.engine.request(q, service, method, slot, tag)
}

func (t *serverTransport) Start() error {
	if t.listener == nil {
		return common.NewConfigurationError("%s transport is not listening", t.connector.GetName())
	}
	if !t.started.CompareAndSwap(false, true) {
		return common.NewConfigurationError("%s transport already started", t.connector.GetName())
	}

	t.wg.Add(1)
	go t.acceptConnections()
	return nil
}

func (t *serverTransport) Shutdown() error {
	t.connsMu.Lock()
	if !t.stopped.CompareAndSwap(false, true) {
		t.connsMu.Unlock()
		return nil
	}
	t.connsMu.Unlock()

	var err error
	if t.listener != nil {
		if cerr := t.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = fmt.Errorf("failed to close listener: %v", cerr)
		}
	}

	// fail everything still waiting for a call or a peer
	t.engine.shutdown()
	t.conns.Range(func(c *serverConn, _ struct{}) bool {
		c.close()
		return true
	})
	t.cancel()

	t.wg.Wait()
	Logger.Infof("Stopped %s transport", t.connector.GetName())
	return err
}

func (t *serverTransport) Addr() string {
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr()
}

func (t *serverTransport) GetName() string {
	return t.connector.GetName()
}

func (t *serverTransport) Stats() transport.Stats {
	return transport.Stats{
		Streams:        t.stats.streams.Load(),
		MaxOutstanding: t.stats.maxOutstanding.Load(),
		Violations:     t.stats.violations.Load(),
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// acceptConnections accepts connections until the listener is closed
func (t *serverTransport) acceptConnections() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		c := &serverConn{
			t:       t,
			conn:    conn,
			streams: xsync.NewMapOf[uint64, *serverStream](),
		}

		t.connsMu.Lock()
		if t.stopped.Load() {
			t.connsMu.Unlock()
			_ = conn.Close()
			return
		}
		t.conns.Store(c, struct{}{})
		t.wg.Add(1)
		t.connsMu.Unlock()

		Logger.Debugf("Accepted %s connection from %s", t.connector.GetName(), conn.RemoteAddr())

		// Handle the connection in a goroutine
		go c.serve()
	}
}

// write writes one frame, a failed write closes the connection
func (c *serverConn) write(f Frame) error {
	c.writeMu.Lock()
	err := c.conn.WriteFrame(f)
	c.writeMu.Unlock()

	if err != nil {
		Logger.Warningf("Failed to write %s frame for call %d to %s: %v", f.Type, f.CallID, c.conn.RemoteAddr(), err)
		c.close()
	}
	return err
}

// close closes the underlying connection, the read loop then fails all streams
func (c *serverConn) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// removeStream removes a stream from the connection if it is still registered
func (c *serverConn) removeStream(s *serverStream) {
	c.streams.Compute(s.id, func(old *serverStream, loaded bool) (*serverStream, bool) {
		return old, !loaded || old == s
	})
}

// serve reads frames until the connection fails and dispatches them to the streams
func (c *serverConn) serve() {
	defer c.t.wg.Done()
	defer c.t.conns.Delete(c)

	for {
		f, err := c.conn.ReadFrame()

		// Case EOF or shutdown: Connection closed regularly
		if err != nil {
			if errors.Is(err, io.EOF) || c.t.stopped.Load() {
				Logger.Debugf("Connection from %s closed", c.conn.RemoteAddr())
			} else {
				Logger.Warningf("Error reading from %s: %v", c.conn.RemoteAddr(), err)
			}
			break
		}

		c.handleFrame(f)
	}

	c.close()

	// all calls of this connection fail
	c.streams.Range(func(id uint64, s *serverStream) bool {
		s.fail()
		return true
	})
	c.streams.Clear()
}

// handleFrame dispatches a single frame
func (c *serverConn) handleFrame(f Frame) {
	switch f.Type {
	case FrameOpen:
		if _, exists := c.streams.Load(f.CallID); exists {
			Logger.Warningf("Dropping duplicate open for call %d from %s", f.CallID, c.conn.RemoteAddr())
			return
		}

		s := newServerStream(c, f.CallID, string(f.Payload))
		c.t.stats.streams.Add(1)
		c.streams.Store(f.CallID, s)

		if code := c.t.engine.offer(s); code != codes.OK {
			c.streams.Delete(f.CallID)
			s.fail()

			status := common.Statusf(code, "unknown method %s", s.method)
			if code == codes.Unavailable {
				status = common.NewStatus(code, "server is shutting down")
			}
			Logger.Debugf("Rejecting call %d for %s: %s", f.CallID, s.method, status)
			go c.write(Frame{CallID: f.CallID, Type: FrameStatus, Payload: encodeStatus(status)})
		}

	case FrameMessage:
		if s, ok := c.streams.Load(f.CallID); ok {
			s.onMessage(f.Payload)
		} else {
			Logger.Debugf("Dropping message for unknown call %d", f.CallID)
		}

	case FrameHalfClose:
		if s, ok := c.streams.Load(f.CallID); ok {
			s.onHalfClose()
		}

	case FrameCancel:
		if s, ok := c.streams.LoadAndDelete(f.CallID); ok {
			Logger.Debugf("Call %d (%s) cancelled by peer", f.CallID, s.method)
			s.fail()
		}

	default:
		Logger.Warningf("Dropping %s frame for call %d from %s", f.Type, f.CallID, c.conn.RemoteAddr())
	}
}

package base

import (
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"net"
	"time"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// FrameConn is a bidirectional connection that transports frames.
// ReadFrame is only called by one goroutine, WriteFrame is serialized by the caller.
type FrameConn interface {
	// ReadFrame blocks until the next frame arrived
	ReadFrame() (Frame, error)
	// WriteFrame writes one frame
	WriteFrame(f Frame) error
	// RemoteAddr returns the address of the peer
	RemoteAddr() string
	// Close closes the connection, a blocked ReadFrame returns an error
	Close() error
}

// FrameListener accepts frame connections
type FrameListener interface {
	// Accept blocks until the next connection arrived
	Accept() (FrameConn, error)
	// Addr returns the bound address
	Addr() string
	// Close closes the listener, a blocked Accept returns an error
	Close() error
}

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen binds the endpoint of the config and returns the listener
	Listen(config common.ServerConfig) (FrameListener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection based on the provided configuration
	Connect(config common.ClientConfig) (FrameConn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Stream-oriented connections (net.Conn)
// -----------------------------------------------------------

// netFrameConn implements FrameConn for stream-oriented connections
type netFrameConn struct {
	conn    net.Conn
	timeout time.Duration
}

// NewNetFrameConn wraps a net.Conn. If timeout is positive, it is used as write deadline for every frame.
func NewNetFrameConn(conn net.Conn, timeout time.Duration) FrameConn {
	return &netFrameConn{conn: conn, timeout: timeout}
}

func (c *netFrameConn) ReadFrame() (Frame, error) {
	return readFrame(c.conn)
}

func (c *netFrameConn) WriteFrame(f Frame) error {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	return writeFrame(c.conn, f)
}

func (c *netFrameConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *netFrameConn) Close() error {
	return c.conn.Close()
}

// netFrameListener implements FrameListener for a net.Listener
type netFrameListener struct {
	listener net.Listener
	timeout  time.Duration
	upgrade  func(conn net.Conn) error
}

// NewNetFrameListener wraps a net.Listener. The optional upgrade function is applied to
// every accepted connection (e.g. to set socket options).
func NewNetFrameListener(listener net.Listener, config common.ServerConfig, upgrade func(conn net.Conn) error) FrameListener {
	return &netFrameListener{
		listener: listener,
		timeout:  time.Duration(config.TimeoutSecond) * time.Second,
		upgrade:  upgrade,
	}
}

func (l *netFrameListener) Accept() (FrameConn, error) {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			return nil, err
		}

		if l.upgrade != nil {
			if err := l.upgrade(conn); err != nil {
				Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
				_ = conn.Close()
				continue
			}
		}

		return NewNetFrameConn(conn, l.timeout), nil
	}
}

func (l *netFrameListener) Addr() string {
	return l.listener.Addr().String()
}

func (l *netFrameListener) Close() error {
	return l.listener.Close()
}

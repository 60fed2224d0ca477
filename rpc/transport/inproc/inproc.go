package inproc

import (
	"fmt"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"github.com/ValentinKolb/cqrpc/rpc/transport/base"
	"github.com/puzpuzpuz/xsync/v3"
	"net"
	"sync"
	"time"
)

// dialTimeout limits the time a dial waits for the listener to accept
const dialTimeout = 5 * time.Second

// listeners is the process-local address space of all in-memory listeners
var listeners = xsync.NewMapOf[string, *pipeListener]()

// pipeAddr implements net.Addr for in-memory endpoints
type pipeAddr string

func (a pipeAddr) Network() string { return "inproc" }
func (a pipeAddr) String() string  { return string(a) }

// pipeListener implements net.Listener, connections are created with net.Pipe by Dial
type pipeListener struct {
	addr      pipeAddr
	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (l *pipeListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *pipeListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		// free the address, a new listener may already own it
		listeners.Compute(string(l.addr), func(old *pipeListener, loaded bool) (*pipeListener, bool) {
			return old, !loaded || old == l
		})
	})
	return nil
}

func (l *pipeListener) Addr() net.Addr {
	return l.addr
}

// listen registers a listener for the address
func listen(addr string) (*pipeListener, error) {
	l := &pipeListener{
		addr:  pipeAddr(addr),
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	if _, loaded := listeners.LoadOrStore(addr, l); loaded {
		return nil, fmt.Errorf("inproc address %s already in use", addr)
	}
	return l, nil
}

// Dial connects to the in-memory listener of the address
func Dial(addr string) (net.Conn, error) {
	l, ok := listeners.Load(addr)
	if !ok {
		return nil, fmt.Errorf("dial inproc %s: connection refused", addr)
	}

	server, client := net.Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-l.done:
	case <-time.After(dialTimeout):
	}
	_ = server.Close()
	_ = client.Close()
	return nil, fmt.Errorf("dial inproc %s: connection refused", addr)
}

// --------------------------------------------------------------------------
// Connectors (docu see base.IServerConnector and base.IClientConnector)
// --------------------------------------------------------------------------

// serverConnector implements the IServerConnector interface for in-memory connections
type serverConnector struct{}

func (c *serverConnector) GetName() string {
	return "inproc"
}

func (c *serverConnector) Listen(config common.ServerConfig) (base.FrameListener, error) {
	l, err := listen(config.Endpoint)
	if err != nil {
		return nil, err
	}
	return base.NewNetFrameListener(l, config, nil), nil
}

// clientConnector implements the IClientConnector interface for in-memory connections
type clientConnector struct{}

func (c *clientConnector) GetName() string {
	return "inproc"
}

func (c *clientConnector) Connect(config common.ClientConfig) (base.FrameConn, error) {
	conn, err := Dial(config.Endpoint)
	if err != nil {
		return nil, err
	}
	return base.NewNetFrameConn(conn, time.Duration(config.TimeoutSecond)*time.Second), nil
}

// --------------------------------------------------------------------------
// Transport Factory Methods
// --------------------------------------------------------------------------

// NewInprocServerTransport creates a new in-memory server transport
func NewInprocServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{})
}

// NewInprocClientTransport creates a new in-memory client transport
func NewInprocClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}

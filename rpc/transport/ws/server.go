package ws

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"github.com/ValentinKolb/cqrpc/rpc/transport/base"
	"github.com/gorilla/websocket"
	"net"
	"net/http"
	"sync"
	"time"
)

// Path is the http path the websocket endpoint is served on
const Path = "/cqrpc"

// serverConnector implements the IServerConnector interface for websockets
type serverConnector struct{}

// listener implements base.FrameListener, upgraded websockets are handed to Accept
type listener struct {
	ln        net.Listener
	srv       *http.Server
	upgrader  websocket.Upgrader
	timeout   time.Duration
	conns     chan base.FrameConn
	done      chan struct{}
	closeOnce sync.Once
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "ws"
}

func (c *serverConnector) Listen(config common.ServerConfig) (base.FrameListener, error) {
	// bind synchronously so that bind errors are reported by Listen
	ln, err := net.Listen("tcp", config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %w", err)
	}

	l := &listener{
		ln:      ln,
		timeout: time.Duration(config.TimeoutSecond) * time.Second,
		conns:   make(chan base.FrameConn),
		done:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.Transport.ReadBufferSize,
			WriteBufferSize: config.Transport.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, l.handleUpgrade)
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			base.Logger.Errorf("Websocket server on %s failed: %v", config.Endpoint, err)
		}
	}()

	return l, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.FrameListener)
// --------------------------------------------------------------------------

func (l *listener) Accept() (base.FrameConn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *listener) Addr() string {
	return l.ln.Addr().String()
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		// upgraded connections are hijacked and closed by the transport
		err = l.srv.Close()
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleUpgrade upgrades a http request and hands the websocket to Accept
func (l *listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an error status
		base.Logger.Debugf("Websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	fc := newFrameConn(conn, l.timeout)
	select {
	case l.conns <- fc:
	case <-l.done:
		_ = fc.Close()
	}
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewWSServerTransport creates a new websocket server transport
func NewWSServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{})
}

package tcp

import (
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"github.com/ValentinKolb/cqrpc/rpc/transport/base"
	"net"
	"time"
)

// dialTimeout limits the time to establish a connection
const dialTimeout = 5 * time.Second

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(config common.ClientConfig) (base.FrameConn, error) {
	conn, err := net.DialTimeout("tcp", config.Endpoint, dialTimeout)
	if err != nil {
		return nil, err
	}

	if err := UpgradeConnection(conn, config.Transport); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return base.NewNetFrameConn(conn, time.Duration(config.TimeoutSecond)*time.Second), nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a new TCP client transport
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}

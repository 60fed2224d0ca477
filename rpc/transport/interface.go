package transport

import (
	"context"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/cq"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// AcceptSlot receives the stream of an accepted call. The transport fills the slot
// before it posts the successful accept completion.
type AcceptSlot struct {
	Stream IServerStream
}

// ReadResult receives the outcome of a read. Either Data holds one inbound message
// or EOF is set because the peer half-closed the call.
type ReadResult struct {
	Data []byte
	EOF  bool
}

// Stats contains the operation accounting of a server transport
type Stats struct {
	// Streams is the total number of calls opened by peers
	Streams uint64
	// MaxOutstanding is the highest number of operations ever outstanding on a single call
	MaxOutstanding int64
	// Violations counts the operations requested while another one was still outstanding on the same call
	Violations uint64
}

// IRPCServerTransport is the interface for the server side of the RPC transport layer.
// A transport never calls into handler code. Every requested operation is completed
// by pushing a cq.Event carrying the given tag onto a completion queue.
type IRPCServerTransport interface {
	// Listen binds the endpoint of the given configuration.
	// It returns an error wrapping common.ErrBind if the endpoint is unavailable.
	Listen(config common.ServerConfig) error
	// RequestAccept requests the next inbound call for the given method.
	// On completion the slot holds the stream of the call, the stream posts all of
	// its completions to q.
	RequestAccept(q *cq.CompletionQueue, service, method string, slot *AcceptSlot, tag any)
	// Start starts accepting connections, it does not block
	Start() error
	// Shutdown stops accepting connections, fails all pending accepts and operations
	// and closes all connections
	Shutdown() error
	// Addr returns the bound address (empty before Listen)
	Addr() string
	// GetName returns the name of the transport (e.g. "tcp")
	GetName() string
	// Stats returns the operation accounting of all calls handled so far
	Stats() Stats
}

// IServerStream is the server side of a single call. At most one operation may be
// outstanding on a stream at any instant.
type IServerStream interface {
	// RequestRead requests the next inbound message. The result is stored in dst.
	RequestRead(dst *ReadResult, tag any)
	// RequestWrite requests sending one message to the peer
	RequestWrite(data []byte, tag any)
	// RequestFinish requests sending the final status to the peer, this ends the call
	RequestFinish(status common.Status, tag any)
	// Context is cancelled when the peer cancels the call, the connection fails or the call finished
	Context() context.Context
	// Peer returns the address of the remote peer
	Peer() string
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the raw RPC client transport.
// It has no typed stubs, payloads are sent as is.
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Open opens a new call for the given method
	Open(service, method string) (IClientStream, error)
	// Close closes the transport connection, all open calls fail
	Close() error
}

// IClientStream is the client side of a single call
type IClientStream interface {
	// Send sends one message to the server
	Send(data []byte) error
	// CloseSend half-closes the call, the server reads end-of-stream after all sent messages
	CloseSend() error
	// Recv returns the next message of the server.
	// It returns io.EOF once the server finished the call, see Status.
	Recv() ([]byte, error)
	// Status returns the final status of the call (valid after Recv returned io.EOF)
	Status() common.Status
	// Cancel aborts the call
	Cancel() error
}

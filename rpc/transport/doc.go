// Package transport defines the transport contract of the cqrpc server framework.
// It provides a common contract that all transport implementations must fulfill,
// so that the server is independent of the network protocol.
//
// The contract is completion based: the server requests asynchronous operations
// (accept a call, read a message, write a message, finish a call) and the transport
// completes each of them by pushing an event with the caller's tag onto a
// cq.CompletionQueue. The transport never calls into handler code.
//
// Key Components:
//
//   - IRPCServerTransport: Binds the endpoint, matches inbound calls to pending accepts
//     and tracks the operation accounting (Stats).
//
//   - IServerStream: The server side of a single call. At most one operation may be
//     outstanding per stream, violations are counted in Stats.
//
//   - IRPCClientTransport / IClientStream: Raw client used by the CLI and tests to act
//     as the remote peer. It sends and receives byte payloads without typed stubs.
//
// Implementations live in the sub packages tcp, unix, ws (WebSocket) and inproc
// (in-memory, for tests and embedding), all built on the shared base package.
package transport

// Package base provides the foundation for the transport layers of the cqrpc server
// framework, implementing the completion based transport contract independent of the
// specific network protocol (TCP, Unix sockets, WebSockets, in-memory pipes). It serves
// as a base layer that is extended with protocol-specific connectors.
//
// The package focuses on:
//   - A frame based wire protocol that multiplexes many calls over one connection
//   - Matching inbound calls with the accepts requested by the server workers
//   - Completing every requested operation through the completion queue of its call
//   - Accounting of outstanding operations per call (see transport.Stats)
//
// Wire Protocol:
//
//	Every frame has the format
//	  - 8 bytes: callID (uint64, big endian), chosen by the client
//	  - 1 byte: frame type (open, message, half-close, status, cancel)
//	  - 4 bytes: payload length (uint32, big endian)
//	  - N bytes: payload
//
//	A client opens a call with an open frame carrying "service/method", sends
//	message frames and a half-close. The server answers with message frames and
//	ends the call with a status frame (4 bytes code followed by the message).
//	Opening a method without registered handler results in the status Unimplemented.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - FrameConn/FrameListener: Frame oriented connections. NewNetFrameConn and
//     NewNetFrameListener adapt stream oriented net.Conn based protocols.
//
//   - serverTransport: Accepts connections, reads frames in one goroutine per
//     connection and dispatches them to the streams of the connection.
//
//   - acceptEngine: Per method lists of pending accepts and of calls waiting for an
//     accept. Calls are never dropped because all workers are busy.
//
//   - serverStream: One call. Buffers inbound messages until a read is requested,
//     performs writes in the background and posts all completions to the queue of
//     the accepting worker.
//
//   - clientTransport: Raw client used by the CLI and tests. It writes frames and
//     correlates the inbound frames to the open calls by callID.
//
// Thread Safety:
//
//	All public methods are thread-safe. Writes to a connection are serialized by a
//	mutex, streams are tracked in concurrent maps (github.com/puzpuzpuz/xsync).
package base

// Package ws implements a WebSocket transport for the cqrpc server framework,
// based on github.com/gorilla/websocket. It lets browsers and proxies that only
// speak http reach a server.
//
// The server binds a TCP socket and serves the websocket endpoint on Path
// ("/cqrpc"). Every frame of the base protocol is carried as one binary
// websocket message, text messages are ignored. All call handling (accept
// matching, streams, operation accounting) is inherited from the base package.
//
// Key Components:
//
//   - serverConnector / listener: http server that upgrades requests and hands the
//     websockets to the base transport
//
//   - clientConnector: dials ws://host:port/cqrpc (or a full ws:// or wss:// url)
//
//   - frameConn: base.FrameConn on a websocket connection
package ws

// Package unix implements a transport layer for the cqrpc server framework using
// Unix domain sockets. It provides optimized communication for processes running
// on the same machine.
//
// This package extends the base transport layer with Unix socket-specific connectors
// while inheriting the frame protocol and accept matching from the base package.
// The endpoint of the configuration is the path of the socket file. A stale socket
// file is removed on listen, a socket with a live listener results in a bind error.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners and accepts connections
package unix

// Package tcp implements the TCP socket transport of the cqrpc server framework.
// It provides concrete implementations of the base package's connector interfaces.
//
// This package builds on the base package's transport functionality, inheriting its
// frame protocol, accept matching and operation accounting. See the base package
// documentation for details.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
//   - UpgradeConnection: applies the socket options of common.TransportConfig
//     (no delay, buffer sizes, keep alive, linger) to client and server connections
package tcp

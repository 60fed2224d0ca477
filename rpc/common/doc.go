// Package common provides core data structures and utilities shared across
// the cqrpc server framework. It defines configuration structures, the call
// status type, the error taxonomy and the logging setup used by all other packages.
//
// The package focuses on:
//   - Configuration structures (with defaults) for server and client components
//   - Call status codes sent to the peer when a call finishes
//   - Sentinel errors for configuration, bind, transport and protocol failures
//   - Custom logging implementation integrated with Dragonboat's logger package
//
// Key Components:
//
//   - ServerConfig: Configuration of a server, including the listening endpoint,
//     the number of completion queue workers, socket tuning and the log level.
//     DefaultServerConfig returns the documented defaults (0.0.0.0:50051, 4 workers).
//
//   - ClientConfig: Configuration for the raw client transport used by the CLI and tests.
//
//   - Status: The final outcome of a call. Codes are the canonical gRPC codes
//     (google.golang.org/grpc/codes).
//
//   - Errors: ErrConfiguration, ErrBind, ErrTransportFailure, ErrProtocolViolation and
//     ErrAlreadyFinished. All errors created by this module wrap one of them and can
//     be tested with errors.Is.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's logging
//     system while providing consistent formatting across the application.
package common

// Package cmd implements the command-line interface of cqrpc. It provides commands
// for running a server with the echo service and for calling methods as a raw client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a server serving the cqrpc.Echo service until SIGINT or SIGTERM
//   - call: Calls a method with raw messages, optionally repeated with latency statistics
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set via environment variables (CQRPC_<flag>) or .env files.
// See cqrpc -help for a list of all commands.
package cmd

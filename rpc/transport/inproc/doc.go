// Package inproc implements an in-memory transport for the cqrpc server framework.
// Connections are synchronous net.Pipe pairs, endpoints are arbitrary names in a
// process-local address space. It is used by tests and to embed a server in the
// process of its only client.
//
// Listening on a name that is already taken fails like an occupied port, dialing
// a name without listener is refused. Closing the listener frees the name.
package inproc

// Package rpc provides a multi-threaded RPC server framework built on completion queues.
// Handlers are registered per method of a named service, inbound calls are driven through
// accept, read, handler, write and finish by a fixed pool of workers, each owning one
// completion queue.
//
// The package is organized into several subpackages:
//
//   - common: Configuration structures, the call status, the error taxonomy and logging.
//
//   - cq: The completion queue, a lock-free multi-producer single-consumer queue of
//     completion events.
//
//   - serializer: Codecs converting between typed messages and payloads (JSON, GOB,
//     protobuf, raw).
//
//   - transport: The transport contract with pluggable implementations (TCP, Unix sockets,
//     WebSockets, in-memory). Transports only post completions, they never call handlers.
//
//   - server: The builder, the handler base, the server and the per-call state machine.
//
//   - echo: A demo service with one method per streaming kind.
package rpc

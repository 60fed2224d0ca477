// Package server implements the cqrpc server: a registry of typed handlers for the
// methods of named services, and a server that drives every in-flight call through
// accept, read, handler, write and finish on a fixed pool of completion queue workers.
//
// The package focuses on:
//   - Registration of handler types per (service, method) with their request and response types
//   - One completion queue per worker, the transport never calls into handler code
//   - A per-call state machine with at most one outstanding transport operation per call
//   - Unary, client-streaming, server-streaming and bidi-streaming methods
//   - Isolation of failing calls (transport failures, handler panics)
//
// Key Components:
//
//   - Builder: Collects the configuration (address, worker count, transport, codec) and the
//     handlers. RegisterHandler registers a handler type, RegisterHandlerFactory a constructor.
//     Build creates the Server, a builder can only be built once.
//
//   - RpcHandler: The base every handler embeds. It supplies Send, Finish, Context and Peer,
//     the handler implements OnRequest and optionally OnReadsDone.
//
//   - Server: StartAndWait binds the endpoint, arms one accept per method on every worker and
//     blocks until Shutdown. Metrics are written in the Prometheus text format.
//
//   - Call: The state of one RPC. Completions are dispatched by the worker that armed the
//     accept of the call, so all handler callbacks of a call run on the same worker.
//
// Usage Example:
//
//	type EchoHandler struct {
//		server.RpcHandler[*echo.Message, *echo.Message]
//	}
//
//	func (h *EchoHandler) OnRequest(req *echo.Message) {
//		_ = h.Send(req) // finishes the unary call with OK
//	}
//
//	b := server.NewBuilder()
//	_ = b.SetAddress("0.0.0.0:50051")
//	_ = b.SetWorkerThreadCount(4)
//	if err := server.RegisterHandler[*EchoHandler](b, "cqrpc.Echo", "Echo", server.Unary); err != nil {
//		log.Fatal(err)
//	}
//
//	s, err := b.Build()
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := s.StartAndWait(); err != nil {
//		log.Fatal(err)
//	}
//
// Call Lifecycle:
//
//	Created -> AwaitingRequest -> (Reading <-> Processing)* -> AwaitingResponseFlush -> Finishing -> Done
//
// A call waits in AwaitingHandler while no operation is outstanding and the handler has not
// sent or finished yet. Responses are written in the order of Send, the finish is sent after
// all queued responses. For unary and client-streaming methods the first Send also finishes
// the call with OK. Send and Finish return common.ErrAlreadyFinished once the finish was
// requested or the call is done.
//
// Thread Safety:
//
//	Send and Finish may be called from any goroutine. The call lock is never held while
//	handler code runs. A handler blocking in OnRequest blocks its worker, long running work
//	should be moved to a goroutine that calls Send and Finish later.
package server

// Package echo implements the cqrpc.Echo demo service, one method per method kind.
// It is served by the serve command and used by the end-to-end tests of the transports.
//
// Methods:
//
//   - Echo (unary): answers with the request.
//   - Collect (client-streaming): joins the texts of all requests, separated by a space.
//   - Repeat (server-streaming): sends the text of a RepeatRequest Count times.
//   - EchoStream (bidi-streaming): echoes every message, finishes once the client half-closed.
//   - Upper (unary, protobuf): answers a wrapperspb.StringValue with its upper case form.
//
// All methods except Upper use the default codec of the builder (JSON unless configured).
package echo

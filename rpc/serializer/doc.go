// Package serializer provides the message codecs of the cqrpc server framework.
// A codec converts the typed request and response values of a handler into the
// byte payloads carried by the transports and back.
//
// Key Components:
//
//   - ICodec: Core interface that all codec implementations must satisfy.
//
//   - jsonSerializerImpl: JSON encoding, the default codec. Human-readable and
//     useful for debugging or interoperability with other systems.
//
//   - gobSerializerImpl: Go's built-in gob encoding, good compatibility with
//     Go's type system but larger payloads.
//
//   - protoSerializerImpl: Protocol buffers (google.golang.org/protobuf). Messages
//     must implement proto.Message.
//
//   - rawSerializerImpl: Passes []byte and string payloads through unchanged.
//
// Thread Safety:
//
//	All codec implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	Codecs are created once and reused, either as the default codec of a server
//	builder or per method:
//
//	  codec := serializer.NewJSONSerializer()
//	  data, err := codec.Marshal(response)
//	  // ... send data ...
//	  var req EchoRequest
//	  err = codec.Unmarshal(receivedData, &req)
package serializer

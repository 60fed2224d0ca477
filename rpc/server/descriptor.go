package server

import (
	"fmt"
	"github.com/ValentinKolb/cqrpc/rpc/serializer"
	"reflect"
)

// --------------------------------------------------------------------------
// Method Kinds
// --------------------------------------------------------------------------

// MethodKind describes how many requests and responses a method exchanges per call
type MethodKind int

const (
	// Unary methods read one request and send one response
	Unary MethodKind = iota
	// ClientStreaming methods read requests until end-of-stream and send one response
	ClientStreaming
	// ServerStreaming methods read one request and send any number of responses
	ServerStreaming
	// BidiStreaming methods read and send any number of messages
	BidiStreaming
)

// String returns the name of the method kind
func (k MethodKind) String() string {
	switch k {
	case Unary:
		return "unary"
	case ClientStreaming:
		return "client-streaming"
	case ServerStreaming:
		return "server-streaming"
	case BidiStreaming:
		return "bidi-streaming"
	default:
		return fmt.Sprintf("MethodKind(%d)", int(k))
	}
}

// ClientStreams reports whether the client sends a stream of requests
func (k MethodKind) ClientStreams() bool {
	return k == ClientStreaming || k == BidiStreaming
}

// ServerStreams reports whether the server sends a stream of responses
func (k MethodKind) ServerStreams() bool {
	return k == ServerStreaming || k == BidiStreaming
}

// valid reports whether k is one of the declared kinds
func (k MethodKind) valid() bool {
	return k >= Unary && k <= BidiStreaming
}

// --------------------------------------------------------------------------
// Method Descriptor
// --------------------------------------------------------------------------

// MethodDescriptor describes a registered method. It is immutable once the server is built.
type MethodDescriptor struct {
	// Service is the name of the service the method belongs to
	Service string
	// Method is the name of the method
	Method string
	// Kind is the streaming kind of the method
	Kind MethodKind
	// Request is the type of the request messages
	Request reflect.Type
	// Response is the type of the response messages
	Response reflect.Type
	// Codec decodes requests and encodes responses
	Codec serializer.ICodec

	factory func() Handler
}

// FullName returns "service/method"
func (d *MethodDescriptor) FullName() string {
	return d.Service + "/" + d.Method
}

// NewHandler creates a fresh handler instance for one call
func (d *MethodDescriptor) NewHandler() Handler {
	return d.factory()
}

// String returns a short description of the method
func (d *MethodDescriptor) String() string {
	return fmt.Sprintf("%s (%s, %v -> %v, %s)", d.FullName(), d.Kind, d.Request, d.Response, d.Codec.Name())
}

// MethodOption customizes a single method at registration
type MethodOption func(d *MethodDescriptor)

// WithCodec sets the codec of a method, overriding the default codec of the builder
func WithCodec(codec serializer.ICodec) MethodOption {
	return func(d *MethodDescriptor) {
		d.Codec = codec
	}
}

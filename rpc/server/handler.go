package server

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/serializer"
	"reflect"
)

// Handler is the interface of all handler instances. It can only be implemented by
// embedding RpcHandler, which supplies the capabilities of the call.
//
// A handler type must be a pointer to a struct embedding RpcHandler[Req, Resp] and
// implement OnRequest(Req). It may override OnReadsDone.
//
//	type EchoHandler struct {
//		server.RpcHandler[*EchoRequest, *EchoResponse]
//	}
//
//	func (h *EchoHandler) OnRequest(req *EchoRequest) {
//		_ = h.Send(&EchoResponse{Message: req.Message})
//	}
type Handler interface {
	messageTypes() (req reflect.Type, resp reflect.Type)
	check(self Handler) error
	attach(c *Call, self Handler)
	deliver(payload []byte) error
	readsDone()
}

// requestReceiver is implemented by the user part of a handler
type requestReceiver[Req any] interface {
	OnRequest(req Req)
}

// readsDoneReceiver is implemented by every handler (RpcHandler provides a default)
type readsDoneReceiver interface {
	OnReadsDone()
}

// --------------------------------------------------------------------------
// Handler Base
// --------------------------------------------------------------------------

// RpcHandler is the base of all handlers. It binds a handler instance to its call
// and provides Send, Finish and information about the call.
//
// Send and Finish may be called from any goroutine. Once the call requested its
// finish or is done they return common.ErrAlreadyFinished.
type RpcHandler[Req any, Resp any] struct {
	call        *Call
	onRequest   func(req Req)
	onReadsDone func()
}

// Send sends one response message.
// For unary and client-streaming methods the first Send also finishes the call with OK.
func (h *RpcHandler[Req, Resp]) Send(resp Resp) error {
	if h.call == nil {
		return fmt.Errorf("%w: handler is not bound to a call", common.ErrProtocolViolation)
	}

	data, err := h.call.desc.Codec.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response for %s: %w", h.call.desc.FullName(), err)
	}
	return h.call.send(data)
}

// Finish ends the call with the given status after all pending responses were sent
func (h *RpcHandler[Req, Resp]) Finish(status common.Status) error {
	if h.call == nil {
		return fmt.Errorf("%w: handler is not bound to a call", common.ErrProtocolViolation)
	}
	return h.call.finish(status)
}

// OnReadsDone is called once the client half-closed a client-streaming or bidi call.
// The default does nothing.
func (h *RpcHandler[Req, Resp]) OnReadsDone() {}

// Context returns the context of the call. It is cancelled when the call is done,
// the peer cancels or the connection fails.
func (h *RpcHandler[Req, Resp]) Context() context.Context {
	if h.call == nil {
		return context.Background()
	}
	return h.call.ctx
}

// Peer returns the address of the remote peer
func (h *RpcHandler[Req, Resp]) Peer() string {
	if h.call == nil {
		return ""
	}
	return h.call.stream.Peer()
}

// Method returns the descriptor of the called method
func (h *RpcHandler[Req, Resp]) Method() *MethodDescriptor {
	if h.call == nil {
		return nil
	}
	return h.call.desc
}

// CallID returns the server wide unique id of the call
func (h *RpcHandler[Req, Resp]) CallID() uint64 {
	if h.call == nil {
		return 0
	}
	return h.call.id
}

// --------------------------------------------------------------------------
// Interface Methods (docu see server.Handler)
// --------------------------------------------------------------------------

func (h *RpcHandler[Req, Resp]) messageTypes() (reflect.Type, reflect.Type) {
	return reflect.TypeFor[Req](), reflect.TypeFor[Resp]()
}

func (h *RpcHandler[Req, Resp]) check(self Handler) error {
	if _, ok := self.(requestReceiver[Req]); !ok {
		return fmt.Errorf("%T does not implement OnRequest(%v)", self, reflect.TypeFor[Req]())
	}
	return nil
}

func (h *RpcHandler[Req, Resp]) attach(c *Call, self Handler) {
	h.call = c
	h.onRequest = self.(requestReceiver[Req]).OnRequest
	if r, ok := self.(readsDoneReceiver); ok {
		h.onReadsDone = r.OnReadsDone
	}
}

func (h *RpcHandler[Req, Resp]) deliver(payload []byte) error {
	req, err := decode[Req](h.call.desc.Codec, payload)
	if err != nil {
		return err
	}
	h.onRequest(req)
	return nil
}

func (h *RpcHandler[Req, Resp]) readsDone() {
	if h.onReadsDone != nil {
		h.onReadsDone()
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// decode decodes a payload into a new value of type T. Pointer types are allocated
// so that codecs can decode into them.
func decode[T any](codec serializer.ICodec, payload []byte) (T, error) {
	var v T

	rt := reflect.TypeFor[T]()
	if rt.Kind() == reflect.Pointer {
		p := reflect.New(rt.Elem())
		if err := codec.Unmarshal(payload, p.Interface()); err != nil {
			return v, err
		}
		return p.Interface().(T), nil
	}

	err := codec.Unmarshal(payload, &v)
	return v, err
}

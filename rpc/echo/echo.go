package echo

import (
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/serializer"
	"github.com/ValentinKolb/cqrpc/rpc/server"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"strings"
)

// ServiceName is the name of the echo service
const ServiceName = "cqrpc.Echo"

// MaxRepeat is the highest count accepted by Repeat
const MaxRepeat = 1000

// Message is the request and response of most echo methods
type Message struct {
	Text string `json:"text"`
}

// RepeatRequest asks the server to send Text Count times
type RepeatRequest struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

// EchoHandler answers a unary call with the request
type EchoHandler struct {
	server.RpcHandler[*Message, *Message]
}

func (h *EchoHandler) OnRequest(req *Message) {
	_ = h.Send(req)
}

// CollectHandler joins all requests of a client stream, separated by a space
type CollectHandler struct {
	server.RpcHandler[*Message, *Message]
	texts []string
}

func (h *CollectHandler) OnRequest(req *Message) {
	h.texts = append(h.texts, req.Text)
}

func (h *CollectHandler) OnReadsDone() {
	_ = h.Send(&Message{Text: strings.Join(h.texts, " ")})
}

// RepeatHandler sends the text of the request Count times
type RepeatHandler struct {
	server.RpcHandler[*RepeatRequest, *Message]
}

func (h *RepeatHandler) OnRequest(req *RepeatRequest) {
	if req.Count < 0 || req.Count > MaxRepeat {
		_ = h.Finish(common.Statusf(codes.InvalidArgument, "count must be between 0 and %d, got %d", MaxRepeat, req.Count))
		return
	}

	for i := 0; i < req.Count; i++ {
		if err := h.Send(&Message{Text: req.Text}); err != nil {
			return
		}
	}
	_ = h.Finish(common.OK())
}

// EchoStreamHandler echoes every message of a bidi stream
type EchoStreamHandler struct {
	server.RpcHandler[*Message, *Message]
}

func (h *EchoStreamHandler) OnRequest(req *Message) {
	_ = h.Send(req)
}

func (h *EchoStreamHandler) OnReadsDone() {
	_ = h.Finish(common.OK())
}

// UpperHandler answers a protobuf string with its upper case form
type UpperHandler struct {
	server.RpcHandler[*wrapperspb.StringValue, *wrapperspb.StringValue]
}

func (h *UpperHandler) OnRequest(req *wrapperspb.StringValue) {
	_ = h.Send(wrapperspb.String(strings.ToUpper(req.GetValue())))
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// Register registers all methods of the echo service
func Register(b *server.Builder) error {
	if err := server.RegisterHandler[*EchoHandler](b, ServiceName, "Echo", server.Unary); err != nil {
		return err
	}
	if err := server.RegisterHandler[*CollectHandler](b, ServiceName, "Collect", server.ClientStreaming); err != nil {
		return err
	}
	if err := server.RegisterHandler[*RepeatHandler](b, ServiceName, "Repeat", server.ServerStreaming); err != nil {
		return err
	}
	if err := server.RegisterHandler[*EchoStreamHandler](b, ServiceName, "EchoStream", server.BidiStreaming); err != nil {
		return err
	}
	return server.RegisterHandler[*UpperHandler](b, ServiceName, "Upper", server.Unary,
		server.WithCodec(serializer.NewProtoSerializer()))
}

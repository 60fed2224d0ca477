package serializer

import (
	"fmt"
	"google.golang.org/protobuf/proto"
)

// the options are shared by all proto codecs
var (
	protoUnmarshaler = proto.UnmarshalOptions{
		AllowPartial:   true,
		DiscardUnknown: true,
		RecursionLimit: 100,
	}
	protoMarshaler = proto.MarshalOptions{
		AllowPartial: true,
	}
)

// NewProtoSerializer creates a new codec using protocol buffers.
// Request and response types of the methods using it must implement proto.Message.
func NewProtoSerializer() ICodec {
	return &protoSerializerImpl{}
}

// protoSerializerImpl implements the ICodec interface using protobuf encoding
type protoSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ICodec)
// --------------------------------------------------------------------------

func (p protoSerializerImpl) Name() string {
	return "proto"
}

func (p protoSerializerImpl) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("proto codec: %T does not implement proto.Message", v)
	}
	return protoMarshaler.Marshal(msg)
}

func (p protoSerializerImpl) Unmarshal(b []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("proto codec: %T does not implement proto.Message", v)
	}
	return protoUnmarshaler.Unmarshal(b, msg)
}

package serializer

import (
	"fmt"
)

// NewRawSerializer creates a new codec that passes payloads through unchanged.
// It supports []byte and string messages (and pointers to them).
func NewRawSerializer() ICodec {
	return &rawSerializerImpl{}
}

// rawSerializerImpl implements the ICodec interface without any encoding
type rawSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ICodec)
// --------------------------------------------------------------------------

func (r rawSerializerImpl) Name() string {
	return "raw"
}

func (r rawSerializerImpl) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case []byte:
		return m, nil
	case *[]byte:
		return *m, nil
	case string:
		return []byte(m), nil
	case *string:
		return []byte(*m), nil
	default:
		return nil, fmt.Errorf("raw codec: unsupported message type %T", v)
	}
}

func (r rawSerializerImpl) Unmarshal(b []byte, v any) error {
	switch m := v.(type) {
	case *[]byte:
		// copy, the transport may reuse the buffer
		*m = append([]byte(nil), b...)
		return nil
	case *string:
		*m = string(b)
		return nil
	default:
		return fmt.Errorf("raw codec: unsupported target type %T", v)
	}
}

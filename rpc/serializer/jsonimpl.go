package serializer

import (
	"encoding/json"
)

// NewJSONSerializer creates a new codec using json encoding
func NewJSONSerializer() ICodec {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the ICodec interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ICodec)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Name() string {
	return "json"
}

func (j jsonSerializerImpl) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (j jsonSerializerImpl) Unmarshal(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

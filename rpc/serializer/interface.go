package serializer

// ICodec is the interface for all message codecs. A codec converts between the
// typed request and response values of a handler and the byte payloads carried
// by the transport.
type ICodec interface {
	// Name returns the name of the codec (e.g. "json")
	Name() string
	// Marshal encodes a message into a byte array
	// It returns the encoded byte array and an error if any
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes a byte array into a message
	// It takes a byte array and a pointer to the target value as parameters
	// It returns an error if any
	Unmarshal(b []byte, v any) error
}

// ByName returns the codec registered under the given name, or nil if the name is unknown
func ByName(name string) ICodec {
	switch name {
	case "json":
		return NewJSONSerializer()
	case "gob":
		return NewGOBSerializer()
	case "proto", "protobuf":
		return NewProtoSerializer()
	case "raw":
		return NewRawSerializer()
	default:
		return nil
	}
}

// Names lists the names accepted by ByName
var Names = []string{"json", "gob", "proto", "raw"}

package base

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"google.golang.org/grpc/codes"
	"io"
	"net"
)

// --------------------------------------------------------------------------
// Frame Definition
// --------------------------------------------------------------------------

// FrameType identifies the meaning of a frame
type FrameType uint8

const (
	// FrameOpen opens a new call, the payload is "service/method"
	FrameOpen FrameType = iota + 1
	// FrameMessage carries one message of a call
	FrameMessage
	// FrameHalfClose signals that the client will not send further messages
	FrameHalfClose
	// FrameStatus carries the final status of a call, see encodeStatus
	FrameStatus
	// FrameCancel aborts a call
	FrameCancel
)

const (
	// frameHeaderSize is 8 bytes callID + 1 byte type + 4 bytes payload length
	frameHeaderSize = 13
	// MaxFrameSize is the largest accepted payload
	MaxFrameSize = 64 * 1024 * 1024
)

// String returns the name of the frame type
func (t FrameType) String() string {
	switch t {
	case FrameOpen:
		return "open"
	case FrameMessage:
		return "message"
	case FrameHalfClose:
		return "half-close"
	case FrameStatus:
		return "status"
	case FrameCancel:
		return "cancel"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Frame is the unit of the wire protocol shared by all transports
type Frame struct {
	CallID  uint64
	Type    FrameType
	Payload []byte
}

// --------------------------------------------------------------------------
// Frame Encoding
// --------------------------------------------------------------------------

// putHeader writes the frame header into buf (at least frameHeaderSize bytes)
func putHeader(buf []byte, f Frame) {
	binary.BigEndian.PutUint64(buf[:8], f.CallID)
	buf[8] = byte(f.Type)
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(f.Payload)))
}

// writeFrame writes a frame to the writer with the format:
// - 8 bytes: callID (uint64, big endian)
// - 1 byte: frame type
// - 4 bytes: payload length (uint32, big endian)
// - N bytes: payload
func writeFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxFrameSize {
		return fmt.Errorf("frame payload of %d bytes exceeds the maximum of %d bytes", len(f.Payload), MaxFrameSize)
	}

	header := make([]byte, frameHeaderSize)
	putHeader(header, f)

	b := net.Buffers{header, f.Payload}
	_, err := b.WriteTo(w)
	return err
}

// readFrame reads a frame from the reader. The payload is always freshly allocated.
func readFrame(r io.Reader) (Frame, error) {
	header := make([]byte, frameHeaderSize)

	// Read header
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}

	// Parse header
	f := Frame{
		CallID: binary.BigEndian.Uint64(header[:8]),
		Type:   FrameType(header[8]),
	}
	contentLength := binary.BigEndian.Uint32(header[9:13])

	if contentLength > MaxFrameSize {
		return Frame{}, fmt.Errorf("frame payload of %d bytes exceeds the maximum of %d bytes", contentLength, MaxFrameSize)
	}

	// If no data, return empty slice
	if contentLength == 0 {
		f.Payload = []byte{}
		return f, nil
	}

	f.Payload = make([]byte, contentLength)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return Frame{}, err
	}

	return f, nil
}

// EncodeFrame encodes a frame into a single byte array (used by message based transports)
func EncodeFrame(f Frame) []byte {
	buf := make([]byte, frameHeaderSize+len(f.Payload))
	putHeader(buf, f)
	copy(buf[frameHeaderSize:], f.Payload)
	return buf
}

// DecodeFrame decodes a frame from a single byte array (used by message based transports)
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < frameHeaderSize {
		return Frame{}, fmt.Errorf("frame too short: %d bytes", len(b))
	}

	f := Frame{
		CallID: binary.BigEndian.Uint64(b[:8]),
		Type:   FrameType(b[8]),
	}
	contentLength := binary.BigEndian.Uint32(b[9:13])
	if int(contentLength) != len(b)-frameHeaderSize {
		return Frame{}, fmt.Errorf("frame length mismatch: header says %d bytes, got %d", contentLength, len(b)-frameHeaderSize)
	}

	f.Payload = append([]byte{}, b[frameHeaderSize:]...)
	return f, nil
}

// --------------------------------------------------------------------------
// Status Encoding
// --------------------------------------------------------------------------

// encodeStatus encodes a status as 4 bytes code (uint32, big endian) followed by the message
func encodeStatus(s common.Status) []byte {
	buf := make([]byte, 4+len(s.Message))
	binary.BigEndian.PutUint32(buf[:4], uint32(s.Code))
	copy(buf[4:], s.Message)
	return buf
}

// decodeStatus decodes a status encoded by encodeStatus
func decodeStatus(b []byte) (common.Status, error) {
	if len(b) < 4 {
		return common.Status{}, fmt.Errorf("status payload too short: %d bytes", len(b))
	}
	return common.NewStatus(codes.Code(binary.BigEndian.Uint32(b[:4])), string(b[4:])), nil
}

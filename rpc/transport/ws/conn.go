package ws

import (
	"github.com/ValentinKolb/cqrpc/rpc/transport/base"
	"github.com/gorilla/websocket"
	"io"
	"time"
)

// frameConn implements base.FrameConn on a websocket, every frame is one binary message
type frameConn struct {
	conn    *websocket.Conn
	timeout time.Duration
}

// newFrameConn wraps a websocket connection
func newFrameConn(conn *websocket.Conn, timeout time.Duration) *frameConn {
	conn.SetReadLimit(base.MaxFrameSize + 64)
	return &frameConn{conn: conn, timeout: timeout}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.FrameConn)
// --------------------------------------------------------------------------

func (c *frameConn) ReadFrame() (base.Frame, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			// a regular close of the peer is the end of the stream
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return base.Frame{}, io.EOF
			}
			return base.Frame{}, err
		}

		// text messages are not part of the protocol
		if mt != websocket.BinaryMessage {
			continue
		}

		return base.DecodeFrame(data)
	}
}

func (c *frameConn) WriteFrame(f base.Frame) error {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, base.EncodeFrame(f))
}

func (c *frameConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *frameConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

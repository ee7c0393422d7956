package websocket

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lisuiheng/lyricbridge/pkg/interfaces"
	"github.com/lisuiheng/lyricbridge/pkg/wire"
)

const (
	writeWait = 10 * time.Second
	// Cover images are the largest frames we expect.
	maxFrameSize = 16 << 20
)

var ErrTextFrame = errors.New("text frames are not part of the protocol")

var _ interfaces.FrameConn = (*Conn)(nil)

// Conn carries wire frames over one WebSocket connection. Reads must come
// from a single goroutine; writes may come from any.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(maxFrameSize)
	return &Conn{ws: ws}
}

func (c *Conn) ReadFrame() (wire.Message, error) {
	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, classifyReadError(err)
	}
	if msgType != websocket.BinaryMessage {
		return nil, &wire.DecodeError{Kind: wire.KindNone, Err: ErrTextFrame}
	}
	return wire.Decode(data)
}

func (c *Conn) WriteFrame(msg wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	return c.writeEncoded(data)
}

func (c *Conn) writeEncoded(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Close sends a close frame when possible and releases the socket.
// WriteControl is safe to call concurrently with WriteMessage.
func (c *Conn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

func classifyReadError(err error) error {
	var closeErr *websocket.CloseError
	// gorilla reports a dropped TCP connection as an abnormal closure.
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
		return fmt.Errorf("%w: %v", interfaces.ErrConnClosed, closeErr)
	}
	return err
}

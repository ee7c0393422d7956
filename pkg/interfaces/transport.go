// pkg/interfaces/transport.go
package interfaces

import (
	"context"
	"errors"

	"github.com/lisuiheng/lyricbridge/pkg/wire"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrConnClosed       = errors.New("connection closed")
)

// FrameConn is one established connection carrying wire frames.
type FrameConn interface {
	// ReadFrame blocks until one frame arrives. Malformed frames are
	// returned as a *wire.DecodeError and leave the connection usable.
	ReadFrame() (wire.Message, error)
	WriteFrame(msg wire.Message) error
	Close() error
	RemoteAddr() string
}

// Dialer opens outbound connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (FrameConn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (FrameConn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (FrameConn, error) {
	return f(ctx, url)
}

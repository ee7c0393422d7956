// protocols/websocket/transport.go
package websocket

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/lisuiheng/lyricbridge/pkg/interfaces"
)

const ProtocolVersion = 2

var _ interfaces.Dialer = (*Dialer)(nil)

// Dialer opens outbound connections to a lyric display.
type Dialer struct {
	ws     *websocket.Dialer
	header http.Header
}

func NewDialer(clientName string) *Dialer {
	headers := http.Header{}
	headers.Set("Protocol-Version", fmt.Sprintf("%d", ProtocolVersion))
	if clientName != "" {
		headers.Set("Client-Id", clientName)
	}
	return &Dialer{
		ws: &websocket.Dialer{
			Proxy:           http.ProxyFromEnvironment,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		header: headers,
	}
}

// Dial connects to url. The deadline of ctx bounds the whole handshake.
func (d *Dialer) Dial(ctx context.Context, url string) (interfaces.FrameConn, error) {
	conn, resp, err := d.ws.DialContext(ctx, url, d.header)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if resp != nil {
			return nil, fmt.Errorf("%w: %v (http %d)", interfaces.ErrConnectionFailed, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}
	return newConn(conn), nil
}

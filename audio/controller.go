// audio/controller.go
package audio

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lisuiheng/lyricbridge/media"
)

// Controller 把采集到的音频包转发到媒体事件流
type Controller struct {
	mu      sync.Mutex
	sending bool
	dropped uint64
	logger  *slog.Logger
}

// NewController 创建新的音频控制器实例
func NewController(logger *slog.Logger) *Controller {
	return &Controller{logger: logger}
}

func (c *Controller) StartSending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = true
}

func (c *Controller) StopSending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
}

func (c *Controller) IsSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Dropped reports how many packets could not be forwarded.
func (c *Controller) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Forward turns packets into RawAudioChunk events while sending is on.
// It returns when ctx is done or packets is closed.
func (c *Controller) Forward(ctx context.Context, packets <-chan []byte, events chan<- media.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-packets:
			if !ok {
				c.logger.Info("Audio packet channel closed")
				return
			}
			if !c.IsSending() {
				continue
			}
			select {
			case events <- media.RawAudioChunk{Data: data}:
			default:
				c.mu.Lock()
				c.dropped++
				n := c.dropped
				c.mu.Unlock()
				if n%100 == 1 {
					c.logger.Warn("Media event channel full, dropping audio", "dropped", n)
				}
			}
		}
	}
}

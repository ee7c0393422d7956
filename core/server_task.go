package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lisuiheng/lyricbridge/pkg/wire"
	"github.com/lisuiheng/lyricbridge/protocols/websocket"
)

// serverTask accepts lyric displays on a local port and broadcasts to all
// of them.
type serverTask struct {
	id     uint64
	port   uint16
	events chan<- taskEvent
	joins  chan<- peerJoin
	logger *slog.Logger
	server *websocket.Server

	mu             sync.Mutex
	decodeFailures map[string]int
}

// ctx bounds every callback the server runs on behalf of the task.
func newServerTask(ctx context.Context, id uint64, port uint16, events chan<- taskEvent, joins chan<- peerJoin, logger *slog.Logger) *serverTask {
	t := &serverTask{
		id:             id,
		port:           port,
		events:         events,
		joins:          joins,
		logger:         logger.With("mode", ModeServer),
		decodeFailures: make(map[string]int),
	}
	t.server = websocket.NewServer(t.handlers(ctx), t.logger)
	return t
}

func (t *serverTask) send(msg wire.Message) bool {
	n, err := t.server.Hub().Broadcast(msg, false)
	if err != nil {
		t.logger.Error("Failed to encode message", "kind", msg.Kind(), "error", err)
	}
	return n > 0
}

func (t *serverTask) offer(msg wire.Message) bool {
	n, _ := t.server.Hub().Broadcast(msg, true)
	return n > 0
}

func (t *serverTask) run(ctx context.Context) error {
	t.status(ctx, connecting(fmt.Sprintf("port %d", t.port)))
	ln, err := websocket.Listen(t.port)
	if err != nil {
		return fmt.Errorf("%w: port %d: %v", ErrListenerBind, t.port, err)
	}

	t.logger.Info("Waiting for lyric displays", "addr", ln.Addr().String())
	t.status(ctx, connected(ln.Addr().String()))

	if err := t.server.Serve(ctx, ln); err != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", ErrStreamIO, err)
	}
	return nil
}

func (t *serverTask) handlers(ctx context.Context) websocket.Handlers {
	return websocket.Handlers{
		OnJoin: func(p *websocket.Peer) {
			select {
			case t.joins <- peerJoin{task: t.id, peer: peerOutbound{p}}:
			case <-ctx.Done():
			case <-p.Done():
			}
		},
		OnFrame: func(p *websocket.Peer, msg wire.Message) {
			t.resetDecodeFailures(p.ID)
			switch msg.(type) {
			case wire.Ping:
				p.Send(wire.Pong{})
			case wire.Pong:
			default:
				emit(ctx, t.events, taskEvent{task: t.id, kind: eventFrame, frame: msg})
			}
		},
		OnDecodeError: func(p *websocket.Peer, err error) {
			n := t.countDecodeFailure(p.ID)
			t.logger.Warn("Dropping malformed frame", "client", p.ID, "error", err, "consecutive", n)
			if n >= maxConsecutiveDecodeErrors {
				p.Close()
			}
		},
		OnLeave: func(p *websocket.Peer, err error) {
			t.resetDecodeFailures(p.ID)
			if err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Debug("Lyric display left", "client", p.ID, "error", err)
			}
		},
	}
}

func (t *serverTask) countDecodeFailure(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decodeFailures[id]++
	return t.decodeFailures[id]
}

func (t *serverTask) resetDecodeFailures(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.decodeFailures, id)
}

func (t *serverTask) status(ctx context.Context, s Status) {
	emit(ctx, t.events, taskEvent{task: t.id, kind: eventStatus, status: s})
}

// peerOutbound targets a single server-mode client.
type peerOutbound struct {
	peer *websocket.Peer
}

func (o peerOutbound) send(msg wire.Message) bool  { return o.peer.Send(msg) }
func (o peerOutbound) offer(msg wire.Message) bool { return o.peer.Offer(msg) }

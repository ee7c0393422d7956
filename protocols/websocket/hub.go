package websocket

import (
	"log/slog"
	"sync"

	"github.com/lisuiheng/lyricbridge/pkg/wire"
)

const peerSendQueueSize = 64

// Peer is one accepted lyric display.
type Peer struct {
	ID   string
	conn *Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	logger    *slog.Logger
}

func newPeer(id string, conn *Conn, logger *slog.Logger) *Peer {
	return &Peer{
		ID:     id,
		conn:   conn,
		send:   make(chan []byte, peerSendQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send queues msg for this peer. A peer that cannot keep up with reliable
// messages is disconnected.
func (p *Peer) Send(msg wire.Message) bool {
	data, err := wire.Encode(msg)
	if err != nil {
		p.logger.Error("Failed to encode frame", "kind", msg.Kind(), "error", err)
		return false
	}
	return p.enqueue(data, false)
}

// Offer queues msg if there is room and drops it otherwise.
func (p *Peer) Offer(msg wire.Message) bool {
	data, err := wire.Encode(msg)
	if err != nil {
		p.logger.Error("Failed to encode frame", "kind", msg.Kind(), "error", err)
		return false
	}
	return p.enqueue(data, true)
}

func (p *Peer) enqueue(data []byte, lossy bool) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- data:
		return true
	case <-p.done:
		return false
	default:
		if lossy {
			return false
		}
		p.logger.Warn("Peer send queue full, disconnecting")
		p.Close()
		return false
	}
}

// Done is closed once the peer has been shut down.
func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

func (p *Peer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case data := <-p.send:
			if err := p.conn.writeEncoded(data); err != nil {
				p.logger.Warn("Failed to write to peer", "error", err)
				p.Close()
				return
			}
		}
	}
}

// Hub fans frames out to every connected peer.
type Hub struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

func NewHub() *Hub {
	return &Hub{peers: make(map[string]*Peer)}
}

func (h *Hub) add(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p.ID] = p
}

func (h *Hub) remove(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.peers[p.ID]; ok && cur == p {
		delete(h.peers, p.ID)
	}
}

func (h *Hub) snapshot() []*Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	return out
}

// Broadcast encodes msg once and queues it for every peer. It returns the
// number of peers that accepted the frame.
func (h *Hub) Broadcast(msg wire.Message, lossy bool) (int, error) {
	data, err := wire.Encode(msg)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, p := range h.snapshot() {
		if p.enqueue(data, lossy) {
			delivered++
		}
	}
	return delivered, nil
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// CloseAll disconnects every peer.
func (h *Hub) CloseAll() {
	for _, p := range h.snapshot() {
		p.Close()
	}
}

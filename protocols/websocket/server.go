package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lisuiheng/lyricbridge/pkg/wire"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Handlers receive server events. Every callback runs on the goroutine
// that owns the peer's connection.
type Handlers struct {
	OnJoin  func(p *Peer)
	OnFrame func(p *Peer, msg wire.Message)
	// OnDecodeError is called for frames that could not be decoded; the
	// connection stays open.
	OnDecodeError func(p *Peer, err error)
	OnLeave       func(p *Peer, err error)
}

// Server accepts lyric displays and fans state out to all of them.
type Server struct {
	hub      *Hub
	handlers Handlers
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(handlers Handlers, logger *slog.Logger) *Server {
	return &Server{
		hub:      NewHub(),
		handlers: handlers,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Listen binds the TCP port displays connect to. Port 0 picks a free port.
func Listen(port uint16) (net.Listener, error) {
	return net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(int(port))))
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleUpgrade)
	r.Get("/ws", s.handleUpgrade)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "ok %d\n", s.hub.Len())
	})
	return r
}

// Serve accepts connections on ln until ctx is cancelled, then closes the
// listener and every peer.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked connections are not tracked by http.Server.
		s.hub.CloseAll()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	peer := newPeer(uuid.NewString(), newConn(ws), s.logger.With("client", r.RemoteAddr))
	s.hub.add(peer)
	s.logger.Info("Lyric display connected", "id", peer.ID, "remote", r.RemoteAddr, "clients", s.hub.Len())

	go peer.writeLoop()
	if s.handlers.OnJoin != nil {
		s.handlers.OnJoin(peer)
	}

	err = s.readLoop(peer)

	s.hub.remove(peer)
	peer.Close()
	s.logger.Info("Lyric display disconnected", "id", peer.ID, "reason", err, "clients", s.hub.Len())
	if s.handlers.OnLeave != nil {
		s.handlers.OnLeave(peer, err)
	}
}

func (s *Server) readLoop(p *Peer) error {
	for {
		msg, err := p.conn.ReadFrame()
		if err != nil {
			var decodeErr *wire.DecodeError
			if errors.As(err, &decodeErr) {
				if s.handlers.OnDecodeError != nil {
					s.handlers.OnDecodeError(p, err)
				}
				continue
			}
			return err
		}
		if s.handlers.OnFrame != nil {
			s.handlers.OnFrame(p, msg)
		}
	}
}

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lisuiheng/lyricbridge/pkg/interfaces"
	"github.com/lisuiheng/lyricbridge/pkg/wire"
	"github.com/lisuiheng/lyricbridge/utils"
	"golang.org/x/sync/errgroup"
)

const (
	reliableQueueSize = 256
	lossyQueueSize    = 16
	// A peer that keeps sending garbage is treated as a broken stream.
	maxConsecutiveDecodeErrors = 8
)

// clientTask dials a lyric display and keeps the connection alive,
// reconnecting with a fixed delay until it gives up.
type clientTask struct {
	id      uint64
	url     string
	dialer  interfaces.Dialer
	timings Timings
	events  chan<- taskEvent
	logger  *slog.Logger

	reliable chan wire.Message
	lossy    chan wire.Message
}

func newClientTask(id uint64, url string, dialer interfaces.Dialer, timings Timings, events chan<- taskEvent, logger *slog.Logger) *clientTask {
	return &clientTask{
		id:       id,
		url:      url,
		dialer:   dialer,
		timings:  timings,
		events:   events,
		logger:   logger.With("mode", ModeClient, "url", url),
		reliable: make(chan wire.Message, reliableQueueSize),
		lossy:    make(chan wire.Message, lossyQueueSize),
	}
}

func (t *clientTask) send(msg wire.Message) bool {
	select {
	case t.reliable <- msg:
		return true
	default:
		t.logger.Warn("Send queue full, dropping message", "kind", msg.Kind())
		return false
	}
}

func (t *clientTask) offer(msg wire.Message) bool {
	select {
	case t.lossy <- msg:
		return true
	default:
		return false
	}
}

// run returns nil when ctx is cancelled. Any other return is a
// non-retryable failure.
func (t *clientTask) run(ctx context.Context) error {
	backoff := utils.NewFixedBackoff(t.timings.RetryDelay, t.timings.MaxFailures)
	for {
		err := t.session(ctx, backoff)
		if ctx.Err() != nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}

		delay, ok := backoff.NextDelay()
		if !ok {
			err = fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, backoff.Failures(), err)
			t.logger.Error("Connection failed", "error", err)
			t.status(ctx, failed(err))
			// Stay idle until the connector restarts or stops us.
			<-ctx.Done()
			return nil
		}

		t.logger.Warn("Connection lost, retrying",
			"error", err,
			"attempt", backoff.Failures(),
			"delay", delay)
		t.status(ctx, failed(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (t *clientTask) session(ctx context.Context, backoff utils.ReconnectStrategy) error {
	t.status(ctx, connecting(t.url))
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	backoff.Reset()
	t.drain()
	t.logger.Info("Connected to lyric display", "remote", conn.RemoteAddr())
	t.status(ctx, connected(t.url))
	emit(ctx, t.events, taskEvent{task: t.id, kind: eventSessionUp})

	err = t.serve(ctx, conn)
	emit(ctx, t.events, taskEvent{task: t.id, kind: eventSessionDown})
	return err
}

func (t *clientTask) dial(ctx context.Context) (interfaces.FrameConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, t.timings.ConnectTimeout)
	defer cancel()

	conn, err := t.dialer.Dial(dialCtx, t.url)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrConnectTimeout, t.timings.ConnectTimeout)
	}
	return nil, fmt.Errorf("%w: %v", ErrHandshakeFailure, err)
}

// drain discards messages queued for a previous connection.
func (t *clientTask) drain() {
	for {
		select {
		case <-t.reliable:
		case <-t.lossy:
		default:
			return
		}
	}
}

func (t *clientTask) serve(ctx context.Context, conn interfaces.FrameConn) error {
	frames := make(chan wire.Message)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.readLoop(gctx, conn, frames)
	})
	g.Go(func() error {
		err := t.pump(gctx, conn, frames)
		// Unblocks the reader.
		conn.Close()
		return err
	})
	return g.Wait()
}

func (t *clientTask) readLoop(ctx context.Context, conn interfaces.FrameConn, frames chan<- wire.Message) error {
	decodeFailures := 0
	for {
		msg, err := conn.ReadFrame()
		if err != nil {
			var decodeErr *wire.DecodeError
			if errors.As(err, &decodeErr) {
				decodeFailures++
				t.logger.Warn("Dropping malformed frame", "error", err, "consecutive", decodeFailures)
				if decodeFailures >= maxConsecutiveDecodeErrors {
					return fmt.Errorf("%w: %d consecutive malformed frames", ErrStreamIO, decodeFailures)
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, interfaces.ErrConnClosed) {
				return fmt.Errorf("%w: %v", ErrPeerClosed, err)
			}
			return fmt.Errorf("%w: read: %v", ErrStreamIO, err)
		}
		decodeFailures = 0

		select {
		case frames <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// heartbeat tracks the outstanding ping; pongC fires when its pong is overdue.
type heartbeat struct {
	lastPingAt time.Time
	timer      *time.Timer
	pongC      <-chan time.Time
}

func (hb *heartbeat) arm(now time.Time, timeout time.Duration) {
	hb.lastPingAt = now
	hb.timer = time.NewTimer(timeout)
	hb.pongC = hb.timer.C
}

func (hb *heartbeat) disarm() {
	if hb.timer != nil {
		hb.timer.Stop()
	}
	hb.timer, hb.pongC = nil, nil
}

// pump owns all writes on conn: queued messages, pongs and pings.
func (t *clientTask) pump(ctx context.Context, conn interfaces.FrameConn, frames <-chan wire.Message) error {
	ticker := time.NewTicker(t.timings.PingInterval)
	defer ticker.Stop()

	var hb heartbeat
	defer hb.disarm()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-t.reliable:
			if !ok {
				return ErrChannelClosed
			}
			if err := t.write(conn, msg); err != nil {
				return err
			}

		case msg, ok := <-t.lossy:
			if !ok {
				return ErrChannelClosed
			}
			if err := t.write(conn, msg); err != nil {
				return err
			}

		case msg := <-frames:
			switch msg.(type) {
			case wire.Ping:
				if err := t.write(conn, wire.Pong{}); err != nil {
					return err
				}
			case wire.Pong:
				hb.disarm()
			default:
				if !emit(ctx, t.events, taskEvent{task: t.id, kind: eventFrame, frame: msg}) {
					return ctx.Err()
				}
			}

		case now := <-hb.pongC:
			return fmt.Errorf("%w: no pong for %s", ErrHeartbeatTimeout, now.Sub(hb.lastPingAt).Round(time.Millisecond))

		case now := <-ticker.C:
			if hb.pongC != nil {
				continue
			}
			if err := t.write(conn, wire.Ping{}); err != nil {
				return err
			}
			hb.arm(now, t.timings.PongTimeout)
		}
	}
}

func (t *clientTask) write(conn interfaces.FrameConn, msg wire.Message) error {
	err := conn.WriteFrame(msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wire.ErrCountOverflow), errors.Is(err, wire.ErrNilMessage):
		t.logger.Error("Failed to encode message", "kind", msg.Kind(), "error", err)
		return nil
	default:
		return fmt.Errorf("%w: write %s: %v", ErrStreamIO, msg.Kind(), err)
	}
}

func (t *clientTask) status(ctx context.Context, s Status) {
	emit(ctx, t.events, taskEvent{task: t.id, kind: eventStatus, status: s})
}

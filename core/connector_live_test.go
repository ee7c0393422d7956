package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisuiheng/lyricbridge/media"
	"github.com/lisuiheng/lyricbridge/pkg/interfaces"
	"github.com/lisuiheng/lyricbridge/pkg/lyric"
	"github.com/lisuiheng/lyricbridge/pkg/wire"
	"github.com/lisuiheng/lyricbridge/protocols/websocket"
)

const waitTimeout = 3 * time.Second

// display is a lyric display the connector can dial.
type display struct {
	url    string
	frames chan wire.Message
	peers  chan *websocket.Peer
}

func startDisplay(t *testing.T) *display {
	t.Helper()
	d := &display{
		frames: make(chan wire.Message, 256),
		peers:  make(chan *websocket.Peer, 8),
	}
	srv := websocket.NewServer(websocket.Handlers{
		OnJoin: func(p *websocket.Peer) { d.peers <- p },
		OnFrame: func(p *websocket.Peer, msg wire.Message) {
			if _, ok := msg.(wire.Ping); ok {
				p.Send(wire.Pong{})
				return
			}
			d.frames <- msg
		},
	}, discardLogger())

	ln, err := websocket.Listen(0)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	d.url = fmt.Sprintf("ws://127.0.0.1:%d/ws", ln.Addr().(*net.TCPAddr).Port)
	return d
}

func (d *display) next(t *testing.T) wire.Message {
	t.Helper()
	select {
	case msg := <-d.frames:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

// collect returns every frame received within d.
func (d *display) collect(dur time.Duration) []wire.Message {
	var out []wire.Message
	deadline := time.After(dur)
	for {
		select {
		case msg := <-d.frames:
			out = append(out, msg)
		case <-deadline:
			return out
		}
	}
}

func countKind(msgs []wire.Message, kind wire.Kind) int {
	n := 0
	for _, m := range msgs {
		if m.Kind() == kind {
			n++
		}
	}
	return n
}

type harness struct {
	c        *Connector
	events   chan media.Event
	commands chan media.Command
}

func startConnector(t *testing.T, cfg Config, dialer interfaces.Dialer, timings Timings) *harness {
	t.Helper()
	h := &harness{
		events:   make(chan media.Event, 16),
		commands: make(chan media.Command, 64),
	}
	c, err := New(Options{
		Config:        cfg,
		Timings:       timings,
		Dialer:        dialer,
		MediaEvents:   h.events,
		MediaCommands: h.commands,
		Logger:        discardLogger(),
	})
	require.NoError(t, err)
	h.c = c

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// waitStatus skips updates until a status of the given kind arrives.
func (h *harness) waitStatus(t *testing.T, kind StatusKind) Status {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case u := <-h.c.Updates():
			if s, ok := u.(StatusChanged); ok && s.Status.Kind == kind {
				return s.Status
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s status", kind)
		}
	}
}

func (h *harness) nextStatus(t *testing.T) Status {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case u := <-h.c.Updates():
			if s, ok := u.(StatusChanged); ok {
				return s.Status
			}
		case <-timeout:
			t.Fatal("timed out waiting for a status")
		}
	}
}

// publish sends a media event and waits until the actor has processed it.
func (h *harness) publish(t *testing.T, ev media.Event) {
	t.Helper()
	h.events <- ev
	timeout := time.After(waitTimeout)
	for {
		select {
		case u := <-h.c.Updates():
			if _, ok := u.(MediaEvent); ok {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for media event")
		}
	}
}

type failingDialer struct {
	attempts atomic.Int32
}

func (d *failingDialer) Dial(context.Context, string) (interfaces.FrameConn, error) {
	d.attempts.Add(1)
	return nil, errors.New("connection refused")
}

func TestFullStatePushedOncePerConnection(t *testing.T) {
	d := startDisplay(t)
	h := startConnector(t, Config{Mode: ModeClient, RemoteURL: d.url}, nil, testTimings())

	h.publish(t, media.TrackChanged{Info: media.NowPlaying{ID: "t1", Title: "Song", IsPlaying: true, DurationMs: 600_000}})
	doc := lyric.Document{Lines: []lyric.Line{{StartMs: 0, EndMs: 2000, Syllables: []lyric.Syllable{{StartMs: 0, EndMs: 2000, Text: "la"}}}}}
	require.NoError(t, h.c.SendLyricDocument(doc))
	require.NoError(t, h.c.UpdateConfig(Config{Enabled: true, Mode: ModeClient, RemoteURL: d.url}))
	h.waitStatus(t, StatusConnected)

	assert.Equal(t, wire.Initialize{}, d.next(t), "initialize comes first")
	frames := d.collect(300 * time.Millisecond)
	assert.Equal(t, 1, countKind(frames, wire.KindSetMusicInfo))
	assert.Equal(t, 1, countKind(frames, wire.KindResumed))
	assert.Equal(t, 1, countKind(frames, wire.KindProgress))
	assert.Equal(t, 1, countKind(frames, wire.KindSetLyric))

	// A dropped connection is re-established and pushed again, once.
	peer := <-d.peers
	peer.Close()
	h.waitStatus(t, StatusError)
	h.waitStatus(t, StatusConnected)

	assert.Equal(t, wire.Initialize{}, d.next(t))
	frames = d.collect(300 * time.Millisecond)
	assert.Equal(t, 1, countKind(frames, wire.KindSetMusicInfo))
	assert.Equal(t, 1, countKind(frames, wire.KindSetLyric))

	// Live updates flow once ready.
	h.publish(t, media.VolumeChanged{Volume: 0.7})
	assert.Equal(t, wire.VolumeChanged{Volume: 0.7}, d.next(t))
}

func TestStatusDeliveredAfterUpdatesBackUp(t *testing.T) {
	h := startConnector(t, Config{}, &failingDialer{}, testTimings())

	// Nobody reads Updates while media events pile up past its capacity.
	for i := 0; i < updateQueueSize+40; i++ {
		h.events <- media.VolumeChanged{Volume: 0.5}
	}
	require.Eventually(t, func() bool { return len(h.c.Updates()) == updateQueueSize }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, h.c.DisconnectWebsocket())
	// Requests are handled in order, so the disconnect has been seen once this arrives.
	require.NoError(t, h.c.SelectSession("after"))
	select {
	case cmd := <-h.commands:
		require.Equal(t, media.SelectSession{ID: "after"}, cmd)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for session command")
	}

	assert.Equal(t, StatusDisconnected, h.nextStatus(t).Kind)
}

func TestRemoteCommandsReachMediaSession(t *testing.T) {
	d := startDisplay(t)
	h := startConnector(t, Config{Enabled: true, Mode: ModeClient, RemoteURL: d.url}, nil, testTimings())
	h.waitStatus(t, StatusConnected)

	peer := <-d.peers
	peer.Send(wire.NextSong{})
	peer.Send(wire.SetShuffle{Enabled: true})

	var got []media.Command
	timeout := time.After(waitTimeout)
	for len(got) < 3 {
		select {
		case cmd := <-h.commands:
			got = append(got, cmd)
		case <-timeout:
			t.Fatalf("received only %v", got)
		}
	}
	assert.Equal(t, []media.Command{
		media.EnableHighFrequencyUpdates{Enabled: true},
		media.SkipNext{},
		media.SetShuffle{Enabled: true},
	}, got)
}

func TestReconnectGivesUpAfterMaxFailures(t *testing.T) {
	dialer := &failingDialer{}
	timings := testTimings()
	h := startConnector(t, Config{Enabled: true, Mode: ModeClient, RemoteURL: "ws://127.0.0.1:1/ws"}, dialer, timings)

	timeout := time.After(waitTimeout)
	for {
		s := h.waitStatus(t, StatusError)
		if strings.Contains(s.Reason, "giving up") {
			break
		}
		select {
		case <-timeout:
			t.Fatal("never gave up")
		default:
		}
	}
	assert.Equal(t, int32(timings.MaxFailures), dialer.attempts.Load())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(timings.MaxFailures), dialer.attempts.Load(), "idle after giving up")

	// An explicit start revives the task.
	require.NoError(t, h.c.StartConnection())
	require.Eventually(t, func() bool {
		return dialer.attempts.Load() > int32(timings.MaxFailures)
	}, waitTimeout, 10*time.Millisecond)
}

func TestDisconnectDuringRetryDelay(t *testing.T) {
	dialer := &failingDialer{}
	timings := testTimings()
	timings.RetryDelay = time.Hour
	h := startConnector(t, Config{Enabled: true, Mode: ModeClient, RemoteURL: "ws://127.0.0.1:1/ws"}, dialer, timings)

	h.waitStatus(t, StatusError)
	require.NoError(t, h.c.DisconnectWebsocket())
	assert.Equal(t, StatusDisconnected, h.nextStatus(t).Kind, "cancellation is not an error")
	assert.Equal(t, int32(1), dialer.attempts.Load())

	// Disconnect while disconnected reports the state again.
	require.NoError(t, h.c.DisconnectWebsocket())
	assert.Equal(t, StatusDisconnected, h.nextStatus(t).Kind)
}

func TestHeartbeatTimeout(t *testing.T) {
	// A display that never answers pings.
	upgrader := gorilla.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	timings := testTimings()
	timings.PingInterval = 20 * time.Millisecond
	timings.PongTimeout = 50 * time.Millisecond
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	h := startConnector(t, Config{Enabled: true, Mode: ModeClient, RemoteURL: url}, nil, timings)

	h.waitStatus(t, StatusConnected)
	s := h.waitStatus(t, StatusError)
	assert.Contains(t, s.Reason, ErrHeartbeatTimeout.Error())
}

func TestConnectTimeout(t *testing.T) {
	blocking := interfaces.DialerFunc(func(ctx context.Context, _ string) (interfaces.FrameConn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	timings := testTimings()
	timings.ConnectTimeout = 20 * time.Millisecond
	h := startConnector(t, Config{Enabled: true, Mode: ModeClient, RemoteURL: "ws://10.255.255.1/ws"}, blocking, timings)

	s := h.waitStatus(t, StatusError)
	assert.Contains(t, s.Reason, ErrConnectTimeout.Error())
}

func TestInvalidConfigReported(t *testing.T) {
	dialer := &failingDialer{}
	h := startConnector(t, Config{Enabled: true, Mode: ModeClient, RemoteURL: "http://example.com"}, dialer, testTimings())

	s := h.waitStatus(t, StatusError)
	assert.Contains(t, s.Reason, ErrConfig.Error())
	assert.Equal(t, int32(0), dialer.attempts.Load())
}

func TestUpdateConfigRestartsOnTargetChange(t *testing.T) {
	first, second := startDisplay(t), startDisplay(t)
	h := startConnector(t, Config{Enabled: true, Mode: ModeClient, RemoteURL: first.url}, nil, testTimings())
	h.waitStatus(t, StatusConnected)
	assert.Equal(t, wire.Initialize{}, first.next(t))

	require.NoError(t, h.c.UpdateConfig(Config{Enabled: true, Mode: ModeClient, RemoteURL: second.url}))
	h.waitStatus(t, StatusConnected)
	assert.Equal(t, wire.Initialize{}, second.next(t))

	// Disabling stops without restarting.
	require.NoError(t, h.c.UpdateConfig(Config{Enabled: false, Mode: ModeClient, RemoteURL: second.url}))
	h.waitStatus(t, StatusDisconnected)
}

func TestServerModePushesFullStatePerClient(t *testing.T) {
	h := startConnector(t, Config{Enabled: true, Mode: ModeServer, ListenPort: 0}, nil, testTimings())
	s := h.waitStatus(t, StatusConnected)
	_, port, err := net.SplitHostPort(s.Reason)
	require.NoError(t, err)
	url := fmt.Sprintf("ws://127.0.0.1:%s/ws", port)

	h.publish(t, media.TrackChanged{Info: media.NowPlaying{ID: "t9", Title: "Live"}})

	for i := 0; i < 2; i++ {
		ws, _, err := gorilla.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer ws.Close()

		msg := readUntil(t, ws, wire.KindSetMusicInfo)
		assert.Equal(t, "Live", msg.(wire.SetMusicInfo).Name)

		ping, err := wire.Encode(wire.Ping{})
		require.NoError(t, err)
		require.NoError(t, ws.WriteMessage(gorilla.BinaryMessage, ping))
		readUntil(t, ws, wire.KindPong)
	}

	require.NoError(t, h.c.Shutdown(context.Background()))
}

func TestServerModeBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	h := startConnector(t, Config{Enabled: true, Mode: ModeServer, ListenPort: port}, nil, testTimings())
	s := h.waitStatus(t, StatusError)
	assert.Contains(t, s.Reason, ErrListenerBind.Error())
}

func readUntil(t *testing.T, ws *gorilla.Conn, kind wire.Kind) wire.Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(waitTimeout)))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		msg, err := wire.Decode(data)
		require.NoError(t, err)
		if msg.Kind() == kind {
			return msg
		}
	}
}

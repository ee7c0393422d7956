package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lisuiheng/lyricbridge/media"
	"github.com/lisuiheng/lyricbridge/pkg/interfaces"
	"github.com/lisuiheng/lyricbridge/pkg/lyric"
	"github.com/lisuiheng/lyricbridge/pkg/wire"
	"github.com/lisuiheng/lyricbridge/protocols/websocket"
)

const (
	requestQueueSize = 64
	updateQueueSize  = 256
	clientName       = "lyricbridge"
)

type connPhase int

const (
	phaseDisconnected connPhase = iota
	phaseRunning
	phaseShuttingDown
)

// connState is owned by the actor goroutine.
type connState struct {
	phase connPhase
	task  *taskHandle
	// restart is the follow-up action once a shutting-down task exits.
	restart bool
}

type (
	startRequest      struct{}
	disconnectRequest struct{}
	shutdownRequest   struct{}
	configRequest     struct{ cfg Config }
	settingsRequest   struct{ settings ActorSettings }
	lyricRequest      struct{ doc wire.LyricDocument }
	coverRequest      struct{ data []byte }
	sessionRequest    struct{ id string }
)

// Options configure a Connector.
type Options struct {
	Config   Config
	Settings ActorSettings
	// Timings defaults to DefaultTimings when zero.
	Timings Timings
	// Dialer defaults to the WebSocket dialer.
	Dialer        interfaces.Dialer
	MediaEvents   <-chan media.Event
	MediaCommands chan<- media.Command
	Logger        *slog.Logger
}

// Connector bridges a media session and lyric displays. All state belongs
// to the goroutine running Run; the exported methods only post requests.
type Connector struct {
	dialer  interfaces.Dialer
	timings Timings
	logger  *slog.Logger
	now     func() time.Time

	requests   chan any
	updates    chan Update
	taskEvents chan taskEvent
	peerJoins  chan peerJoin
	taskDone   chan taskResult
	stopped    chan struct{}

	mediaEvents   <-chan media.Event
	mediaCommands chan<- media.Command

	cfg           Config
	settings      ActorSettings
	state         connState
	nextTaskID    uint64
	snap          snapshot
	gate          *commandGate
	ready         bool
	highFrequency bool
	settle        *time.Timer
	settleC       <-chan time.Time
	// statuses waiting for room in updates; never dropped.
	pendingStatus []Status
}

func New(opts Options) (*Connector, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	timings := opts.Timings
	if timings == (Timings{}) {
		timings = DefaultTimings()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.NewDialer(clientName)
	}

	return &Connector{
		dialer:        dialer,
		timings:       timings,
		logger:        opts.Logger.With("component", "connector"),
		now:           time.Now,
		requests:      make(chan any, requestQueueSize),
		updates:       make(chan Update, updateQueueSize),
		taskEvents:    make(chan taskEvent, taskEventQueueSize),
		peerJoins:     make(chan peerJoin, peerJoinQueueSize),
		taskDone:      make(chan taskResult, 1),
		stopped:       make(chan struct{}),
		mediaEvents:   opts.MediaEvents,
		mediaCommands: opts.MediaCommands,
		cfg:           opts.Config,
		settings:      opts.Settings,
		gate:          newCommandGate(timings),
	}, nil
}

// Updates delivers status changes and forwarded media events. The channel
// is closed when Run returns. Media events are dropped if it is not drained;
// status changes are held until there is room.
func (c *Connector) Updates() <-chan Update { return c.updates }

// StartConnection enables the connector and (re)starts its connection.
func (c *Connector) StartConnection() error { return c.submit(startRequest{}) }

// UpdateConfig replaces the connection config.
func (c *Connector) UpdateConfig(cfg Config) error { return c.submit(configRequest{cfg: cfg}) }

func (c *Connector) UpdateActorSettings(s ActorSettings) error {
	return c.submit(settingsRequest{settings: s})
}

// DisconnectWebsocket stops the running connection without restarting it.
func (c *Connector) DisconnectWebsocket() error { return c.submit(disconnectRequest{}) }

// SendLyricDocument stores doc and sends it to connected displays.
func (c *Connector) SendLyricDocument(doc lyric.Document) error {
	return c.submit(lyricRequest{doc: lyric.ToWire(doc)})
}

func (c *Connector) SendCoverImage(data []byte) error {
	return c.submit(coverRequest{data: data})
}

// SelectSession asks the media session observer to follow another session.
func (c *Connector) SelectSession(id string) error {
	return c.submit(sessionRequest{id: id})
}

// Shutdown stops the running task and waits for Run to return.
func (c *Connector) Shutdown(ctx context.Context) error {
	if err := c.submit(shutdownRequest{}); err != nil {
		return nil
	}
	select {
	case <-c.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connector) submit(req any) error {
	select {
	case <-c.stopped:
		return ErrConnectorStopped
	default:
	}
	select {
	case c.requests <- req:
		return nil
	case <-c.stopped:
		return ErrConnectorStopped
	}
}

// Run processes requests and events until Shutdown or ctx is cancelled.
func (c *Connector) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer close(c.updates)
	defer c.flushStatuses()

	c.logger.Info("Connector started", "enabled", c.cfg.Enabled, "mode", c.cfg.Mode)
	if c.cfg.Enabled {
		c.spawn(ctx)
	}

	events := c.mediaEvents
	for {
		var statusOut chan<- Update
		var head Update
		if len(c.pendingStatus) > 0 {
			statusOut, head = c.updates, StatusChanged{Status: c.pendingStatus[0]}
		}

		select {
		case statusOut <- head:
			c.pendingStatus = c.pendingStatus[1:]

		case <-ctx.Done():
			c.stop()
			return nil

		case req := <-c.requests:
			if _, ok := req.(shutdownRequest); ok {
				c.stop()
				return nil
			}
			c.handleRequest(ctx, req)

		case ev, ok := <-events:
			if !ok {
				c.logger.Warn("Media event stream closed")
				events = nil
				continue
			}
			c.handleMediaEvent(ev)

		case ev := <-c.taskEvents:
			c.handleTaskEvent(ev)

		case j := <-c.peerJoins:
			if c.isCurrent(j.task) {
				c.pushFullState(j.peer)
			}

		case res := <-c.taskDone:
			c.handleTaskDone(ctx, res)

		case <-c.settleC:
			c.settle, c.settleC = nil, nil
			if c.state.phase == phaseRunning {
				c.ready = true
				c.logger.Debug("Display settled, pushing full state")
				c.pushFullState(c.state.task.out)
			}
		}
	}
}

func (c *Connector) handleRequest(ctx context.Context, req any) {
	switch r := req.(type) {
	case startRequest:
		c.cfg.Enabled = true
		switch c.state.phase {
		case phaseDisconnected:
			c.spawn(ctx)
		case phaseRunning:
			c.beginShutdown(true)
		case phaseShuttingDown:
			c.state.restart = true
		}

	case configRequest:
		c.applyConfig(ctx, r.cfg)

	case settingsRequest:
		c.settings = r.settings

	case disconnectRequest:
		switch c.state.phase {
		case phaseDisconnected:
			c.setStatus(disconnected())
		case phaseRunning:
			c.beginShutdown(false)
		case phaseShuttingDown:
			c.state.restart = false
		}

	case lyricRequest:
		c.snap.lyric = r.doc
		c.broadcast(wire.SetLyric{Lines: r.doc}, false)

	case coverRequest:
		c.snap.cover = r.data
		c.broadcast(wire.SetCoverImage{Data: r.data}, false)

	case sessionRequest:
		c.command(media.SelectSession{ID: r.id})
	}
}

func (c *Connector) applyConfig(ctx context.Context, next Config) {
	prev := c.cfg
	c.cfg = next

	switch c.state.phase {
	case phaseDisconnected:
		if next.Enabled {
			c.spawn(ctx)
		}
	case phaseRunning:
		switch {
		case !next.Enabled:
			c.beginShutdown(false)
		case !prev.sameTarget(next):
			c.beginShutdown(true)
		}
	case phaseShuttingDown:
		switch {
		case !next.Enabled:
			c.state.restart = false
		case !prev.sameTarget(next):
			c.state.restart = true
		}
	}
}

func (c *Connector) spawn(ctx context.Context) {
	cfg := c.cfg
	if err := cfg.Validate(); err != nil {
		c.logger.Error("Not connecting", "error", err)
		c.setStatus(failed(err))
		return
	}

	c.nextTaskID++
	id := c.nextTaskID
	taskCtx, cancel := context.WithCancel(ctx)
	h := &taskHandle{id: id, cfg: cfg, cancel: cancel, done: make(chan struct{})}

	var run func(context.Context) error
	switch cfg.Mode {
	case ModeServer:
		t := newServerTask(taskCtx, id, cfg.ListenPort, c.taskEvents, c.peerJoins, c.logger)
		h.out, run = t, t.run
	default:
		t := newClientTask(id, cfg.RemoteURL, c.dialer, c.timings, c.taskEvents, c.logger)
		h.out, run = t, t.run
	}

	c.gate = newCommandGate(c.timings)
	// Server mode pushes full state per client on join.
	c.ready = cfg.Mode == ModeServer
	c.state = connState{phase: phaseRunning, task: h}
	c.logger.Info("Starting connection", "task", id, "mode", cfg.Mode, "target", cfg.target())

	go func() {
		err := run(taskCtx)
		close(h.done)
		select {
		case c.taskDone <- taskResult{task: id, err: err}:
		case <-c.stopped:
		}
	}()
}

func (c *Connector) beginShutdown(restart bool) {
	h := c.state.task
	c.logger.Info("Stopping connection", "task", h.id, "restart", restart)
	h.cancel()
	c.state.phase = phaseShuttingDown
	c.state.restart = restart
	c.dropReadiness()
}

// stop cancels the running task and waits for it to exit.
func (c *Connector) stop() {
	if h := c.state.task; h != nil {
		h.cancel()
		<-h.done
		c.dropReadiness()
		c.state = connState{}
		c.setStatus(disconnected())
	}
	c.logger.Info("Connector stopped")
}

func (c *Connector) handleTaskDone(ctx context.Context, res taskResult) {
	h := c.state.task
	if h == nil || h.id != res.task {
		return
	}
	cancelled := c.state.phase == phaseShuttingDown
	restart := cancelled && c.state.restart
	h.cancel()
	c.dropReadiness()
	c.state = connState{}

	switch {
	case restart:
		c.spawn(ctx)
	case res.err == nil || cancelled:
		c.setStatus(disconnected())
	default:
		c.logger.Error("Connection ended", "task", h.id, "error", res.err)
		c.setStatus(failed(res.err))
	}
}

func (c *Connector) isCurrent(task uint64) bool {
	return c.state.phase == phaseRunning && c.state.task.id == task
}

func (c *Connector) handleTaskEvent(ev taskEvent) {
	// Events from a task being shut down are stale.
	if !c.isCurrent(ev.task) {
		return
	}
	switch ev.kind {
	case eventStatus:
		c.setStatus(ev.status)

	case eventSessionUp:
		c.dropReadiness()
		c.command(media.EnableHighFrequencyUpdates{Enabled: true})
		c.highFrequency = true
		c.state.task.out.send(wire.Initialize{})
		c.settle = time.NewTimer(c.timings.SettleDelay)
		c.settleC = c.settle.C

	case eventSessionDown:
		c.dropReadiness()

	case eventFrame:
		c.handleRemote(ev.frame)
	}
}

// dropReadiness forgets the current display session.
func (c *Connector) dropReadiness() {
	if c.settle != nil {
		c.settle.Stop()
		c.settle, c.settleC = nil, nil
	}
	if c.highFrequency {
		c.command(media.EnableHighFrequencyUpdates{Enabled: false})
		c.highFrequency = false
	}
	c.ready = false
}

func (c *Connector) pushFullState(out outbound) {
	for _, msg := range c.snap.fullState(c.now(), c.settings.ProgressOffsetMs) {
		out.send(msg)
	}
}

func (c *Connector) canSend() bool {
	return c.cfg.Enabled && c.ready && c.state.phase == phaseRunning
}

func (c *Connector) broadcast(msg wire.Message, lossy bool) {
	if !c.canSend() {
		return
	}
	if lossy {
		c.state.task.out.offer(msg)
		return
	}
	c.state.task.out.send(msg)
}

func (c *Connector) handleMediaEvent(ev media.Event) {
	now := c.now()
	switch e := ev.(type) {
	case media.TrackChanged:
		c.snap.setTrack(e.Info, now)
		c.broadcast(musicInfo(e.Info), false)
		if len(e.Info.Cover) > 0 {
			c.broadcast(wire.SetCoverImage{Data: e.Info.Cover}, false)
		}
		c.broadcast(c.snap.playState(), false)
		c.broadcast(c.progress(now), true)

	case media.PlaybackStatusChanged:
		playChanged, modeChanged := c.snap.setPlayback(e, now)
		if playChanged {
			c.broadcast(c.snap.playState(), false)
		}
		c.broadcast(c.progress(now), true)
		if modeChanged {
			c.broadcast(wire.ModeChanged{Repeat: e.Repeat, Shuffle: e.Shuffle}, false)
		}

	case media.VolumeChanged:
		c.snap.volume, c.snap.haveVolume = e.Volume, true
		c.broadcast(wire.VolumeChanged{Volume: e.Volume}, false)

	case media.RawAudioChunk:
		if c.settings.ForwardAudio && c.canSend() && c.gate.allowAudio(now) {
			c.broadcast(wire.AudioData{Data: e.Data}, true)
		}
		// Audio goes to displays only.
		return

	case media.SelectedSessionVanished:
		c.logger.Info("Selected media session vanished", "session", e.ID)
	}
	c.emitUpdate(MediaEvent{Event: ev})
}

func (c *Connector) progress(now time.Time) wire.Progress {
	return wire.Progress{PositionMs: c.snap.positionAtTime(now, c.settings.ProgressOffsetMs)}
}

// handleRemote turns a display's request into a media command.
func (c *Connector) handleRemote(msg wire.Message) {
	now := c.now()
	switch m := msg.(type) {
	case wire.Pause:
		c.command(media.Pause{})
	case wire.Resume:
		c.command(media.Play{})
	case wire.NextSong:
		c.command(media.SkipNext{})
	case wire.PreviousSong:
		c.command(media.SkipPrevious{})
	case wire.SeekTo:
		if !c.gate.allowSeek(m.PositionMs, now) {
			c.logger.Debug("Dropping repeated seek", "position_ms", m.PositionMs)
			return
		}
		c.command(media.SeekTo{PositionMs: m.PositionMs})
	case wire.SetVolume:
		if !validVolume(m.Volume) {
			c.logger.Warn("Rejecting volume out of range", "volume", m.Volume)
			return
		}
		if !c.gate.allowVolume(m.Volume, now) {
			return
		}
		c.command(media.SetVolume{Volume: m.Volume})
	case wire.SetRepeat:
		c.command(media.SetRepeatMode{Mode: m.Mode})
	case wire.SetShuffle:
		c.command(media.SetShuffle{Enabled: m.Enabled})
	default:
		c.logger.Debug("Ignoring message from display", "kind", msg.Kind())
	}
}

func (c *Connector) command(cmd media.Command) {
	if c.mediaCommands == nil {
		return
	}
	select {
	case c.mediaCommands <- cmd:
	default:
		c.logger.Warn("Media command queue full, dropping command", "command", cmd)
	}
}

func (c *Connector) setStatus(s Status) {
	c.logger.Debug("Status changed", "status", s)
	if len(c.pendingStatus) == 0 {
		select {
		case c.updates <- StatusChanged{Status: s}:
			return
		default:
		}
	}
	c.pendingStatus = append(c.pendingStatus, s)
}

// flushStatuses makes room for held statuses before updates is closed by
// evicting queued media events.
func (c *Connector) flushStatuses() {
	if len(c.pendingStatus) == 0 {
		return
	}
	var queued []Status
	for drained := false; !drained; {
		select {
		case u := <-c.updates:
			if sc, ok := u.(StatusChanged); ok {
				queued = append(queued, sc.Status)
			}
		default:
			drained = true
		}
	}
	for _, s := range append(queued, c.pendingStatus...) {
		select {
		case c.updates <- StatusChanged{Status: s}:
		default:
			c.logger.Warn("Update queue full, dropping status", "status", s)
		}
	}
	c.pendingStatus = nil
}

func (c *Connector) emitUpdate(u Update) {
	select {
	case c.updates <- u:
	default:
		c.logger.Debug("Update queue full, dropping update")
	}
}

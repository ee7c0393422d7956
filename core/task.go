package core

import (
	"context"

	"github.com/lisuiheng/lyricbridge/pkg/wire"
)

const (
	taskEventQueueSize = 64
	peerJoinQueueSize  = 16
)

// outbound is how the actor hands frames to a running task.
type outbound interface {
	// send queues a message that must not be dropped under normal load.
	send(msg wire.Message) bool
	// offer queues a message that may be dropped when the queue is full.
	offer(msg wire.Message) bool
}

type taskEventKind int

const (
	eventStatus taskEventKind = iota
	// eventSessionUp is sent by the client task after each successful dial.
	eventSessionUp
	eventSessionDown
	eventFrame
)

// taskEvent is reported by a task to the actor.
type taskEvent struct {
	task   uint64
	kind   taskEventKind
	status Status
	frame  wire.Message
}

// peerJoin announces a server-mode client that needs a full-state push.
type peerJoin struct {
	task uint64
	peer outbound
}

type taskResult struct {
	task uint64
	err  error
}

// taskHandle is the actor's view of a spawned task.
type taskHandle struct {
	id     uint64
	cfg    Config
	out    outbound
	cancel context.CancelFunc
	done   chan struct{}
}

func emit(ctx context.Context, events chan<- taskEvent, ev taskEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

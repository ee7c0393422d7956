package core

import "github.com/lisuiheng/lyricbridge/media"

// StatusKind 表示连接状态
type StatusKind string

const (
	StatusDisconnected StatusKind = "disconnected"
	StatusConnecting   StatusKind = "connecting"
	StatusConnected    StatusKind = "connected"
	StatusError        StatusKind = "error"
)

// Status is reported to the application on every connection change.
type Status struct {
	Kind   StatusKind
	Reason string
}

func (s Status) String() string {
	if s.Reason == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ": " + s.Reason
}

func disconnected() Status { return Status{Kind: StatusDisconnected} }

func connecting(target string) Status { return Status{Kind: StatusConnecting, Reason: target} }

func connected(target string) Status { return Status{Kind: StatusConnected, Reason: target} }

func failed(err error) Status { return Status{Kind: StatusError, Reason: err.Error()} }

// Update is delivered to the application through Connector.Updates.
type Update interface {
	update()
}

type (
	StatusChanged struct {
		Status Status
	}
	// MediaEvent forwards a media-session event to the application.
	MediaEvent struct {
		Event media.Event
	}
)

func (StatusChanged) update() {}
func (MediaEvent) update()    {}

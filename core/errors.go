package core

import "errors"

var (
	ErrConfig           = errors.New("invalid connector config")
	ErrConnectTimeout   = errors.New("connect timed out")
	ErrHandshakeFailure = errors.New("handshake failed")
	ErrStreamIO         = errors.New("stream i/o error")
	ErrPeerClosed       = errors.New("connection closed by peer")
	ErrHeartbeatTimeout = errors.New("heartbeat timed out")
	ErrChannelClosed    = errors.New("internal channel closed")
	ErrListenerBind     = errors.New("failed to bind listener")
	ErrRetriesExhausted = errors.New("giving up reconnecting")
	ErrConnectorStopped = errors.New("connector stopped")
)

// Retryable reports whether a client-mode connection should be retried
// after err.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrConnectTimeout),
		errors.Is(err, ErrHandshakeFailure),
		errors.Is(err, ErrStreamIO),
		errors.Is(err, ErrPeerClosed),
		errors.Is(err, ErrHeartbeatTimeout):
		return true
	default:
		return false
	}
}

// Package media describes the media-session observer the connector
// bridges: the events it emits and the commands it accepts.
package media

import "github.com/lisuiheng/lyricbridge/pkg/wire"

// Event is emitted by the media-session observer.
type Event interface {
	mediaEvent()
}

// NowPlaying describes the selected session's current track.
type NowPlaying struct {
	ID         string
	Title      string
	Album      string
	Artists    []string
	DurationMs uint64
	PositionMs uint64
	IsPlaying  bool
	// Cover holds the encoded artwork, nil when the session has none.
	Cover []byte
}

// SessionInfo describes one media session known to the observer.
type SessionInfo struct {
	ID          string
	DisplayName string
}

type (
	TrackChanged struct {
		Info NowPlaying
	}
	VolumeChanged struct {
		Volume float64
	}
	PlaybackStatusChanged struct {
		IsPlaying  bool
		PositionMs uint64
		Repeat     wire.RepeatMode
		Shuffle    bool
	}
	SessionListChanged struct {
		Sessions []SessionInfo
	}
	SelectedSessionVanished struct {
		ID string
	}
	// RawAudioChunk is one ready-made packet from the capture pipeline.
	RawAudioChunk struct {
		Data []byte
	}
)

func (TrackChanged) mediaEvent()            {}
func (VolumeChanged) mediaEvent()           {}
func (PlaybackStatusChanged) mediaEvent()   {}
func (SessionListChanged) mediaEvent()      {}
func (SelectedSessionVanished) mediaEvent() {}
func (RawAudioChunk) mediaEvent()           {}

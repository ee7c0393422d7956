package core

import (
	"time"

	"github.com/lisuiheng/lyricbridge/media"
	"github.com/lisuiheng/lyricbridge/pkg/wire"
)

// snapshot is the last known player state, used for full-state pushes.
type snapshot struct {
	track *media.NowPlaying
	lyric wire.LyricDocument
	cover []byte

	playing    bool
	position   uint64
	positionAt time.Time

	volume     float64
	haveVolume bool

	repeat   wire.RepeatMode
	shuffle  bool
	haveMode bool
}

func (s *snapshot) setTrack(info media.NowPlaying, now time.Time) {
	s.track = &info
	s.cover = info.Cover
	s.playing = info.IsPlaying
	s.position = info.PositionMs
	s.positionAt = now
}

// setPlayback records a playback update and reports which parts changed.
func (s *snapshot) setPlayback(e media.PlaybackStatusChanged, now time.Time) (playChanged, modeChanged bool) {
	playChanged = s.playing != e.IsPlaying
	modeChanged = !s.haveMode || s.repeat != e.Repeat || s.shuffle != e.Shuffle
	s.playing = e.IsPlaying
	s.position = e.PositionMs
	s.positionAt = now
	s.repeat, s.shuffle, s.haveMode = e.Repeat, e.Shuffle, true
	return playChanged, modeChanged
}

// positionAtTime extrapolates the playback position to now and applies
// the configured offset. The result is clamped to the track bounds.
func (s *snapshot) positionAtTime(now time.Time, offsetMs int64) uint64 {
	pos := int64(s.position)
	if s.playing && !s.positionAt.IsZero() {
		pos += now.Sub(s.positionAt).Milliseconds()
	}
	pos += offsetMs
	if pos < 0 {
		return 0
	}
	if s.track != nil && s.track.DurationMs > 0 && uint64(pos) > s.track.DurationMs {
		return s.track.DurationMs
	}
	return uint64(pos)
}

func (s *snapshot) playState() wire.Message {
	if s.playing {
		return wire.Resumed{}
	}
	return wire.Paused{}
}

// fullState lists the messages that bring a fresh display up to date.
func (s *snapshot) fullState(now time.Time, offsetMs int64) []wire.Message {
	var msgs []wire.Message
	if s.track != nil {
		msgs = append(msgs, musicInfo(*s.track))
	}
	if len(s.cover) > 0 {
		msgs = append(msgs, wire.SetCoverImage{Data: s.cover})
	}
	msgs = append(msgs, s.playState(), wire.Progress{PositionMs: s.positionAtTime(now, offsetMs)})
	if s.haveVolume {
		msgs = append(msgs, wire.VolumeChanged{Volume: s.volume})
	}
	if s.haveMode {
		msgs = append(msgs, wire.ModeChanged{Repeat: s.repeat, Shuffle: s.shuffle})
	}
	if s.lyric != nil {
		msgs = append(msgs, wire.SetLyric{Lines: s.lyric})
	}
	return msgs
}

func musicInfo(np media.NowPlaying) wire.SetMusicInfo {
	info := wire.SetMusicInfo{
		ID:         np.ID,
		Name:       np.Title,
		Album:      np.Album,
		DurationMs: np.DurationMs,
	}
	for _, name := range np.Artists {
		info.Artists = append(info.Artists, wire.Artist{Name: name})
	}
	return info
}

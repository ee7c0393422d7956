package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisuiheng/lyricbridge/media"
	"github.com/lisuiheng/lyricbridge/pkg/wire"
)

func TestSnapshotEmpty(t *testing.T) {
	var s snapshot
	msgs := s.fullState(time.Unix(0, 0), 0)
	assert.Equal(t, []wire.Message{wire.Paused{}, wire.Progress{PositionMs: 0}}, msgs)
}

func TestSnapshotFullState(t *testing.T) {
	t0 := time.Unix(1000, 0)
	var s snapshot
	s.setTrack(media.NowPlaying{
		ID:         "t1",
		Title:      "Song",
		Album:      "Album",
		Artists:    []string{"A", "B"},
		DurationMs: 200_000,
		PositionMs: 10_000,
		IsPlaying:  true,
		Cover:      []byte{1, 2, 3},
	}, t0)
	s.lyric = wire.LyricDocument{{StartMs: 0, EndMs: 1000}}

	msgs := s.fullState(t0.Add(2*time.Second), 0)
	require.Len(t, msgs, 5)
	assert.Equal(t, wire.SetMusicInfo{
		ID:         "t1",
		Name:       "Song",
		Album:      "Album",
		Artists:    []wire.Artist{{Name: "A"}, {Name: "B"}},
		DurationMs: 200_000,
	}, msgs[0])
	assert.Equal(t, wire.SetCoverImage{Data: []byte{1, 2, 3}}, msgs[1])
	assert.Equal(t, wire.Resumed{}, msgs[2])
	assert.Equal(t, wire.Progress{PositionMs: 12_000}, msgs[3])
	assert.IsType(t, wire.SetLyric{}, msgs[4])
}

func TestSnapshotPosition(t *testing.T) {
	t0 := time.Unix(1000, 0)
	s := snapshot{track: &media.NowPlaying{DurationMs: 5000}}

	s.setPlayback(media.PlaybackStatusChanged{IsPlaying: false, PositionMs: 1000}, t0)
	assert.Equal(t, uint64(1000), s.positionAtTime(t0.Add(time.Second), 0), "paused does not advance")
	assert.Equal(t, uint64(1250), s.positionAtTime(t0, 250))
	assert.Equal(t, uint64(0), s.positionAtTime(t0, -5000))

	s.setPlayback(media.PlaybackStatusChanged{IsPlaying: true, PositionMs: 4000}, t0)
	assert.Equal(t, uint64(5000), s.positionAtTime(t0.Add(10*time.Second), 0), "clamped to duration")
}

func TestSnapshotPlaybackChanges(t *testing.T) {
	var s snapshot
	t0 := time.Unix(0, 0)

	play, mode := s.setPlayback(media.PlaybackStatusChanged{IsPlaying: true}, t0)
	assert.True(t, play)
	assert.True(t, mode, "first mode report")

	play, mode = s.setPlayback(media.PlaybackStatusChanged{IsPlaying: true, PositionMs: 10}, t0)
	assert.False(t, play)
	assert.False(t, mode)

	_, mode = s.setPlayback(media.PlaybackStatusChanged{IsPlaying: true, Repeat: wire.RepeatAll}, t0)
	assert.True(t, mode)
}

func TestNewTrackReplacesCover(t *testing.T) {
	s := snapshot{cover: []byte{9}, lyric: wire.LyricDocument{{}}}
	s.setTrack(media.NowPlaying{ID: "x"}, time.Unix(0, 0))
	assert.Nil(t, s.cover)
	assert.Len(t, s.lyric, 1, "lyric is owned by the application")
}

// Package wire defines the connector's framed message protocol.
//
// Every WebSocket binary message carries exactly one frame. Structured
// frames start with a little-endian u16 kind followed by the variant's
// fields in a fixed order; bulk frames (cover images, audio) carry a kind,
// a u32 length and the raw bytes.
//
// Empty lists and byte strings share the encoding of nil ones, and nil is
// the decoded form of both.
package wire

import "fmt"

// Kind is the fixed discriminant written at the head of every frame.
type Kind uint16

const (
	KindPing       Kind = 0x0000
	KindPong       Kind = 0x0001
	KindInitialize Kind = 0x0002

	KindPause        Kind = 0x0100
	KindResume       Kind = 0x0101
	KindNextSong     Kind = 0x0102
	KindPreviousSong Kind = 0x0103
	KindSeekTo       Kind = 0x0104
	KindSetVolume    Kind = 0x0105
	KindSetRepeat    Kind = 0x0106
	KindSetShuffle   Kind = 0x0107

	KindSetMusicInfo  Kind = 0x0200
	KindSetLyric      Kind = 0x0201
	KindResumed       Kind = 0x0202
	KindPaused        Kind = 0x0203
	KindProgress      Kind = 0x0204
	KindVolumeChanged Kind = 0x0205
	KindModeChanged   Kind = 0x0206

	KindCoverImage Kind = 0x8000
	KindAudioData  Kind = 0x8001

	// KindNone marks decode errors raised before a kind was read. It is
	// never sent.
	KindNone Kind = 0xffff
)

var kindNames = map[Kind]string{
	KindPing:          "ping",
	KindPong:          "pong",
	KindInitialize:    "initialize",
	KindPause:         "pause",
	KindResume:        "resume",
	KindNextSong:      "next_song",
	KindPreviousSong:  "previous_song",
	KindSeekTo:        "seek_to",
	KindSetVolume:     "set_volume",
	KindSetRepeat:     "set_repeat",
	KindSetShuffle:    "set_shuffle",
	KindSetMusicInfo:  "set_music_info",
	KindSetLyric:      "set_lyric",
	KindResumed:       "resumed",
	KindPaused:        "paused",
	KindProgress:      "progress",
	KindVolumeChanged: "volume_changed",
	KindModeChanged:   "mode_changed",
	KindCoverImage:    "cover_image",
	KindAudioData:     "audio_data",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(0x%04x)", uint16(k))
}

// IsBulk reports whether frames of kind k use the bulk framing.
func IsBulk(k Kind) bool {
	return k&0x8000 != 0
}

// Message is one of the variants declared in this file.
type Message interface {
	Kind() Kind
}

// RepeatMode mirrors the player's repeat setting.
type RepeatMode uint8

const (
	RepeatOff RepeatMode = 0
	RepeatOne RepeatMode = 1
	RepeatAll RepeatMode = 2
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return fmt.Sprintf("repeat(%d)", uint8(m))
	}
}

// Control messages.
type (
	Ping       struct{}
	Pong       struct{}
	Initialize struct{}
)

// Commands sent by a lyric display to the player.
type (
	Pause        struct{}
	Resume       struct{}
	NextSong     struct{}
	PreviousSong struct{}
	SeekTo       struct{ PositionMs uint64 }
	SetVolume    struct{ Volume float64 }
	SetRepeat    struct{ Mode RepeatMode }
	SetShuffle   struct{ Enabled bool }
)

// Artist is one credited artist of a track.
type Artist struct {
	ID   string
	Name string
}

// SetMusicInfo announces the now-playing track.
type SetMusicInfo struct {
	ID         string
	Name       string
	Album      string
	Artists    []Artist
	DurationMs uint64
}

// LyricWord is one timed syllable.
type LyricWord struct {
	StartMs uint64
	EndMs   uint64
	Text    string
}

// LyricLine is one displayed line.
type LyricLine struct {
	StartMs        uint64
	EndMs          uint64
	Words          []LyricWord
	TranslatedText string
	RomanizedText  string
	IsBackground   bool
	IsDuet         bool
}

// LyricDocument is ordered by StartMs.
type LyricDocument []LyricLine

// State messages pushed to the lyric display.
type (
	SetLyric      struct{ Lines LyricDocument }
	Resumed       struct{}
	Paused        struct{}
	Progress      struct{ PositionMs uint64 }
	VolumeChanged struct{ Volume float64 }
	ModeChanged   struct {
		Repeat  RepeatMode
		Shuffle bool
	}
)

// Bulk payloads.
type (
	SetCoverImage struct{ Data []byte }
	AudioData     struct{ Data []byte }
)

func (Ping) Kind() Kind          { return KindPing }
func (Pong) Kind() Kind          { return KindPong }
func (Initialize) Kind() Kind    { return KindInitialize }
func (Pause) Kind() Kind         { return KindPause }
func (Resume) Kind() Kind        { return KindResume }
func (NextSong) Kind() Kind      { return KindNextSong }
func (PreviousSong) Kind() Kind  { return KindPreviousSong }
func (SeekTo) Kind() Kind        { return KindSeekTo }
func (SetVolume) Kind() Kind     { return KindSetVolume }
func (SetRepeat) Kind() Kind     { return KindSetRepeat }
func (SetShuffle) Kind() Kind    { return KindSetShuffle }
func (SetMusicInfo) Kind() Kind  { return KindSetMusicInfo }
func (SetLyric) Kind() Kind      { return KindSetLyric }
func (Resumed) Kind() Kind       { return KindResumed }
func (Paused) Kind() Kind        { return KindPaused }
func (Progress) Kind() Kind      { return KindProgress }
func (VolumeChanged) Kind() Kind { return KindVolumeChanged }
func (ModeChanged) Kind() Kind   { return KindModeChanged }
func (SetCoverImage) Kind() Kind { return KindCoverImage }
func (AudioData) Kind() Kind     { return KindAudioData }

// KindOf returns the discriminant m is framed with.
func KindOf(m Message) Kind {
	return m.Kind()
}

// IsCommand reports whether m is a remote control request.
func IsCommand(m Message) bool {
	k := m.Kind()
	return k >= KindPause && k <= KindSetShuffle
}

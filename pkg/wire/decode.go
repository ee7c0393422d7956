package wire

import (
	"encoding/binary"
	"math"
)

// Decode parses exactly one frame. The whole input must be consumed.
func Decode(b []byte) (Message, error) {
	if len(b) < kindSize {
		return nil, &DecodeError{Kind: KindNone, Offset: 0, Err: ErrTruncated}
	}
	kind := Kind(binary.LittleEndian.Uint16(b))
	r := &reader{buf: b, pos: kindSize}

	var m Message
	switch kind {
	case KindPing:
		m = Ping{}
	case KindPong:
		m = Pong{}
	case KindInitialize:
		m = Initialize{}
	case KindPause:
		m = Pause{}
	case KindResume:
		m = Resume{}
	case KindNextSong:
		m = NextSong{}
	case KindPreviousSong:
		m = PreviousSong{}
	case KindSeekTo:
		m = SeekTo{PositionMs: r.u64()}
	case KindSetVolume:
		m = SetVolume{Volume: r.f64()}
	case KindSetRepeat:
		m = SetRepeat{Mode: r.repeat()}
	case KindSetShuffle:
		m = SetShuffle{Enabled: r.bool()}
	case KindSetMusicInfo:
		m = r.musicInfo()
	case KindSetLyric:
		m = SetLyric{Lines: r.lines()}
	case KindResumed:
		m = Resumed{}
	case KindPaused:
		m = Paused{}
	case KindProgress:
		m = Progress{PositionMs: r.u64()}
	case KindVolumeChanged:
		m = VolumeChanged{Volume: r.f64()}
	case KindModeChanged:
		m = ModeChanged{Repeat: r.repeat(), Shuffle: r.bool()}
	case KindCoverImage:
		m = SetCoverImage{Data: r.blob()}
	case KindAudioData:
		m = AudioData{Data: r.blob()}
	default:
		return nil, &DecodeError{Kind: kind, Offset: 0, Err: ErrUnknownKind}
	}

	if r.err != nil {
		return nil, &DecodeError{Kind: kind, Offset: r.errAt, Err: r.err}
	}
	if r.pos != len(b) {
		return nil, &DecodeError{Kind: kind, Offset: r.pos, Err: ErrTrailingBytes}
	}
	return m, nil
}

type reader struct {
	buf   []byte
	pos   int
	err   error
	errAt int
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
		r.errAt = r.pos
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf)-r.pos {
		r.fail(ErrTruncated)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) f64() float64 { return math.Float64frombits(r.u64()) }

func (r *reader) bool() bool {
	at := r.pos
	switch r.u8() {
	case 0:
		return false
	case 1:
		return true
	default:
		if r.err == nil {
			r.err, r.errAt = ErrInvalidValue, at
		}
		return false
	}
}

func (r *reader) repeat() RepeatMode {
	at := r.pos
	v := RepeatMode(r.u8())
	if v > RepeatAll && r.err == nil {
		r.err, r.errAt = ErrInvalidValue, at
	}
	return v
}

// count reads a u32 element count. Each element needs at least minSize
// bytes, so counts that cannot fit the remaining input fail early instead
// of driving a large allocation.
func (r *reader) count(minSize int) int {
	n := r.u32()
	if r.err != nil {
		return 0
	}
	if minSize > 0 && uint64(n)*uint64(minSize) > uint64(len(r.buf)-r.pos) {
		r.fail(ErrTruncated)
		return 0
	}
	return int(n)
}

func (r *reader) str() string {
	n := r.count(1)
	return string(r.take(n))
}

func (r *reader) blob() []byte {
	n := r.count(1)
	b := r.take(n)
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) musicInfo() SetMusicInfo {
	info := SetMusicInfo{
		ID:    r.str(),
		Name:  r.str(),
		Album: r.str(),
	}
	n := r.count(8)
	if n > 0 {
		info.Artists = make([]Artist, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			info.Artists = append(info.Artists, Artist{ID: r.str(), Name: r.str()})
		}
	}
	info.DurationMs = r.u64()
	return info
}

const (
	minWordSize = 8 + 8 + 4
	minLineSize = 8 + 8 + 4 + 4 + 4 + 1 + 1
)

func (r *reader) lines() LyricDocument {
	n := r.count(minLineSize)
	if n == 0 {
		return nil
	}
	lines := make(LyricDocument, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		var l LyricLine
		l.StartMs = r.u64()
		l.EndMs = r.u64()
		if wc := r.count(minWordSize); wc > 0 {
			l.Words = make([]LyricWord, 0, wc)
			for j := 0; j < wc && r.err == nil; j++ {
				l.Words = append(l.Words, LyricWord{StartMs: r.u64(), EndMs: r.u64(), Text: r.str()})
			}
		}
		l.TranslatedText = r.str()
		l.RomanizedText = r.str()
		l.IsBackground = r.bool()
		l.IsDuet = r.bool()
		lines = append(lines, l)
	}
	return lines
}

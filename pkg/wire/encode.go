package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

const kindSize = 2

// Encode renders m as one frame.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, ErrNilMessage
	}
	w := &writer{buf: make([]byte, 0, 64)}
	w.u16(uint16(m.Kind()))

	switch v := m.(type) {
	case Ping, Pong, Initialize,
		Pause, Resume, NextSong, PreviousSong,
		Resumed, Paused:
		// no fields
	case SeekTo:
		w.u64(v.PositionMs)
	case SetVolume:
		w.f64(v.Volume)
	case SetRepeat:
		w.u8(uint8(v.Mode))
	case SetShuffle:
		w.bool(v.Enabled)
	case SetMusicInfo:
		w.str(v.ID)
		w.str(v.Name)
		w.str(v.Album)
		w.count(len(v.Artists))
		for _, a := range v.Artists {
			w.str(a.ID)
			w.str(a.Name)
		}
		w.u64(v.DurationMs)
	case SetLyric:
		w.lines(v.Lines)
	case Progress:
		w.u64(v.PositionMs)
	case VolumeChanged:
		w.f64(v.Volume)
	case ModeChanged:
		w.u8(uint8(v.Repeat))
		w.bool(v.Shuffle)
	case SetCoverImage:
		w.blob(v.Data)
	case AudioData:
		w.blob(v.Data)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}

	if w.err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), w.err)
	}
	return w.buf, nil
}

type writer struct {
	buf []byte
	err error
}

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *writer) f64(v float64) { w.u64(math.Float64bits(v)) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

// count writes a u32 length prefix, refusing values that would be truncated.
func (w *writer) count(n int) {
	if err := checkCount(n); err != nil {
		if w.err == nil {
			w.err = err
		}
		return
	}
	w.u32(uint32(n))
}

func checkCount(n int) error {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return fmt.Errorf("%w: %d", ErrCountOverflow, n)
	}
	return nil
}

func (w *writer) str(s string) {
	w.count(len(s))
	w.buf = append(w.buf, s...)
}

func (w *writer) blob(b []byte) {
	w.count(len(b))
	w.buf = append(w.buf, b...)
}

func (w *writer) lines(lines LyricDocument) {
	w.count(len(lines))
	for _, l := range lines {
		w.u64(l.StartMs)
		w.u64(l.EndMs)
		w.count(len(l.Words))
		for _, word := range l.Words {
			w.u64(word.StartMs)
			w.u64(word.EndMs)
			w.str(word.Text)
		}
		w.str(l.TranslatedText)
		w.str(l.RomanizedText)
		w.bool(l.IsBackground)
		w.bool(l.IsDuet)
	}
}

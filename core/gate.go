package core

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// commandGate filters remote commands and outgoing audio for one task.
type commandGate struct {
	seekWindow time.Duration
	lastSeek   struct {
		position uint64
		at       time.Time
		valid    bool
	}
	volume *rate.Limiter
	audio  *rate.Limiter
}

func newCommandGate(t Timings) *commandGate {
	return &commandGate{
		seekWindow: t.SeekDebounce,
		volume:     rate.NewLimiter(rate.Every(t.VolumeThrottle), 1),
		audio:      rate.NewLimiter(rate.Every(t.AudioInterval), 1),
	}
}

// allowSeek drops a seek to the same position repeated inside the window.
func (g *commandGate) allowSeek(position uint64, now time.Time) bool {
	last := &g.lastSeek
	if last.valid && last.position == position && now.Sub(last.at) < g.seekWindow {
		return false
	}
	last.position, last.at, last.valid = position, now, true
	return true
}

func (g *commandGate) allowVolume(v float64, now time.Time) bool {
	if !validVolume(v) {
		return false
	}
	return g.volume.AllowN(now, 1)
}

func (g *commandGate) allowAudio(now time.Time) bool {
	return g.audio.AllowN(now, 1)
}

func validVolume(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

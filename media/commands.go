package media

import (
	"fmt"

	"github.com/lisuiheng/lyricbridge/pkg/wire"
)

// Command is accepted by the media-session observer.
type Command interface {
	fmt.Stringer
	mediaCommand()
}

type (
	Play          struct{}
	Pause         struct{}
	SkipNext      struct{}
	SkipPrevious  struct{}
	SeekTo        struct{ PositionMs uint64 }
	SetVolume     struct{ Volume float64 }
	SetRepeatMode struct{ Mode wire.RepeatMode }
	SetShuffle    struct{ Enabled bool }
	SelectSession struct{ ID string }
	// EnableHighFrequencyUpdates asks the observer for frequent progress
	// events while a lyric display is attached.
	EnableHighFrequencyUpdates struct{ Enabled bool }
)

func (Play) mediaCommand()                       {}
func (Pause) mediaCommand()                      {}
func (SkipNext) mediaCommand()                   {}
func (SkipPrevious) mediaCommand()               {}
func (SeekTo) mediaCommand()                     {}
func (SetVolume) mediaCommand()                  {}
func (SetRepeatMode) mediaCommand()              {}
func (SetShuffle) mediaCommand()                 {}
func (SelectSession) mediaCommand()              {}
func (EnableHighFrequencyUpdates) mediaCommand() {}

func (Play) String() string            { return "play" }
func (Pause) String() string           { return "pause" }
func (SkipNext) String() string        { return "skip_next" }
func (SkipPrevious) String() string    { return "skip_previous" }
func (c SeekTo) String() string        { return fmt.Sprintf("seek_to(%d)", c.PositionMs) }
func (c SetVolume) String() string     { return fmt.Sprintf("set_volume(%.3f)", c.Volume) }
func (c SetRepeatMode) String() string { return "set_repeat_mode(" + c.Mode.String() + ")" }
func (c SetShuffle) String() string    { return fmt.Sprintf("set_shuffle(%t)", c.Enabled) }
func (c SelectSession) String() string { return "select_session(" + c.ID + ")" }
func (c EnableHighFrequencyUpdates) String() string {
	return fmt.Sprintf("high_frequency_updates(%t)", c.Enabled)
}

// audio/interface.go
package audio

import "context"

// Recorder 定义音频采集接口
type Recorder interface {
	// Record delivers one encoded packet per captured frame until ctx is
	// cancelled.
	Record(ctx context.Context, packets chan<- []byte) error
}

// Encoder turns one frame of interleaved PCM into a packet.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
	Close()
}

const (
	BackendMalgo     = "malgo"
	BackendPortAudio = "portaudio"

	DeviceCapture  = "capture"
	DeviceLoopback = "loopback"

	CodecPCM  = "pcm"
	CodecOpus = "opus"
)

type Config struct {
	Enabled       bool   `mapstructure:"enabled"`
	Backend       string `mapstructure:"backend"`
	Device        string `mapstructure:"device"`
	Codec         string `mapstructure:"codec"`
	SampleRate    int    `mapstructure:"sample_rate"`
	Channels      int    `mapstructure:"channels"`
	FrameDuration int    `mapstructure:"frame_duration"` // 毫秒
	Bitrate       int    `mapstructure:"bitrate"`
}

// frameSamples is the number of samples per channel in one frame.
func (c Config) frameSamples() int {
	return c.SampleRate * c.FrameDuration / 1000
}

package audio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// portAudioRecorder captures from the default PortAudio input device.
type portAudioRecorder struct {
	config  Config
	logger  *slog.Logger
	encoder Encoder
}

func (r *portAudioRecorder) Record(ctx context.Context, packets chan<- []byte) error {
	defer r.encoder.Close()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	frameSamples := r.config.frameSamples()
	buf := make([]int16, frameSamples*r.config.Channels)
	stream, err := portaudio.OpenDefaultStream(
		r.config.Channels, // 输入通道数
		0,                 // 输出通道数
		float64(r.config.SampleRate),
		frameSamples,
		buf,
	)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	defer stream.Stop()

	r.logger.Info("Audio capture started",
		"backend", BackendPortAudio,
		"sample_rate", r.config.SampleRate,
		"channels", r.config.Channels,
		"frame_samples", frameSamples)

	for ctx.Err() == nil {
		if err := stream.Read(); err != nil {
			if err == portaudio.InputOverflowed {
				r.logger.Debug("PortAudio input overflowed")
				continue
			}
			return fmt.Errorf("failed to read audio stream: %w", err)
		}

		frame := make([]int16, len(buf))
		copy(frame, buf)
		packet, err := r.encoder.Encode(frame)
		if err != nil {
			r.logger.Error("Audio encode failed", "error", err)
			continue
		}
		select {
		case packets <- packet:
		case <-ctx.Done():
		default:
			r.logger.Debug("Audio packet channel full, dropping frame")
		}
	}

	r.logger.Info("Audio capture stopped")
	return nil
}

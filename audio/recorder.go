package audio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
)

// NewRecorder 根据配置创建采集器
func NewRecorder(cfg Config, logger *slog.Logger) (Recorder, error) {
	if cfg.Channels <= 0 || cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid audio format: %d Hz, %d channels", cfg.SampleRate, cfg.Channels)
	}
	if cfg.frameSamples() <= 0 {
		return nil, fmt.Errorf("invalid frame duration: %d ms", cfg.FrameDuration)
	}

	encoder, err := NewEncoder(cfg, logger)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "", BackendMalgo:
		return &malgoRecorder{config: cfg, logger: logger, encoder: encoder}, nil
	case BackendPortAudio:
		if cfg.Device == DeviceLoopback {
			encoder.Close()
			return nil, fmt.Errorf("portaudio backend does not support loopback capture")
		}
		return &portAudioRecorder{config: cfg, logger: logger, encoder: encoder}, nil
	default:
		encoder.Close()
		return nil, fmt.Errorf("unsupported audio backend: %s", cfg.Backend)
	}
}

type malgoRecorder struct {
	config  Config
	logger  *slog.Logger
	encoder Encoder
}

func (r *malgoRecorder) Record(ctx context.Context, packets chan<- []byte) error {
	defer r.encoder.Close()

	deviceType := malgo.Capture
	switch r.config.Device {
	case "", DeviceCapture:
	case DeviceLoopback:
		deviceType = malgo.Loopback
	default:
		return fmt.Errorf("unsupported capture device: %s", r.config.Device)
	}

	// 初始化malgo上下文
	ctxMalgo, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		r.logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}
	defer func() {
		_ = ctxMalgo.Uninit()
		ctxMalgo.Free()
	}()

	frameSamples := r.config.frameSamples()
	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(r.config.Channels)
	deviceConfig.SampleRate = uint32(r.config.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(frameSamples)

	// The device delivers periods of any size; regroup them into frames.
	framer := newFramer(frameSamples * r.config.Channels)
	onData := func(_, input []byte, _ uint32) {
		if ctx.Err() != nil {
			return
		}
		for _, frame := range framer.push(input) {
			r.emit(ctx, frame, packets)
		}
	}

	device, err := malgo.InitDevice(ctxMalgo.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onData,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audio device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start audio device: %w", err)
	}
	defer device.Stop()

	r.logger.Info("Audio capture started",
		"backend", BackendMalgo,
		"device", deviceType,
		"sample_rate", r.config.SampleRate,
		"channels", r.config.Channels,
		"frame_samples", frameSamples)

	<-ctx.Done()
	r.logger.Info("Audio capture stopped")
	return nil
}

// emit never blocks the audio callback.
func (r *malgoRecorder) emit(ctx context.Context, pcm []int16, packets chan<- []byte) {
	packet, err := r.encoder.Encode(pcm)
	if err != nil {
		r.logger.Error("Audio encode failed", "error", err)
		return
	}
	select {
	case packets <- packet:
	case <-ctx.Done():
	default:
		r.logger.Debug("Audio packet channel full, dropping frame")
	}
}

// framer regroups little-endian S16 bytes into frames of a fixed sample count.
type framer struct {
	size    int
	pending []int16
	odd     []byte
}

func newFramer(samples int) *framer {
	return &framer{size: samples}
}

func (f *framer) push(data []byte) [][]int16 {
	if len(f.odd) > 0 {
		data = append(f.odd, data...)
		f.odd = nil
	}
	if len(data)%2 != 0 {
		f.odd = []byte{data[len(data)-1]}
		data = data[:len(data)-1]
	}
	for i := 0; i+1 < len(data); i += 2 {
		f.pending = append(f.pending, int16(data[i])|int16(data[i+1])<<8)
	}

	var frames [][]int16
	for len(f.pending) >= f.size {
		frame := make([]int16, f.size)
		copy(frame, f.pending[:f.size])
		frames = append(frames, frame)
		f.pending = f.pending[f.size:]
	}
	return frames
}

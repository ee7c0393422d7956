package audio

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hraban/opus"
)

const defaultBitrate = 64000

// NewEncoder 根据配置创建编码器
func NewEncoder(cfg Config, logger *slog.Logger) (Encoder, error) {
	switch cfg.Codec {
	case "", CodecPCM:
		return pcmEncoder{}, nil
	case CodecOpus:
		bitrate := cfg.Bitrate
		if bitrate <= 0 {
			bitrate = defaultBitrate
		}
		return NewOpusEncoder(cfg.SampleRate, cfg.Channels, bitrate, logger)
	default:
		return nil, fmt.Errorf("unsupported audio codec: %s", cfg.Codec)
	}
}

// pcmEncoder passes frames through as little-endian S16.
type pcmEncoder struct{}

func (pcmEncoder) Encode(pcm []int16) ([]byte, error) {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out, nil
}

func (pcmEncoder) Close() {}

// OpusEncoder OPUS音频编码器
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	logger     *slog.Logger
}

// NewOpusEncoder 创建新的OPUS编码器
func NewOpusEncoder(sampleRate, channels, bitrate int, logger *slog.Logger) (*OpusEncoder, error) {
	// Music rather than speech.
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("failed to set bitrate: %w", err)
	}

	logger.Debug("Opus encoder ready", "sample_rate", sampleRate, "channels", channels, "bitrate", bitrate)
	return &OpusEncoder{
		encoder:    enc,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger,
	}, nil
}

// Encode 编码PCM音频数据
func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	if e.encoder == nil {
		return nil, errors.New("encoder closed")
	}

	data := make([]byte, 4000) // OPUS最大包大小
	n, err := e.encoder.Encode(pcm, data)
	if err != nil {
		return nil, fmt.Errorf("opus encode failed: %w", err)
	}
	return data[:n], nil
}

// Close 释放编码器资源
func (e *OpusEncoder) Close() {
	e.encoder = nil
}

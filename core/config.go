package core

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

// Mode selects whether the connector dials out or listens.
type Mode string

const (
	ModeClient Mode = "client"
	ModeServer Mode = "server"
)

// Config 是连接器配置，由应用层整体替换
type Config struct {
	Enabled    bool   `mapstructure:"enabled"`
	Mode       Mode   `mapstructure:"mode" validate:"oneof=client server"`
	RemoteURL  string `mapstructure:"remote_url" validate:"required_if=Mode client,omitempty,url"`
	ListenPort uint16 `mapstructure:"listen_port"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the settings the selected mode depends on.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if c.Mode == ModeClient {
		u, err := url.Parse(c.RemoteURL)
		if err != nil {
			return fmt.Errorf("%w: remote_url: %v", ErrConfig, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("%w: remote_url must use ws or wss, got %q", ErrConfig, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("%w: remote_url has no host", ErrConfig)
		}
	}
	return nil
}

// target is what a running task is bound to.
func (c Config) target() string {
	if c.Mode == ModeServer {
		return fmt.Sprintf("port %d", c.ListenPort)
	}
	return c.RemoteURL
}

func (c Config) sameTarget(other Config) bool {
	if c.Mode != other.Mode {
		return false
	}
	if c.Mode == ModeServer {
		return c.ListenPort == other.ListenPort
	}
	return c.RemoteURL == other.RemoteURL
}

// ActorSettings tune what the connector forwards.
type ActorSettings struct {
	ForwardAudio     bool  `mapstructure:"forward_audio"`
	ProgressOffsetMs int64 `mapstructure:"progress_offset_ms"`
}

// Timings holds every delay, timeout and rate the connector uses.
type Timings struct {
	ConnectTimeout time.Duration
	RetryDelay     time.Duration
	MaxFailures    int
	PingInterval   time.Duration
	PongTimeout    time.Duration
	SettleDelay    time.Duration
	SeekDebounce   time.Duration
	VolumeThrottle time.Duration
	AudioInterval  time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		ConnectTimeout: 5 * time.Second,
		RetryDelay:     3 * time.Second,
		MaxFailures:    5,
		PingInterval:   5 * time.Second,
		PongTimeout:    10 * time.Second,
		SettleDelay:    500 * time.Millisecond,
		SeekDebounce:   500 * time.Millisecond,
		VolumeThrottle: 100 * time.Millisecond,
		AudioInterval:  20 * time.Millisecond,
	}
}

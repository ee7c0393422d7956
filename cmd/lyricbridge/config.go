package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/lisuiheng/lyricbridge/audio"
	"github.com/lisuiheng/lyricbridge/core"
	"github.com/lisuiheng/lyricbridge/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// appConfig 与配置文件结构一致
type appConfig struct {
	Connector core.Config        `mapstructure:"connector"`
	Actor     core.ActorSettings `mapstructure:"actor"`
	Audio     audio.Config       `mapstructure:"audio"`
	Logging   logger.Config      `mapstructure:"logging"`
}

// flags that name a connection target also enable the connector.
var targetFlags = []string{"mode", "url", "port"}

type configLoader struct {
	v     *viper.Viper
	flags *pflag.FlagSet
	path  string
}

func newConfigLoader(flags *pflag.FlagSet) (*configLoader, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	bindings := map[string]string{
		"connector.mode":        "mode",
		"connector.remote_url":  "url",
		"connector.listen_port": "port",
		"debug":                 "debug",
		"console":               "console",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	v.SetEnvPrefix("LYRICBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, _ := flags.GetString("config")
	return &configLoader{v: v, flags: flags, path: path}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("connector.enabled", false)
	v.SetDefault("connector.mode", string(core.ModeClient))
	v.SetDefault("connector.remote_url", "")
	v.SetDefault("connector.listen_port", 0)

	v.SetDefault("actor.forward_audio", false)
	v.SetDefault("actor.progress_offset_ms", 0)

	v.SetDefault("audio.enabled", false)
	v.SetDefault("audio.backend", audio.BackendMalgo)
	v.SetDefault("audio.device", audio.DeviceLoopback)
	v.SetDefault("audio.codec", audio.CodecPCM)
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.channels", 2)
	v.SetDefault("audio.frame_duration", 20)
	v.SetDefault("audio.bitrate", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputs", []string{"stdout"})
}

// Load reads the config file, if any, and decodes every source.
func (l *configLoader) Load() (appConfig, error) {
	if l.path != "" {
		l.v.SetConfigFile(l.path)
	} else {
		// 默认多路径搜索
		l.v.SetConfigName("config")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("./config")
		l.v.AddConfigPath("/etc/lyricbridge")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.path != "" || !errors.As(err, &notFound) {
			return appConfig{}, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return l.decode()
}

func (l *configLoader) decode() (appConfig, error) {
	var cfg appConfig
	if err := l.v.Unmarshal(&cfg); err != nil {
		return appConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for _, name := range targetFlags {
		if l.flags.Changed(name) {
			cfg.Connector.Enabled = true
		}
	}
	return cfg, nil
}

// Watch calls onChange with the re-read config whenever the file changes.
func (l *configLoader) Watch(onChange func(appConfig)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			logger.Warn("Ignoring config change", "file", e.Name, "error", err)
			return
		}
		logger.Info("Config file changed", "file", e.Name)
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *configLoader) Debug() bool   { return l.v.GetBool("debug") }
func (l *configLoader) Console() bool { return l.v.GetBool("console") }

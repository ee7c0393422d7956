package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lisuiheng/lyricbridge/audio"
	"github.com/lisuiheng/lyricbridge/core"
	"github.com/lisuiheng/lyricbridge/logger"
	"github.com/lisuiheng/lyricbridge/media"
	"github.com/spf13/pflag"
)

const (
	mediaEventQueueSize   = 64
	mediaCommandQueueSize = 32
	audioPacketQueueSize  = 16
	shutdownTimeout       = 5 * time.Second
)

func main() {
	flags := pflag.NewFlagSet("lyricbridge", pflag.ExitOnError)
	flags.StringP("config", "c", "", "Path to config file (default searches ./config.yaml, ./config/config.yaml, /etc/lyricbridge/config.yaml)")
	flags.Bool("debug", false, "Enable debug logging to stdout")
	flags.String("mode", "", "Connector mode: client or server")
	flags.String("url", "", "Lyric display URL in client mode")
	flags.Uint16("port", 0, "Listen port in server mode")
	flags.Bool("console", false, "Read control commands from stdin")
	_ = flags.Parse(os.Args[1:])

	loader, err := newConfigLoader(flags)
	if err != nil {
		logger.Error("Failed to set up config", "error", err)
		os.Exit(1)
	}
	cfg, err := loader.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if err := initLogger(cfg, loader.Debug()); err != nil {
		logger.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	log := logger.Logger()
	defer log.Info("Lyric bridge stopped")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mediaEvents := make(chan media.Event, mediaEventQueueSize)
	mediaCommands := make(chan media.Command, mediaCommandQueueSize)

	connector, err := core.New(core.Options{
		Config:        cfg.Connector,
		Settings:      cfg.Actor,
		MediaEvents:   mediaEvents,
		MediaCommands: mediaCommands,
		Logger:        log,
	})
	if err != nil {
		logger.Error("Failed to create connector", "error", err)
		os.Exit(1)
	}

	audioCtrl := audio.NewController(log.With("component", "audio"))
	if cfg.Actor.ForwardAudio {
		audioCtrl.StartSending()
	}
	if cfg.Audio.Enabled {
		if err := startAudio(ctx, cfg.Audio, audioCtrl, mediaEvents); err != nil {
			logger.Error("Failed to start audio capture", "error", err)
			os.Exit(1)
		}
	}

	loader.Watch(func(next appConfig) {
		if err := connector.UpdateConfig(next.Connector); err != nil {
			logger.Warn("Failed to apply config", "error", err)
		}
		if err := connector.UpdateActorSettings(next.Actor); err != nil {
			logger.Warn("Failed to apply actor settings", "error", err)
		}
		if next.Actor.ForwardAudio {
			audioCtrl.StartSending()
		} else {
			audioCtrl.StopSending()
		}
	})

	go logUpdates(connector.Updates())
	go logCommands(ctx, mediaCommands)
	if loader.Console() {
		go runConsole(ctx, os.Stdin, connector, cancel)
	}

	runErr := make(chan error, 1)
	go func() {
		logger.Info("Starting lyric bridge", "mode", cfg.Connector.Mode, "enabled", cfg.Connector.Enabled)
		runErr <- connector.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	case err := <-runErr:
		if err != nil {
			logger.Error("Connector stopped unexpectedly", "error", err)
		}
		return
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := connector.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Connector did not stop in time", "error", err)
	}
}

func startAudio(ctx context.Context, cfg audio.Config, ctrl *audio.Controller, events chan<- media.Event) error {
	log := logger.Logger().With("component", "audio")
	recorder, err := audio.NewRecorder(cfg, log)
	if err != nil {
		return err
	}

	packets := make(chan []byte, audioPacketQueueSize)
	go func() {
		defer close(packets)
		if err := recorder.Record(ctx, packets); err != nil {
			log.Error("Audio capture failed", "error", err)
		}
	}()
	go ctrl.Forward(ctx, packets, events)
	return nil
}

// initLogger 初始化日志系统
func initLogger(cfg appConfig, debug bool) error {
	logCfg := cfg.Logging
	// 调试模式覆盖配置
	if debug {
		logCfg.Level = "debug"
		logCfg.Outputs = []string{"stdout"}
	}
	return logger.Init(logCfg)
}

func logUpdates(updates <-chan core.Update) {
	for u := range updates {
		switch u := u.(type) {
		case core.StatusChanged:
			logger.Info("Connection status", "status", u.Status)
		case core.MediaEvent:
			switch e := u.Event.(type) {
			case media.SessionListChanged:
				logger.Info("Media sessions changed", "count", len(e.Sessions))
			default:
				logger.Debug("Media event", "event", e)
			}
		}
	}
}

// logCommands stands in for a platform media session.
func logCommands(ctx context.Context, commands <-chan media.Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			logger.Info("Media command", "command", cmd)
		}
	}
}

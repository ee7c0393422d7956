package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lisuiheng/lyricbridge/core"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
connector:
  enabled: true
  mode: server
  listen_port: 8765
actor:
  forward_audio: true
  progress_offset_ms: -150
logging:
  level: debug
  format: json
`

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringP("config", "c", "", "")
	flags.Bool("debug", false, "")
	flags.String("mode", "", "")
	flags.String("url", "", "")
	flags.Uint16("port", 0, "")
	flags.Bool("console", false, "")
	require.NoError(t, flags.Parse(args))
	return flags
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	loader, err := newConfigLoader(newFlags(t, "--config", path))
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, core.Config{Enabled: true, Mode: core.ModeServer, ListenPort: 8765}, cfg.Connector)
	assert.Equal(t, core.ActorSettings{ForwardAudio: true, ProgressOffsetMs: -150}, cfg.Actor)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 48000, cfg.Audio.SampleRate, "default")
	assert.NoError(t, cfg.Connector.Validate())
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	loader, err := newConfigLoader(newFlags(t, "-c", path, "--mode", "client", "--url", "ws://127.0.0.1:9000/ws"))
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, core.ModeClient, cfg.Connector.Mode)
	assert.Equal(t, "ws://127.0.0.1:9000/ws", cfg.Connector.RemoteURL)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	loader, err := newConfigLoader(newFlags(t, "--port", "7000", "--mode", "server"))
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Connector.Enabled, "target flags enable the connector")
	assert.Equal(t, uint16(7000), cfg.Connector.ListenPort)
}

func TestLoadEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LYRICBRIDGE_CONNECTOR_REMOTE_URL", "wss://display.local/ws")
	t.Setenv("LYRICBRIDGE_CONNECTOR_ENABLED", "true")
	loader, err := newConfigLoader(newFlags(t))
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Connector.Enabled)
	assert.Equal(t, "wss://display.local/ws", cfg.Connector.RemoteURL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	loader, err := newConfigLoader(newFlags(t, "--config", filepath.Join(t.TempDir(), "nope.yaml")))
	require.NoError(t, err)
	_, err = loader.Load()
	assert.Error(t, err)
}

func TestWatchReload(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	loader, err := newConfigLoader(newFlags(t, "--config", path))
	require.NoError(t, err)
	_, err = loader.Load()
	require.NoError(t, err)

	changes := make(chan appConfig, 4)
	loader.Watch(func(cfg appConfig) { changes <- cfg })

	updated := `
connector:
  enabled: false
  mode: server
  listen_port: 9999
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Connector.ListenPort == 9999 {
				assert.False(t, cfg.Connector.Enabled)
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}

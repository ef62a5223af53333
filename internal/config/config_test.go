package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, WakeManual, cfg.Wake.Mode)
	require.Equal(t, BootLightSleep, cfg.BootState)
	require.Equal(t, 30*time.Second, cfg.Timeouts.Conversation)
	require.Equal(t, 300*time.Second, cfg.Timeouts.Idle)
	require.Equal(t, "http://localhost:11434", cfg.Ollama.URL)
	require.Equal(t, 16000, cfg.Audio.SampleRate)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buddy.yaml")

	yaml := `
wake:
  mode: serial
  port: /dev/ttyUSB3
timeouts:
  conversation: 10s
  idle: 2m
boot_state: deep_sleep
ollama:
  model: llama3.2:1b
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, WakeSerial, cfg.Wake.Mode)
	require.Equal(t, "/dev/ttyUSB3", cfg.Wake.Port)
	require.Equal(t, 10*time.Second, cfg.Timeouts.Conversation)
	require.Equal(t, 2*time.Minute, cfg.Timeouts.Idle)
	require.Equal(t, BootDeepSleep, cfg.BootState)
	require.Equal(t, "llama3.2:1b", cfg.Ollama.Model)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad wake mode", func(c *Config) { c.Wake.Mode = "keyboard" }},
		{"bad boot state", func(c *Config) { c.BootState = "hibernate" }},
		{"serial without port", func(c *Config) { c.Wake.Mode = WakeSerial; c.Wake.Port = "" }},
		{"zero conversation timeout", func(c *Config) { c.Timeouts.Conversation = 0 }},
		{"negative idle timeout", func(c *Config) { c.Timeouts.Idle = -time.Second }},
		{"zero start timeout", func(c *Config) { c.Ollama.StartTimeout = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

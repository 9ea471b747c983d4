package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sinatra-studio/sinatra/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sinatra.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, 4096, cfg.BlockSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Lookahead)
	assert.Equal(t, 25*time.Millisecond, cfg.Interval)
	assert.Equal(t, float32(0.005), cfg.NoiseGate)
	assert.Equal(t, float32(0.001), cfg.SilenceThreshold)
	assert.Equal(t, float32(0.8), cfg.NormalizeTarget)
	assert.Equal(t, 50, cfg.HistoryCapacity)
	assert.Equal(t, 120.0, cfg.BPM)
	assert.Equal(t, "Piano", cfg.Convert.Instrument)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
sampleRate: 44100
lookahead: 200ms
bpm: 95.5
metronome: false
backend:
  url: http://backend:8000
  timeout: 30s
convert:
  enabled: false
  instrument: Guitar
  scale: major
osc:
  port: 57120
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, 200*time.Millisecond, cfg.Lookahead)
	assert.Equal(t, 95.5, cfg.BPM)
	assert.False(t, cfg.Metronome)
	assert.Equal(t, "http://backend:8000", cfg.Backend.URL)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.False(t, cfg.Convert.Enabled)
	assert.Equal(t, "Guitar", cfg.Convert.Instrument)
	assert.Equal(t, "major", cfg.Convert.Scale)
	assert.Equal(t, "C", cfg.Convert.Key, "unset keys keep their defaults")
	assert.Equal(t, 57120, cfg.OSC.Port)

	ec := cfg.Engine()
	assert.Equal(t, 200*time.Millisecond, ec.Lookahead)
	assert.Equal(t, 4096, ec.Record.BlockSize)
	assert.Equal(t, "Guitar", ec.ConvertOptions.Instrument)
	assert.Equal(t, 30*time.Second, ec.ConvertTimeout)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "bpm: 100\n")
	t.Setenv("SINATRA_BPM", "140")
	t.Setenv("SINATRA_LOOKAHEAD", "150ms")
	t.Setenv("SINATRA_METRONOME", "false")
	t.Setenv("SINATRA_BACKEND_URL", "http://elsewhere")
	t.Setenv("SINATRA_BLOCK_SIZE", "not a number")
	t.Setenv("SINATRA_SILENCE_THRESHOLD", "0.02")
	t.Setenv("SINATRA_NORMALIZE_TARGET", "0.8")
	t.Setenv("SINATRA_KEY", "D")
	t.Setenv("SINATRA_SCALE", "minor")
	t.Setenv("SINATRA_QUANTIZE", "1/16")
	t.Setenv("SINATRA_RAW_AUDIO", "true")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.02), cfg.SilenceThreshold)
	assert.Equal(t, float32(0.8), cfg.NormalizeTarget)
	assert.Equal(t, "D", cfg.Convert.Key)
	assert.Equal(t, "minor", cfg.Convert.Scale)
	assert.Equal(t, "1/16", cfg.Convert.Quantize)
	assert.True(t, cfg.Convert.RawAudio)
	assert.Equal(t, 140.0, cfg.BPM)
	assert.Equal(t, 150*time.Millisecond, cfg.Lookahead)
	assert.False(t, cfg.Metronome)
	assert.Equal(t, "http://elsewhere", cfg.Backend.URL)
	assert.Equal(t, 4096, cfg.BlockSize, "unparsable values fall back")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"zero bpm", func(c *config.Config) { c.BPM = 0 }},
		{"interval above lookahead", func(c *config.Config) { c.Interval = time.Second }},
		{"negative gate", func(c *config.Config) { c.NoiseGate = -0.1 }},
		{"loud master", func(c *config.Config) { c.MasterVolume = 2 }},
		{"no history", func(c *config.Config) { c.HistoryCapacity = 0 }},
		{"osc port", func(c *config.Config) { c.OSC.Port = 70000 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := config.Default()
			c.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, config.Default().Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
	_, err = config.Load(writeConfig(t, "bpm: [1, 2"))
	assert.Error(t, err)
	_, err = config.Load(writeConfig(t, "bpm: -5\n"))
	assert.ErrorContains(t, err, "bpm must be positive")
}

// Package config loads the runtime configuration: defaults, then an optional
// YAML file, then SINATRA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sinatra-studio/sinatra"
	"github.com/sinatra-studio/sinatra/engine"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		SampleRate       int           `yaml:"sampleRate"`
		BlockSize        int           `yaml:"blockSize"`
		Lookahead        time.Duration `yaml:"lookahead"`
		Interval         time.Duration `yaml:"interval"`
		NoiseGate        float32       `yaml:"noiseGate"`
		SilenceThreshold float32       `yaml:"silenceThreshold"`
		NormalizeTarget  float32       `yaml:"normalizeTarget"`
		HistoryCapacity  int           `yaml:"historyCapacity"`
		BPM              float64       `yaml:"bpm"`
		MasterVolume     float64       `yaml:"masterVolume"`
		Metronome        bool          `yaml:"metronome"`
		Backend          Backend       `yaml:"backend"`
		Convert          Convert       `yaml:"convert"`
		OSC              OSC           `yaml:"osc"`
	}

	// Backend is the conversion and BPM detection service.
	Backend struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	}

	Convert struct {
		Enabled                bool `yaml:"enabled"`
		sinatra.ConvertOptions `yaml:",inline"`
	}

	// OSC configures the remote presentation layer. A zero Port disables
	// broadcasting and a zero Listen disables remote control.
	OSC struct {
		Host   string `yaml:"host"`
		Port   int    `yaml:"port"`
		Listen int    `yaml:"listen"`
	}
)

func Default() Config {
	e := engine.DefaultConfig()
	return Config{
		SampleRate:       48000,
		BlockSize:        e.Record.BlockSize,
		Lookahead:        e.Lookahead,
		Interval:         e.Interval,
		NoiseGate:        e.Record.NoiseGate,
		SilenceThreshold: e.Record.Silence,
		NormalizeTarget:  e.Record.Target,
		HistoryCapacity:  e.HistoryCapacity,
		BPM:              e.BPM,
		MasterVolume:     e.MasterVolume,
		Metronome:        e.Metronome,
		Backend:          Backend{URL: "http://localhost:8000", Timeout: e.ConvertTimeout},
		Convert:          Convert{Enabled: true, ConvertOptions: e.ConvertOptions},
		OSC:              OSC{Host: "127.0.0.1"},
	}
}

// Load returns the defaults overridden by the YAML file at path (skipped if
// path is empty) and then by the environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("could not read config %v: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("could not parse config %v: %w", path, err)
		}
	}
	cfg = cfg.fromEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) fromEnv() Config {
	c.SampleRate = envInt("SINATRA_SAMPLE_RATE", c.SampleRate)
	c.BlockSize = envInt("SINATRA_BLOCK_SIZE", c.BlockSize)
	c.Lookahead = envDuration("SINATRA_LOOKAHEAD", c.Lookahead)
	c.Interval = envDuration("SINATRA_INTERVAL", c.Interval)
	c.NoiseGate = float32(envFloat("SINATRA_NOISE_GATE", float64(c.NoiseGate)))
	c.SilenceThreshold = float32(envFloat("SINATRA_SILENCE_THRESHOLD", float64(c.SilenceThreshold)))
	c.NormalizeTarget = float32(envFloat("SINATRA_NORMALIZE_TARGET", float64(c.NormalizeTarget)))
	c.HistoryCapacity = envInt("SINATRA_HISTORY_CAPACITY", c.HistoryCapacity)
	c.BPM = envFloat("SINATRA_BPM", c.BPM)
	c.MasterVolume = envFloat("SINATRA_MASTER_VOLUME", c.MasterVolume)
	c.Metronome = envBool("SINATRA_METRONOME", c.Metronome)
	c.Backend.URL = envStr("SINATRA_BACKEND_URL", c.Backend.URL)
	c.Backend.Timeout = envDuration("SINATRA_BACKEND_TIMEOUT", c.Backend.Timeout)
	c.Convert.Enabled = envBool("SINATRA_CONVERT", c.Convert.Enabled)
	c.Convert.Instrument = envStr("SINATRA_INSTRUMENT", c.Convert.Instrument)
	c.Convert.Key = envStr("SINATRA_KEY", c.Convert.Key)
	c.Convert.Scale = envStr("SINATRA_SCALE", c.Convert.Scale)
	c.Convert.Quantize = envStr("SINATRA_QUANTIZE", c.Convert.Quantize)
	c.Convert.RawAudio = envBool("SINATRA_RAW_AUDIO", c.Convert.RawAudio)
	c.OSC.Host = envStr("SINATRA_OSC_HOST", c.OSC.Host)
	c.OSC.Port = envInt("SINATRA_OSC_PORT", c.OSC.Port)
	c.OSC.Listen = envInt("SINATRA_OSC_LISTEN", c.OSC.Listen)
	return c
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.SampleRate > 0, "sampleRate must be positive, got %d", c.SampleRate)
	check(c.BlockSize > 0, "blockSize must be positive, got %d", c.BlockSize)
	check(c.Lookahead > 0, "lookahead must be positive, got %v", c.Lookahead)
	check(c.Interval > 0 && c.Interval <= c.Lookahead, "interval must be positive and at most the lookahead, got %v", c.Interval)
	check(c.NoiseGate >= 0 && c.NoiseGate < 1, "noiseGate must be in [0,1), got %v", c.NoiseGate)
	check(c.SilenceThreshold >= 0 && c.SilenceThreshold < 1, "silenceThreshold must be in [0,1), got %v", c.SilenceThreshold)
	check(c.NormalizeTarget > 0 && c.NormalizeTarget <= 1, "normalizeTarget must be in (0,1], got %v", c.NormalizeTarget)
	check(c.HistoryCapacity > 0, "historyCapacity must be positive, got %d", c.HistoryCapacity)
	check(c.BPM > 0, "bpm must be positive, got %v", c.BPM)
	check(c.MasterVolume >= 0 && c.MasterVolume <= 1, "masterVolume must be in [0,1], got %v", c.MasterVolume)
	check(c.Backend.Timeout >= 0, "backend.timeout must not be negative, got %v", c.Backend.Timeout)
	check(c.OSC.Port >= 0 && c.OSC.Port < 65536, "osc.port out of range: %d", c.OSC.Port)
	check(c.OSC.Listen >= 0 && c.OSC.Listen < 65536, "osc.listen out of range: %d", c.OSC.Listen)
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Engine returns the engine configuration.
func (c Config) Engine() engine.Config {
	return engine.Config{
		Lookahead: c.Lookahead,
		Interval:  c.Interval,
		Record: engine.RecordParams{
			BlockSize: c.BlockSize,
			NoiseGate: c.NoiseGate,
			Silence:   c.SilenceThreshold,
			Target:    c.NormalizeTarget,
		},
		HistoryCapacity: c.HistoryCapacity,
		BPM:             c.BPM,
		MasterVolume:    c.MasterVolume,
		Metronome:       c.Metronome,
		Convert:         c.Convert.Enabled,
		ConvertOptions:  c.Convert.ConvertOptions,
		ConvertTimeout:  c.Backend.Timeout,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// Package config loads tracepad's TOML configuration. Every field is
// optional; a missing file yields defaults so the tool works out of the box.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk configuration.
type Config struct {
	Playback PlaybackConfig `toml:"playback"`
	Engine   EngineConfig   `toml:"engine"`
}

// PlaybackConfig controls auto-advance pacing.
type PlaybackConfig struct {
	// IntervalMS is the auto-advance period in milliseconds at speed 1.0.
	IntervalMS int `toml:"interval_ms"`
	// Speed is the default playback speed multiplier.
	Speed float64 `toml:"speed"`
}

// EngineConfig controls script evaluation.
type EngineConfig struct {
	// TimeoutMS bounds one evaluation's wall-clock time in milliseconds.
	TimeoutMS int `toml:"timeout_ms"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Playback: PlaybackConfig{
			IntervalMS: 800,
			Speed:      1.0,
		},
		Engine: EngineConfig{
			TimeoutMS: 5000,
		},
	}
}

// Load reads configuration from the default path. A missing file is not an
// error; defaults are returned.
func Load() (Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return Default(), fmt.Errorf("failed to resolve config path: %w", err)
	}
	return LoadFromPath(path)
}

// LoadFromPath reads configuration from the given file. Fields absent from
// the file keep their defaults.
func LoadFromPath(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Default(), fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if cfg.Playback.IntervalMS <= 0 {
		cfg.Playback.IntervalMS = Default().Playback.IntervalMS
	}
	if cfg.Playback.Speed <= 0 {
		cfg.Playback.Speed = Default().Playback.Speed
	}
	if cfg.Engine.TimeoutMS < 0 {
		cfg.Engine.TimeoutMS = Default().Engine.TimeoutMS
	}
	return cfg, nil
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tracepad", "tracepad.toml"), nil
}

// Interval returns the playback interval as a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Playback.IntervalMS) * time.Millisecond
}

// Timeout returns the engine timeout as a duration. Zero disables it.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Engine.TimeoutMS) * time.Millisecond
}

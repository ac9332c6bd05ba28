package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracepad.toml")
	content := `
[playback]
interval_ms = 250
speed = 2.0

[engine]
timeout_ms = 1000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Playback.IntervalMS)
	assert.Equal(t, 2.0, cfg.Playback.Speed)
	assert.Equal(t, 1000, cfg.Engine.TimeoutMS)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval())
	assert.Equal(t, time.Second, cfg.Timeout())
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracepad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[playback]\nspeed = 0.5\n"), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Playback.Speed)
	assert.Equal(t, Default().Playback.IntervalMS, cfg.Playback.IntervalMS)
	assert.Equal(t, Default().Engine.TimeoutMS, cfg.Engine.TimeoutMS)
}

func TestLoadClampsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracepad.toml")
	content := "[playback]\ninterval_ms = -5\nspeed = 0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Playback.IntervalMS, cfg.Playback.IntervalMS)
	assert.Equal(t, Default().Playback.Speed, cfg.Playback.Speed)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracepad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not toml = = ="), 0o644))

	cfg, err := LoadFromPath(path)
	assert.Error(t, err)
	// Callers still get a usable configuration.
	assert.Equal(t, Default(), cfg)
}

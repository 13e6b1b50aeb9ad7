package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/rfsched/internal/ticks"
)

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSimConfig(), cfg)
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rfsim.yaml")
	data := `
log_level: debug
tick_interval: 50ms
margins:
  sleep_cutoff: 8000
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval)

	m := cfg.EffectiveMargins()
	assert.Equal(t, uint32(8000), m.SleepCutoff)
	assert.Equal(t, ticks.DefaultMargins().Wakeup, m.Wakeup)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("ticks_per_step: [1"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("margins: {trig_now_delay: 900, sleep_cutoff: 100}"), 0o644))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "margins")
}

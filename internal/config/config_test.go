package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1, cfg.Run.Parallelism)
	assert.Equal(t, 3, cfg.Run.FixAttempts)
	assert.Equal(t, 10, cfg.Run.CheckpointRetention)
	assert.Len(t, cfg.Gates, 4)
	assert.Equal(t, 24*time.Hour, cfg.Cache.ParseTTL())
	assert.Equal(t, 5*time.Minute, cfg.Agent.ParseTimeout())
	assert.Equal(t, time.Second, cfg.Agent.ParseBaseDelay())
	assert.Equal(t, 5*time.Second, cfg.Run.ParseGracePeriod())
}

func TestLoadMergesPlanConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	planRoot := t.TempDir()
	jsonc := `{
		// plan-level overrides
		"run": {
			"parallelism": 4,
			"fail_fast": true
		},
		"cache": { "ttl": "1h" }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(planRoot, "drover.jsonc"), []byte(jsonc), 0644))

	cfg, err := Load(planRoot)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Run.Parallelism)
	assert.True(t, cfg.Run.FailFast)
	assert.Equal(t, time.Hour, cfg.Cache.ParseTTL())
	// Untouched sections keep defaults.
	assert.Equal(t, 3, cfg.Run.FixAttempts)
	assert.Len(t, cfg.Gates, 4)
}

func TestLoadWithoutFilesReturnsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Run, cfg.Run)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("DROVER_PARALLELISM", "8")
	t.Setenv("DROVER_FAIL_FAST", "true")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Agent.APIKey)
	assert.Equal(t, 8, cfg.Run.Parallelism)
	assert.True(t, cfg.Run.FailFast)
}

func TestParseFallbacksOnBadDurations(t *testing.T) {
	a := AgentConfig{Timeout: "not-a-duration", BaseDelay: ""}
	assert.Equal(t, 5*time.Minute, a.ParseTimeout())
	assert.Equal(t, time.Second, a.ParseBaseDelay())

	g := GateConfig{Timeout: "bogus"}
	assert.Equal(t, 5*time.Minute, g.ParseTimeout())
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load(config.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, "tuition.db", cfg.Database.Path)
	assert.True(t, cfg.Database.Seed)
	assert.Equal(t, time.Hour, cfg.Intent.TTL)
	assert.Equal(t, 100, cfg.Intent.SweepThreshold)
	assert.Equal(t, 10*time.Second, cfg.Intent.Timeout)
	assert.Equal(t, 3, cfg.Admission.DailyQuota)
	assert.Empty(t, cfg.Gemini.APIKey)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := "server:\n  port: 9090\nadmission:\n  daily_quota: 5\n  timezone: Europe/Istanbul\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("TUITION_SERVER_PORT", "9191")
	t.Setenv("TUITION_GEMINI_API_KEY", "secret")

	cfg, err := config.Load(config.New())
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port, "env overrides file")
	assert.Equal(t, 5, cfg.Admission.DailyQuota)
	assert.Equal(t, "secret", cfg.Gemini.APIKey)

	loc, err := cfg.Admission.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Istanbul", loc.String())
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TUITION_ADMISSION_DAILY_QUOTA", "0")
	t.Setenv("TUITION_ADMISSION_TIMEZONE", "Mars/Olympus")

	_, err := config.Load(config.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily_quota")
	assert.Contains(t, err.Error(), "timezone")
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidateSettings(t *testing.T) {
	assert.NoError(t, ValidateSettings(DefaultSettings()))

	bad := DefaultSettings()
	bad.ReservationPolicy = "ignore"
	assert.Error(t, ValidateSettings(bad))

	bad = DefaultSettings()
	bad.PollIntervalSeconds = 0
	assert.Error(t, ValidateSettings(bad))

	bad = DefaultSettings()
	bad.StreamHeartbeatSeconds = 0
	assert.Error(t, ValidateSettings(bad))
}

func TestNewSettingsHolderDefaultsWithoutFile(t *testing.T) {
	holder, err := NewSettingsHolder(Config{SettingsFile: "does-not-exist-" + t.Name()}, zap.NewNop())
	require.NoError(t, err)

	got := holder.Get()
	assert.Equal(t, DefaultSettings(), got)
	assert.False(t, got.BlocksReservedTables())
}

func TestNewSettingsHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "comanda-settings.yml")
	require.NoError(t, os.WriteFile(path, []byte("reservation_policy: block\npoll_interval_seconds: 20\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	holder, err := NewSettingsHolder(Config{SettingsFile: "comanda-settings"}, zap.NewNop())
	require.NoError(t, err)

	got := holder.Get()
	assert.True(t, got.BlocksReservedTables())
	assert.Equal(t, 20, got.PollIntervalSeconds)
	assert.Equal(t, 15, got.StreamHeartbeatSeconds)
}

func TestNewSettingsHolderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-settings.yml"), []byte("reservation_policy: maybe\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, err = NewSettingsHolder(Config{SettingsFile: "bad-settings"}, zap.NewNop())
	assert.Error(t, err)
}

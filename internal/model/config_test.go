package model_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pawnest/companion/internal/model"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := model.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	require.Equal(t, 15, cfg.API.TimeoutSec)
	require.Equal(t, 3000, cfg.API.FetchDebounceMs)
	require.Equal(t, 3*time.Second, cfg.FetchDebounce())
	require.Equal(t, 15*time.Second, cfg.RequestTimeout())
	require.Equal(t, "info", cfg.Log.Level)
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := model.LoadConfig(path)
	require.NoError(t, err)

	cfg.API.BaseURL = "https://api.pawnest.example"
	cfg.API.FetchDebounceMs = 5000
	cfg.Log.Level = "debug"
	require.NoError(t, model.SaveConfig(path, cfg))

	loaded, err := model.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://api.pawnest.example", loaded.API.BaseURL)
	require.Equal(t, 5000, loaded.API.FetchDebounceMs)
	require.Equal(t, "debug", loaded.Log.Level)
}

func TestLoadConfigRejectsNonPositiveIntervals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := model.LoadConfig(path)
	require.NoError(t, err)
	cfg.API.FetchDebounceMs = -1
	cfg.API.TimeoutSec = 0
	require.NoError(t, model.SaveConfig(path, cfg))

	loaded, err := model.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 3000, loaded.API.FetchDebounceMs)
	require.Equal(t, 15, loaded.API.TimeoutSec)
}

func TestBookingStatus(t *testing.T) {
	require.Empty(t, model.Notification{}.BookingStatus())
	require.Empty(t, model.Notification{Data: map[string]any{"status": 7}}.BookingStatus())

	n := model.Notification{Data: map[string]any{"status": model.BookingConfirmed}}
	require.Equal(t, model.BookingConfirmed, n.BookingStatus())
}

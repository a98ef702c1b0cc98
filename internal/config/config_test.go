package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ClockSpeeds", FileName)

	m, err := Load(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "[Settings]")
	require.Contains(t, string(data), KeyClockScaleMaximum)

	s, err := m.Settings()
	require.NoError(t, err)
	require.Equal(t, 1, s.ClockScaleMinimum)
	require.Equal(t, 6000, s.ClockScaleMaximum)
	require.Equal(t, 400, s.TDPScaleMaximum)
	require.Equal(t, "WARNING", s.LoggingLevel)
	require.InDelta(t, 1.0, s.UpdateInterval, 0.0001)
	require.False(t, s.DisableScaleLimits)
}

func TestLoadKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	existing := "[Settings]\nclock_scale_maximum = 5200\nsync_scales = True\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))

	m, err := Load(path)
	require.NoError(t, err)

	s, err := m.Settings()
	require.NoError(t, err)
	require.Equal(t, 5200, s.ClockScaleMaximum)
	require.True(t, s.SyncScales)
	require.Equal(t, 1, s.ClockScaleMinimum)
}

func TestSetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	m, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, m.SetBool(KeyDisplayGHz, true))

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "True", reloaded.Get(KeyDisplayGHz, ""))

	s, err := reloaded.Settings()
	require.NoError(t, err)
	require.True(t, s.DisplayGHz)
}

func TestSetRejectsUnknownKey(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)

	err = m.Set("colour", "blue")
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestSetUpdateInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	m, err := Load(path)
	require.NoError(t, err)

	tests := []struct {
		in   float64
		want float64
	}{
		{0.01, 0.1},
		{0.26, 0.3},
		{2.5, 2.5},
		{45, 20},
	}
	for _, tt := range tests {
		got, err := m.SetUpdateInterval(tt.in)
		require.NoError(t, err)
		require.InDelta(t, tt.want, got, 0.0001)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "20.0"))
}

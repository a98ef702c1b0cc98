package store

import (
	"path/filepath"
	"testing"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache", "clockspeeds.db"))
	require.NoError(t, err)
	return s
}

func TestJSONRoundTripAndMissingKey(t *testing.T) {
	s := openTestStore(t)

	var out map[string]string
	found, err := s.GetJSON(BucketTopology, "current", &out)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.PutJSON(BucketTopology, "current", map[string]string{"cpu_directory": "/sys/devices/system/cpu"}))
	found, err = s.GetJSON(BucketTopology, "current", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "/sys/devices/system/cpu", out["cpu_directory"])

	_, err = s.GetJSON("nope", "current", &out)
	require.ErrorIs(t, err, ErrBucketNotFound)
}

func TestRecordMergesAndKeepsHistory(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Record("governor", func(a *domain.AppliedSettings) {
		a.Governor = "performance"
	})
	require.NoError(t, err)

	enabled := true
	applied, err := s.Record("boost", func(a *domain.AppliedSettings) {
		a.Boost = &enabled
	})
	require.NoError(t, err)
	require.Equal(t, "performance", applied.Governor)
	require.NotNil(t, applied.Boost)
	require.False(t, applied.UpdatedAt.IsZero())

	current, err := s.Applied()
	require.NoError(t, err)
	require.Equal(t, "performance", current.Governor)

	history, err := s.History(10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "boost", history[0].Control)
	require.Equal(t, "governor", history[1].Control)
	require.NotEqual(t, history[0].ID, history[1].ID)
}

func TestHistoryIsTrimmed(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < maxHistory+5; i++ {
		_, err := s.Record("pbo", func(a *domain.AppliedSettings) {
			offset := i
			a.PBOOffset = &offset
		})
		require.NoError(t, err)
	}

	history, err := s.History(maxHistory + 10)
	require.NoError(t, err)
	require.Len(t, history, maxHistory)
	require.Equal(t, maxHistory+4, *history[0].Settings.PBOOffset)
}

func TestClearApplied(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Record("governor", func(a *domain.AppliedSettings) { a.Governor = "powersave" })
	require.NoError(t, err)

	require.NoError(t, s.ClearApplied())
	current, err := s.Applied()
	require.NoError(t, err)
	require.True(t, current.Empty())
}

func TestStoresShareOneFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clockspeeds.db")
	monitor, err := Open(path)
	require.NoError(t, err)
	oneShot, err := Open(path)
	require.NoError(t, err)

	_, err = monitor.Record("governor", func(a *domain.AppliedSettings) { a.Governor = "performance" })
	require.NoError(t, err)

	current, err := oneShot.Applied()
	require.NoError(t, err)
	require.Equal(t, "performance", current.Governor)

	_, err = oneShot.Record("epb", func(a *domain.AppliedSettings) {
		value := 6
		a.EnergyPerfBias = &value
	})
	require.NoError(t, err)

	history, err := monitor.History(5)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "epb", history[0].Control)
}

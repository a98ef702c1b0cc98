package specsadapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) Read(context.Context) (domain.Specs, error) {
	s.calls++
	if s.err != nil {
		return domain.Specs{}, s.err
	}
	return domain.Specs{Model: "Test CPU", Threads: s.calls}, nil
}

func TestReaderCachesWithinTTL(t *testing.T) {
	src := &countingSource{}
	reader := newReader(src, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reader.now = func() time.Time { return now }

	first, err := reader.ReadSpecs(context.Background())
	require.NoError(t, err)
	second, err := reader.ReadSpecs(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, src.calls)

	now = now.Add(2 * time.Minute)
	third, err := reader.ReadSpecs(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, third.Threads)
}

func TestReaderDoesNotCacheFailures(t *testing.T) {
	src := &countingSource{err: errors.New("no cpuinfo")}
	reader := newReader(src, time.Minute)

	_, err := reader.ReadSpecs(context.Background())
	require.Error(t, err)
	_, err = reader.ReadSpecs(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, src.calls)
}

func TestReaderHonorsCanceledContext(t *testing.T) {
	src := &countingSource{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newReader(src, time.Minute).ReadSpecs(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, src.calls)
}

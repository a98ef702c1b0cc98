package monitor

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/Neol00/ClockSpeeds/internal/logging"
	"github.com/stretchr/testify/require"
)

type countingSampler struct {
	calls atomic.Int64
	fail  bool
}

func (s *countingSampler) Sample(ctx context.Context) (domain.Snapshot, error) {
	n := s.calls.Add(1)
	if s.fail {
		return domain.Snapshot{}, errors.New("stat file not found")
	}
	return domain.Snapshot{AverageMHz: float64(n)}, nil
}

func TestClampInterval(t *testing.T) {
	require.Equal(t, 100*time.Millisecond, ClampInterval(0))
	require.Equal(t, 100*time.Millisecond, ClampInterval(-time.Second))
	require.Equal(t, 20*time.Second, ClampInterval(time.Minute))
	require.Equal(t, 1500*time.Millisecond, ClampInterval(1549*time.Millisecond))
	require.Equal(t, 1600*time.Millisecond, ClampInterval(1551*time.Millisecond))
}

func TestRingBufferKeepsNewest(t *testing.T) {
	m := New(&countingSampler{}, time.Second, logging.NewTestLogger(io.Discard))
	_, ok := m.Latest()
	require.False(t, ok)
	require.Empty(t, m.History(10))

	for i := 0; i < maxSamples+10; i++ {
		_, err := m.Poll(context.Background())
		require.NoError(t, err)
	}

	latest, ok := m.Latest()
	require.True(t, ok)
	require.Equal(t, float64(maxSamples+10), latest.AverageMHz)

	history := m.History(1000)
	require.Len(t, history, maxSamples)
	require.Equal(t, float64(11), history[0].AverageMHz)
	require.Equal(t, float64(maxSamples+10), history[len(history)-1].AverageMHz)

	last3 := m.History(3)
	require.Equal(t, []float64{258, 259, 260}, []float64{last3[0].AverageMHz, last3[1].AverageMHz, last3[2].AverageMHz})
}

func TestSubscribeReceivesSamples(t *testing.T) {
	m := New(&countingSampler{}, 100*time.Millisecond, logging.NewTestLogger(io.Discard))
	ch, cancel := m.Subscribe()
	defer cancel()

	_, err := m.Poll(context.Background())
	require.NoError(t, err)

	select {
	case s := <-ch:
		require.Equal(t, 1.0, s.AverageMHz)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	// A full buffer drops instead of blocking.
	_, err = m.Poll(context.Background())
	require.NoError(t, err)
	_, err = m.Poll(context.Background())
	require.NoError(t, err)

	cancel()
	cancel()
}

func TestStartLoopsUntilCanceled(t *testing.T) {
	sampler := &countingSampler{fail: true}
	m := New(sampler, 100*time.Millisecond, logging.NewTestLogger(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sampler.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	_, ok := m.Latest()
	require.False(t, ok)
}

func TestSetIntervalReschedulesPendingWait(t *testing.T) {
	sampler := &countingSampler{}
	m := New(sampler, 20*time.Second, logging.NewTestLogger(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	require.Eventually(t, func() bool { return sampler.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	m.SetInterval(100 * time.Millisecond)
	require.Eventually(t, func() bool { return sampler.calls.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestSetIntervalClamps(t *testing.T) {
	m := New(&countingSampler{}, time.Second, logging.NewTestLogger(io.Discard))
	require.Equal(t, 20*time.Second, m.SetInterval(45*time.Second))
	require.Equal(t, 20*time.Second, m.Interval())
}

// Package monitor runs the periodic telemetry poll that feeds the terminal UI
// and the HTTP API.
package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/Neol00/ClockSpeeds/internal/observability"
	"github.com/rs/zerolog"
)

const maxSamples = 250

const (
	MinInterval     = 100 * time.Millisecond
	MaxInterval     = 20 * time.Second
	DefaultInterval = time.Second
)

type Sampler interface {
	Sample(ctx context.Context) (domain.Snapshot, error)
}

type Monitor struct {
	sampler Sampler
	logger  zerolog.Logger
	state   *state

	mu          sync.Mutex
	interval    time.Duration
	subscribers map[chan domain.Snapshot]struct{}
	// reschedule wakes a pending wait after the interval changes.
	reschedule chan struct{}
}

func New(sampler Sampler, interval time.Duration, logger zerolog.Logger) *Monitor {
	return &Monitor{
		sampler:     sampler,
		logger:      logger.With().Str("component", "monitor").Logger(),
		state:       newState(),
		interval:    ClampInterval(interval),
		subscribers: make(map[chan domain.Snapshot]struct{}),
		reschedule:  make(chan struct{}, 1),
	}
}

// ClampInterval bounds d to [0.1s, 20s] and rounds it to a tenth of a second.
func ClampInterval(d time.Duration) time.Duration {
	seconds := d.Seconds()
	seconds = math.Max(MinInterval.Seconds(), math.Min(MaxInterval.Seconds(), seconds))
	seconds = math.Round(seconds*10) / 10
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
}

// SetInterval restarts a pending wait with the new interval.
func (m *Monitor) SetInterval(d time.Duration) time.Duration {
	d = ClampInterval(d)
	m.mu.Lock()
	m.interval = d
	m.mu.Unlock()
	select {
	case m.reschedule <- struct{}{}:
	default:
	}
	m.logger.Info().Dur("interval", d).Msg("update interval changed")
	return d
}

func (m *Monitor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

func (m *Monitor) Latest() (domain.Snapshot, bool) {
	return m.state.latest()
}

// History returns up to n samples, oldest first.
func (m *Monitor) History(n int) []domain.Snapshot {
	return m.state.last(normalizeCount(n))
}

// Subscribe returns a channel receiving every new snapshot. Slow readers
// miss samples rather than stall the loop. The returned func unsubscribes.
func (m *Monitor) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 1)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, ch)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Poll takes one sample immediately and publishes it.
func (m *Monitor) Poll(ctx context.Context) (domain.Snapshot, error) {
	snapshot, err := m.sampler.Sample(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	m.state.record(snapshot)
	m.publish(snapshot)
	return snapshot, nil
}

// Start polls until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Debug().Dur("interval", m.Interval()).Msg("monitor started")
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.Poll(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error().Err(err).Msg("failed to sample cpu state")
			observability.CaptureError(err, map[string]string{
				"component": "monitor",
				"operation": "sample",
			}, nil)
		}
		if !m.wait(ctx) {
			m.logger.Debug().Msg("monitor stopped")
			return
		}
	}
}

func (m *Monitor) publish(snapshot domain.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

type state struct {
	mu      sync.RWMutex
	samples []domain.Snapshot
	index   int
	count   int
}

func newState() *state {
	return &state{samples: make([]domain.Snapshot, maxSamples)}
}

func (s *state) record(snapshot domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[s.index] = snapshot
	s.index = (s.index + 1) % maxSamples
	if s.count < maxSamples {
		s.count++
	}
}

func (s *state) latest() (domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return domain.Snapshot{}, false
	}
	idx := (s.index - 1 + maxSamples) % maxSamples
	return s.samples[idx], true
}

func (s *state) last(count int) []domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if count > s.count {
		count = s.count
	}
	out := make([]domain.Snapshot, 0, count)
	start := (s.index - count + maxSamples) % maxSamples
	for i := 0; i < count; i++ {
		out = append(out, s.samples[(start+i)%maxSamples])
	}
	return out
}

func normalizeCount(count int) int {
	if count <= 0 {
		return 0
	}
	if count > maxSamples {
		return maxSamples
	}
	return count
}

// wait sleeps for the current interval. It reports false once ctx is done.
func (m *Monitor) wait(ctx context.Context) bool {
	timer := time.NewTimer(m.Interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-m.reschedule:
			timer.Reset(m.Interval())
		}
	}
}

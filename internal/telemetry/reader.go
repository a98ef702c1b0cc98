// Package telemetry reads live CPU state from the files recorded in a
// topology.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/Neol00/ClockSpeeds/internal/topology"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	ErrNoTempFile  = errors.New("no package temperature file found")
	ErrInvalidTemp = errors.New("temperature reading is not a valid number")
	ErrNoStatFile  = errors.New("stat file not found")
)

type Reader struct {
	topo   *topology.Topology
	logger zerolog.Logger

	mu           sync.Mutex
	prevStat     []CPUStat
	prevThrottle map[int]int64
}

// NewReader primes the load baseline so the first Sample already has loads.
func NewReader(topo *topology.Topology, logger zerolog.Logger) *Reader {
	r := &Reader{
		topo:         topo,
		logger:       logger.With().Str("component", "telemetry").Logger(),
		prevThrottle: make(map[int]int64),
	}
	if topo.Proc.Stat != "" {
		if stat, err := ReadStat(topo.Proc.Stat); err == nil {
			r.prevStat = stat
		}
	}
	return r
}

func (r *Reader) Topology() *topology.Topology {
	return r.topo
}

// ReadSpeeds returns the current frequency in MHz of every readable thread.
func (r *Reader) ReadSpeeds() map[int]float64 {
	speeds := make(map[int]float64)
	for _, f := range r.topo.ThreadFiles(topology.Speed) {
		khz, err := readInt(f.Path)
		if err != nil {
			r.logger.Error().Err(err).Int("thread", f.Thread).Msg("failed to read cpu speed")
			continue
		}
		speeds[f.Thread] = float64(khz) / 1000
	}
	return speeds
}

// Loads returns per-id load since the previous call and advances the baseline.
func (r *Reader) Loads() (map[string]float64, error) {
	if r.topo.Proc.Stat == "" {
		return nil, ErrNoStatFile
	}
	curr, err := ReadStat(r.topo.Proc.Stat)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	loads := CalculateLoad(r.prevStat, curr)
	r.prevStat = curr
	return loads, nil
}

// PackageTemp returns the package temperature in degrees Celsius.
func (r *Reader) PackageTemp() (float64, error) {
	if r.topo.PackageTempFile == "" {
		return 0, ErrNoTempFile
	}
	raw, err := readTrimmed(r.topo.PackageTempFile)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTemp, raw)
	}
	return float64(milli) / 1000, nil
}

// Governor is thread 0's scaling governor.
func (r *Reader) Governor() (string, error) {
	path := r.topo.File(topology.Governor, 0)
	if path == "" {
		return "", errors.New("governor file not found for thread 0")
	}
	return readTrimmed(path)
}

// AvailableGovernors is the sorted union of every thread's list.
func (r *Reader) AvailableGovernors() []string {
	var all []string
	for _, f := range r.topo.ThreadFiles(topology.AvailableGovernors) {
		raw, err := readTrimmed(f.Path)
		if err != nil {
			r.logger.Error().Err(err).Str("path", f.Path).Msg("failed to read available governors")
			continue
		}
		all = append(all, strings.Fields(raw)...)
	}
	governors := lo.Uniq(all)
	sort.Strings(governors)
	return governors
}

// Boost reports the turbo state, or nil when no boost control exists.
func (r *Reader) Boost() *bool {
	if r.topo.IsIntel() && r.topo.IntelBoostPath != "" {
		if _, err := os.Stat(r.topo.IntelBoostPath); err == nil {
			return lo.ToPtr(r.readBoostFile(r.topo.IntelBoostPath, true))
		}
	}
	for _, f := range r.topo.ThreadFiles(topology.Boost) {
		if _, err := os.Stat(f.Path); err == nil {
			return lo.ToPtr(r.readBoostFile(f.Path, false))
		}
	}
	r.logger.Debug().Msg("no valid boost control files found")
	return nil
}

// no_turbo is inverted: 0 means boost is on.
func (r *Reader) readBoostFile(path string, intel bool) bool {
	content, err := readTrimmed(path)
	if err != nil {
		r.logger.Info().Err(err).Str("path", path).Msg("boost file not accessible")
		return false
	}
	switch content {
	case "0":
		return intel
	case "1":
		return !intel
	default:
		r.logger.Error().Str("path", path).Str("content", content).Msg("unexpected content in boost file")
		return false
	}
}

// Throttling reports whether any thread's package throttle counter grew since
// the previous call. Always false off Intel.
func (r *Reader) Throttling() bool {
	if !r.topo.IsIntel() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	throttling := false
	for _, f := range r.topo.ThreadFiles(topology.PackageThrottleTime) {
		current, err := readInt(f.Path)
		if err != nil {
			continue
		}
		if prev, ok := r.prevThrottle[f.Thread]; ok && current > prev {
			throttling = true
		}
		r.prevThrottle[f.Thread] = current
	}
	return throttling
}

// EnergyPerfBias is thread 0's bias, or nil when the file is absent.
func (r *Reader) EnergyPerfBias() *int {
	path := r.topo.File(topology.EnergyPerfBias, 0)
	if path == "" {
		return nil
	}
	v, err := readInt(path)
	if err != nil {
		return nil
	}
	return lo.ToPtr(int(v))
}

// AllowedFrequencies returns cpuinfo_min/max in MHz for every thread that has
// both files.
func (r *Reader) AllowedFrequencies() (minMHz, maxMHz []float64) {
	for thread := 0; thread < r.topo.Threads; thread++ {
		low, high, err := r.AllowedRange(thread)
		if err != nil {
			r.logger.Error().Err(err).Int("thread", thread).Msg("min or max frequency file not found")
			continue
		}
		minMHz = append(minMHz, low)
		maxMHz = append(maxMHz, high)
	}
	return minMHz, maxMHz
}

func (r *Reader) AllowedRange(thread int) (float64, float64, error) {
	minPath := r.topo.File(topology.CPUInfoMin, thread)
	maxPath := r.topo.File(topology.CPUInfoMax, thread)
	if minPath == "" || maxPath == "" {
		return 0, 0, fmt.Errorf("cpuinfo frequency files missing for thread %d", thread)
	}
	minKHz, err := readInt(minPath)
	if err != nil {
		return 0, 0, err
	}
	maxKHz, err := readInt(maxPath)
	if err != nil {
		return 0, 0, err
	}
	return float64(minKHz) / 1000, float64(maxKHz) / 1000, nil
}

// ScalingLimits returns the configured scaling_min/max of a thread in MHz.
func (r *Reader) ScalingLimits(thread int) (int, int, error) {
	minKHz, err := readInt(r.topo.File(topology.ScalingMin, thread))
	if err != nil {
		return 0, 0, err
	}
	maxKHz, err := readInt(r.topo.File(topology.ScalingMax, thread))
	if err != nil {
		return 0, 0, err
	}
	return int(minKHz / 1000), int(maxKHz / 1000), nil
}

// MaxTDP is the RAPL maximum in watts. Only Intel exposes it.
func (r *Reader) MaxTDP() *float64 {
	if !r.topo.IsIntel() {
		return nil
	}
	if r.topo.IntelTDP.MaxTDP == "" {
		r.logger.Error().Msg("intel max tdp file not found")
		return nil
	}
	uw, err := readInt(r.topo.IntelTDP.MaxTDP)
	if err != nil {
		r.logger.Error().Err(err).Msg("error reading tdp values")
		return nil
	}
	return lo.ToPtr(float64(uw) / 1_000_000)
}

// Sample gathers one snapshot. Partial failures are logged and leave the
// affected fields empty.
func (r *Reader) Sample(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}

	snapshot := domain.Snapshot{Time: time.Now().UTC()}

	speeds := r.ReadSpeeds()
	loads, err := r.Loads()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to update load")
	}
	threadLoads := ThreadLoads(loads)

	var mhzSum float64
	for thread := 0; thread < r.topo.Threads; thread++ {
		speed, hasSpeed := speeds[thread]
		load, hasLoad := threadLoads[thread]
		if !hasSpeed && !hasLoad {
			continue
		}
		mhzSum += speed
		snapshot.Threads = append(snapshot.Threads, domain.ThreadSample{
			Thread:       thread,
			FrequencyMHz: speed,
			LoadPercent:  load,
		})
	}
	if len(speeds) > 0 {
		snapshot.AverageMHz = mhzSum / float64(len(speeds))
	}
	snapshot.AverageLoad = AverageLoad(loads)

	if temp, err := r.PackageTemp(); err != nil {
		r.logger.Error().Err(err).Msg("failed to read package temperature")
	} else {
		snapshot.PackageTempC = &temp
	}

	if governor, err := r.Governor(); err != nil {
		r.logger.Error().Err(err).Msg("failed to read governor")
	} else {
		snapshot.Governor = governor
	}

	snapshot.Throttling = r.Throttling()
	snapshot.Boost = r.Boost()
	return snapshot, nil
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readInt(path string) (int64, error) {
	if path == "" {
		return 0, errors.New("file path is not set")
	}
	raw, err := readTrimmed(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

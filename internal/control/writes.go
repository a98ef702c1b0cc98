// Package control turns requested CPU settings into batches of sysfs writes.
package control

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/Neol00/ClockSpeeds/internal/privileged"
	"github.com/Neol00/ClockSpeeds/internal/smu"
	"github.com/Neol00/ClockSpeeds/internal/topology"
)

var (
	ErrNoThreadsSelected = errors.New("at least one thread must be selected to apply speed limits")
	ErrNothingToApply    = errors.New("no valid writes were generated")
	ErrInvalidSpeed      = errors.New("invalid cpu speed limits")
	ErrInvalidGovernor   = errors.New("invalid governor")
	ErrInvalidEPB        = errors.New("invalid energy performance bias")
	ErrInvalidTDP        = errors.New("invalid tdp")
	ErrInvalidPBO        = errors.New("invalid pbo curve offset")
	ErrNotIntel          = errors.New("only supported on Intel cpus")
	ErrNotOther          = errors.New("only supported on AMD Ryzen cpus")
	ErrNoBoostControl    = errors.New("no boost control files found")
	ErrTDPFileNotFound   = errors.New("intel tdp control file not found")
)

var Governors = []string{"conservative", "ondemand", "performance", "powersave", "schedutil", "userspace"}

// EnergyPerfBiasValues are the named EPB presets, from performance to
// power saving.
var EnergyPerfBiasValues = map[int]string{
	0:  "performance",
	4:  "balance_performance",
	6:  "normal",
	8:  "balance_power",
	15: "power",
}

const DefaultScaleMax = 6000

// PBOOffsetMax bounds the negative curve optimizer offset.
const PBOOffsetMax = 30

type ThreadLimit = domain.ThreadLimit

// Uniform applies the same pair to every listed thread.
func Uniform(threads []int, minMHz, maxMHz int) []ThreadLimit {
	limits := make([]ThreadLimit, 0, len(threads))
	for _, thread := range threads {
		limits = append(limits, ThreadLimit{Thread: thread, MinMHz: minMHz, MaxMHz: maxMHz})
	}
	return limits
}

// AllowedRange returns a thread's hardware min/max in MHz.
type AllowedRange func(thread int) (float64, float64, error)

type FrequencyOptions struct {
	ScaleMax int
	// Allowed is consulted unless nil; nil disables the hardware range check.
	Allowed AllowedRange
}

// FrequencyWrites validates every limit and emits scaling_max then
// scaling_min per thread. Invalid threads are skipped and reported in the
// returned error; accepted holds the limits that produced writes.
func FrequencyWrites(topo *topology.Topology, limits []ThreadLimit, opts FrequencyOptions) (writes []privileged.Write, accepted []ThreadLimit, err error) {
	if len(limits) == 0 {
		return nil, nil, ErrNoThreadsSelected
	}
	scaleMax := opts.ScaleMax
	if scaleMax <= 0 {
		scaleMax = DefaultScaleMax
	}

	var errs []error
	for _, l := range limits {
		if !(0 <= l.MinMHz && l.MinMHz <= l.MaxMHz && l.MaxMHz <= scaleMax) {
			errs = append(errs, fmt.Errorf("%w for thread %d: want 0 <= min (%d) <= max (%d) <= %d",
				ErrInvalidSpeed, l.Thread, l.MinMHz, l.MaxMHz, scaleMax))
			continue
		}
		if opts.Allowed != nil {
			low, high, err := opts.Allowed(l.Thread)
			if err != nil {
				errs = append(errs, fmt.Errorf("thread %d: %w", l.Thread, err))
				continue
			}
			if float64(l.MinMHz) < low || float64(l.MaxMHz) > high {
				errs = append(errs, fmt.Errorf("%w for thread %d: allowed range is %.0f-%.0f MHz",
					ErrInvalidSpeed, l.Thread, low, high))
				continue
			}
		}
		maxFile := topo.File(topology.ScalingMax, l.Thread)
		minFile := topo.File(topology.ScalingMin, l.Thread)
		if maxFile == "" || minFile == "" {
			errs = append(errs, fmt.Errorf("scaling min or max file not found for thread %d", l.Thread))
			continue
		}
		writes = append(writes,
			privileged.Text(maxFile, strconv.Itoa(l.MaxMHz*1000)),
			privileged.Text(minFile, strconv.Itoa(l.MinMHz*1000)),
		)
		accepted = append(accepted, l)
	}
	return writes, accepted, errors.Join(errs...)
}

func GovernorWrites(topo *topology.Topology, governor string) ([]privileged.Write, error) {
	if !slices.Contains(Governors, governor) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGovernor, governor)
	}
	var writes []privileged.Write
	for _, f := range topo.ThreadFiles(topology.Governor) {
		writes = append(writes, privileged.Text(f.Path, governor))
	}
	if len(writes) == 0 {
		return nil, ErrNothingToApply
	}
	return writes, nil
}

// BoostWrites uses intel_pstate/no_turbo (inverted) on Intel and the
// per-policy boost files elsewhere.
func BoostWrites(topo *topology.Topology, enabled bool) ([]privileged.Write, error) {
	if topo.IsIntel() && topo.IntelBoostPath != "" {
		value := "1"
		if enabled {
			value = "0"
		}
		return []privileged.Write{privileged.Text(topo.IntelBoostPath, value)}, nil
	}

	value := "0"
	if enabled {
		value = "1"
	}
	var writes []privileged.Write
	for _, f := range topo.ThreadFiles(topology.Boost) {
		writes = append(writes, privileged.Text(f.Path, value))
	}
	if len(writes) == 0 {
		return nil, ErrNoBoostControl
	}
	return writes, nil
}

// IntelTDPWrites sets the RAPL long-term power limit.
func IntelTDPWrites(topo *topology.Topology, watts float64) ([]privileged.Write, error) {
	if !topo.IsIntel() {
		return nil, ErrNotIntel
	}
	if watts <= 0 {
		return nil, fmt.Errorf("%w: %v W", ErrInvalidTDP, watts)
	}
	if topo.IntelTDP.TDP == "" {
		return nil, ErrTDPFileNotFound
	}
	microwatts := int64(watts * 1_000_000)
	return []privileged.Write{privileged.Text(topo.IntelTDP.TDP, strconv.FormatInt(microwatts, 10))}, nil
}

// RyzenTDPWrites loads the PPT limit into smu_args and fires the rsmu
// command.
func RyzenTDPWrites(topo *topology.Topology, driver *smu.Driver, watts float64) ([]privileged.Write, error) {
	if topo.IsIntel() {
		return nil, ErrNotOther
	}
	if driver == nil {
		return nil, smu.ErrNotInstalled
	}
	if watts <= 0 {
		return nil, fmt.Errorf("%w: %v W", ErrInvalidTDP, watts)
	}
	return []privileged.Write{
		privileged.Bytes(driver.ArgsPath(), smu.EncodePPTLimit(watts)),
		privileged.Bytes(driver.RSMUCmdPath(), []byte{smu.CmdSetPPTLimit}),
	}, nil
}

// PBOWrites sends the curve optimizer offset to every physical core.
func PBOWrites(topo *topology.Topology, driver *smu.Driver, physicalCores, offset int) ([]privileged.Write, error) {
	if topo.IsIntel() {
		return nil, ErrNotOther
	}
	if driver == nil {
		return nil, smu.ErrNotInstalled
	}
	if offset < 0 || offset > PBOOffsetMax {
		return nil, fmt.Errorf("%w: %d, want 0-%d", ErrInvalidPBO, offset, PBOOffsetMax)
	}
	if physicalCores <= 0 {
		return nil, fmt.Errorf("%w: no physical cores reported", ErrNothingToApply)
	}
	writes := make([]privileged.Write, 0, physicalCores*2)
	for core := 0; core < physicalCores; core++ {
		arg := smu.CurveOffsetArg(core, offset)
		writes = append(writes,
			privileged.Text(driver.ArgsPath(), strconv.FormatUint(uint64(arg), 10)),
			privileged.Text(driver.MP1CmdPath(), smu.CmdSetAllCurveOffset),
		)
	}
	return writes, nil
}

func EPBWrites(topo *topology.Topology, value int) ([]privileged.Write, error) {
	if !topo.IsIntel() {
		return nil, ErrNotIntel
	}
	if _, ok := EnergyPerfBiasValues[value]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEPB, value)
	}
	var writes []privileged.Write
	for _, f := range topo.ThreadFiles(topology.EnergyPerfBias) {
		writes = append(writes, privileged.Text(f.Path, strconv.Itoa(value)))
	}
	if len(writes) == 0 {
		return nil, ErrNothingToApply
	}
	return writes, nil
}

package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/Neol00/ClockSpeeds/internal/observability"
	"github.com/Neol00/ClockSpeeds/internal/privileged"
	"github.com/Neol00/ClockSpeeds/internal/smu"
	"github.com/Neol00/ClockSpeeds/internal/topology"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Recorder persists what was applied.
type Recorder interface {
	Applied() (domain.AppliedSettings, error)
	Record(control string, update func(*domain.AppliedSettings)) (domain.AppliedSettings, error)
}

// HardwareInfo is the live data some controls validate against.
type HardwareInfo interface {
	AllowedRange(thread int) (float64, float64, error)
	PhysicalCores() (int, error)
}

// Limits mirrors the scale settings from config.ini.
type Limits struct {
	ScaleMax           int
	DisableScaleLimits bool
	SyncScales         bool
}

type Controller struct {
	topo     *topology.Topology
	executor privileged.Executor
	recorder Recorder
	hardware HardwareInfo
	driver   *smu.Driver
	limits   Limits
	logger   zerolog.Logger
}

func NewController(topo *topology.Topology, executor privileged.Executor, recorder Recorder, hardware HardwareInfo, driver *smu.Driver, limits Limits, logger zerolog.Logger) *Controller {
	return &Controller{
		topo:     topo,
		executor: executor,
		recorder: recorder,
		hardware: hardware,
		driver:   driver,
		limits:   limits,
		logger:   logger.With().Str("component", "control").Logger(),
	}
}

func (c *Controller) Topology() *topology.Topology {
	return c.topo
}

// Applied returns the last recorded settings.
func (c *Controller) Applied() (domain.AppliedSettings, error) {
	if c.recorder == nil {
		return domain.AppliedSettings{}, nil
	}
	return c.recorder.Applied()
}

// SetFrequency applies per-thread limits. With sync scales enabled the first
// limit is applied to every thread. Threads that fail validation are skipped
// and reported; the rest are still applied.
func (c *Controller) SetFrequency(ctx context.Context, limits []ThreadLimit) (domain.AppliedSettings, error) {
	if len(limits) == 0 {
		return domain.AppliedSettings{}, ErrNoThreadsSelected
	}
	if c.limits.SyncScales {
		limits = Uniform(lo.Range(c.topo.Threads), limits[0].MinMHz, limits[0].MaxMHz)
	}

	opts := FrequencyOptions{ScaleMax: c.limits.ScaleMax}
	if !c.limits.DisableScaleLimits && c.hardware != nil {
		opts.Allowed = c.hardware.AllowedRange
	}
	writes, accepted, skipped := FrequencyWrites(c.topo, limits, opts)
	if skipped != nil {
		c.logger.Error().Err(skipped).Msg("skipped threads with invalid speed limits")
	}
	if len(writes) == 0 {
		return domain.AppliedSettings{}, errors.Join(ErrNothingToApply, skipped)
	}

	applied, err := c.apply(ctx, "frequency", writes, func(a *domain.AppliedSettings) {
		if a.MinSpeeds == nil {
			a.MinSpeeds = make(map[int]int)
		}
		if a.MaxSpeeds == nil {
			a.MaxSpeeds = make(map[int]int)
		}
		a.CheckedThreads = make(map[int]bool, c.topo.Threads)
		for thread := 0; thread < c.topo.Threads; thread++ {
			a.CheckedThreads[thread] = false
		}
		for _, l := range accepted {
			a.MinSpeeds[l.Thread] = l.MinMHz
			a.MaxSpeeds[l.Thread] = l.MaxMHz
			a.CheckedThreads[l.Thread] = true
		}
	})
	if err != nil {
		return applied, err
	}
	return applied, skipped
}

func (c *Controller) SetGovernor(ctx context.Context, governor string) (domain.AppliedSettings, error) {
	writes, err := GovernorWrites(c.topo, governor)
	if err != nil {
		return domain.AppliedSettings{}, err
	}
	return c.apply(ctx, "governor", writes, func(a *domain.AppliedSettings) {
		a.Governor = governor
	})
}

func (c *Controller) SetBoost(ctx context.Context, enabled bool) (domain.AppliedSettings, error) {
	writes, err := BoostWrites(c.topo, enabled)
	if err != nil {
		return domain.AppliedSettings{}, err
	}
	return c.apply(ctx, "boost", writes, func(a *domain.AppliedSettings) {
		a.Boost = lo.ToPtr(enabled)
	})
}

// SetTDP goes through RAPL on Intel and ryzen_smu elsewhere.
func (c *Controller) SetTDP(ctx context.Context, watts float64) (domain.AppliedSettings, error) {
	var writes []privileged.Write
	var err error
	if c.topo.IsIntel() {
		writes, err = IntelTDPWrites(c.topo, watts)
	} else {
		if err := c.requireSMU(ctx); err != nil {
			return domain.AppliedSettings{}, err
		}
		writes, err = RyzenTDPWrites(c.topo, c.driver, watts)
	}
	if err != nil {
		return domain.AppliedSettings{}, err
	}
	return c.apply(ctx, "tdp", writes, func(a *domain.AppliedSettings) {
		a.TDPWatts = lo.ToPtr(watts)
	})
}

func (c *Controller) SetPBOOffset(ctx context.Context, offset int) (domain.AppliedSettings, error) {
	if c.topo.IsIntel() {
		return domain.AppliedSettings{}, ErrNotOther
	}
	if offset < 0 || offset > PBOOffsetMax {
		return domain.AppliedSettings{}, fmt.Errorf("%w: %d, want 0-%d", ErrInvalidPBO, offset, PBOOffsetMax)
	}
	if err := c.requireSMU(ctx); err != nil {
		return domain.AppliedSettings{}, err
	}
	cores, err := c.physicalCores()
	if err != nil {
		return domain.AppliedSettings{}, err
	}
	writes, err := PBOWrites(c.topo, c.driver, cores, offset)
	if err != nil {
		return domain.AppliedSettings{}, err
	}
	return c.apply(ctx, "pbo", writes, func(a *domain.AppliedSettings) {
		a.PBOOffset = lo.ToPtr(offset)
	})
}

func (c *Controller) SetEnergyPerfBias(ctx context.Context, value int) (domain.AppliedSettings, error) {
	writes, err := EPBWrites(c.topo, value)
	if err != nil {
		return domain.AppliedSettings{}, err
	}
	return c.apply(ctx, "epb", writes, func(a *domain.AppliedSettings) {
		a.EnergyPerfBias = lo.ToPtr(value)
	})
}

// ReplayWrites rebuilds the writes needed to restore applied settings, used
// for the apply-on-boot script. Settings that cannot be rebuilt on this
// machine are logged and skipped.
func (c *Controller) ReplayWrites(applied domain.AppliedSettings) ([]privileged.Write, error) {
	var writes []privileged.Write
	add := func(control string, w []privileged.Write, err error) {
		if err != nil {
			c.logger.Error().Err(err).Str("control", control).Msg("cannot restore setting")
		}
		writes = append(writes, w...)
	}

	var limits []ThreadLimit
	for thread := 0; thread < c.topo.Threads; thread++ {
		minMHz, hasMin := applied.MinSpeeds[thread]
		maxMHz, hasMax := applied.MaxSpeeds[thread]
		if hasMin && hasMax {
			limits = append(limits, ThreadLimit{Thread: thread, MinMHz: minMHz, MaxMHz: maxMHz})
		}
	}
	if len(limits) > 0 {
		w, _, err := FrequencyWrites(c.topo, limits, FrequencyOptions{ScaleMax: c.limits.ScaleMax})
		add("frequency", w, err)
	}
	if applied.Governor != "" {
		w, err := GovernorWrites(c.topo, applied.Governor)
		add("governor", w, err)
	}
	if applied.Boost != nil {
		w, err := BoostWrites(c.topo, *applied.Boost)
		add("boost", w, err)
	}
	if applied.TDPWatts != nil {
		if c.topo.IsIntel() {
			w, err := IntelTDPWrites(c.topo, *applied.TDPWatts)
			add("tdp", w, err)
		} else {
			w, err := RyzenTDPWrites(c.topo, c.driver, *applied.TDPWatts)
			add("tdp", w, err)
		}
	}
	if applied.PBOOffset != nil {
		cores, err := c.physicalCores()
		if err != nil {
			add("pbo", nil, err)
		} else {
			w, err := PBOWrites(c.topo, c.driver, cores, *applied.PBOOffset)
			add("pbo", w, err)
		}
	}
	if applied.EnergyPerfBias != nil {
		w, err := EPBWrites(c.topo, *applied.EnergyPerfBias)
		add("epb", w, err)
	}

	if len(writes) == 0 {
		return nil, ErrNothingToApply
	}
	return writes, nil
}

func (c *Controller) apply(ctx context.Context, control string, writes []privileged.Write, update func(*domain.AppliedSettings)) (domain.AppliedSettings, error) {
	if err := c.executor.Apply(ctx, writes); err != nil {
		if errors.Is(err, privileged.ErrCanceled) {
			c.logger.Info().Str("control", control).Msg("user canceled the pkexec prompt")
			return domain.AppliedSettings{}, err
		}
		c.logger.Error().Err(err).Str("control", control).Msg("failed to apply setting")
		observability.CaptureError(err, map[string]string{
			"component": "control",
			"operation": control,
		}, nil)
		return domain.AppliedSettings{}, fmt.Errorf("apply %s: %w", control, err)
	}
	c.logger.Info().Str("control", control).Int("writes", len(writes)).Msg("setting applied")

	if c.recorder == nil {
		return domain.AppliedSettings{}, nil
	}
	// The hardware write already succeeded, so a failed save is only logged.
	applied, err := c.recorder.Record(control, update)
	if err != nil {
		c.logger.Error().Err(err).Str("control", control).Msg("error saving the applied setting")
	}
	return applied, nil
}

func (c *Controller) requireSMU(ctx context.Context) error {
	if c.driver == nil || !c.driver.Installed(ctx) {
		return smu.ErrNotInstalled
	}
	return nil
}

func (c *Controller) physicalCores() (int, error) {
	if c.hardware == nil {
		return 0, errors.New("physical core count unavailable")
	}
	return c.hardware.PhysicalCores()
}

package app

import (
	"context"
	"errors"
	"time"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/Neol00/ClockSpeeds/internal/ports"
)

const MaxSamples = 250

var (
	ErrNoSample    = errors.New("no sample collected yet")
	ErrControlOff  = errors.New("cpu control is disabled")
	ErrInvalidSize = errors.New("sample count must be positive")
)

type Service struct {
	specsReader ports.SpecsReader
	cpuReader   ports.CPUReader
	snapshots   ports.SnapshotSource
	controller  ports.CPUController
	history     ports.AppliedHistory
}

// NewService wires the read side. Control is optional, see WithControl.
func NewService(specsReader ports.SpecsReader, cpuReader ports.CPUReader, snapshots ports.SnapshotSource) *Service {
	return &Service{
		specsReader: specsReader,
		cpuReader:   cpuReader,
		snapshots:   snapshots,
	}
}

func (s *Service) WithControl(controller ports.CPUController, history ports.AppliedHistory) *Service {
	s.controller = controller
	s.history = history
	return s
}

func (s *Service) Health() domain.Health {
	return domain.Health{
		Status: "ok",
		Time:   time.Now().UTC(),
	}
}

func (s *Service) Specs(ctx context.Context) (domain.Specs, error) {
	return s.specsReader.ReadSpecs(ctx)
}

func (s *Service) Info() (domain.CPUInfo, error) {
	return s.cpuReader.CPUInfo()
}

func (s *Service) Governors() []string {
	return s.cpuReader.AvailableGovernors()
}

func (s *Service) Latest() (domain.Snapshot, error) {
	snapshot, ok := s.snapshots.Latest()
	if !ok {
		return domain.Snapshot{}, ErrNoSample
	}
	return snapshot, nil
}

// Samples returns up to n snapshots, oldest first. n is capped at MaxSamples.
func (s *Service) Samples(n int) ([]domain.Snapshot, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	return s.snapshots.History(min(n, MaxSamples)), nil
}

func (s *Service) Interval() time.Duration {
	return s.snapshots.Interval()
}

func (s *Service) Applied() (domain.AppliedSettings, error) {
	if s.controller == nil {
		return domain.AppliedSettings{}, ErrControlOff
	}
	return s.controller.Applied()
}

func (s *Service) AppliedHistory(n int) ([]domain.AppliedRecord, error) {
	if s.history == nil {
		return nil, ErrControlOff
	}
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	return s.history.History(n)
}

func (s *Service) SetFrequency(ctx context.Context, limits []domain.ThreadLimit) (domain.AppliedSettings, error) {
	if s.controller == nil {
		return domain.AppliedSettings{}, ErrControlOff
	}
	return s.controller.SetFrequency(ctx, limits)
}

func (s *Service) SetGovernor(ctx context.Context, governor string) (domain.AppliedSettings, error) {
	if s.controller == nil {
		return domain.AppliedSettings{}, ErrControlOff
	}
	return s.controller.SetGovernor(ctx, governor)
}

func (s *Service) SetBoost(ctx context.Context, enabled bool) (domain.AppliedSettings, error) {
	if s.controller == nil {
		return domain.AppliedSettings{}, ErrControlOff
	}
	return s.controller.SetBoost(ctx, enabled)
}

func (s *Service) SetTDP(ctx context.Context, watts float64) (domain.AppliedSettings, error) {
	if s.controller == nil {
		return domain.AppliedSettings{}, ErrControlOff
	}
	return s.controller.SetTDP(ctx, watts)
}

func (s *Service) SetPBOOffset(ctx context.Context, offset int) (domain.AppliedSettings, error) {
	if s.controller == nil {
		return domain.AppliedSettings{}, ErrControlOff
	}
	return s.controller.SetPBOOffset(ctx, offset)
}

func (s *Service) SetEnergyPerfBias(ctx context.Context, value int) (domain.AppliedSettings, error) {
	if s.controller == nil {
		return domain.AppliedSettings{}, ErrControlOff
	}
	return s.controller.SetEnergyPerfBias(ctx, value)
}

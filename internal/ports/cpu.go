package ports

import (
	"context"
	"time"

	"github.com/Neol00/ClockSpeeds/internal/domain"
)

type CPUReader interface {
	CPUInfo() (domain.CPUInfo, error)
	AvailableGovernors() []string
}

// SnapshotSource is the polling loop as seen by the API.
type SnapshotSource interface {
	Latest() (domain.Snapshot, bool)
	History(n int) []domain.Snapshot
	Interval() time.Duration
}

type CPUController interface {
	Applied() (domain.AppliedSettings, error)
	SetFrequency(ctx context.Context, limits []domain.ThreadLimit) (domain.AppliedSettings, error)
	SetGovernor(ctx context.Context, governor string) (domain.AppliedSettings, error)
	SetBoost(ctx context.Context, enabled bool) (domain.AppliedSettings, error)
	SetTDP(ctx context.Context, watts float64) (domain.AppliedSettings, error)
	SetPBOOffset(ctx context.Context, offset int) (domain.AppliedSettings, error)
	SetEnergyPerfBias(ctx context.Context, value int) (domain.AppliedSettings, error)
}

type AppliedHistory interface {
	History(n int) ([]domain.AppliedRecord, error)
}

package ports

import (
	"context"

	"github.com/Neol00/ClockSpeeds/internal/domain"
)

type SpecsReader interface {
	ReadSpecs(ctx context.Context) (domain.Specs, error)
}

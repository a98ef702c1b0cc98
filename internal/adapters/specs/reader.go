package specsadapter

import (
	"context"
	"sync"
	"time"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/Neol00/ClockSpeeds/internal/observability"
	"github.com/Neol00/ClockSpeeds/internal/specs"
)

// DefaultTTL bounds how often dmidecode and turbostat are spawned.
const DefaultTTL = 30 * time.Second

type source interface {
	Read(ctx context.Context) (domain.Specs, error)
}

// Reader caches the last successful specs read for ttl.
type Reader struct {
	source source
	ttl    time.Duration
	now    func() time.Time

	mu     sync.Mutex
	cached domain.Specs
	readAt time.Time
}

func NewReader(src specs.Sources, ttl time.Duration) *Reader {
	return newReader(specs.NewReader(src), ttl)
}

func newReader(source source, ttl time.Duration) *Reader {
	return &Reader{source: source, ttl: ttl, now: time.Now}
}

func (r *Reader) ReadSpecs(ctx context.Context) (domain.Specs, error) {
	if err := ctx.Err(); err != nil {
		return domain.Specs{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.readAt.IsZero() && r.now().Sub(r.readAt) < r.ttl {
		return r.cached, nil
	}

	current, err := r.source.Read(ctx)
	if err != nil {
		observability.CaptureError(err, map[string]string{
			"component": "specs",
			"operation": "read_specs",
		}, nil)
		return domain.Specs{}, err
	}
	r.cached, r.readAt = current, r.now()
	return current, nil
}

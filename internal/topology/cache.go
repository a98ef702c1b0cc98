package topology

import (
	"fmt"

	"github.com/rs/zerolog"
)

const cacheBucket = "topology"
const cacheKey = "current"

// Cache is the persistence the discovered topology is kept in between runs.
type Cache interface {
	GetJSON(bucket, key string, v any) (bool, error)
	PutJSON(bucket, key string, v any) error
}

// Load returns the cached topology when it validates, otherwise it runs
// Discover and refreshes the cache. rescan forces discovery.
func Load(cache Cache, roots Roots, rescan bool, logger zerolog.Logger) (*Topology, error) {
	if cache != nil && !rescan {
		var cached Topology
		found, err := cache.GetJSON(cacheBucket, cacheKey, &cached)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load cached cpu paths")
		}
		if found && cached.CPUDir == roots.CPU {
			err := cached.Validate()
			if err == nil {
				return &cached, nil
			}
			logger.Warn().Err(err).Msg("cached cpu paths are stale, rescanning")
		}
	}

	t, err := Discover(roots, logger)
	if err != nil {
		return nil, fmt.Errorf("discover cpu files: %w", err)
	}
	if cache != nil {
		if err := cache.PutJSON(cacheBucket, cacheKey, t); err != nil {
			logger.Error().Err(err).Msg("failed to save cpu paths")
		}
	}
	return t, nil
}

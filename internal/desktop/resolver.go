// Package desktop installs the launcher entry for ClockSpeeds.
package desktop

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Candidates are probed in order; the first Python 3 wins.
var Candidates = []string{"python3", "python", "python3.11", "python3.10", "python3.9", "python3.8"}

const FallbackInterpreter = "python3"

type Resolver struct {
	lookPath func(string) (string, error)
	version  func(ctx context.Context, path string) (string, error)
	logger   zerolog.Logger
}

func NewResolver(logger zerolog.Logger) *Resolver {
	return &Resolver{
		lookPath: exec.LookPath,
		version:  interpreterVersion,
		logger:   logger,
	}
}

// Python 2 prints its version on stderr, so both streams are read.
func interpreterVersion(ctx context.Context, path string) (string, error) {
	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	return string(out), err
}

// Resolve returns the absolute path of the first Python 3 interpreter on
// PATH. When none is found it warns and returns FallbackInterpreter with
// found set to false.
func (r *Resolver) Resolve(ctx context.Context) (path string, found bool) {
	for _, name := range Candidates {
		candidate, err := r.lookPath(name)
		if err != nil {
			continue
		}
		out, err := r.version(ctx, candidate)
		if err != nil || !strings.Contains(out, "Python 3") {
			r.logger.Debug().Str("candidate", candidate).Str("version", strings.TrimSpace(out)).Msg("skipping interpreter")
			continue
		}
		if abs, err := filepath.Abs(candidate); err == nil {
			candidate = abs
		}
		r.logger.Info().Str("interpreter", candidate).Msg("found python 3 interpreter")
		return candidate, true
	}
	r.logger.Warn().Str("fallback", FallbackInterpreter).Msg("python 3 not found, using fallback")
	return FallbackInterpreter, false
}

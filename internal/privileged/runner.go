// Package privileged performs writes to root-owned sysfs files, either
// directly when already running as root or through a single pkexec prompt.
package privileged

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

var (
	ErrCanceled        = errors.New("authentication was canceled")
	ErrCommandNotFound = errors.New("privileged command not found")
)

// pkexec exit codes for a dismissed dialog and a missing program.
const (
	exitCanceled = 126
	exitNotFound = 127
)

// Write is one file write. Text writes get a trailing newline; binary writes
// are emitted byte for byte.
type Write struct {
	Path   string
	Data   []byte
	Binary bool
}

func Text(path, value string) Write {
	return Write{Path: path, Data: []byte(value)}
}

func Bytes(path string, data []byte) Write {
	return Write{Path: path, Data: data, Binary: true}
}

type Executor interface {
	Apply(ctx context.Context, writes []Write) error
	RunShell(ctx context.Context, commands []string) error
}

type Runner struct {
	logger zerolog.Logger
	pkexec string
	isRoot func() bool
}

type Option func(*Runner)

// WithPkexec overrides the elevation helper binary.
func WithPkexec(path string) Option {
	return func(r *Runner) { r.pkexec = path }
}

func WithRootCheck(isRoot func() bool) Option {
	return func(r *Runner) { r.isRoot = isRoot }
}

func NewRunner(logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger: logger.With().Str("component", "privileged").Logger(),
		pkexec: "pkexec",
		isRoot: func() bool { return unix.Geteuid() == 0 },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply performs all writes. As root they go straight to the files, otherwise
// they are batched into one pkexec shell so the user is prompted once.
func (r *Runner) Apply(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	if r.isRoot() {
		return r.writeDirect(writes)
	}
	commands := make([]string, 0, len(writes))
	for _, w := range writes {
		commands = append(commands, RenderWrite(w))
	}
	return r.RunShell(ctx, commands)
}

func (r *Runner) writeDirect(writes []Write) error {
	for _, w := range writes {
		data := w.Data
		if !w.Binary {
			data = append(append([]byte(nil), w.Data...), '\n')
		}
		if err := os.WriteFile(w.Path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", w.Path, err)
		}
		r.logger.Debug().Str("path", w.Path).Bool("binary", w.Binary).Msg("wrote file")
	}
	return nil
}

// RunShell runs commands joined with && in one shell, elevated through pkexec
// unless the process is already root.
func (r *Runner) RunShell(ctx context.Context, commands []string) error {
	if len(commands) == 0 {
		return nil
	}
	script := strings.Join(commands, " && ")

	var cmd *exec.Cmd
	if r.isRoot() {
		cmd = exec.CommandContext(ctx, "sh", "-c", script)
	} else {
		cmd = exec.CommandContext(ctx, r.pkexec, "sh", "-c", script)
	}
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	r.logger.Debug().Str("script", script).Msg("running privileged command")
	if err := cmd.Run(); err != nil {
		return r.classify(err, output.String())
	}
	return nil
}

func (r *Runner) classify(err error, output string) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case exitCanceled:
			r.logger.Info().Msg("authentication canceled by user")
			return ErrCanceled
		case exitNotFound:
			r.logger.Error().Msg("privileged command not found")
			return ErrCommandNotFound
		}
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrCommandNotFound, r.pkexec)
	}
	output = strings.TrimSpace(output)
	r.logger.Error().Err(err).Str("output", output).Msg("privileged command failed")
	if output != "" {
		return fmt.Errorf("privileged command failed: %w: %s", err, output)
	}
	return fmt.Errorf("privileged command failed: %w", err)
}

// RenderWrite turns a write into a POSIX sh command. Binary data is spelled
// as printf octal escapes since dash printf has no \x.
func RenderWrite(w Write) string {
	if w.Binary {
		var b strings.Builder
		for _, c := range w.Data {
			fmt.Fprintf(&b, `\%03o`, c)
		}
		return fmt.Sprintf("printf '%s' > %s", b.String(), Quote(w.Path))
	}
	return fmt.Sprintf("printf '%%s\\n' %s > %s", Quote(string(w.Data)), Quote(w.Path))
}

// Quote single-quotes s for sh.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

package smu

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Neol00/ClockSpeeds/internal/privileged"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/host"
)

const RepositoryURL = "https://github.com/leogx9r/ryzen_smu.git"

var ErrNoPackageManager = errors.New("no compatible package manager found")

var dependencies = []string{"git", "dkms", "base-devel"}

// packageManagers maps a binary to its non-interactive install arguments.
var packageManagers = []struct {
	name string
	args []string
}{
	{"pacman", []string{"-Sy", "--noconfirm"}},
}

type Installer struct {
	exec     privileged.Executor
	logger   zerolog.Logger
	workDir  string
	lookPath func(string) (string, error)
	run      CommandOutput
	kernel   func(ctx context.Context) (string, error)
}

func NewInstaller(executor privileged.Executor, workDir string, logger zerolog.Logger) *Installer {
	return &Installer{
		exec:     executor,
		logger:   logger.With().Str("component", "smu").Logger(),
		workDir:  workDir,
		lookPath: exec.LookPath,
		run:      execOutput,
		kernel:   host.KernelVersionWithContext,
	}
}

// HeadersPackage picks the Arch headers package matching a kernel release.
func HeadersPackage(release string) string {
	switch {
	case strings.Contains(release, "zen"):
		return "linux-zen-headers"
	case strings.Contains(release, "hardened"):
		return "linux-hardened-headers"
	case strings.Contains(release, "lts"):
		return "linux-lts-headers"
	default:
		return "linux-headers"
	}
}

// DependencyCommands returns the package installs needed before building.
func (i *Installer) DependencyCommands(ctx context.Context) ([]string, error) {
	manager, args := "", []string(nil)
	for _, pm := range packageManagers {
		if _, err := i.lookPath(pm.name); err == nil {
			manager, args = pm.name, pm.args
			break
		}
	}
	if manager == "" {
		return nil, ErrNoPackageManager
	}

	install := func(pkg string) string {
		return strings.Join(append(append([]string{manager}, args...), pkg), " ")
	}

	var commands []string
	for _, dep := range dependencies {
		if _, err := i.lookPath(dep); err == nil {
			continue
		}
		i.logger.Info().Str("package", dep).Str("manager", manager).Msg("installing dependency")
		commands = append(commands, install(dep))
	}

	release, err := i.kernel(ctx)
	if err != nil {
		return nil, fmt.Errorf("read kernel release: %w", err)
	}
	headers := HeadersPackage(release)
	i.logger.Info().Str("kernel", release).Str("package", headers).Msg("installing kernel headers")
	commands = append(commands, install(headers))
	return commands, nil
}

// Install installs build dependencies, clones the module source into the
// work directory and runs `make dkms-install` with elevated rights.
func (i *Installer) Install(ctx context.Context) error {
	commands, err := i.DependencyCommands(ctx)
	if err != nil {
		return err
	}
	if err := i.exec.RunShell(ctx, commands); err != nil {
		return fmt.Errorf("install dependencies: %w", err)
	}

	src := filepath.Join(i.workDir, "ryzen_smu")
	if err := i.clone(ctx, src); err != nil {
		return err
	}

	build := []string{"cd " + privileged.Quote(src), "make dkms-install"}
	if err := i.exec.RunShell(ctx, build); err != nil {
		return fmt.Errorf("install dkms module: %w", err)
	}
	i.logger.Info().Msg("ryzen_smu module installed")
	return nil
}

func (i *Installer) clone(ctx context.Context, dest string) error {
	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		i.logger.Info().Str("dir", dest).Msg("ryzen_smu source already present")
		return nil
	}
	if err := os.MkdirAll(i.workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	if out, err := i.run(ctx, "git", "clone", RepositoryURL, dest); err != nil {
		return fmt.Errorf("clone %s: %w: %s", RepositoryURL, err, strings.TrimSpace(string(out)))
	}
	i.logger.Info().Str("dir", dest).Msg("repository cloned")
	return nil
}

package smu

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Neol00/ClockSpeeds/internal/logging"
	"github.com/Neol00/ClockSpeeds/internal/privileged"
	"github.com/stretchr/testify/require"
)

type shellRecorder struct {
	batches [][]string
	err     error
}

func (r *shellRecorder) Apply(ctx context.Context, writes []privileged.Write) error {
	return errors.New("unexpected write")
}

func (r *shellRecorder) RunShell(ctx context.Context, commands []string) error {
	r.batches = append(r.batches, commands)
	return r.err
}

func TestEncodePPTLimit(t *testing.T) {
	args := EncodePPTLimit(65)
	require.Len(t, args, 24)
	// 65000 mW = 0xFDE8
	require.Equal(t, []byte{0xE8, 0xFD, 0, 0}, args[:4])
	require.Equal(t, make([]byte, 20), args[4:])
}

func TestCurveOffsetArg(t *testing.T) {
	// offset 10 -> -10 -> 0xFFF6
	require.Equal(t, uint32(0xFFF6), CurveOffsetArg(0, 10))
	require.Equal(t, uint32(3<<20|0xFFF6), CurveOffsetArg(3, 10))
	// core 9: (8<<5 | 1) << 20
	require.Equal(t, uint32((256|1)<<20|0x0005), CurveOffsetArg(9, -5))
	require.Equal(t, uint32(0), CurveOffsetArg(0, 0))
}

func TestHeadersPackage(t *testing.T) {
	require.Equal(t, "linux-zen-headers", HeadersPackage("6.9.7-zen1-1-zen"))
	require.Equal(t, "linux-hardened-headers", HeadersPackage("6.9.7-hardened1-1-hardened"))
	require.Equal(t, "linux-lts-headers", HeadersPackage("6.6.36-1-lts"))
	require.Equal(t, "linux-headers", HeadersPackage("6.9.7-arch1-1"))
}

func TestInstalled(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ryzen_smu_drv")
	d := NewDriver(root).WithCommandOutput(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("ryzen_smu/0.1.5, 6.9.7-arch1-1, x86_64: installed\n"), nil
	})
	require.False(t, d.Loaded())
	require.True(t, d.Installed(context.Background()))

	d.WithCommandOutput(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("dkms: not found")
	})
	require.False(t, d.Installed(context.Background()))

	require.NoError(t, os.MkdirAll(root, 0o755))
	require.True(t, d.Installed(context.Background()))
	require.Equal(t, filepath.Join(root, "smu_args"), d.ArgsPath())
}

func newTestInstaller(t *testing.T, rec *shellRecorder, have map[string]bool) (*Installer, *[][]string) {
	t.Helper()
	var calls [][]string
	i := NewInstaller(rec, t.TempDir(), logging.NewTestLogger(io.Discard))
	i.lookPath = func(name string) (string, error) {
		if have[name] {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
	i.kernel = func(ctx context.Context) (string, error) { return "6.9.7-zen1-1-zen", nil }
	i.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		return nil, os.MkdirAll(filepath.Join(args[len(args)-1], ".git"), 0o755)
	}
	return i, &calls
}

func TestDependencyCommands(t *testing.T) {
	i, _ := newTestInstaller(t, &shellRecorder{}, map[string]bool{"pacman": true, "git": true})
	commands, err := i.DependencyCommands(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		"pacman -Sy --noconfirm dkms",
		"pacman -Sy --noconfirm base-devel",
		"pacman -Sy --noconfirm linux-zen-headers",
	}, commands)
}

func TestDependencyCommandsWithoutPackageManager(t *testing.T) {
	i, _ := newTestInstaller(t, &shellRecorder{}, map[string]bool{})
	_, err := i.DependencyCommands(context.Background())
	require.ErrorIs(t, err, ErrNoPackageManager)
}

func TestInstall(t *testing.T) {
	rec := &shellRecorder{}
	i, calls := newTestInstaller(t, rec, map[string]bool{"pacman": true, "git": true, "dkms": true})

	require.NoError(t, i.Install(context.Background()))
	require.Len(t, rec.batches, 2)
	require.Equal(t, []string{"pacman -Sy --noconfirm base-devel", "pacman -Sy --noconfirm linux-zen-headers"}, rec.batches[0])
	require.Equal(t, "make dkms-install", rec.batches[1][1])
	require.Len(t, *calls, 1)
	require.Equal(t, []string{"git", "clone", RepositoryURL}, (*calls)[0][:3])

	// A second run reuses the clone.
	require.NoError(t, i.Install(context.Background()))
	require.Len(t, *calls, 1)
}

func TestInstallStopsWhenCanceled(t *testing.T) {
	rec := &shellRecorder{err: privileged.ErrCanceled}
	i, calls := newTestInstaller(t, rec, map[string]bool{"pacman": true})
	require.ErrorIs(t, i.Install(context.Background()), privileged.ErrCanceled)
	require.Empty(t, *calls)
}

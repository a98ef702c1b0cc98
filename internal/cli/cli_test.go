package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/Neol00/ClockSpeeds/internal/store"
	"github.com/Neol00/ClockSpeeds/internal/sysfstest"
	"github.com/Neol00/ClockSpeeds/internal/topology"
)

type harness struct {
	t      *testing.T
	home   string
	prefix string
	roots  topology.Roots
	db     string
	base   []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, ".cache"))
	t.Setenv("SENTRY_DSN", "")
	t.Setenv("CLOCKSPEEDS_SENTRY_DSN", "")

	roots := sysfstest.Build(t, sysfstest.Options{})
	prefix := filepath.Dir(roots.Proc)

	db := filepath.Join(t.TempDir(), "clockspeeds.db")
	pkexec := filepath.Join(t.TempDir(), "pkexec")
	require.NoError(t, os.WriteFile(pkexec, []byte("#!/bin/sh\nexec \"$@\"\n"), 0o755))

	return &harness{
		t:      t,
		home:   home,
		prefix: prefix,
		roots:  roots,
		db:     db,
		base: []string{
			"--sys-prefix", prefix,
			"--db", db,
			"--pkexec", pkexec,
			"--log-level", "error",
		},
	}
}

func (h *harness) run(args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append(append([]string{}, h.base...), args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestInstallWithoutAppDir(t *testing.T) {
	h := newHarness(t)
	h.base = nil

	code, stdout, stderr := h.run("install")
	require.Equal(t, 1, code)
	require.Equal(t, "ClockSpeeds directory not found\n", stdout)
	require.Empty(t, stderr)

	_, err := os.Stat(filepath.Join(h.home, ".local"))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(h.home, ".config"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestInstallWritesDesktopEntry(t *testing.T) {
	h := newHarness(t)
	h.base = nil
	appDir := filepath.Join(h.home, "apps", "ClockSpeeds")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	t.Setenv("PATH", t.TempDir())

	code, stdout, _ := h.run("install")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "Found ClockSpeeds directory at "+appDir)

	raw, err := os.ReadFile(filepath.Join(h.home, ".local", "share", "applications", "org.ClockSpeeds.desktop"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "Exec=python3 "+appDir+"/launch.py\n")
}

func TestConfigShowAndSet(t *testing.T) {
	h := newHarness(t)

	code, stdout, _ := h.run("config", "show")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "update_interval = 1.0\n")
	require.Contains(t, stdout, "clock_scale_maximum = 6000\n")

	code, stdout, _ = h.run("config", "set", "display_ghz", "on")
	require.Equal(t, 0, code)
	require.Equal(t, "display_ghz = True\n", stdout)

	code, _, stderr := h.run("config", "set", "colour", "blue")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "unknown setting")
}

func TestIntervalIsClamped(t *testing.T) {
	h := newHarness(t)

	code, stdout, _ := h.run("interval", "50")
	require.Equal(t, 0, code)
	require.Equal(t, "update_interval = 20.0\n", stdout)

	code, stdout, _ = h.run("interval")
	require.Equal(t, 0, code)
	require.Equal(t, "20.0\n", stdout)
}

func TestStatusJSON(t *testing.T) {
	h := newHarness(t)

	code, stdout, stderr := h.run("status", "--json", "--window", "0s")
	require.Equal(t, 0, code, stderr)

	var snapshot domain.Snapshot
	require.NoError(t, json.Unmarshal([]byte(stdout), &snapshot))
	require.Len(t, snapshot.Threads, 4)
	require.Equal(t, "powersave", snapshot.Governor)
	require.NotNil(t, snapshot.PackageTempC)
	require.InDelta(t, 45.0, *snapshot.PackageTempC, 0.001)
}

func TestCommandsRunWhileAnotherProcessUsesTheStore(t *testing.T) {
	h := newHarness(t)
	running, err := store.Open(h.db)
	require.NoError(t, err)
	_, err = running.Record("governor", func(a *domain.AppliedSettings) { a.Governor = "schedutil" })
	require.NoError(t, err)

	code, _, stderr := h.run("status", "--json", "--window", "0s")
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr := h.run("boot", "script")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "'schedutil'")

	history, err := running.History(1)
	require.NoError(t, err)
	require.Equal(t, "governor", history[0].Control)
}

func TestSetGovernorThenBootScript(t *testing.T) {
	h := newHarness(t)

	code, stdout, stderr := h.run("set", "governor", "performance")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, "Governor set to performance\n", stdout)
	for thread := 0; thread < 4; thread++ {
		path := filepath.Join(h.roots.CPU, "cpu"+string(rune('0'+thread)), "cpufreq", "scaling_governor")
		require.Equal(t, "performance", sysfstest.Read(t, path))
	}

	code, stdout, stderr = h.run("boot", "script")
	require.Equal(t, 0, code, stderr)
	require.True(t, strings.HasPrefix(stdout, "#!/bin/bash\n"))
	require.Contains(t, stdout, "printf '%s\\n' 'performance' > ")
}

func TestSetGovernorRejectsUnknown(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("set", "governor", "turbo")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "invalid governor")
}

func TestSetTDPOutsideScale(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("set", "tdp", "900")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "outside 1-400 W")
}

func TestBootScriptWithoutSettings(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("boot", "script")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "no settings have been applied")
}

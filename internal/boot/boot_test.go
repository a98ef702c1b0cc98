package boot

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/Neol00/ClockSpeeds/internal/logging"
	"github.com/Neol00/ClockSpeeds/internal/privileged"
	"github.com/stretchr/testify/require"
)

type fakeReplayer struct{}

func (fakeReplayer) ReplayWrites(applied domain.AppliedSettings) ([]privileged.Write, error) {
	return []privileged.Write{
		privileged.Text("/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor", applied.Governor),
		privileged.Bytes("/sys/kernel/ryzen_smu_drv/rsmu_cmd", []byte{0x53}),
	}, nil
}

// shellRecorder keeps the commands and, when stageDir is set, a copy of
// every staged file as it exists while the commands run.
type shellRecorder struct {
	commands []string
	err      error
	stageDir string
	staged   map[string]stagedFile
}

type stagedFile struct {
	data string
	mode os.FileMode
}

func (r *shellRecorder) Apply(ctx context.Context, writes []privileged.Write) error { return nil }

func (r *shellRecorder) RunShell(ctx context.Context, commands []string) error {
	r.commands = commands
	if r.stageDir != "" {
		r.staged = make(map[string]stagedFile)
		paths, _ := filepath.Glob(filepath.Join(r.stageDir, stagePattern+"*", "*"))
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			r.staged[path] = stagedFile{data: string(data), mode: info.Mode().Perm()}
		}
	}
	return r.err
}

func stagedDirs(t *testing.T, dir string) []string {
	t.Helper()
	dirs, err := filepath.Glob(filepath.Join(dir, stagePattern+"*"))
	require.NoError(t, err)
	return dirs
}

func TestUnit(t *testing.T) {
	unit := Unit(ScriptPath)
	require.Contains(t, unit, "ExecStart=/usr/local/bin/apply_clockspeeds_settings.sh\n")
	require.Contains(t, unit, "Type=oneshot\n")
	require.Contains(t, unit, "RemainAfterExit=yes\n")
	require.True(t, strings.HasSuffix(unit, "WantedBy=multi-user.target\n"))
}

func TestBuildScript(t *testing.T) {
	m := NewManager(&shellRecorder{}, fakeReplayer{}, t.TempDir(), logging.NewTestLogger(io.Discard))

	_, err := m.BuildScript(domain.AppliedSettings{})
	require.ErrorIs(t, err, ErrNoAppliedSettings)

	script, err := m.BuildScript(domain.AppliedSettings{Governor: "performance"})
	require.NoError(t, err)
	require.Equal(t, "#!/bin/bash\n"+
		"printf '%s\\n' 'performance' > '/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor'\n"+
		"printf '\\123' > '/sys/kernel/ryzen_smu_drv/rsmu_cmd'\n", script)
}

func TestEnableStagesAndInstalls(t *testing.T) {
	dir := t.TempDir()
	rec := &shellRecorder{stageDir: dir}
	m := NewManager(rec, fakeReplayer{}, dir, logging.NewTestLogger(io.Discard))

	require.NoError(t, m.Enable(context.Background(), domain.AppliedSettings{Governor: "powersave"}))

	require.Len(t, rec.staged, 2)
	var script, unit string
	for path, file := range rec.staged {
		require.Equal(t, os.FileMode(0o600), file.mode, path)
		switch filepath.Base(path) {
		case "apply_clockspeeds_settings.sh":
			script = path
			require.Contains(t, file.data, "'powersave'")
		case ServiceName:
			unit = path
		}
	}
	require.NotEmpty(t, script)
	require.NotEqual(t, filepath.Join(dir, "apply_clockspeeds_settings.sh"), script)

	require.Equal(t, []string{
		"install -m 0644 -o root -g root '" + unit + "' '/etc/systemd/system/clockspeeds.service'",
		"install -m 0755 -o root -g root '" + script + "' '/usr/local/bin/apply_clockspeeds_settings.sh'",
		"systemctl daemon-reload",
		"systemctl enable clockspeeds.service",
		"systemctl start clockspeeds.service",
	}, rec.commands)
	require.Empty(t, stagedDirs(t, dir))
}

func TestEnableIgnoresPlantedScript(t *testing.T) {
	dir := t.TempDir()
	planted := filepath.Join(dir, "apply_clockspeeds_settings.sh")
	require.NoError(t, os.WriteFile(planted, []byte("#!/bin/sh\nid\n"), 0o666))

	rec := &shellRecorder{stageDir: dir}
	m := NewManager(rec, fakeReplayer{}, dir, logging.NewTestLogger(io.Discard))
	require.NoError(t, m.Enable(context.Background(), domain.AppliedSettings{Governor: "powersave"}))

	raw, err := os.ReadFile(planted)
	require.NoError(t, err)
	require.Equal(t, "#!/bin/sh\nid\n", string(raw))
	for _, command := range rec.commands {
		require.NotContains(t, command, "'"+planted+"'")
	}
}

func TestEnableWithoutSettingsInstallsNothing(t *testing.T) {
	rec := &shellRecorder{}
	m := NewManager(rec, fakeReplayer{}, t.TempDir(), logging.NewTestLogger(io.Discard))
	require.ErrorIs(t, m.Enable(context.Background(), domain.AppliedSettings{}), ErrNoAppliedSettings)
	require.Nil(t, rec.commands)
}

func TestEnableCanceledCleansStagedFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &shellRecorder{err: privileged.ErrCanceled}
	m := NewManager(rec, fakeReplayer{}, dir, logging.NewTestLogger(io.Discard))

	err := m.Enable(context.Background(), domain.AppliedSettings{Governor: "powersave"})
	require.ErrorIs(t, err, privileged.ErrCanceled)
	require.Empty(t, stagedDirs(t, dir))
}

func TestDisable(t *testing.T) {
	rec := &shellRecorder{}
	m := NewManager(rec, fakeReplayer{}, t.TempDir(), logging.NewTestLogger(io.Discard))
	require.NoError(t, m.Disable(context.Background()))
	require.Equal(t, "systemctl daemon-reload", rec.commands[len(rec.commands)-1])
	require.Equal(t, "rm '/usr/local/bin/apply_clockspeeds_settings.sh'", rec.commands[0])
}

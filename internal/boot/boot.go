// Package boot installs a systemd oneshot unit that replays the applied
// settings at startup.
package boot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/Neol00/ClockSpeeds/internal/privileged"
	"github.com/rs/zerolog"
)

const (
	ScriptPath  = "/usr/local/bin/apply_clockspeeds_settings.sh"
	UnitPath    = "/etc/systemd/system/clockspeeds.service"
	ServiceName = "clockspeeds.service"
)

const stagePattern = "clockspeeds-boot-"

var ErrNoAppliedSettings = errors.New("no settings have been applied yet")

// Replayer turns applied settings back into writes.
type Replayer interface {
	ReplayWrites(applied domain.AppliedSettings) ([]privileged.Write, error)
}

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Apply ClockSpeeds settings

[Service]
Type=oneshot
ExecStart={{.Script}}
TimeoutSec=0
RemainAfterExit=yes

[Install]
WantedBy=multi-user.target
`))

// Unit renders the service file pointing at script.
func Unit(script string) string {
	var buf bytes.Buffer
	_ = unitTemplate.Execute(&buf, struct{ Script string }{script})
	return buf.String()
}

// Script renders the bash script, one write per line.
func Script(writes []privileged.Write) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	for _, w := range writes {
		b.WriteString(privileged.RenderWrite(w))
		b.WriteByte('\n')
	}
	return b.String()
}

type Manager struct {
	exec     privileged.Executor
	replayer Replayer
	tempDir  string
	logger   zerolog.Logger
}

func NewManager(executor privileged.Executor, replayer Replayer, tempDir string, logger zerolog.Logger) *Manager {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Manager{
		exec:     executor,
		replayer: replayer,
		tempDir:  tempDir,
		logger:   logger.With().Str("component", "boot").Logger(),
	}
}

// BuildScript renders the apply script for applied without installing it.
func (m *Manager) BuildScript(applied domain.AppliedSettings) (string, error) {
	if applied.Empty() {
		return "", ErrNoAppliedSettings
	}
	writes, err := m.replayer.ReplayWrites(applied)
	if err != nil {
		return "", fmt.Errorf("create apply script: %w", err)
	}
	return Script(writes), nil
}

// Enable stages the script and unit in a private directory under the temp
// dir, then installs them as root and enables the service in one privileged
// batch. The staging directory is always removed.
func (m *Manager) Enable(ctx context.Context, applied domain.AppliedSettings) error {
	script, err := m.BuildScript(applied)
	if err != nil {
		return err
	}

	stage, err := os.MkdirTemp(m.tempDir, stagePattern)
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stage)

	stagedScript := filepath.Join(stage, filepath.Base(ScriptPath))
	stagedUnit := filepath.Join(stage, ServiceName)
	if err := writeNew(stagedScript, []byte(script)); err != nil {
		return fmt.Errorf("stage apply script: %w", err)
	}
	if err := writeNew(stagedUnit, []byte(Unit(ScriptPath))); err != nil {
		return fmt.Errorf("stage service file: %w", err)
	}

	q := privileged.Quote
	commands := []string{
		"install -m 0644 -o root -g root " + q(stagedUnit) + " " + q(UnitPath),
		"install -m 0755 -o root -g root " + q(stagedScript) + " " + q(ScriptPath),
		"systemctl daemon-reload",
		"systemctl enable " + ServiceName,
		"systemctl start " + ServiceName,
	}
	if err := m.exec.RunShell(ctx, commands); err != nil {
		return fmt.Errorf("create systemd service: %w", err)
	}
	m.logger.Info().Msg("systemd service created and started")
	return nil
}

func (m *Manager) Disable(ctx context.Context) error {
	commands := []string{
		"rm " + privileged.Quote(ScriptPath),
		"systemctl stop " + ServiceName,
		"systemctl disable " + ServiceName,
		"rm " + privileged.Quote(UnitPath),
		"systemctl daemon-reload",
	}
	if err := m.exec.RunShell(ctx, commands); err != nil {
		return fmt.Errorf("remove systemd service: %w", err)
	}
	m.logger.Info().Msg("systemd service removed")
	return nil
}

// writeNew fails if path already exists.
func writeNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Enabled reports whether the unit file is installed.
func Enabled() bool {
	_, err := os.Stat(UnitPath)
	return err == nil
}

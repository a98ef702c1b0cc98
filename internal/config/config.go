package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

const (
	AppName  = "ClockSpeeds"
	FileName = "config.ini"
	Section  = "Settings"
)

const (
	KeyClockScaleMinimum  = "clock_scale_minimum"
	KeyClockScaleMaximum  = "clock_scale_maximum"
	KeyTDPScaleMinimum    = "tdp_scale_minimum"
	KeyTDPScaleMaximum    = "tdp_scale_maximum"
	KeyLoggingLevel       = "logging_level"
	KeyUpdateInterval     = "update_interval"
	KeyDisableScaleLimits = "disable_scale_limits"
	KeySyncScales         = "sync_scales"
	KeyDisplayGHz         = "display_ghz"
)

const (
	MinUpdateInterval = 0.1
	MaxUpdateInterval = 20.0
)

var ErrUnknownKey = errors.New("unknown setting")

// defaults are written into config.ini on first load so users can edit them.
var defaults = []struct {
	key   string
	value string
}{
	{KeyClockScaleMinimum, "1"},
	{KeyClockScaleMaximum, "6000"},
	{KeyTDPScaleMinimum, "1"},
	{KeyTDPScaleMaximum, "400"},
	{KeyLoggingLevel, "WARNING"},
	{KeyUpdateInterval, "1.0"},
	{KeyDisableScaleLimits, "False"},
	{KeySyncScales, "False"},
	{KeyDisplayGHz, "False"},
}

type Settings struct {
	ClockScaleMinimum  int     `ini:"clock_scale_minimum"`
	ClockScaleMaximum  int     `ini:"clock_scale_maximum"`
	TDPScaleMinimum    int     `ini:"tdp_scale_minimum"`
	TDPScaleMaximum    int     `ini:"tdp_scale_maximum"`
	LoggingLevel       string  `ini:"logging_level"`
	UpdateInterval     float64 `ini:"update_interval"`
	DisableScaleLimits bool    `ini:"disable_scale_limits"`
	SyncScales         bool    `ini:"sync_scales"`
	DisplayGHz         bool    `ini:"display_ghz"`
}

// Manager owns config.ini. Every Set is persisted immediately.
type Manager struct {
	mu   sync.Mutex
	path string
	file *ini.File
}

// DefaultPath resolves $XDG_CONFIG_HOME/ClockSpeeds/config.ini.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, AppName, FileName), nil
}

func Load(path string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	_, statErr := os.Stat(path)
	missing := errors.Is(statErr, os.ErrNotExist)

	file, err := ini.LoadSources(ini.LoadOptions{Loose: true}, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	m := &Manager{path: path, file: file}
	changed := m.fillDefaults()
	if missing || changed {
		if err := m.save(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) fillDefaults() bool {
	sec := m.file.Section(Section)
	changed := false
	for _, def := range defaults {
		if sec.HasKey(def.key) && strings.TrimSpace(sec.Key(def.key).String()) != "" {
			continue
		}
		sec.Key(def.key).SetValue(def.value)
		changed = true
	}
	return changed
}

func (m *Manager) save() error {
	if err := m.file.SaveTo(m.path); err != nil {
		return fmt.Errorf("save %s: %w", m.path, err)
	}
	return nil
}

func (m *Manager) Get(key, fallback string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sec := m.file.Section(Section)
	if !sec.HasKey(key) {
		return fallback
	}
	return sec.Key(key).String()
}

func (m *Manager) Set(key, value string) error {
	if !knownKey(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.file.Section(Section).Key(key).SetValue(value)
	return m.save()
}

// SetBool stores Python-style booleans so the file stays readable by the
// original front-end.
func (m *Manager) SetBool(key string, value bool) error {
	if value {
		return m.Set(key, "True")
	}
	return m.Set(key, "False")
}

func (m *Manager) Settings() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Settings
	if err := m.file.Section(Section).MapTo(&s); err != nil {
		return Settings{}, fmt.Errorf("map settings: %w", err)
	}
	if s.UpdateInterval <= 0 {
		s.UpdateInterval = 1.0
	}
	if s.ClockScaleMaximum <= 0 {
		s.ClockScaleMaximum = 6000
	}
	if s.TDPScaleMaximum <= 0 {
		s.TDPScaleMaximum = 400
	}
	return s, nil
}

// SetUpdateInterval clamps to [0.1, 20] seconds, rounds to one decimal and
// persists the result.
func (m *Manager) SetUpdateInterval(seconds float64) (float64, error) {
	interval := ClampInterval(seconds)
	if err := m.Set(KeyUpdateInterval, strconv.FormatFloat(interval, 'f', 1, 64)); err != nil {
		return 0, err
	}
	return interval, nil
}

func (m *Manager) Keys() []string {
	keys := make([]string, 0, len(defaults))
	for _, def := range defaults {
		keys = append(keys, def.key)
	}
	return keys
}

func ClampInterval(seconds float64) float64 {
	if math.IsNaN(seconds) {
		return 1.0
	}
	seconds = math.Max(MinUpdateInterval, math.Min(MaxUpdateInterval, seconds))
	return math.Round(seconds*10) / 10
}

func knownKey(key string) bool {
	for _, def := range defaults {
		if def.key == key {
			return true
		}
	}
	return false
}

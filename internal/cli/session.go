package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/Neol00/ClockSpeeds/internal/boot"
	"github.com/Neol00/ClockSpeeds/internal/config"
	"github.com/Neol00/ClockSpeeds/internal/control"
	"github.com/Neol00/ClockSpeeds/internal/logging"
	"github.com/Neol00/ClockSpeeds/internal/monitor"
	"github.com/Neol00/ClockSpeeds/internal/observability"
	"github.com/Neol00/ClockSpeeds/internal/privileged"
	"github.com/Neol00/ClockSpeeds/internal/smu"
	"github.com/Neol00/ClockSpeeds/internal/specs"
	"github.com/Neol00/ClockSpeeds/internal/store"
	"github.com/Neol00/ClockSpeeds/internal/telemetry"
	"github.com/Neol00/ClockSpeeds/internal/topology"
)

const logFileName = "clockspeeds.log"

type rootFlags struct {
	logLevel   string
	rescan     bool
	configPath string
	dbPath     string
	sysPrefix  string
	pkexec     string
}

// session holds everything a command may need. Parts are opened lazily so
// commands that never touch the hardware do not pay for discovery.
type session struct {
	flags  rootFlags
	stdout io.Writer
	stderr io.Writer

	cfg         *config.Manager
	logger      zerolog.Logger
	flushSentry func()

	store  *store.Store
	topo   *topology.Topology
	reader *telemetry.Reader
}

func newSession(stdout, stderr io.Writer) *session {
	return &session{
		stdout:      stdout,
		stderr:      stderr,
		logger:      zerolog.Nop(),
		flushSentry: func() {},
	}
}

// setup loads config.ini, builds the logger and starts Sentry. quiet drops
// console logging while the terminal UI owns the screen.
func (s *session) setup(quiet bool) error {
	path := s.flags.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	s.cfg = cfg

	level := s.flags.logLevel
	if level == "" {
		level = cfg.Get(config.KeyLoggingLevel, "WARNING")
	}
	logFile := ""
	if cacheDir, err := os.UserCacheDir(); err == nil {
		logFile = filepath.Join(cacheDir, config.AppName, logFileName)
	}
	s.logger = logging.NewLogger(logging.Config{
		Level:   level,
		LogFile: logFile,
		Quiet:   quiet,
	})

	flush, enabled, err := observability.InitSentry(observability.OptionsFromEnv(Version))
	if err != nil {
		s.logger.Error().Err(err).Msg("sentry init failed")
	} else {
		s.flushSentry = flush
		s.logger.Debug().Bool("enabled", enabled).Msg("sentry configured")
	}

	if unix.Geteuid() == 0 {
		s.logger.Warn().Msg("running as root; settings files will be owned by root")
	}
	return nil
}

// setupConsole is the minimal setup for commands that must not touch the
// filesystem, such as install.
func (s *session) setupConsole() {
	s.logger = logging.NewLogger(logging.Config{Level: s.flags.logLevel})
}

func (s *session) roots() topology.Roots {
	return topology.DefaultRoots().WithPrefix(s.flags.sysPrefix)
}

// specsSources points the specs reader at the same tree as the topology.
// gopsutil always inspects the live host, so it is off under a prefix.
func (s *session) specsSources() specs.Sources {
	src := specs.DefaultSources()
	if prefix := s.flags.sysPrefix; prefix != "" {
		src.CPUInfo = filepath.Join(prefix, src.CPUInfo)
		src.MemInfo = filepath.Join(prefix, src.MemInfo)
		src.DMIDir = filepath.Join(prefix, src.DMIDir)
		src.ThermalGlob = filepath.Join(prefix, src.ThermalGlob)
		src.DIMMSpeed = filepath.Join(prefix, src.DIMMSpeed)
		src.UseGopsutil = false
	}
	return src
}

func (s *session) openStore() (*store.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	path := s.flags.dbPath
	if path == "" {
		var err error
		if path, err = store.DefaultPath(); err != nil {
			return nil, err
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	s.store = st
	return st, nil
}

func (s *session) topology() (*topology.Topology, error) {
	if s.topo != nil {
		return s.topo, nil
	}
	st, err := s.openStore()
	if err != nil {
		return nil, err
	}
	topo, err := topology.Load(st, s.roots(), s.flags.rescan, s.logger)
	if err != nil {
		return nil, err
	}
	if err := topo.Validate(); err != nil {
		s.logger.Warn().Err(err).Msg("some cpu files are missing")
	}
	s.topo = topo
	return topo, nil
}

func (s *session) telemetry() (*telemetry.Reader, error) {
	if s.reader != nil {
		return s.reader, nil
	}
	topo, err := s.topology()
	if err != nil {
		return nil, err
	}
	s.reader = telemetry.NewReader(topo, s.logger)
	return s.reader, nil
}

func (s *session) settings() (config.Settings, error) {
	if s.cfg == nil {
		return config.Settings{}, errors.New("config not loaded")
	}
	return s.cfg.Settings()
}

func (s *session) interval() time.Duration {
	settings, err := s.settings()
	if err != nil {
		return monitor.DefaultInterval
	}
	return monitor.ClampInterval(time.Duration(settings.UpdateInterval * float64(time.Second)))
}

func (s *session) runner() *privileged.Runner {
	var opts []privileged.Option
	if s.flags.pkexec != "" {
		opts = append(opts, privileged.WithPkexec(s.flags.pkexec))
	}
	return privileged.NewRunner(s.logger, opts...)
}

func (s *session) driver() *smu.Driver {
	return smu.NewDriver(filepath.Join(s.flags.sysPrefix, smu.DefaultRoot))
}

func (s *session) controller() (*control.Controller, error) {
	reader, err := s.telemetry()
	if err != nil {
		return nil, err
	}
	settings, err := s.settings()
	if err != nil {
		return nil, err
	}
	return control.NewController(reader.Topology(), s.runner(), s.store, reader, s.driver(), control.Limits{
		ScaleMax:           settings.ClockScaleMaximum,
		DisableScaleLimits: settings.DisableScaleLimits,
		SyncScales:         settings.SyncScales,
	}, s.logger), nil
}

func (s *session) bootManager() (*boot.Manager, error) {
	ctrl, err := s.controller()
	if err != nil {
		return nil, err
	}
	return boot.NewManager(s.runner(), ctrl, os.TempDir(), s.logger), nil
}

func (s *session) close() {
	s.flushSentry()
}

func (s *session) printf(format string, args ...any) {
	fmt.Fprintf(s.stdout, format, args...)
}

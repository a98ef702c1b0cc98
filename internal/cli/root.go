// Package cli wires the clockspeeds commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// annotations on commands that need less than the full setup
const (
	annotationSetup = "clockspeeds/setup"
	setupConsole    = "console"
	setupQuiet      = "quiet"
)

// ExitError carries a process exit status. Silent errors have already been
// reported to the user.
type ExitError struct {
	Code   int
	Err    error
	Silent bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, *session) {
	s := newSession(stdout, stderr)

	root := &cobra.Command{
		Use:           "clockspeeds",
		Short:         "CPU monitoring and control for Linux",
		Long:          "ClockSpeeds shows per-thread clock speeds, load and temperature and\napplies frequency limits, governors, boost, TDP and curve offsets.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Annotations[annotationSetup] {
			case setupConsole:
				s.setupConsole()
				return nil
			case setupQuiet:
				return s.setup(true)
			}
			return s.setup(false)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&s.flags.logLevel, "log-level", "", "log level (debug, info, warning, error); defaults to logging_level in config.ini")
	flags.BoolVar(&s.flags.rescan, "rescan", false, "rediscover cpu files instead of using the cache")
	flags.StringVar(&s.flags.configPath, "config", "", "path to config.ini")
	flags.StringVar(&s.flags.dbPath, "db", "", "path to the settings database")
	flags.StringVar(&s.flags.sysPrefix, "sys-prefix", "", "read /sys and /proc below this directory")
	flags.StringVar(&s.flags.pkexec, "pkexec", "", "privilege helper used for writes")
	_ = flags.MarkHidden("sys-prefix")
	_ = flags.MarkHidden("pkexec")

	root.AddCommand(
		newMonitorCmd(s),
		newStatusCmd(s),
		newInfoCmd(s),
		newSetCmd(s),
		newConfigCmd(s),
		newIntervalCmd(s),
		newBootCmd(s),
		newSMUCmd(s),
		newServeCmd(s),
		newInstallCmd(s),
	)
	return root, s
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	root, s := newRootCmd(stdout, stderr)
	defer s.close()
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if !exitErr.Silent {
			fmt.Fprintln(stderr, "Error:", exitErr.Error())
		}
		return exitErr.Code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}

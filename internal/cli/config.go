package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Neol00/ClockSpeeds/internal/config"
)

func newConfigCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change config.ini settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print every setting",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			s.printf("# %s\n", s.cfg.Path())
			for _, key := range s.cfg.Keys() {
				s.printf("%s = %s\n", key, s.cfg.Get(key, ""))
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Args:  cobra.ExactArgs(2),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 && s.cfg != nil {
				return s.cfg.Keys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(_ *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			switch key {
			case config.KeyUpdateInterval:
				return setInterval(s, value)
			case config.KeyDisableScaleLimits, config.KeySyncScales, config.KeyDisplayGHz:
				enabled, err := parseSwitch(value)
				if err != nil {
					return err
				}
				if err := s.cfg.SetBool(key, enabled); err != nil {
					return err
				}
			case config.KeyClockScaleMinimum, config.KeyClockScaleMaximum, config.KeyTDPScaleMinimum, config.KeyTDPScaleMaximum:
				n, err := strconv.Atoi(value)
				if err != nil || n < 0 {
					return fmt.Errorf("%s must be a non-negative integer", key)
				}
				if err := s.cfg.Set(key, value); err != nil {
					return err
				}
			case config.KeyLoggingLevel:
				if err := s.cfg.Set(key, strings.ToUpper(value)); err != nil {
					return err
				}
			default:
				if err := s.cfg.Set(key, value); err != nil {
					return err
				}
			}
			s.printf("%s = %s\n", key, s.cfg.Get(key, ""))
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}

func newIntervalCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "interval [seconds]",
		Short: "Show or set the update interval (0.1 to 20 seconds)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				s.printf("%.1f\n", s.interval().Seconds())
				return nil
			}
			return setInterval(s, args[0])
		},
	}
}

func setInterval(s *session, value string) error {
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid interval %q", value)
	}
	applied, err := s.cfg.SetUpdateInterval(seconds)
	if err != nil {
		return err
	}
	s.printf("%s = %.1f\n", config.KeyUpdateInterval, applied)
	return nil
}

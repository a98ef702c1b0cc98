package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/Neol00/ClockSpeeds/internal/control"
	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/Neol00/ClockSpeeds/internal/privileged"
)

func newSetCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Apply CPU settings (prompts for authorization)",
	}
	cmd.AddCommand(
		newSetFreqCmd(s),
		newSetGovernorCmd(s),
		newSetBoostCmd(s),
		newSetTDPCmd(s),
		newSetPBOCmd(s),
		newSetEPBCmd(s),
	)
	return cmd
}

func newSetFreqCmd(s *session) *cobra.Command {
	var threads []int
	var minMHz, maxMHz int

	cmd := &cobra.Command{
		Use:   "freq",
		Short: "Set minimum and maximum clock speed in MHz",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, err := s.controller()
			if err != nil {
				return err
			}
			selected := threads
			if len(selected) == 0 {
				selected = lo.Range(ctrl.Topology().Threads)
			}
			applied, err := ctrl.SetFrequency(cmd.Context(), control.Uniform(selected, minMHz, maxMHz))
			if err != nil && applied.UpdatedAt.IsZero() {
				return describe(err)
			}
			if err != nil {
				s.printf("Warning: %v\n", err)
			}
			s.printf("Applied %d-%d MHz to threads %s\n", minMHz, maxMHz, joinInts(selected))
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&threads, "threads", nil, "threads to change (default all)")
	cmd.Flags().IntVar(&minMHz, "min", 0, "minimum clock in MHz")
	cmd.Flags().IntVar(&maxMHz, "max", 0, "maximum clock in MHz")
	_ = cmd.MarkFlagRequired("min")
	_ = cmd.MarkFlagRequired("max")
	return cmd
}

func newSetGovernorCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:       "governor <name>",
		Short:     "Set the scaling governor on every thread",
		Args:      cobra.ExactArgs(1),
		ValidArgs: control.Governors,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := s.controller()
			if err != nil {
				return err
			}
			if _, err := ctrl.SetGovernor(cmd.Context(), args[0]); err != nil {
				return describe(err)
			}
			s.printf("Governor set to %s\n", args[0])
			return nil
		},
	}
}

func newSetBoostCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:       "boost <on|off>",
		Short:     "Enable or disable turbo boost",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := parseSwitch(args[0])
			if err != nil {
				return err
			}
			ctrl, err := s.controller()
			if err != nil {
				return err
			}
			if _, err := ctrl.SetBoost(cmd.Context(), enabled); err != nil {
				return describe(err)
			}
			s.printf("Boost %s\n", boostString(&enabled))
			return nil
		},
	}
}

func newSetTDPCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "tdp <watts>",
		Short: "Set the package power limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watts, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("%w: %q", control.ErrInvalidTDP, args[0])
			}
			settings, err := s.settings()
			if err != nil {
				return err
			}
			if !settings.DisableScaleLimits && (watts < float64(settings.TDPScaleMinimum) || watts > float64(settings.TDPScaleMaximum)) {
				return fmt.Errorf("%w: %v W is outside %d-%d W", control.ErrInvalidTDP, watts, settings.TDPScaleMinimum, settings.TDPScaleMaximum)
			}
			ctrl, err := s.controller()
			if err != nil {
				return err
			}
			if _, err := ctrl.SetTDP(cmd.Context(), watts); err != nil {
				return describe(err)
			}
			s.printf("TDP set to %v W\n", watts)
			return nil
		},
	}
}

func newSetPBOCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "pbo <0-30>",
		Short: "Set the all-core curve optimizer offset (AMD Ryzen)",
		Long:  "Set the all-core curve optimizer offset. The value is the magnitude of the\nnegative offset applied to every physical core; 0 restores stock.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid offset %q", args[0])
			}
			ctrl, err := s.controller()
			if err != nil {
				return err
			}
			if _, err := ctrl.SetPBOOffset(cmd.Context(), offset); err != nil {
				return describe(err)
			}
			s.printf("Curve offset set to -%d\n", offset)
			return nil
		},
	}
}

func newSetEPBCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "epb <0|4|6|8|15>",
		Short: "Set the Intel energy performance bias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", control.ErrInvalidEPB, args[0])
			}
			ctrl, err := s.controller()
			if err != nil {
				return err
			}
			if _, err := ctrl.SetEnergyPerfBias(cmd.Context(), value); err != nil {
				return describe(err)
			}
			s.printf("Energy performance bias set to %d (%s)\n", value, control.EnergyPerfBiasValues[value])
			return nil
		},
	}
}

// describe adds a hint for failures the user can act on.
func describe(err error) error {
	switch {
	case errors.Is(err, privileged.ErrCanceled):
		return &ExitError{Code: 2, Err: errors.New("authorization was canceled, nothing was changed")}
	case errors.Is(err, privileged.ErrCommandNotFound):
		return fmt.Errorf("%w; install polkit (pkexec) or run as root", err)
	}
	return err
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "0", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", value)
}

func joinInts(values []int) string {
	return strings.Join(lo.Map(values, func(v int, _ int) string { return strconv.Itoa(v) }), ",")
}

func appliedSummary(applied domain.AppliedSettings) []string {
	var lines []string
	if len(applied.MaxSpeeds) > 0 {
		lines = append(lines, fmt.Sprintf("frequency: %d threads limited", len(applied.MaxSpeeds)))
	}
	if applied.Governor != "" {
		lines = append(lines, "governor: "+applied.Governor)
	}
	if applied.Boost != nil {
		lines = append(lines, "boost: "+boostString(applied.Boost))
	}
	if applied.TDPWatts != nil {
		lines = append(lines, fmt.Sprintf("tdp: %v W", *applied.TDPWatts))
	}
	if applied.PBOOffset != nil {
		lines = append(lines, fmt.Sprintf("pbo offset: -%d", *applied.PBOOffset))
	}
	if applied.EnergyPerfBias != nil {
		lines = append(lines, fmt.Sprintf("energy perf bias: %d", *applied.EnergyPerfBias))
	}
	return lines
}

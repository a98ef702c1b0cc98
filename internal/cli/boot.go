package cli

import (
	"github.com/spf13/cobra"

	"github.com/Neol00/ClockSpeeds/internal/boot"
)

func newBootCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Re-apply the last settings at every boot",
	}

	enable := &cobra.Command{
		Use:   "enable",
		Short: "Install the apply script and systemd unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := s.bootManager()
			if err != nil {
				return err
			}
			applied, err := s.store.Applied()
			if err != nil {
				return err
			}
			if err := manager.Enable(cmd.Context(), applied); err != nil {
				return describe(err)
			}
			s.printf("Enabled %s with:\n", boot.ServiceName)
			for _, line := range appliedSummary(applied) {
				s.printf("  %s\n", line)
			}
			return nil
		},
	}

	disable := &cobra.Command{
		Use:   "disable",
		Short: "Remove the apply script and systemd unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := s.bootManager()
			if err != nil {
				return err
			}
			if err := manager.Disable(cmd.Context()); err != nil {
				return describe(err)
			}
			s.printf("Disabled %s\n", boot.ServiceName)
			return nil
		},
	}

	script := &cobra.Command{
		Use:   "script",
		Short: "Print the apply script without installing it",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			manager, err := s.bootManager()
			if err != nil {
				return err
			}
			applied, err := s.store.Applied()
			if err != nil {
				return err
			}
			out, err := manager.BuildScript(applied)
			if err != nil {
				return err
			}
			s.printf("%s", out)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether apply-on-boot is installed",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if boot.Enabled() {
				s.printf("enabled (%s)\n", boot.UnitPath)
			} else {
				s.printf("disabled\n")
			}
			return nil
		},
	}

	cmd.AddCommand(enable, disable, script, status)
	return cmd
}

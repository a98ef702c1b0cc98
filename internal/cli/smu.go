package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Neol00/ClockSpeeds/internal/smu"
)

func newSMUCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smu",
		Short: "Manage the ryzen_smu kernel module used for Ryzen TDP and PBO",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether ryzen_smu is installed and loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			driver := s.driver()
			s.printf("installed: %t\n", driver.Installed(cmd.Context()))
			s.printf("loaded:    %t (%s)\n", driver.Loaded(), driver.Root())
			return nil
		},
	}

	install := &cobra.Command{
		Use:   "install",
		Short: "Build and install ryzen_smu with dkms (Arch-based systems)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			installer := smu.NewInstaller(s.runner(), filepath.Dir(s.cfg.Path()), s.logger)
			s.printf("Installing ryzen_smu from %s\n", smu.RepositoryURL)
			if err := installer.Install(cmd.Context()); err != nil {
				return describe(err)
			}
			s.printf("ryzen_smu installed; a reboot may be required before it loads\n")
			return nil
		},
	}

	cmd.AddCommand(status, install)
	return cmd
}

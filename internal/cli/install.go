package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/Neol00/ClockSpeeds/internal/desktop"
)

func newInstallCmd(s *session) *cobra.Command {
	var opts desktop.Options
	var check bool

	cmd := &cobra.Command{
		Use:         "install",
		Short:       "Create the ClockSpeeds desktop entry for the current user",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSetup: setupConsole},
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			resolver := desktop.NewResolver(s.logger)

			if check {
				dir, err := desktop.FindAppDir(home)
				if errors.Is(err, desktop.ErrAppDirNotFound) {
					s.printf("%s\n", desktop.NotFoundMessage)
					return &ExitError{Code: 1, Err: err, Silent: true}
				}
				if err != nil {
					return err
				}
				interpreter, found := resolver.Resolve(cmd.Context())
				s.printf("ClockSpeeds directory: %s\n", dir)
				s.printf("Python interpreter:    %s (found: %t)\n", interpreter, found)
				return nil
			}

			installer := desktop.NewInstaller(home, resolver, s.stdout, s.logger)
			if _, err := installer.Install(cmd.Context(), opts); err != nil {
				if errors.Is(err, desktop.ErrAppDirNotFound) {
					return &ExitError{Code: 1, Err: err, Silent: true}
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.LegacyName, "legacy-name", false, "write ClockSpeeds.desktop instead of org.ClockSpeeds.desktop")
	cmd.Flags().BoolVar(&opts.Native, "native", false, "launch this binary's terminal monitor instead of launch.py")
	cmd.Flags().BoolVar(&check, "check", false, "report what would be installed without writing anything")
	return cmd
}

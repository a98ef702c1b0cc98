package cli

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Neol00/ClockSpeeds/internal/config"
	"github.com/Neol00/ClockSpeeds/internal/monitor"
	"github.com/Neol00/ClockSpeeds/internal/tui"
)

func newMonitorCmd(s *session) *cobra.Command {
	var seconds float64

	cmd := &cobra.Command{
		Use:         "monitor",
		Short:       "Live view of clock speeds, load and temperature",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSetup: setupQuiet},
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader, err := s.telemetry()
			if err != nil {
				return err
			}
			settings, err := s.settings()
			if err != nil {
				return err
			}

			interval := s.interval()
			if seconds > 0 {
				interval = monitor.ClampInterval(time.Duration(seconds * float64(time.Second)))
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			mon := monitor.New(reader, interval, s.logger)
			snapshots, unsubscribe := mon.Subscribe()
			defer unsubscribe()
			go mon.Start(ctx)

			title := "ClockSpeeds"
			if info, err := reader.CPUInfo(); err == nil && info.Model != "" {
				title = info.Model
			}

			model := tui.New(snapshots, tui.Options{
				Title:      title,
				Interval:   mon.Interval(),
				DisplayGHz: settings.DisplayGHz,
				OnInterval: func(d time.Duration) time.Duration {
					d = mon.SetInterval(d)
					if _, err := s.cfg.SetUpdateInterval(d.Seconds()); err != nil {
						s.logger.Error().Err(err).Msg("failed to save update interval")
					}
					return d
				},
				OnDisplayGHz: func(ghz bool) {
					if err := s.cfg.SetBool(config.KeyDisplayGHz, ghz); err != nil {
						s.logger.Error().Err(err).Msg("failed to save display unit")
					}
				},
			})

			_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
	cmd.Flags().Float64Var(&seconds, "interval", 0, "seconds between samples for this session (0.1 to 20)")
	return cmd
}

package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/Neol00/ClockSpeeds/internal/adapters/http"
	specsadapter "github.com/Neol00/ClockSpeeds/internal/adapters/specs"
	"github.com/Neol00/ClockSpeeds/internal/app"
	"github.com/Neol00/ClockSpeeds/internal/monitor"
	"github.com/Neol00/ClockSpeeds/internal/observability"
)

const defaultAddr = "127.0.0.1:8080"

func newServeCmd(s *session) *cobra.Command {
	var addr string
	var readOnly bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve samples and controls over a local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = strings.TrimSpace(os.Getenv("CLOCKSPEEDS_ADDR"))
			}
			if addr == "" {
				addr = defaultAddr
			}

			reader, err := s.telemetry()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			mon := monitor.New(reader, s.interval(), s.logger)
			go mon.Start(ctx)

			service := app.NewService(specsadapter.NewReader(s.specsSources(), specsadapter.DefaultTTL), reader, mon)
			if !readOnly {
				ctrl, err := s.controller()
				if err != nil {
					return err
				}
				service.WithControl(ctrl, s.store)
			}

			router := httpadapter.NewEcho(httpadapter.NewServer(service, s.logger), observability.Enabled(), s.stderr)
			server := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					s.logger.Error().Err(err).Msg("shutdown")
				}
			}()

			s.logger.Info().Str("addr", addr).Bool("read_only", readOnly).Msg("http server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (env CLOCKSPEEDS_ADDR, default "+defaultAddr+")")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "serve samples only; reject control requests")
	return cmd
}

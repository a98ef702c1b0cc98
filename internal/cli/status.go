package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	specsadapter "github.com/Neol00/ClockSpeeds/internal/adapters/specs"
	"github.com/Neol00/ClockSpeeds/internal/domain"
)

func newStatusCmd(s *session) *cobra.Command {
	var window time.Duration
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print one sample of speeds, load, temperature and governor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader, err := s.telemetry()
			if err != nil {
				return err
			}
			// load is measured against the baseline taken when the reader was built
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-time.After(window):
			}
			snapshot, err := reader.Sample(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(s, snapshot)
			}
			printSnapshot(s, snapshot, reader.EnergyPerfBias())
			return nil
		},
	}
	cmd.Flags().DurationVar(&window, "window", 250*time.Millisecond, "time between the two load samples")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printSnapshot(s *session, snapshot domain.Snapshot, epb *int) {
	ghz := false
	if settings, err := s.settings(); err == nil {
		ghz = settings.DisplayGHz
	}

	tw := tabwriter.NewWriter(s.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "THREAD\tCLOCK\tLOAD")
	for _, thread := range snapshot.Threads {
		fmt.Fprintf(tw, "%d\t%s\t%.1f%%\n", thread.Thread, formatClock(thread.FrequencyMHz, ghz), thread.LoadPercent)
	}
	fmt.Fprintf(tw, "avg\t%s\t%.1f%%\n", formatClock(snapshot.AverageMHz, ghz), snapshot.AverageLoad)
	_ = tw.Flush()

	s.printf("\nGovernor:    %s\n", orUnknown(snapshot.Governor))
	s.printf("Boost:       %s\n", boostString(snapshot.Boost))
	if snapshot.PackageTempC != nil {
		s.printf("Temperature: %.1f°C\n", *snapshot.PackageTempC)
	}
	if epb != nil {
		s.printf("EPB:         %d\n", *epb)
	}
	if snapshot.Throttling {
		s.printf("CPU is throttling\n")
	}
}

func newInfoCmd(s *session) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show CPU model, caches, memory and system specs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader, err := s.telemetry()
			if err != nil {
				return err
			}
			info, err := reader.CPUInfo()
			if err != nil {
				return err
			}

			system, err := specsadapter.NewReader(s.specsSources(), 0).ReadSpecs(cmd.Context())
			if err != nil {
				s.logger.Warn().Err(err).Msg("failed to read system specs")
			}

			if asJSON {
				return writeJSON(s, struct {
					CPU    domain.CPUInfo `json:"cpu"`
					System domain.Specs   `json:"system"`
				}{info, system})
			}
			printInfo(s, info, system)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printInfo(s *session, info domain.CPUInfo, system domain.Specs) {
	s.printf("Model:          %s\n", info.Model)
	s.printf("Type:           %s\n", info.Type)
	s.printf("Cores/Threads:  %d/%d\n", info.PhysicalCores, info.Threads)
	s.printf("Total RAM:      %d MB\n", info.TotalRAMMB)
	if info.MaxTDPWatts != nil {
		s.printf("Max TDP:        %.0f W\n", *info.MaxTDPWatts)
	}
	if len(info.MinMHz) > 0 && len(info.MaxMHz) > 0 {
		s.printf("Allowed clocks: %.0f - %.0f MHz\n", lo.Min(info.MinMHz), lo.Max(info.MaxMHz))
	}

	labels := make([]string, 0, len(info.CacheSizes))
	for label := range info.CacheSizes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		s.printf("%-16s%s\n", label+":", info.CacheSizes[label])
	}

	for _, line := range [][2]string{
		{"Motherboard", system.Motherboard},
		{"Memory", strings.TrimSpace(system.RAM + " " + system.RAMSpeed)},
		{"Package power", system.CPUWattage},
	} {
		if line[1] != "" {
			s.printf("%-16s%s\n", line[0]+":", line[1])
		}
	}
}

func writeJSON(s *session, v any) error {
	enc := json.NewEncoder(s.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatClock(mhz float64, ghz bool) string {
	if ghz {
		return fmt.Sprintf("%.2f GHz", mhz/1000)
	}
	return fmt.Sprintf("%.0f MHz", mhz)
}

func boostString(boost *bool) string {
	switch {
	case boost == nil:
		return "unknown"
	case *boost:
		return "enabled"
	}
	return "disabled"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

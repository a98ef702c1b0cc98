package specs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

var numberPattern = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// cpuSensorHints mark a sensor line or key as belonging to the CPU package.
var cpuSensorHints = []string{"tctl", "package", "cpu", "core", "temp"}

func (r *Reader) readCPUTemp(ctx context.Context) string {
	lookups := []func(context.Context) (float64, bool){r.gopsutilTemp, r.sensorsTemp, r.thermalZoneTemp}
	for _, lookup := range lookups {
		if temp, ok := lookup(ctx); ok {
			return fmt.Sprintf("%.1f C", temp)
		}
	}
	return ""
}

func (r *Reader) gopsutilTemp(ctx context.Context) (float64, bool) {
	if !r.src.UseGopsutil {
		return 0, false
	}
	stats, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil && len(stats) == 0 {
		return 0, false
	}
	var best float64
	found := false
	for _, stat := range stats {
		if !hasCPUHint(stat.SensorKey) || stat.Temperature <= 0 {
			continue
		}
		if !found || stat.Temperature > best {
			best, found = stat.Temperature, true
		}
	}
	return best, found
}

func (r *Reader) sensorsTemp(ctx context.Context) (float64, bool) {
	out, err := r.src.Run(ctx, "sensors")
	if err != nil {
		return 0, false
	}
	return parseSensorsOutput(out)
}

func (r *Reader) thermalZoneTemp(context.Context) (float64, bool) {
	zones, _ := filepath.Glob(r.src.ThermalGlob)
	var best float64
	found := false
	for _, zone := range zones {
		value, err := strconv.ParseFloat(readValue(filepath.Join(zone, "temp")), 64)
		if err != nil {
			continue
		}
		if celsius := normalizeTemp(value); !found || celsius > best {
			best, found = celsius, true
		}
	}
	return best, found
}

// parseSensorsOutput returns the hottest CPU reading from lm-sensors output,
// or the hottest reading of any kind when no line looks CPU related.
func parseSensorsOutput(out []byte) (float64, bool) {
	var cpuBest, anyBest float64
	var cpuFound, anyFound bool

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		label, reading, ok := strings.Cut(scanner.Text(), ":")
		if !ok || !strings.Contains(reading, "C") {
			continue
		}
		match := numberPattern.FindString(reading)
		if match == "" {
			continue
		}
		value, err := strconv.ParseFloat(match, 64)
		if err != nil {
			continue
		}
		value = normalizeTemp(value)

		if !anyFound || value > anyBest {
			anyBest, anyFound = value, true
		}
		if hasCPUHint(label) && (!cpuFound || value > cpuBest) {
			cpuBest, cpuFound = value, true
		}
	}

	if cpuFound {
		return cpuBest, true
	}
	return anyBest, anyFound
}

func hasCPUHint(s string) bool {
	lower := strings.ToLower(s)
	for _, hint := range cpuSensorHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// normalizeTemp converts millidegree readings to degrees.
func normalizeTemp(value float64) float64 {
	for value > 200 {
		value /= 1000
	}
	return value
}

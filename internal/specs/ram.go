package specs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	kbPerMB = 1024
	kbPerGB = 1024 * 1024
)

var sizeUnits = map[string]float64{"kb": 1, "mb": kbPerMB, "gb": kbPerGB, "tb": kbPerGB * 1024}

func (r *Reader) memoryDevices(ctx context.Context) []byte {
	out, err := r.dmidecode(ctx, "memory", "Memory Device", "Physical Memory Array")
	if err != nil {
		return nil
	}
	return out
}

// readRAM prefers installed module capacity over the kernel's usable total.
func (r *Reader) readRAM(ctx context.Context) string {
	if kb := installedKB(r.memoryDevices(ctx)); kb > 0 {
		return formatMemKB(kb)
	}
	if kb := memTotalKB(r.src.MemInfo); kb > 0 {
		return formatMemKB(kb)
	}
	if r.src.UseGopsutil {
		if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm.Total > 0 {
			return formatMemKB(float64(vm.Total) / 1024)
		}
	}
	return ""
}

func (r *Reader) readRAMSpeed(ctx context.Context) string {
	speeds := r.edacSpeeds()
	if len(speeds) == 0 {
		speeds = parseDMISpeeds(r.memoryDevices(ctx))
	}
	if len(speeds) == 0 {
		return "unknown"
	}
	return strings.Join(speeds, ", ")
}

func (r *Reader) edacSpeeds() []string {
	matches, _ := filepath.Glob(r.src.DIMMSpeed)
	values := lo.FilterMap(matches, func(path string, _ int) (string, bool) {
		value := readValue(path)
		if value == "" || strings.EqualFold(value, "unknown") {
			return "", false
		}
		if mhz, err := strconv.Atoi(value); err == nil && mhz > 0 {
			return fmt.Sprintf("%d MHz", mhz), true
		}
		return value, true
	})
	return sortedUnique(values)
}

// installedKB sums the Size lines of populated memory devices.
func installedKB(out []byte) float64 {
	var total float64
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		value, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "Size:")
		if !ok {
			continue
		}
		fields := strings.Fields(value)
		if len(fields) < 2 {
			continue
		}
		amount, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		total += amount * sizeUnits[strings.ToLower(fields[1])]
	}
	return total
}

func parseDMISpeeds(out []byte) []string {
	var speeds []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		value, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "Speed:")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" || strings.EqualFold(value, "unknown") || strings.Contains(value, "No Module") {
			continue
		}
		if fields := strings.Fields(value); len(fields) == 2 && (fields[1] == "MT/s" || fields[1] == "MHz") {
			value = fields[0] + " MHz"
		}
		speeds = append(speeds, value)
	}
	return sortedUnique(speeds)
}

func memTotalKB(path string) float64 {
	for _, line := range strings.Split(readValue(path), "\n") {
		value, ok := strings.CutPrefix(line, "MemTotal:")
		if !ok {
			continue
		}
		kb, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(value), " kB"), 64)
		if err == nil {
			return kb
		}
	}
	return 0
}

func sortedUnique(values []string) []string {
	values = lo.Uniq(values)
	sort.Strings(values)
	return values
}

// formatMemKB renders whole gigabytes from 16 GB up and one decimal below.
func formatMemKB(kb float64) string {
	switch {
	case kb >= 16*kbPerGB:
		return fmt.Sprintf("%.0f GB", math.Round(kb/kbPerGB))
	case kb >= kbPerGB:
		return fmt.Sprintf("%.1f GB", kb/kbPerGB)
	case kb >= kbPerMB:
		return fmt.Sprintf("%.0f MB", kb/kbPerMB)
	}
	return fmt.Sprintf("%.0f KB", kb)
}

package telemetry

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var cacheLabels = []struct {
	key   string
	label string
}{
	{"1_Data", "L1 Data"},
	{"1_Instruction", "L1 Instruction"},
	{"2_Unified", "L2 Unified"},
	{"3_Unified", "L3 Unified"},
}

// CPUInfo gathers the static description shown by `info` and /info.
func (r *Reader) CPUInfo() (domain.CPUInfo, error) {
	if r.topo.Proc.CPUInfo == "" {
		return domain.CPUInfo{}, fmt.Errorf("cpuinfo file not found")
	}

	model, cores, err := parseCPUInfo(r.topo.Proc.CPUInfo)
	if err != nil {
		return domain.CPUInfo{}, err
	}
	if cores == 0 {
		if n, err := cpu.Counts(false); err == nil {
			cores = n
		}
	}

	info := domain.CPUInfo{
		Model:         model,
		Type:          r.topo.Type,
		CacheSizes:    make(map[string]string),
		PhysicalCores: cores,
		Threads:       r.topo.Threads,
		MaxTDPWatts:   r.MaxTDP(),
	}
	for _, c := range cacheLabels {
		if size, ok := r.topo.CacheSizes[c.key]; ok {
			info.CacheSizes[c.label] = size
		}
	}
	info.MinMHz, info.MaxMHz = r.AllowedFrequencies()

	totalMB, err := readTotalRAM(r.topo.Proc.MemInfo)
	if err != nil {
		r.logger.Error().Err(err).Msg("error reading meminfo file")
		if vm, vmErr := mem.VirtualMemory(); vmErr == nil {
			totalMB = int(vm.Total / 1024 / 1024)
		}
	}
	info.TotalRAMMB = totalMB
	return info, nil
}

// PhysicalCores reads "cpu cores" from cpuinfo, falling back to gopsutil.
func (r *Reader) PhysicalCores() (int, error) {
	if r.topo.Proc.CPUInfo != "" {
		if _, cores, err := parseCPUInfo(r.topo.Proc.CPUInfo); err == nil && cores > 0 {
			return cores, nil
		}
	}
	cores, err := cpu.Counts(false)
	if err != nil {
		return 0, fmt.Errorf("count physical cores: %w", err)
	}
	return cores, nil
}

func parseCPUInfo(path string) (string, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var model string
	var cores int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch {
		case key == "model name" && model == "":
			model = value
		case key == "cpu cores" && cores == 0:
			cores, _ = strconv.Atoi(value)
		}
		if model != "" && cores != 0 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", 0, fmt.Errorf("error reading %s: %w", path, err)
	}
	return model, cores, nil
}

func readTotalRAM(path string) (int, error) {
	if path == "" {
		return 0, fmt.Errorf("meminfo file not found")
	}
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			kb, err := strconv.Atoi(fields[1])
			if err != nil {
				return 0, fmt.Errorf("parse MemTotal: %w", err)
			}
			return kb / 1024, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("MemTotal not found in %s", path)
}

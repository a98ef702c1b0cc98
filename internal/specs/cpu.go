package specs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
)

func (r *Reader) readCPU(ctx context.Context) (string, int, int, error) {
	info, threads, err := readCPUInfoFile(r.src.CPUInfo)
	if err != nil && !r.src.UseGopsutil {
		return "", 0, 0, err
	}

	model := info["model name"]
	cores := parseInt(info["cpu cores"])

	if r.src.UseGopsutil {
		if model == "" {
			if stats, err := cpu.InfoWithContext(ctx); err == nil && len(stats) > 0 {
				model = stats[0].ModelName
			}
		}
		if cores == 0 {
			if n, err := cpu.CountsWithContext(ctx, false); err == nil {
				cores = n
			}
		}
		if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
			threads = n
		}
	}

	if model == "" {
		return "", 0, 0, fmt.Errorf("CPU model name not found in %s", r.src.CPUInfo)
	}
	return model, cores, threads, nil
}

// readCPUInfoFile returns the first processor block and the number of
// processor entries.
func readCPUInfoFile(path string) (map[string]string, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	return parseCPUInfo(file)
}

func parseCPUInfo(r io.Reader) (map[string]string, int, error) {
	info := make(map[string]string)
	processors := 0
	firstBlock := true
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			firstBlock = false
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "processor" {
			processors++
		}
		if firstBlock && key != "" {
			info[key] = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("error reading cpuinfo: %w", err)
	}
	return info, processors, nil
}

func parseInt(value string) int {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0
	}
	parsed, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return parsed
}

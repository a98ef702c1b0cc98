package telemetry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CPUStat is one cpu line of /proc/stat. ID is "cpu" for the aggregate line.
type CPUStat struct {
	ID     string
	User   uint64
	Nice   uint64
	System uint64
	Idle   uint64
}

func (s CPUStat) total() uint64 {
	return s.User + s.Nice + s.System + s.Idle
}

func ReadStat(path string) ([]CPUStat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	return ParseStat(file)
}

// ParseStat keeps every line starting with "cpu" that has at least the four
// user/nice/system/idle counters.
func ParseStat(r io.Reader) ([]CPUStat, error) {
	var stats []CPUStat
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || !strings.HasPrefix(fields[0], "cpu") {
			continue
		}
		var values [4]uint64
		valid := true
		for i := range values {
			v, err := strconv.ParseUint(fields[i+1], 10, 64)
			if err != nil {
				valid = false
				break
			}
			values[i] = v
		}
		if !valid {
			continue
		}
		stats = append(stats, CPUStat{
			ID:     fields[0],
			User:   values[0],
			Nice:   values[1],
			System: values[2],
			Idle:   values[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading stat: %w", err)
	}
	return stats, nil
}

// CalculateLoad returns the busy percentage per cpu id between two samples.
// Ids whose counters did not move are omitted.
func CalculateLoad(prev, curr []CPUStat) map[string]float64 {
	previous := make(map[string]CPUStat, len(prev))
	for _, s := range prev {
		previous[s.ID] = s
	}

	loads := make(map[string]float64, len(curr))
	for _, c := range curr {
		p, ok := previous[c.ID]
		if !ok {
			continue
		}
		totalDiff := float64(c.total()) - float64(p.total())
		idleDiff := float64(c.Idle) - float64(p.Idle)
		if totalDiff == 0 {
			continue
		}
		loads[c.ID] = 100 * (totalDiff - idleDiff) / totalDiff
	}
	return loads
}

// AverageLoad averages every id, the aggregate line included, capped at 100.
func AverageLoad(loads map[string]float64) float64 {
	if len(loads) == 0 {
		return 0
	}
	var sum float64
	for _, load := range loads {
		sum += load
	}
	return min(100, sum/float64(len(loads)))
}

// ThreadLoads drops the aggregate line and keys the rest by thread index.
func ThreadLoads(loads map[string]float64) map[int]float64 {
	out := make(map[int]float64, len(loads))
	for id, load := range loads {
		if id == "cpu" {
			continue
		}
		thread, err := strconv.Atoi(strings.TrimPrefix(id, "cpu"))
		if err != nil {
			continue
		}
		out[thread] = load
	}
	return out
}

// Package sysfstest builds fake sysfs/procfs trees for tests.
package sysfstest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Neol00/ClockSpeeds/internal/topology"
)

type Options struct {
	Threads       int
	Intel         bool
	CurFreqKHz    []int
	MinKHz        int
	MaxKHz        int
	Governor      string
	Governors     string
	Boost         string
	NoTurbo       string
	TempMilli     string
	ThrottleMS    string
	PhysicalCores int
	Stat          string
	MaxPowerUW    string
}

func (o *Options) defaults() {
	if o.Threads == 0 {
		o.Threads = 4
	}
	if o.MinKHz == 0 {
		o.MinKHz = 400000
	}
	if o.MaxKHz == 0 {
		o.MaxKHz = 5000000
	}
	if o.Governor == "" {
		o.Governor = "powersave"
	}
	if o.Governors == "" {
		o.Governors = "performance powersave"
	}
	if o.Boost == "" {
		o.Boost = "1"
	}
	if o.NoTurbo == "" {
		o.NoTurbo = "0"
	}
	if o.TempMilli == "" {
		o.TempMilli = "45000"
	}
	if o.ThrottleMS == "" {
		o.ThrottleMS = "0"
	}
	if o.PhysicalCores == 0 {
		o.PhysicalCores = o.Threads / 2
		if o.PhysicalCores == 0 {
			o.PhysicalCores = 1
		}
	}
	if o.MaxPowerUW == "" {
		o.MaxPowerUW = "125000000"
	}
}

// Build writes a complete tree under t.TempDir() and returns its roots.
func Build(t testing.TB, opts Options) topology.Roots {
	t.Helper()
	opts.defaults()

	base := t.TempDir()
	roots := topology.Roots{
		CPU:      filepath.Join(base, "sys", "devices", "system", "cpu"),
		Proc:     filepath.Join(base, "proc"),
		Hwmon:    filepath.Join(base, "sys", "class", "hwmon"),
		Thermal:  filepath.Join(base, "sys", "class", "thermal"),
		Powercap: filepath.Join(base, "sys", "class", "powercap"),
	}

	if opts.Intel {
		Write(t, filepath.Join(roots.CPU, "intel_pstate", "no_turbo"), opts.NoTurbo)
	} else {
		Mkdir(t, filepath.Join(roots.CPU, "cpufreq"))
	}

	for i := 0; i < opts.Threads; i++ {
		freqDir := filepath.Join(roots.CPU, fmt.Sprintf("cpu%d", i), "cpufreq")
		cur := 3000000
		if i < len(opts.CurFreqKHz) {
			cur = opts.CurFreqKHz[i]
		}
		Write(t, filepath.Join(freqDir, "scaling_cur_freq"), fmt.Sprint(cur))
		Write(t, filepath.Join(freqDir, "scaling_governor"), opts.Governor)
		Write(t, filepath.Join(freqDir, "scaling_available_governors"), opts.Governors)
		Write(t, filepath.Join(freqDir, "scaling_min_freq"), fmt.Sprint(opts.MinKHz))
		Write(t, filepath.Join(freqDir, "scaling_max_freq"), fmt.Sprint(opts.MaxKHz))
		Write(t, filepath.Join(freqDir, "cpuinfo_min_freq"), fmt.Sprint(opts.MinKHz))
		Write(t, filepath.Join(freqDir, "cpuinfo_max_freq"), fmt.Sprint(opts.MaxKHz))
		if opts.Intel {
			threadDir := filepath.Join(roots.CPU, fmt.Sprintf("cpu%d", i))
			Write(t, filepath.Join(threadDir, "thermal_throttle", "package_throttle_total_time_ms"), opts.ThrottleMS)
			Write(t, filepath.Join(threadDir, "power", "energy_perf_bias"), "6")
		} else {
			Write(t, filepath.Join(freqDir, "boost"), opts.Boost)
		}
	}

	cacheDir := filepath.Join(roots.CPU, "cpu0", "cache")
	writeCache(t, filepath.Join(cacheDir, "index0"), "1", "Data", "48K")
	writeCache(t, filepath.Join(cacheDir, "index1"), "1", "Instruction", "32K")
	writeCache(t, filepath.Join(cacheDir, "index2"), "2", "Unified", "1280K")
	writeCache(t, filepath.Join(cacheDir, "index3"), "3", "Unified", "24576K")

	hwmon := filepath.Join(roots.Hwmon, "hwmon0")
	label := "Tctl"
	if opts.Intel {
		label = "Package id 0"
		Write(t, filepath.Join(roots.Powercap, "intel-rapl:0", "constraint_0_power_limit_uw"), "65000000")
		Write(t, filepath.Join(roots.Powercap, "intel-rapl:0", "constraint_0_max_power_uw"), opts.MaxPowerUW)
	}
	Write(t, filepath.Join(hwmon, "temp1_label"), label)
	Write(t, filepath.Join(hwmon, "temp1_input"), opts.TempMilli)

	stat := opts.Stat
	if stat == "" {
		stat = StatLines(opts.Threads, 100, 50, 50, 800)
	}
	Write(t, filepath.Join(roots.Proc, "stat"), stat)
	Write(t, filepath.Join(roots.Proc, "cpuinfo"), CPUInfo(opts.Threads, opts.PhysicalCores))
	Write(t, filepath.Join(roots.Proc, "meminfo"), "MemTotal:       32768000 kB\nMemFree:        1024000 kB\n")

	return roots
}

// StatLines renders an aggregate cpu line plus one line per thread with the
// same user/nice/system/idle jiffies.
func StatLines(threads int, user, nice, system, idle int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cpu  %d %d %d %d 0 0 0 0 0 0\n", user*threads, nice*threads, system*threads, idle*threads)
	for i := 0; i < threads; i++ {
		fmt.Fprintf(&b, "cpu%d %d %d %d %d 0 0 0 0 0 0\n", i, user, nice, system, idle)
	}
	b.WriteString("intr 12345\nctxt 67890\n")
	return b.String()
}

func CPUInfo(threads, cores int) string {
	var b strings.Builder
	for i := 0; i < threads; i++ {
		fmt.Fprintf(&b, "processor\t: %d\n", i)
		b.WriteString("vendor_id\t: AuthenticAMD\n")
		b.WriteString("model name\t: AMD Ryzen 7 5800X 8-Core Processor\n")
		b.WriteString("cpu MHz\t\t: 3600.000\n")
		fmt.Fprintf(&b, "cpu cores\t: %d\n\n", cores)
	}
	return b.String()
}

func writeCache(t testing.TB, dir, level, cacheType, size string) {
	Write(t, filepath.Join(dir, "level"), level)
	Write(t, filepath.Join(dir, "type"), cacheType)
	Write(t, filepath.Join(dir, "size"), size)
}

func Write(t testing.TB, path, content string) {
	t.Helper()
	Mkdir(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func Mkdir(t testing.TB, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func Read(t testing.TB, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.TrimSpace(string(data))
}

package topology

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/rs/zerolog"
)

// FileKind names a per-thread sysfs file family. The string values are the
// keys used in the cached topology.
type FileKind string

const (
	Governor            FileKind = "governor_files"
	Speed               FileKind = "speed_files"
	ScalingMax          FileKind = "scaling_max_files"
	ScalingMin          FileKind = "scaling_min_files"
	CPUInfoMax          FileKind = "cpuinfo_max_files"
	CPUInfoMin          FileKind = "cpuinfo_min_files"
	AvailableGovernors  FileKind = "available_governors_files"
	Boost               FileKind = "boost_files"
	PackageThrottleTime FileKind = "package_throttle_time_files"
	EnergyPerfBias      FileKind = "energy_perf_bias_files"
)

var cpufreqFiles = []struct {
	kind FileKind
	name string
}{
	{Governor, "scaling_governor"},
	{Speed, "scaling_cur_freq"},
	{ScalingMax, "scaling_max_freq"},
	{ScalingMin, "scaling_min_freq"},
	{CPUInfoMax, "cpuinfo_max_freq"},
	{CPUInfoMin, "cpuinfo_min_freq"},
	{AvailableGovernors, "scaling_available_governors"},
	{Boost, "boost"},
}

var (
	ErrCPUDirNotFound = errors.New("cpu directory not found")
	ErrNoThreads      = errors.New("no cpu threads found")
	ErrInvalidCache   = errors.New("cached topology is incomplete")
)

type Roots struct {
	CPU      string
	Proc     string
	Hwmon    string
	Thermal  string
	Powercap string
}

func DefaultRoots() Roots {
	return Roots{
		CPU:      "/sys/devices/system/cpu",
		Proc:     "/proc",
		Hwmon:    "/sys/class/hwmon",
		Thermal:  "/sys/class/thermal",
		Powercap: "/sys/class/powercap",
	}
}

// WithPrefix relocates every root under prefix, for inspecting a mounted
// system image or a test tree.
func (r Roots) WithPrefix(prefix string) Roots {
	if prefix == "" {
		return r
	}
	return Roots{
		CPU:      filepath.Join(prefix, r.CPU),
		Proc:     filepath.Join(prefix, r.Proc),
		Hwmon:    filepath.Join(prefix, r.Hwmon),
		Thermal:  filepath.Join(prefix, r.Thermal),
		Powercap: filepath.Join(prefix, r.Powercap),
	}
}

type ProcFiles struct {
	Stat    string `json:"stat"`
	CPUInfo string `json:"cpuinfo"`
	MemInfo string `json:"meminfo"`
}

type IntelTDPFiles struct {
	TDP    string `json:"tdp"`
	MaxTDP string `json:"max_tdp"`
}

// Topology records where every file ClockSpeeds reads or writes lives on this
// machine. It is discovered once and cached.
type Topology struct {
	CPUDir          string                      `json:"cpu_directory"`
	Type            domain.CPUType              `json:"cpu_type"`
	Threads         int                         `json:"threads"`
	Files           map[FileKind]map[int]string `json:"cpu_files"`
	IntelBoostPath  string                      `json:"intel_boost_path"`
	PackageTempFile string                      `json:"package_temp_file"`
	Proc            ProcFiles                   `json:"proc_files"`
	IntelTDP        IntelTDPFiles               `json:"intel_tdp_files"`
	CacheSizes      map[string]string           `json:"cache_files"`
}

// File returns the path of kind for thread, or "" when it was not found.
func (t *Topology) File(kind FileKind, thread int) string {
	if t == nil || t.Files == nil {
		return ""
	}
	return t.Files[kind][thread]
}

// ThreadFiles returns the found files of kind ordered by thread.
func (t *Topology) ThreadFiles(kind FileKind) []ThreadFile {
	files := t.Files[kind]
	out := make([]ThreadFile, 0, len(files))
	for thread, path := range files {
		if path != "" {
			out = append(out, ThreadFile{Thread: thread, Path: path})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Thread < out[j].Thread })
	return out
}

type ThreadFile struct {
	Thread int
	Path   string
}

func (t *Topology) IsIntel() bool {
	return t.Type == domain.CPUTypeIntel
}

// Validate reports every missing file that makes the monitor unusable.
func (t *Topology) Validate() error {
	var errs []error
	if t.CPUDir == "" {
		errs = append(errs, errors.New("cpu directory is not set"))
	}
	if len(t.ThreadFiles(ScalingMax)) == 0 {
		errs = append(errs, errors.New("scaling max frequency files are not set for any thread"))
	}
	if t.Proc.Stat == "" {
		errs = append(errs, errors.New("stat file is not set"))
	}
	if t.PackageTempFile == "" {
		errs = append(errs, errors.New("package temperature file is not set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCache, errors.Join(errs...))
	}
	return nil
}

var threadDirPattern = regexp.MustCompile(`^cpu(\d+)$`)

// Discover walks the sysfs and procfs roots and returns the file map. Missing
// optional files are logged and left empty.
func Discover(roots Roots, logger zerolog.Logger) (*Topology, error) {
	cpuType, err := detectCPUType(roots.CPU)
	if err != nil {
		return nil, err
	}

	threads, err := countThreads(roots.CPU)
	if err != nil {
		return nil, err
	}

	t := &Topology{
		CPUDir:     roots.CPU,
		Type:       cpuType,
		Threads:    threads,
		Files:      make(map[FileKind]map[int]string),
		CacheSizes: make(map[string]string),
	}
	for _, f := range cpufreqFiles {
		t.Files[f.kind] = make(map[int]string)
	}
	t.Files[PackageThrottleTime] = make(map[int]string)
	t.Files[EnergyPerfBias] = make(map[int]string)

	for i := 0; i < threads; i++ {
		t.findCPUFreqFiles(i, logger)
		if t.IsIntel() {
			t.findIntelThreadFiles(i, logger)
		}
	}
	if t.IsIntel() {
		t.findNoTurbo(logger)
		t.findIntelTDP(roots.Powercap, logger)
	}
	t.findProcFiles(roots.Proc, logger)
	t.PackageTempFile = findPackageTempFile(roots, t.IsIntel())
	if t.PackageTempFile == "" {
		logger.Warn().Msg("no thermal files found for cpu temperature monitoring")
	}
	t.CacheSizes = readCacheSizes(filepath.Join(roots.CPU, "cpu0", "cache"))

	return t, nil
}

func detectCPUType(cpuDir string) (domain.CPUType, error) {
	if isDir(filepath.Join(cpuDir, "intel_pstate")) {
		return domain.CPUTypeIntel, nil
	}
	if isDir(filepath.Join(cpuDir, "cpufreq")) || isDir(filepath.Join(cpuDir, "cpu0", "cpufreq")) {
		return domain.CPUTypeOther, nil
	}
	return "", fmt.Errorf("%w: %s", ErrCPUDirNotFound, cpuDir)
}

func countThreads(cpuDir string) (int, error) {
	entries, err := os.ReadDir(cpuDir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", cpuDir, err)
	}
	count := 0
	for _, entry := range entries {
		if threadDirPattern.MatchString(entry.Name()) {
			count++
		}
	}
	if count == 0 {
		return 0, fmt.Errorf("%w in %s", ErrNoThreads, cpuDir)
	}
	return count, nil
}

func (t *Topology) findCPUFreqFiles(thread int, logger zerolog.Logger) {
	dir := filepath.Join(t.CPUDir, fmt.Sprintf("cpu%d", thread), "cpufreq")
	for _, f := range cpufreqFiles {
		path := filepath.Join(dir, f.name)
		if fileExists(path) {
			t.Files[f.kind][thread] = path
			continue
		}
		// intel_pstate exposes boost globally through no_turbo instead.
		if f.kind == Boost && t.IsIntel() {
			continue
		}
		logger.Warn().Int("thread", thread).Str("file", f.name).Str("dir", dir).Msg("cpufreq file does not exist")
	}
}

func (t *Topology) findIntelThreadFiles(thread int, logger zerolog.Logger) {
	threadDir := filepath.Join(t.CPUDir, fmt.Sprintf("cpu%d", thread))

	throttle := filepath.Join(threadDir, "thermal_throttle", "package_throttle_total_time_ms")
	if fileExists(throttle) {
		t.Files[PackageThrottleTime][thread] = throttle
	} else {
		logger.Warn().Int("thread", thread).Msg("package throttle time file does not exist")
	}

	epb := filepath.Join(threadDir, "power", "energy_perf_bias")
	if fileExists(epb) {
		t.Files[EnergyPerfBias][thread] = epb
	} else {
		logger.Warn().Int("thread", thread).Msg("energy_perf_bias file does not exist")
	}
}

func (t *Topology) findNoTurbo(logger zerolog.Logger) {
	path := filepath.Join(t.CPUDir, "intel_pstate", "no_turbo")
	if !fileExists(path) {
		logger.Warn().Msg("intel no_turbo file does not exist")
		return
	}
	t.IntelBoostPath = path
}

func (t *Topology) findIntelTDP(powercapRoot string, logger zerolog.Logger) {
	zone := filepath.Join(powercapRoot, "intel-rapl:0")
	if path := filepath.Join(zone, "constraint_0_power_limit_uw"); fileExists(path) {
		t.IntelTDP.TDP = path
	} else {
		logger.Warn().Msg("intel tdp file not found")
	}
	if path := filepath.Join(zone, "constraint_0_max_power_uw"); fileExists(path) {
		t.IntelTDP.MaxTDP = path
	} else {
		logger.Warn().Msg("intel max tdp file not found")
	}
}

func (t *Topology) findProcFiles(procRoot string, logger zerolog.Logger) {
	for name, target := range map[string]*string{
		"stat":    &t.Proc.Stat,
		"cpuinfo": &t.Proc.CPUInfo,
		"meminfo": &t.Proc.MemInfo,
	} {
		path := filepath.Join(procRoot, name)
		if fileExists(path) {
			*target = path
			continue
		}
		logger.Warn().Str("file", name).Msg("proc file not found")
	}
}

// findPackageTempFile prefers a labelled hwmon sensor (Package/CPU on Intel,
// Tctl on AMD) and falls back to a matching thermal zone.
func findPackageTempFile(roots Roots, intel bool) string {
	inputs, _ := filepath.Glob(filepath.Join(roots.Hwmon, "hwmon*", "temp*_input"))
	sort.Strings(inputs)
	for _, input := range inputs {
		label := strings.ToLower(readTrimmed(strings.TrimSuffix(input, "_input") + "_label"))
		if label == "" {
			continue
		}
		if isRelevantTempLabel(label, intel) {
			return input
		}
	}

	zones, _ := filepath.Glob(filepath.Join(roots.Thermal, "thermal_zone*"))
	sort.Strings(zones)
	for _, zone := range zones {
		zoneType := strings.ToLower(readTrimmed(filepath.Join(zone, "type")))
		if zoneType == "x86_pkg_temp" || strings.Contains(zoneType, "cpu") || strings.Contains(zoneType, "k10temp") {
			path := filepath.Join(zone, "temp")
			if fileExists(path) {
				return path
			}
		}
	}
	return ""
}

func isRelevantTempLabel(label string, intel bool) bool {
	if intel {
		return strings.Contains(label, "package") || strings.Contains(label, "cpu")
	}
	return strings.Contains(label, "tctl")
}

func readCacheSizes(cacheDir string) map[string]string {
	sizes := make(map[string]string)
	indexes, _ := filepath.Glob(filepath.Join(cacheDir, "index*"))
	for _, index := range indexes {
		level := readTrimmed(filepath.Join(index, "level"))
		cacheType := readTrimmed(filepath.Join(index, "type"))
		size := readTrimmed(filepath.Join(index, "size"))
		if level == "" || cacheType == "" || size == "" {
			continue
		}
		if _, err := strconv.Atoi(level); err != nil {
			continue
		}
		sizes[level+"_"+cacheType] = size
	}
	return sizes
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

package domain

import "time"

type Health struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// CPUType mirrors how the kernel exposes frequency control: intel_pstate
// systems are "Intel", everything else (acpi-cpufreq, amd-pstate) is "Other".
type CPUType string

const (
	CPUTypeIntel CPUType = "Intel"
	CPUTypeOther CPUType = "Other"
)

type Specs struct {
	Model       string `json:"model"`
	Cores       int    `json:"cores"`
	Threads     int    `json:"threads"`
	Motherboard string `json:"motherboard,omitempty"`
	CPUTemp     string `json:"cpu_temp,omitempty"`
	CPUWattage  string `json:"cpu_wattage,omitempty"`
	RAM         string `json:"ram,omitempty"`
	RAMSpeed    string `json:"ram_speed,omitempty"`
}

type CPUInfo struct {
	Model         string            `json:"model"`
	Type          CPUType           `json:"type"`
	CacheSizes    map[string]string `json:"cache_sizes"`
	TotalRAMMB    int               `json:"total_ram_mb"`
	MinMHz        []float64         `json:"min_mhz"`
	MaxMHz        []float64         `json:"max_mhz"`
	PhysicalCores int               `json:"physical_cores"`
	Threads       int               `json:"threads"`
	MaxTDPWatts   *float64          `json:"max_tdp_watts,omitempty"`
}

type ThreadSample struct {
	Thread       int     `json:"thread"`
	FrequencyMHz float64 `json:"frequency_mhz"`
	LoadPercent  float64 `json:"load_percent"`
}

type Snapshot struct {
	Time         time.Time      `json:"time"`
	Threads      []ThreadSample `json:"threads"`
	AverageMHz   float64        `json:"average_mhz"`
	AverageLoad  float64        `json:"average_load"`
	PackageTempC *float64       `json:"package_temp_c,omitempty"`
	Governor     string         `json:"governor,omitempty"`
	Boost        *bool          `json:"boost,omitempty"`
	Throttling   bool           `json:"throttling"`
}

// ThreadLimit is a min/max frequency pair in MHz for one thread.
type ThreadLimit struct {
	Thread int `json:"thread"`
	MinMHz int `json:"min_mhz"`
	MaxMHz int `json:"max_mhz"`
}

// AppliedSettings is the last value successfully written for each control.
// Nil fields were never applied in this session.
type AppliedSettings struct {
	MinSpeeds      map[int]int  `json:"min_speeds,omitempty"`
	MaxSpeeds      map[int]int  `json:"max_speeds,omitempty"`
	CheckedThreads map[int]bool `json:"checked_threads,omitempty"`
	Governor       string       `json:"governor,omitempty"`
	Boost          *bool        `json:"boost,omitempty"`
	TDPWatts       *float64     `json:"tdp_watts,omitempty"`
	PBOOffset      *int         `json:"pbo_offset,omitempty"`
	EnergyPerfBias *int         `json:"energy_perf_bias,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (a AppliedSettings) Empty() bool {
	return len(a.MinSpeeds) == 0 && len(a.MaxSpeeds) == 0 && a.Governor == "" &&
		a.Boost == nil && a.TDPWatts == nil && a.PBOOffset == nil && a.EnergyPerfBias == nil
}

type AppliedRecord struct {
	ID       string          `json:"id"`
	Time     time.Time       `json:"time"`
	Control  string          `json:"control"`
	Settings AppliedSettings `json:"settings"`
}

// Package specs collects the static hardware description shown by `info`
// and the /specs endpoint.
package specs

import (
	"context"
	"os/exec"

	"github.com/Neol00/ClockSpeeds/internal/domain"
)

// CommandRunner runs an external tool and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Sources are the files and tools the reader consults.
type Sources struct {
	CPUInfo     string
	MemInfo     string
	DMIDir      string
	ThermalGlob string
	DIMMSpeed   string
	Run         CommandRunner
	// UseGopsutil enables the gopsutil fallbacks that read the live host.
	UseGopsutil bool
}

func DefaultSources() Sources {
	return Sources{
		CPUInfo:     "/proc/cpuinfo",
		MemInfo:     "/proc/meminfo",
		DMIDir:      "/sys/devices/virtual/dmi/id",
		ThermalGlob: "/sys/class/thermal/thermal_zone*",
		DIMMSpeed:   "/sys/devices/system/edac/mc/mc*/dimm*/dimm_speed",
		Run:         execRunner,
		UseGopsutil: true,
	}
}

type Reader struct {
	src Sources
}

func NewReader(src Sources) *Reader {
	if src.Run == nil {
		src.Run = execRunner
	}
	return &Reader{src: src}
}

func (r *Reader) Read(ctx context.Context) (domain.Specs, error) {
	model, cores, threads, err := r.readCPU(ctx)
	if err != nil {
		return domain.Specs{}, err
	}

	return domain.Specs{
		Model:       model,
		Cores:       cores,
		Threads:     threads,
		Motherboard: r.readMotherboard(ctx),
		CPUTemp:     r.readCPUTemp(ctx),
		CPUWattage:  r.readCPUWattage(ctx),
		RAM:         r.readRAM(ctx),
		RAMSpeed:    r.readRAMSpeed(ctx),
	}, nil
}

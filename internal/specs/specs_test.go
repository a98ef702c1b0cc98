package specs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Neol00/ClockSpeeds/internal/domain"
	"github.com/stretchr/testify/require"
)

const sensorsOutput = `k10temp-pci-00c3
Adapter: PCI adapter
Tctl:         +61.4°C

nvme-pci-0100
Adapter: PCI adapter
Composite:    +38.9°C  (low  = -273.1°C, high = +81.8°C)

amdgpu-pci-0b00
Adapter: PCI adapter
edge:         +44.0°C
`

const turbostatOutput = `turbostat version 2024.04.08 - Len Brown <lenb@kernel.org>
Kernel command line: BOOT_IMAGE=/vmlinuz
PkgWatt
42.17
`

const memoryOutput = `# dmidecode 3.5
Handle 0x0010, DMI type 17, 92 bytes
Memory Device
	Size: 16 GB
	Speed: 3200 MT/s
	Configured Memory Speed: 3200 MT/s

Handle 0x0011, DMI type 17, 92 bytes
Memory Device
	Size: No Module Installed
	Speed: Unknown

Handle 0x0012, DMI type 17, 92 bytes
Memory Device
	Size: 16384 MB
	Speed: 3200 MT/s
`

const baseboardOutput = `# dmidecode 3.5
Handle 0x0002, DMI type 2, 15 bytes
Base Board Information
	Manufacturer: ASUSTeK COMPUTER INC.
	Product Name: ROG STRIX B550-F GAMING
	Version: Rev X.0x
`

func TestParseSensorsPrefersCPULines(t *testing.T) {
	temp, ok := parseSensorsOutput([]byte(sensorsOutput))
	require.True(t, ok)
	require.InDelta(t, 61.4, temp, 0.001)

	temp, ok = parseSensorsOutput([]byte("edge:  +44.0°C\nfan1:  1200 RPM\n"))
	require.True(t, ok)
	require.InDelta(t, 44.0, temp, 0.001)

	_, ok = parseSensorsOutput([]byte("fan1: 1200 RPM\n"))
	require.False(t, ok)
}

func TestParseTurbostat(t *testing.T) {
	require.InDelta(t, 42.17, parseTurbostatPkgWatt([]byte(turbostatOutput)), 0.001)
	require.InDelta(t, 17.5, parseTurbostatPkgWatt([]byte("Avg_MHz PkgWatt\n1200 17.50\n")), 0.001)
	require.InDelta(t, 9.25, parseTurbostatPkgWatt([]byte("9.25\n")), 0.001)
	require.Zero(t, parseTurbostatPkgWatt([]byte("garbage line here\n")))
}

func TestParseMemoryDevices(t *testing.T) {
	require.Equal(t, float64(32*kbPerGB), installedKB([]byte(memoryOutput)))
	require.Equal(t, []string{"3200 MHz"}, parseDMISpeeds([]byte(memoryOutput)))
}

func TestParseBaseboard(t *testing.T) {
	manufacturer, product := parseBaseboard([]byte(baseboardOutput))
	require.Equal(t, "ASUSTeK COMPUTER INC.", manufacturer)
	require.Equal(t, "ROG STRIX B550-F GAMING", product)
}

func TestFormatMemKB(t *testing.T) {
	require.Equal(t, "32 GB", formatMemKB(32*kbPerGB))
	require.Equal(t, "7.7 GB", formatMemKB(8061284))
	require.Equal(t, "512 MB", formatMemKB(512*kbPerMB))
	require.Equal(t, "900 KB", formatMemKB(900))
}

func TestMeaningful(t *testing.T) {
	require.False(t, meaningful(""))
	require.False(t, meaningful("Default string"))
	require.False(t, meaningful("To Be Filled By O.E.M."))
	require.True(t, meaningful("Micro-Star International Co., Ltd."))
}

type fakeTools map[string][]byte

func (f fakeTools) run(_ context.Context, name string, args ...string) ([]byte, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	if out, ok := f[key]; ok {
		return out, nil
	}
	return nil, errors.New("not found: " + key)
}

func write(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func testSources(t *testing.T, tools fakeTools) Sources {
	root := t.TempDir()
	write(t, filepath.Join(root, "cpuinfo"), "processor\t: 0\nmodel name\t: AMD Ryzen 5 5600X 6-Core Processor\ncpu cores\t: 6\n\nprocessor\t: 1\nmodel name\t: AMD Ryzen 5 5600X 6-Core Processor\ncpu cores\t: 6\n")
	write(t, filepath.Join(root, "meminfo"), "MemTotal:       16303520 kB\nMemFree:         1000000 kB\n")
	write(t, filepath.Join(root, "thermal", "thermal_zone0", "temp"), "48000\n")
	return Sources{
		CPUInfo:     filepath.Join(root, "cpuinfo"),
		MemInfo:     filepath.Join(root, "meminfo"),
		DMIDir:      filepath.Join(root, "dmi"),
		ThermalGlob: filepath.Join(root, "thermal", "thermal_zone*"),
		DIMMSpeed:   filepath.Join(root, "edac", "mc*", "dimm*", "dimm_speed"),
		Run:         tools.run,
	}
}

func TestReadWithTools(t *testing.T) {
	tools := fakeTools{
		"sensors":                        []byte(sensorsOutput),
		"sudo -n dmidecode -t memory":    []byte(memoryOutput),
		"sudo -n dmidecode -t baseboard": []byte(baseboardOutput),
	}
	tools["sudo -n turbostat "+strings.Join(turbostatArgs, " ")] = []byte(turbostatOutput)
	specs, err := NewReader(testSources(t, tools)).Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.Specs{
		Model:       "AMD Ryzen 5 5600X 6-Core Processor",
		Cores:       6,
		Threads:     2,
		Motherboard: "ASUSTeK COMPUTER INC. ROG STRIX B550-F GAMING",
		CPUTemp:     "61.4 C",
		CPUWattage:  "42.2 W",
		RAM:         "32 GB",
		RAMSpeed:    "3200 MHz",
	}, specs)
}

func TestReadFallsBackToFiles(t *testing.T) {
	src := testSources(t, fakeTools{})
	write(t, filepath.Join(src.DMIDir, "board_vendor"), "Gigabyte Technology Co., Ltd.\n")
	write(t, filepath.Join(src.DMIDir, "board_name"), "X570 AORUS ELITE\n")
	write(t, strings.Replace(src.DIMMSpeed, "mc*/dimm*", "mc0/dimm0", 1), "3600\n")
	write(t, strings.Replace(src.DIMMSpeed, "mc*/dimm*", "mc0/dimm1", 1), "3600\n")

	specs, err := NewReader(src).Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Gigabyte Technology Co., Ltd. X570 AORUS ELITE", specs.Motherboard)
	require.Equal(t, "48.0 C", specs.CPUTemp)
	require.Empty(t, specs.CPUWattage)
	require.Equal(t, "15.5 GB", specs.RAM)
	require.Equal(t, "3600 MHz", specs.RAMSpeed)
}

func TestReadMissingModel(t *testing.T) {
	src := testSources(t, fakeTools{})
	write(t, src.CPUInfo, "processor\t: 0\n")
	_, err := NewReader(src).Read(context.Background())
	require.Error(t, err)
}

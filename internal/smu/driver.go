// Package smu talks to the ryzen_smu kernel module and installs it when
// missing.
package smu

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
)

const DefaultRoot = "/sys/kernel/ryzen_smu_drv"

// SMU mailbox commands.
const (
	CmdSetPPTLimit       byte = 0x53 // rsmu mailbox
	CmdSetAllCurveOffset      = "0x35"
)

const argsSize = 24

var ErrNotInstalled = errors.New("ryzen_smu is not installed")

type CommandOutput func(ctx context.Context, name string, args ...string) ([]byte, error)

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type Driver struct {
	root   string
	output CommandOutput
}

func NewDriver(root string) *Driver {
	if root == "" {
		root = DefaultRoot
	}
	return &Driver{root: root, output: execOutput}
}

// WithCommandOutput replaces how dkms is queried.
func (d *Driver) WithCommandOutput(fn CommandOutput) *Driver {
	d.output = fn
	return d
}

func (d *Driver) Root() string        { return d.root }
func (d *Driver) ArgsPath() string    { return filepath.Join(d.root, "smu_args") }
func (d *Driver) RSMUCmdPath() string { return filepath.Join(d.root, "rsmu_cmd") }
func (d *Driver) MP1CmdPath() string  { return filepath.Join(d.root, "mp1_smu_cmd") }

// Loaded reports whether the driver's sysfs directory exists.
func (d *Driver) Loaded() bool {
	info, err := os.Stat(d.root)
	return err == nil && info.IsDir()
}

// Installed is true when the module is loaded or dkms lists it as installed.
func (d *Driver) Installed(ctx context.Context) bool {
	if d.Loaded() {
		return true
	}
	out, err := d.output(ctx, "dkms", "status", "ryzen_smu")
	if err != nil {
		return false
	}
	return bytes.Contains(out, []byte("installed"))
}

// EncodePPTLimit packs watts as milliwatts into the 24-byte little-endian
// argument block the rsmu mailbox expects.
func EncodePPTLimit(watts float64) []byte {
	args := make([]byte, argsSize)
	binary.LittleEndian.PutUint64(args, uint64(math.Max(0, watts*1000)))
	return args
}

// CurveOffsetArg builds the smu_args value for one physical core. The
// offset is negated and sent as a 16-bit two's complement.
func CurveOffsetArg(core, offset int) uint32 {
	value := uint32(-offset) & 0xFFFF
	coreMask := uint32((core&8)<<5|core&7) << 20
	return coreMask | value
}

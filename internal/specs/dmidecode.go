package specs

import (
	"context"
	"errors"
	"strings"
)

var errDMIDecodeUnavailable = errors.New("dmidecode unavailable")

var dmidecodePaths = []string{"dmidecode", "/usr/bin/dmidecode", "/usr/sbin/dmidecode", "/sbin/dmidecode"}

// dmidecode tries each known location directly, then again through
// non-interactive sudo. Output is accepted when it carries one of markers,
// even if the tool exited non-zero.
func (r *Reader) dmidecode(ctx context.Context, kind string, markers ...string) ([]byte, error) {
	usable := func(out []byte) bool {
		text := string(out)
		for _, marker := range markers {
			if strings.Contains(text, marker) {
				return true
			}
		}
		return false
	}

	for _, sudo := range []bool{false, true} {
		for _, bin := range dmidecodePaths {
			name, args := bin, []string{"-t", kind}
			if sudo {
				name, args = "sudo", append([]string{"-n", bin}, args...)
			}
			out, err := r.src.Run(ctx, name, args...)
			if err == nil || usable(out) {
				return out, nil
			}
		}
	}
	return nil, errDMIDecodeUnavailable
}

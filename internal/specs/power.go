package specs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

var turbostatArgs = []string{"--Summary", "--quiet", "--show", "PkgWatt", "-n", "1"}

func (r *Reader) readCPUWattage(ctx context.Context) string {
	out, err := r.src.Run(ctx, "sudo", append([]string{"-n", "turbostat"}, turbostatArgs...)...)
	if err != nil {
		return ""
	}
	if watts := parseTurbostatPkgWatt(out); watts > 0 {
		return fmt.Sprintf("%.1f W", watts)
	}
	return ""
}

// parseTurbostatPkgWatt reads the first value under the PkgWatt column. A
// bare single number is accepted when turbostat omits the header.
func parseTurbostatPkgWatt(out []byte) float64 {
	column := -1
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.Contains(fields[0], "turbostat") || fields[0] == "Kernel" {
			continue
		}

		if column < 0 {
			if idx := lo.IndexOf(fields, "PkgWatt"); idx >= 0 {
				column = idx
				continue
			}
			if len(fields) != 1 {
				continue
			}
			if match := numberPattern.FindString(fields[0]); match != "" {
				if value, err := strconv.ParseFloat(match, 64); err == nil {
					return value
				}
			}
			continue
		}

		if column < len(fields) {
			if value, err := strconv.ParseFloat(fields[column], 64); err == nil {
				return value
			}
		}
	}
	return 0
}

package specs

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
)

func (r *Reader) readMotherboard(ctx context.Context) string {
	vendor := readValue(filepath.Join(r.src.DMIDir, "board_vendor"))
	name := readValue(filepath.Join(r.src.DMIDir, "board_name"))
	if meaningful(vendor) || meaningful(name) {
		return joinWords(vendor, name)
	}

	out, err := r.dmidecode(ctx, "baseboard", "Base Board Information", "Baseboard")
	if err != nil {
		return ""
	}
	return joinWords(parseBaseboard(out))
}

// parseBaseboard extracts manufacturer and product from `dmidecode -t baseboard`.
func parseBaseboard(out []byte) (string, string) {
	var manufacturer, product string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok {
			continue
		}
		switch key {
		case "Manufacturer":
			manufacturer = strings.TrimSpace(value)
		case "Product Name":
			product = strings.TrimSpace(value)
		}
	}
	return manufacturer, product
}

// meaningful rejects the placeholder strings firmware vendors leave in DMI.
func meaningful(value string) bool {
	lower := strings.ToLower(value)
	switch {
	case lower == "", lower == "unknown", lower == "default string":
		return false
	case strings.Contains(lower, "to be filled"):
		return false
	}
	return true
}

func joinWords(parts ...string) string {
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func readValue(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

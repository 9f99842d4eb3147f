// Package quantity parses human readable memory and disk sizes.
package quantity

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/terabiome/archdev/internal/errdefs"
)

var pattern = regexp.MustCompile(`^([0-9]+)\s*([A-Za-z]+)$`)

// Multiples are binary: "8G" is 8 GiB.
var unitsMiB = map[string]int64{
	"m": 1, "mb": 1, "mi": 1, "mib": 1,
	"g": 1024, "gb": 1024, "gi": 1024, "gib": 1024,
	"t": 1024 * 1024, "tb": 1024 * 1024, "ti": 1024 * 1024, "tib": 1024 * 1024,
}

// maxMiB keeps results far away from overflow, 1 PiB is well beyond any VM.
const maxMiB = 1024 * 1024 * 1024

// ParseMiB converts a quantity such as "8G" or "512MiB" into mebibytes.
func ParseMiB(value string) (int64, error) {
	m := pattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, errdefs.InvalidQuantity(value)
	}

	unit, ok := unitsMiB[strings.ToLower(m[2])]
	if !ok {
		return 0, errdefs.InvalidQuantity(value)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 || n > maxMiB/unit {
		return 0, errdefs.InvalidQuantity(value)
	}

	return n * unit, nil
}

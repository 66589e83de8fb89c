package util

import (
	"math"
	"strings"
)

// SplitCSV splits a comma separated list and drops blank entries.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Round8 rounds v to 8 decimal places, the precision values are stored with.
func Round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

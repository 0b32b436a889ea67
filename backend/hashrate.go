package backend

import (
	"regexp"
	"strconv"
	"strings"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// ParseXMRigSpeed parses an xmrig "speed 10s/60s/15m a b c H/s" line and
// returns the longest available average in H/s (15m, then 60s, then 10s).
func ParseXMRigSpeed(line string) (float64, bool) {
	line = ansiRegex.ReplaceAllString(line, "")
	if !strings.Contains(strings.ToLower(line), "speed") {
		return 0, false
	}

	fields := strings.Fields(line)
	for i := 0; i+4 < len(fields); i++ {
		if !strings.EqualFold(fields[i], "speed") || !strings.EqualFold(fields[i+1], "10s/60s/15m") {
			continue
		}
		unit := fields[i+5:]
		scale := "h/s"
		if len(unit) > 0 {
			scale = unit[0]
		}
		for _, idx := range []int{i + 4, i + 3, i + 2} {
			value, err := strconv.ParseFloat(fields[idx], 64)
			if err != nil {
				continue
			}
			return ScaleHashrate(value, scale), true
		}
		return 0, false
	}
	return 0, false
}

// ScaleHashrate converts the value into H/s.
func ScaleHashrate(value float64, unit string) float64 {
	switch strings.ToLower(unit) {
	case "kh/s":
		return value * 1e3
	case "mh/s":
		return value * 1e6
	case "gh/s":
		return value * 1e9
	case "th/s":
		return value * 1e12
	default:
		return value
	}
}

package deploy

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ttl units in the node's humantime notation, largest first
var ttlUnits = []struct {
	suffix string
	d      time.Duration
}{
	{"day", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
	{"ms", time.Millisecond},
}

// FormatTTL renders d as the node expects, e.g. "30m" or "1h 30m".
func FormatTTL(d time.Duration) string {
	d = d.Truncate(time.Millisecond)
	if d <= 0 {
		return "0s"
	}
	var parts []string
	for _, u := range ttlUnits {
		if n := d / u.d; n > 0 {
			parts = append(parts, strconv.FormatInt(int64(n), 10)+u.suffix)
			d -= n * u.d
		}
	}
	return strings.Join(parts, " ")
}

// ParseTTL accepts humantime durations ("30m", "1h 30m", "2days", "1800000ms").
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid ttl: empty")
	}
	var total time.Duration
	for _, field := range strings.Fields(s) {
		i := 0
		for i < len(field) && field[i] >= '0' && field[i] <= '9' {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("invalid ttl %q", s)
		}
		n, err := strconv.ParseInt(field[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ttl %q: %w", s, err)
		}
		unit, err := ttlUnit(field[i:])
		if err != nil {
			return 0, fmt.Errorf("invalid ttl %q: %w", s, err)
		}
		total += time.Duration(n) * unit
	}
	return total, nil
}

func ttlUnit(suffix string) (time.Duration, error) {
	switch suffix {
	case "ms", "msec":
		return time.Millisecond, nil
	case "s", "sec", "secs", "second", "seconds":
		return time.Second, nil
	case "m", "min", "mins", "minute", "minutes":
		return time.Minute, nil
	case "h", "hr", "hrs", "hour", "hours":
		return time.Hour, nil
	case "d", "day", "days":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown unit %q", suffix)
	}
}

package util

import (
	"strconv"
	"strings"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, a plain date/hour layout and unix seconds.
// Returns (t, true) if any worked. The result is always UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// TruncateHour aligns t to the start of its UTC hour.
func TruncateHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// Hours converts a whole number of hours to a duration.
func Hours(n int) time.Duration { return time.Duration(n) * time.Hour }

// HoursBetween returns the number of whole hours from a to b (negative if b is before a).
func HoursBetween(a, b time.Time) int {
	return int(b.Sub(a) / time.Hour)
}

// HourRange returns every hour in [start, end], both ends aligned first.
func HourRange(start, end time.Time) []time.Time {
	start, end = TruncateHour(start), TruncateHour(end)
	if end.Before(start) {
		return nil
	}
	out := make([]time.Time, 0, HoursBetween(start, end)+1)
	for t := start; !t.After(end); t = t.Add(time.Hour) {
		out = append(out, t)
	}
	return out
}

// MissingHours returns the hours of [start, end] absent from stored.
// stored does not need to be sorted or deduplicated.
func MissingHours(stored []time.Time, start, end time.Time) []time.Time {
	have := make(map[int64]struct{}, len(stored))
	for _, t := range stored {
		have[TruncateHour(t).Unix()] = struct{}{}
	}
	var out []time.Time
	for _, h := range HourRange(start, end) {
		if _, ok := have[h.Unix()]; !ok {
			out = append(out, h)
		}
	}
	return out
}

// IsContiguous reports whether the ascending timestamps are exactly one hour apart.
// Empty and single-element inputs are contiguous.
func IsContiguous(ts []time.Time) bool {
	for i := 1; i < len(ts); i++ {
		if ts[i].Sub(ts[i-1]) != time.Hour {
			return false
		}
	}
	return true
}

// GroupRanges folds ascending hours into [from, to] runs of consecutive hours.
func GroupRanges(hours []time.Time) [][2]time.Time {
	var out [][2]time.Time
	for i, h := range hours {
		if i > 0 && h.Sub(out[len(out)-1][1]) == time.Hour {
			out[len(out)-1][1] = h
			continue
		}
		out = append(out, [2]time.Time{h, h})
	}
	return out
}

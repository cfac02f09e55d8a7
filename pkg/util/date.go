package util

import (
    "strconv"
    "time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(time.RFC3339, s); err == nil {
        return t, true
    }
    if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
        return t, true
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return time.Unix(ts, 0), true
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

// TimeOfDay encodes a wall-clock time as HHMMSS (e.g. 09:30:00 -> 93000).
// The encoding matches the host platform's session time properties.
func TimeOfDay(t time.Time) int {
    return t.Hour()*10000 + t.Minute()*100 + t.Second()
}

// DateKey formats the calendar date as YYYY-MM-DD for day-rollover compares.
func DateKey(t time.Time) string {
    return t.Format("2006-01-02")
}

// SameDate reports whether two times fall on the same calendar date.
func SameDate(a, b time.Time) bool {
    ay, am, ad := a.Date()
    by, bm, bd := b.Date()
    return ay == by && am == bm && ad == bd
}

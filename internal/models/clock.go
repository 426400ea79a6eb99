package models

import "time"

// Clock returns the current time. A nil Clock reads the wall clock, so
// structs can carry one as an optional field for tests.
type Clock func() time.Time

// Now returns the clock's current time.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// unixSeconds renders a timestamp the way snapshots expose it: fractional
// seconds since the epoch.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// optionalString maps the empty string to nil for snapshot payloads.
func optionalString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// optionalInt maps a nil pointer to nil for snapshot payloads.
func optionalInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// copyMetadata returns a shallow copy so snapshots never alias live maps.
func copyMetadata(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// intFromMetadata reads an integer that may have arrived as a JSON number.
func intFromMetadata(m map[string]interface{}, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

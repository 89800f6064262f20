package flowlog

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the layout of the log service's createdAt field once
// the trailing "Z" is removed. A fractional second is accepted when present.
const TimestampLayout = "2006-01-02T15:04:05"

// StorageLayout renders timestamps with millisecond precision for the
// readings table.
const StorageLayout = "2006-01-02 15:04:05.000"

// LogRecord is one entry returned by the sensor log service.
type LogRecord struct {
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
}

// ParseTimestamp parses a createdAt value. Timestamps are UTC and truncated
// to millisecond precision.
func ParseTimestamp(s string) (time.Time, error) {
	raw := strings.TrimSuffix(strings.TrimSpace(s), "Z")
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	ts, err := time.ParseInLocation(TimestampLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return ts.Truncate(time.Millisecond), nil
}

// FormatTimestamp renders t in the service's createdAt format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000") + "Z"
}

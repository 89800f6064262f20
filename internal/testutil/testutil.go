// Package testutil provides shared test fixtures: synthetic sensor
// telemetry and log service pages.
package testutil

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/banshee-data/flowcal/internal/flowlog"
)

// TelemetryLine renders a sensor message in the meter's log format whose
// filtered flow is exactly a*f + b. Raw readings are offset slightly from
// the filtered ones.
func TelemetryLine(f, a, b float64) string {
	q := a*f + b
	return fmt.Sprintf("freq=%.3f flow=%.3f vol=%.3f | freq_f=%.3f flow_f=%.3f vol_f=%.3f",
		f+0.1, q+0.05, 10*q, f, q, 10*q)
}

// LinearRecords returns n records one second apart starting at start, with
// frequencies 10, 11, ... and flow following a*f + b.
func LinearRecords(n int, start time.Time, a, b float64) []flowlog.LogRecord {
	records := make([]flowlog.LogRecord, n)
	for i := range records {
		records[i] = flowlog.LogRecord{
			Message:   TelemetryLine(float64(10+i), a, b),
			CreatedAt: flowlog.FormatTimestamp(start.Add(time.Duration(i) * time.Second)),
		}
	}
	return records
}

// PageJSON encodes records as a log service response. With newestFirst the
// page is reversed, as the service does for order=desc.
func PageJSON(t testing.TB, records []flowlog.LogRecord, newestFirst bool) string {
	t.Helper()
	page := make([]flowlog.LogRecord, len(records))
	copy(page, records)
	if newestFirst {
		for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
			page[i], page[j] = page[j], page[i]
		}
	}
	data, err := json.Marshal(page)
	if err != nil {
		t.Fatalf("failed to encode page: %v", err)
	}
	return string(data)
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

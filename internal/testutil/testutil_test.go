package testutil

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/banshee-data/flowcal/internal/flowlog"
)

func TestTelemetryLineParses(t *testing.T) {
	s, ok := flowlog.ParseMessage(TelemetryLine(20, 2, 1))
	if !ok {
		t.Fatal("TelemetryLine output did not parse")
	}
	if s.FreqFilt != 20 || s.FlowFilt != 41 {
		t.Errorf("filtered = (%v, %v), want (20, 41)", s.FreqFilt, s.FlowFilt)
	}
	if s.FreqRaw != 20.1 {
		t.Errorf("FreqRaw = %v, want 20.1", s.FreqRaw)
	}
}

func TestLinearRecords(t *testing.T) {
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	records := LinearRecords(3, start, 1, 0)
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	ts, err := flowlog.ParseTimestamp(records[2].CreatedAt)
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if !ts.Equal(start.Add(2 * time.Second)) {
		t.Errorf("third timestamp = %v", ts)
	}
}

func TestPageJSON(t *testing.T) {
	records := LinearRecords(3, time.Unix(0, 0), 1, 0)

	var page []flowlog.LogRecord
	if err := json.Unmarshal([]byte(PageJSON(t, records, true)), &page); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if page[0] != records[2] || page[2] != records[0] {
		t.Error("newest-first page is not reversed")
	}
	if records[0].Message != TelemetryLine(10, 1, 0) {
		t.Error("PageJSON must not reorder its input")
	}

	if err := json.Unmarshal([]byte(PageJSON(t, records, false)), &page); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if page[0] != records[0] {
		t.Error("oldest-first page changed order")
	}
}

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}

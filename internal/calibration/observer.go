package calibration

import (
	"github.com/banshee-data/flowcal/internal/flowlog"
	"github.com/banshee-data/flowcal/internal/monitoring"
)

// Observer receives progress events from a pipeline run. Implementations
// must not retain or mutate the samples they are handed.
type Observer interface {
	// RecordParsed is called for every accepted record; n is 1-based.
	RecordParsed(n int, rec flowlog.LogRecord, s flowlog.Sample)
	// RecordRejected is called for records skipped before estimation.
	RecordRejected(index int, rec flowlog.LogRecord, reason RejectReason)
	// Iteration is called after every estimator step; applied is false for
	// a degenerate update that was skipped.
	Iteration(n, total int, a, b float64, applied bool)
}

// RejectReason says why a record did not produce a sample.
type RejectReason string

const (
	RejectEmptyMessage RejectReason = "empty message"
	RejectInsufficient RejectReason = "insufficient data"
)

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) RecordParsed(int, flowlog.LogRecord, flowlog.Sample) {}

func (NopObserver) RecordRejected(int, flowlog.LogRecord, RejectReason) {}

func (NopObserver) Iteration(int, int, float64, float64, bool) {}

// LogObserver reports progress through monitoring.Logf: the first parsed
// sample in full, every tenth iteration, the last iteration, and every
// skipped update.
type LogObserver struct {
	// Verbose also logs each rejected record.
	Verbose bool
}

var logf = monitoring.Tagged("calibration")

func (o LogObserver) RecordParsed(n int, rec flowlog.LogRecord, s flowlog.Sample) {
	if n != 1 {
		return
	}
	logf("first sample at %s: freq=%g flow=%g vol=%g freq_filt=%g flow_filt=%g vol_filt=%g",
		rec.CreatedAt, s.FreqRaw, s.FlowRaw, s.VolRaw, s.FreqFilt, s.FlowFilt, s.VolFilt)
}

func (o LogObserver) RecordRejected(index int, rec flowlog.LogRecord, reason RejectReason) {
	if o.Verbose {
		logf("record %d skipped (%s): %q", index, reason, rec.Message)
	}
}

func (o LogObserver) Iteration(n, total int, a, b float64, applied bool) {
	if !applied {
		logf("iteration %d: degenerate update skipped", n)
		return
	}
	if (n-1)%10 == 0 || n == total {
		logf("iteration %d: a=%.6f, b=%.6f", n, a, b)
	}
}

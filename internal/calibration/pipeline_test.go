package calibration

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/flowcal/internal/flowlog"
	"github.com/banshee-data/flowcal/internal/monitoring"
	"github.com/banshee-data/flowcal/internal/rls"
)

func init() {
	monitoring.SetLogger(nil)
}

func record(i int, freq, flow float64) flowlog.LogRecord {
	return flowlog.LogRecord{
		Message: fmt.Sprintf("freq=%g flow=%g vol=%d f_filt=%g q_filt=%g v_filt=%d",
			freq+0.1, flow+0.1, i*10, freq, flow, i*10),
		CreatedAt: fmt.Sprintf("2025-03-14T10:00:%02d.000Z", i%60),
	}
}

type recordingObserver struct {
	parsed     int
	rejected   []RejectReason
	iterations int
	skipped    int
}

func (o *recordingObserver) RecordParsed(int, flowlog.LogRecord, flowlog.Sample) { o.parsed++ }

func (o *recordingObserver) RecordRejected(_ int, _ flowlog.LogRecord, reason RejectReason) {
	o.rejected = append(o.rejected, reason)
}

func (o *recordingObserver) Iteration(_, _ int, _, _ float64, applied bool) {
	o.iterations++
	if !applied {
		o.skipped++
	}
}

func TestRunConverges(t *testing.T) {
	var records []flowlog.LogRecord
	for i := 1; i <= 50; i++ {
		x := float64(i)
		records = append(records, record(i, x, 2*x))
	}

	res, err := Pipeline{Lambda: 1}.Run(context.Background(), records)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.A, 1e-3)
	assert.InDelta(t, 0.0, res.B, 1e-3)
	assert.Len(t, res.Samples, 50)
	assert.Equal(t, 50, res.Records)
	assert.Zero(t, res.Rejected)
	assert.Equal(t, records[0].CreatedAt, res.Samples[0].CreatedAt)
	assert.Equal(t, 1.0, res.Samples[0].FreqFilt)
	assert.Equal(t, 1.1, res.Samples[0].FreqRaw)
	assert.InDelta(t, 2*42.0, res.Predict(42), 1e-2)
}

func TestRunMatchesEstimator(t *testing.T) {
	records := []flowlog.LogRecord{
		record(1, 40.2, 9.8),
		{Message: "sensor online", CreatedAt: "2025-03-14T10:00:02.000Z"},
		record(3, 41.0, 10.1),
		{Message: "", CreatedAt: "2025-03-14T10:00:04.000Z"},
		record(5, 43.5, 10.9),
		{Message: "1 2 3 4 5", CreatedAt: "2025-03-14T10:00:06.000Z"},
		record(7, 39.1, 9.2),
	}

	obs := &recordingObserver{}
	res, err := Pipeline{Lambda: 0.95, Observer: obs}.Run(context.Background(), records)
	require.NoError(t, err)

	est, err := rls.New(0.95)
	require.NoError(t, err)
	for _, p := range [][2]float64{{40.2, 9.8}, {41.0, 10.1}, {43.5, 10.9}, {39.1, 9.2}} {
		est.Update(p[0], p[1])
	}
	a, b := est.Coefficients()
	assert.Equal(t, a, res.A)
	assert.Equal(t, b, res.B)

	assert.Equal(t, 7, res.Records)
	assert.Equal(t, 3, res.Rejected)
	assert.Equal(t, 4, obs.parsed)
	assert.Equal(t, 4, obs.iterations)
	assert.Equal(t, []RejectReason{RejectInsufficient, RejectEmptyMessage, RejectInsufficient}, obs.rejected)
	assert.Equal(t, []Point{{40.2, 9.8}, {41.0, 10.1}, {43.5, 10.9}, {39.1, 9.2}}, res.Points())
}

func TestRunInsufficientRecordDoesNotChangeFit(t *testing.T) {
	base := []flowlog.LogRecord{record(1, 10, 21), record(2, 20, 39), record(3, 30, 62)}
	withNoise := []flowlog.LogRecord{base[0], {Message: "freq=1 flow=2 vol=3 f=4 q=5"}, base[1], base[2]}

	want, err := Pipeline{}.Run(context.Background(), base)
	require.NoError(t, err)
	got, err := Pipeline{}.Run(context.Background(), withNoise)
	require.NoError(t, err)

	assert.Equal(t, want.A, got.A)
	assert.Equal(t, want.B, got.B)
	assert.Equal(t, DefaultLambda, got.Lambda)
}

func TestRunEmpty(t *testing.T) {
	tests := []struct {
		name    string
		records []flowlog.LogRecord
	}{
		{"nil", nil},
		{"all rejected", []flowlog.LogRecord{{Message: ""}, {Message: "boot"}, {Message: "1 2 3"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Pipeline{}.Run(context.Background(), tt.records)
			assert.ErrorIs(t, err, ErrNoValidData)
			assert.Nil(t, res)
		})
	}
}

func TestRunDegenerateUpdates(t *testing.T) {
	records := []flowlog.LogRecord{
		record(1, 10, 20),
		{Message: "1 1 1 1e300 1 1"},
		record(3, 20, 40),
	}
	obs := &recordingObserver{}
	res, err := Pipeline{Observer: obs}.Run(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, obs.skipped)
	assert.Len(t, res.Samples, 3)
}

func TestRunInvalidLambda(t *testing.T) {
	_, err := Pipeline{Lambda: 1.5}.Run(context.Background(), []flowlog.LogRecord{record(1, 1, 2)})
	assert.ErrorIs(t, err, rls.ErrInvalidLambda)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Pipeline{}.Run(ctx, []flowlog.LogRecord{record(1, 1, 2)})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNoValidData)
	assert.ErrorIs(t, err, context.Canceled)
}

type cancelAfter struct {
	NopObserver
	n      int
	cancel context.CancelFunc
}

func (c *cancelAfter) Iteration(n, _ int, _, _ float64, _ bool) {
	if n == c.n {
		c.cancel()
	}
}

func TestRunCancelledMidFoldReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var records []flowlog.LogRecord
	for i := 1; i <= 10; i++ {
		records = append(records, record(i, float64(i), 3*float64(i)))
	}

	res, err := Pipeline{Observer: &cancelAfter{n: 4, cancel: cancel}}.Run(ctx, records)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Len(t, res.Samples, 4)

	want, err := Pipeline{}.Run(context.Background(), records[:4])
	require.NoError(t, err)
	assert.Equal(t, want.A, res.A)
	assert.Equal(t, want.B, res.B)
}

func TestResultEquation(t *testing.T) {
	r := &Result{A: 0.25, B: -1.5}
	assert.Equal(t, "Q(f) = 0.250000 * f + -1.500000", r.Equation())
}

// Package calibration drives telemetry records through parsing and the
// recursive least-squares estimator to produce a flow/frequency fit.
//
// A run is a strictly sequential fold: every estimator step depends on the
// state left by the previous one, so records are consumed in the order
// given and never in parallel.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/flowcal/internal/flowlog"
	"github.com/banshee-data/flowcal/internal/rls"
)

// DefaultLambda is the forgetting factor used when a Pipeline leaves it unset.
const DefaultLambda = 0.95

// ErrNoValidData is returned when a run accepts no samples.
var ErrNoValidData = errors.New("no valid data extracted")

// Pipeline fits a calibration from an ordered sequence of log records.
type Pipeline struct {
	Lambda   float64
	Observer Observer
}

// AcceptedSample is a parsed sample together with its record's timestamp.
type AcceptedSample struct {
	flowlog.Sample
	CreatedAt string `json:"created_at"`
}

// Point is one (filtered frequency, filtered flow) pair fed to the estimator.
type Point struct {
	Freq float64 `json:"freq"`
	Flow float64 `json:"flow"`
}

// Result is the outcome of a completed (or cancelled) run.
type Result struct {
	A       float64          `json:"a"`
	B       float64          `json:"b"`
	Lambda  float64          `json:"lambda"`
	Samples []AcceptedSample `json:"samples"`

	Records  int `json:"records"`
	Rejected int `json:"rejected"`
	Skipped  int `json:"skipped_updates"`
}

// Predict evaluates the fitted line at the given frequency.
func (r *Result) Predict(freq float64) float64 {
	return r.A*freq + r.B
}

// Points returns the estimator inputs in arrival order.
func (r *Result) Points() []Point {
	pts := make([]Point, len(r.Samples))
	for i, s := range r.Samples {
		pts[i] = Point{Freq: s.FreqFilt, Flow: s.FlowFilt}
	}
	return pts
}

// Equation renders the fit as Q(f) = a * f + b.
func (r *Result) Equation() string {
	return fmt.Sprintf("Q(f) = %.6f * f + %.6f", r.A, r.B)
}

// Run parses records in order and folds every accepted sample into a fresh
// estimator. Records with an empty message or fewer than six numeric
// tokens are skipped.
//
// ErrNoValidData is returned when nothing was accepted. If ctx is cancelled
// part way through, the estimate so far is returned along with ctx.Err().
func (p Pipeline) Run(ctx context.Context, records []flowlog.LogRecord) (*Result, error) {
	lambda := p.Lambda
	if lambda == 0 {
		lambda = DefaultLambda
	}
	est, err := rls.New(lambda)
	if err != nil {
		return nil, err
	}
	obs := p.Observer
	if obs == nil {
		obs = NopObserver{}
	}

	res := &Result{Lambda: lambda}
	accepted := make([]AcceptedSample, 0, len(records))
	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		res.Records++
		if strings.TrimSpace(rec.Message) == "" {
			res.Rejected++
			obs.RecordRejected(i, rec, RejectEmptyMessage)
			continue
		}
		s, ok := flowlog.ParseMessage(rec.Message)
		if !ok {
			res.Rejected++
			obs.RecordRejected(i, rec, RejectInsufficient)
			continue
		}
		accepted = append(accepted, AcceptedSample{Sample: s, CreatedAt: rec.CreatedAt})
		obs.RecordParsed(len(accepted), rec, s)
	}

	folded := 0
	for n, s := range accepted {
		if ctx.Err() != nil {
			break
		}
		a, b, applied := est.TryUpdate(s.FreqFilt, s.FlowFilt)
		obs.Iteration(n+1, len(accepted), a, b, applied)
		folded++
	}

	if est.Updates() == 0 {
		reportEmpty(res)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoValidData, err)
		}
		return nil, ErrNoValidData
	}

	res.A, res.B = est.Coefficients()
	res.Samples = accepted[:folded]
	res.Skipped = est.Skipped()
	logf("%d of %d records processed, %s", len(res.Samples), res.Records, res.Equation())
	return res, ctx.Err()
}

func reportEmpty(res *Result) {
	logf("%s from %d records (%d rejected)", ErrNoValidData, res.Records, res.Rejected)
	logf("possible causes: messages lack six numeric fields, messages do not follow the expected numeric layout, or the topic carries no flow data")
}

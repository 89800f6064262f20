// Package rls implements a two-parameter recursive least-squares estimator
// with exponential forgetting for affine models y ≈ a·x + b.
//
// Updates are path dependent: the same samples in a different order give a
// different estimate whenever lambda < 1. An Estimator is owned by a single
// goroutine and is never reset; start a new one for a fresh fit.
package rls

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Numerical constants of the estimator.
const (
	// InitialCovariance is the diagonal of P before the first update.
	InitialCovariance = 1000.0
	// MinDenominator is the smallest gain denominator accepted by an update.
	MinDenominator = 1e-12
)

// ErrInvalidLambda is returned for forgetting factors outside (0, 1].
var ErrInvalidLambda = errors.New("rls: forgetting factor must be in (0, 1]")

// Estimator holds the parameter vector theta = [a, b], the covariance-like
// matrix P and the forgetting factor lambda.
type Estimator struct {
	lambda float64
	theta  *mat.VecDense
	p      *mat.Dense

	updates  int
	skipped  int
	residual float64
}

// New returns an estimator with theta = [0, 0] and P = 1000·I.
func New(lambda float64) (*Estimator, error) {
	if math.IsNaN(lambda) || lambda <= 0 || lambda > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidLambda, lambda)
	}
	return &Estimator{
		lambda: lambda,
		theta:  mat.NewVecDense(2, nil),
		p:      mat.NewDense(2, 2, []float64{InitialCovariance, 0, 0, InitialCovariance}),
	}, nil
}

// Update folds one (x, y) observation into the estimate and returns the
// current coefficients. A degenerate update leaves the state untouched.
func (e *Estimator) Update(x, y float64) (a, b float64) {
	a, b, _ = e.TryUpdate(x, y)
	return a, b
}

// TryUpdate is Update that also reports whether the observation was
// applied. It returns false when the gain denominator is near zero or the
// update would leave theta or P non-finite.
func (e *Estimator) TryUpdate(x, y float64) (a, b float64, applied bool) {
	phi := mat.NewVecDense(2, []float64{x, 1})

	residual := y - mat.Dot(phi, e.theta)

	var pPhi mat.VecDense
	pPhi.MulVec(e.p, phi)
	denom := e.lambda + mat.Dot(phi, &pPhi)
	if !isFinite(denom) || !isFinite(residual) || math.Abs(denom) < MinDenominator {
		e.skipped++
		a, b = e.Coefficients()
		return a, b, false
	}

	// K = P·phi / denom
	var gain mat.VecDense
	gain.ScaleVec(1/denom, &pPhi)

	var theta mat.VecDense
	theta.AddScaledVec(e.theta, residual, &gain)

	// P = (P - K·phiᵀ·P) / lambda
	var phiP mat.VecDense
	phiP.MulVec(e.p.T(), phi)
	var correction mat.Dense
	correction.Outer(1, &gain, &phiP)
	var p mat.Dense
	p.Sub(e.p, &correction)
	p.Scale(1/e.lambda, &p)

	if !finiteVec(&theta) || !finiteDense(&p) {
		e.skipped++
		a, b = e.Coefficients()
		return a, b, false
	}

	e.theta = &theta
	e.p = &p
	e.residual = residual
	e.updates++
	a, b = e.Coefficients()
	return a, b, true
}

// Coefficients returns (a, b) = (theta[0], theta[1]).
func (e *Estimator) Coefficients() (a, b float64) {
	return e.theta.AtVec(0), e.theta.AtVec(1)
}

// Theta returns a copy of the parameter vector.
func (e *Estimator) Theta() [2]float64 {
	return [2]float64{e.theta.AtVec(0), e.theta.AtVec(1)}
}

// Covariance returns a copy of P in row-major order.
func (e *Estimator) Covariance() [2][2]float64 {
	return [2][2]float64{
		{e.p.At(0, 0), e.p.At(0, 1)},
		{e.p.At(1, 0), e.p.At(1, 1)},
	}
}

// Lambda returns the forgetting factor.
func (e *Estimator) Lambda() float64 { return e.lambda }

// Updates returns the number of applied observations.
func (e *Estimator) Updates() int { return e.updates }

// Skipped returns the number of degenerate observations that were dropped.
func (e *Estimator) Skipped() int { return e.skipped }

// Residual returns the prediction error of the last applied update.
func (e *Estimator) Residual() float64 { return e.residual }

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if !isFinite(v.AtVec(i)) {
			return false
		}
	}
	return true
}

func finiteDense(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if !isFinite(m.At(i, j)) {
				return false
			}
		}
	}
	return true
}

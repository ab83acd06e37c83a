package opt

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// Local runs BFGS on a smooth unconstrained function with central-difference
// gradients.
type Local struct {
	MaxIterations int
	GradTol       float64
}

// NewLocal creates a BFGS minimizer.
func NewLocal(maxIters int, gradTol float64) *Local {
	return &Local{MaxIterations: maxIters, GradTol: gradTol}
}

// Minimize starts at x0 and returns the best point found with its value.
// Line search failures end the run early; the last accepted point is still
// returned.
func (l *Local) Minimize(f func([]float64) float64, x0 []float64) ([]float64, float64, error) {
	if len(x0) == 0 {
		return nil, 0, fmt.Errorf("bfgs: empty start point")
	}
	safe := func(x []float64) float64 {
		v := f(x)
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}
	settings := &fd.Settings{Formula: fd.Central}
	problem := optimize.Problem{
		Func: safe,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, safe, x, settings)
		},
	}
	res, err := optimize.Minimize(problem, x0, &optimize.Settings{
		GradientThreshold: l.GradTol,
		MajorIterations:   l.MaxIterations,
	}, &optimize.BFGS{})
	if res == nil {
		return nil, 0, fmt.Errorf("bfgs: %w", err)
	}
	x := append([]float64(nil), res.X...)
	return x, res.F, nil
}

package swarm

import (
	"context"
	"math"

	"github.com/cwbudde/robustopt/internal/opt"
	"github.com/cwbudde/robustopt/internal/solver"
)

// Defaults for the augmented Lagrangian polish.
const (
	DefaultPolishRounds = 60
	DefaultPolishTol    = 1e-10

	polishIterations = 500
	polishGradTol    = 1e-12
	initialRho       = 100
	maxRho           = 1e10
	// tightTol separates converged candidates from merely penalized ones.
	tightTol = 1e-6
)

// system is p written as c(x) = 0 and g(x) <= 0 sides, var bounds included.
type system struct {
	p     *solver.Problem
	sense float64
	eqs   []func([]float64) float64
	ineqs []func([]float64) float64
}

func newSystem(p *solver.Problem) *system {
	s := &system{p: p, sense: float64(p.Sense)}
	for i := range p.Rows {
		r := &p.Rows[i]
		lo, hi := r.Lower, r.Upper
		if !math.IsInf(lo, 0) && lo == hi {
			s.eqs = append(s.eqs, func(x []float64) float64 { return r.Eval(x) - lo })
			continue
		}
		if !math.IsInf(hi, 1) {
			s.ineqs = append(s.ineqs, func(x []float64) float64 { return r.Eval(x) - hi })
		}
		if !math.IsInf(lo, -1) {
			s.ineqs = append(s.ineqs, func(x []float64) float64 { return lo - r.Eval(x) })
		}
	}
	for j := range p.Vars {
		if lo := p.Lower[j]; !math.IsInf(lo, -1) {
			s.ineqs = append(s.ineqs, func(x []float64) float64 { return lo - x[j] })
		}
		if hi := p.Upper[j]; !math.IsInf(hi, 1) {
			s.ineqs = append(s.ineqs, func(x []float64) float64 { return x[j] - hi })
		}
	}
	return s
}

// violation is the largest equality residual or inequality excess at x.
func (s *system) violation(x []float64) float64 {
	s.p.Set(x)
	worst := 0.0
	for _, c := range s.eqs {
		worst = math.Max(worst, math.Abs(c(x)))
	}
	for _, g := range s.ineqs {
		worst = math.Max(worst, g(x))
	}
	return worst
}

// objective is sense·f(x), the quantity being minimized.
func (s *system) objective(x []float64) float64 {
	s.p.Set(x)
	return s.sense * s.p.Objective.Eval(x)
}

// polish runs the Powell-Hestenes-Rockafellar augmented Lagrangian method
// from x0 and returns the final point with its violation.
func (s *system) polish(ctx context.Context, x0 []float64, rounds int, tol float64) ([]float64, float64) {
	x := append([]float64(nil), x0...)
	lam := make([]float64, len(s.eqs))
	mu := make([]float64, len(s.ineqs))
	rho := float64(initialRho)
	local := opt.NewLocal(polishIterations, polishGradTol)
	prev := s.violation(x)

	for round := 0; round < rounds && ctx.Err() == nil; round++ {
		merit := func(z []float64) float64 {
			v := s.objective(z)
			for i, c := range s.eqs {
				ci := c(z)
				v += lam[i]*ci + 0.5*rho*ci*ci
			}
			for j, g := range s.ineqs {
				t := math.Max(0, mu[j]+rho*g(z))
				v += (t*t - mu[j]*mu[j]) / (2 * rho)
			}
			return v
		}
		z, _, err := local.Minimize(merit, x)
		if err != nil {
			break
		}
		step := 0.0
		for j := range z {
			step = math.Max(step, math.Abs(z[j]-x[j])/(1+math.Abs(x[j])))
		}
		x = z

		s.p.Set(x)
		for i, c := range s.eqs {
			lam[i] += rho * c(x)
		}
		for j, g := range s.ineqs {
			mu[j] = math.Max(0, mu[j]+rho*g(x))
		}
		viol := s.violation(x)
		if viol <= tol && step <= 1e-8 {
			break
		}
		if viol > 0.25*prev {
			rho = math.Min(rho*10, maxRho)
		}
		prev = viol
	}
	return x, s.violation(x)
}

// better reports whether candidate a beats b: a converged point wins over an
// unconverged one, converged points compare by objective, the rest by
// violation.
func (s *system) better(a, b []float64) bool {
	va, vb := s.violation(a), s.violation(b)
	ta, tb := va <= tightTol, vb <= tightTol
	switch {
	case ta && tb:
		return s.objective(a) < s.objective(b)
	case ta != tb:
		return ta
	}
	return va < vb
}

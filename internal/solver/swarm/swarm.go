// Package swarm solves small nonconvex models with the mayfly metaheuristic
// and a quadratic penalty on constraint violation. Continuous models are
// then polished by an augmented Lagrangian method, started both from the
// swarm's best point and from the model's initial values.
package swarm

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/opt"
	"github.com/cwbudde/robustopt/internal/solver"
)

// Name is the registry name of the solver.
const Name = "mayfly"

// Defaults for the solver parameters.
const (
	DefaultIterations = 500
	DefaultPopulation = 40
	DefaultPenalty    = 1e4
	DefaultBox        = 1e3
	DefaultFeasTol    = 1e-3
	DefaultRestarts   = 3
)

// Solver implements solver.Solver on top of opt.Optimizer.
type Solver struct{}

// New returns a swarm solver.
func New() solver.Solver { return &Solver{} }

// Name implements solver.Solver.
func (s *Solver) Name() string { return Name }

// Solve implements solver.Solver. Each restart uses a different seed and the
// least penalized point wins.
func (s *Solver) Solve(ctx context.Context, m *model.Model, opts solver.Options) (*solver.Result, error) {
	start := time.Now()
	ctx, cancel := opts.Context(ctx)
	defer cancel()

	p, err := solver.Compile(m)
	if err != nil {
		return nil, err
	}
	log := slog.Debug
	if opts.Tee {
		log = slog.Info
	}

	n := len(p.Vars)
	initial := p.Values()
	box := opts.Float("box", DefaultBox)
	lower := make([]float64, n)
	upper := make([]float64, n)
	for j := 0; j < n; j++ {
		lower[j], upper[j] = p.Lower[j], p.Upper[j]
		if math.IsInf(lower[j], -1) {
			lower[j] = math.Min(-box, upper[j]-box)
		}
		if math.IsInf(upper[j], 1) {
			upper[j] = math.Max(box, lower[j]+box)
		}
	}

	rho := opts.Float("penalty", DefaultPenalty)
	sense := float64(p.Sense)
	x := make([]float64, n)
	eval := func(z []float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		copy(x, z)
		for j := range x {
			if p.Int[j] {
				x[j] = math.Round(x[j])
			}
		}
		p.Set(x)
		cost := sense * p.Objective.Eval(x)
		for i := range p.Rows {
			v := p.Rows[i].Violation(x)
			cost += rho * v * v
		}
		if math.IsNaN(cost) {
			return math.Inf(1)
		}
		return cost
	}

	res := &solver.Result{Solver: Name, Stats: m.Stats()}
	restarts := opts.Int("restarts", DefaultRestarts)
	seed := int64(opts.Int("seed", 1))
	var best []float64
	bestCost := math.Inf(1)
	for r := 0; r < restarts; r++ {
		if ctx.Err() != nil {
			break
		}
		o := opt.NewMayfly(opts.Int("iterations", DefaultIterations), opts.Int("population", DefaultPopulation), seed+int64(r))
		z, cost, err := o.Run(eval, lower, upper, n)
		if err != nil {
			return nil, err
		}
		res.Iterations++
		log("Mayfly restart finished", "restart", r, "cost", cost)
		if cost < bestCost {
			bestCost = cost
			best = z
		}
	}
	res.WallTime = time.Since(start)
	if best == nil {
		res.Status = solver.StatusTimeLimit
		return res, nil
	}

	if rounds := opts.Int("polish_rounds", DefaultPolishRounds); rounds > 0 && !hasInt(p) {
		sys := newSystem(p)
		tol := opts.Float("polish_tol", DefaultPolishTol)
		for _, x0 := range [][]float64{best, initial} {
			z, viol := sys.polish(ctx, x0, rounds, tol)
			log("Augmented Lagrangian polish finished", "violation", viol)
			if sys.better(z, best) {
				best = z
			}
		}
	}

	values := p.Load(best)
	res.Values = values
	xs := p.Values()
	worst := 0.0
	for i := range p.Rows {
		worst = math.Max(worst, p.Rows[i].Violation(xs))
	}
	obj, err := m.Objective()
	if err != nil {
		return nil, err
	}
	res.Objective = obj.Expr.Eval()
	switch {
	case worst <= opts.Float("feas_tol", DefaultFeasTol):
		res.Status = solver.StatusOptimal
	case ctx.Err() != nil:
		res.Status = solver.StatusTimeLimit
	default:
		res.Status = solver.StatusInfeasible
		res.Message = "best point violates constraints"
	}
	log("Mayfly search finished", "status", res.Status, "objective", res.Objective, "violation", worst, "elapsed", res.WallTime)
	return res, nil
}

func hasInt(p *solver.Problem) bool {
	for _, b := range p.Int {
		if b {
			return true
		}
	}
	return false
}

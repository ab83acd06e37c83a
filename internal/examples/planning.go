package examples

import (
	"math"
	"math/rand"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/solver/swarm"
	"github.com/cwbudde/robustopt/internal/uncset"
)

// Planning data: T periods with production bounds and unit costs.
const (
	PlanningMin = 0.1
	PlanningMax = 6.0
)

// PlanningCost is the unit production cost per period.
var PlanningCost = []float64{0.1, 0.05, 0.01}

// PlanningData draws n noisy samples of exp(-x/2) on [0, 6] from a fixed seed.
func PlanningData(n int, noise float64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(5))
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		v := rng.Float64() * 6
		x[i] = []float64{v}
		mean := math.Exp(-v / 2)
		y[i] = mean + rng.NormFloat64()*noise*4*mean
	}
	return x, y
}

// PlanningWarping is the fixed warping the demand model is trained under.
var PlanningWarping = uncset.TanhWarping{
	A: []float64{0.5},
	B: []float64{1},
	C: []float64{0},
}

// Planning maximizes production profit where the demand per period follows a
// warped Gaussian process of the production level. The credible region is
// taken at confidence alpha = 0.9. Its Wolfe counterpart has nonlinear
// equalities, so the instance asks for the swarm solver.
func Planning() (*Instance, error) {
	return PlanningAt(0.9)
}

// PlanningAt builds the planning instance at confidence alpha.
func PlanningAt(alpha float64) (*Instance, error) {
	xs, ys := PlanningData(50, 0.05)
	gp, err := uncset.FitWarpedRBF(xs, ys, PlanningWarping, 1, 1, 0.01)
	if err != nil {
		return nil, err
	}

	t := len(PlanningCost)
	mid := (PlanningMin + PlanningMax) / 2
	start := make([]float64, t)
	for i := range start {
		start[i] = mid
	}
	m := model.New("planning")
	x := m.AddVars("x", t, model.WithDomain(model.NonNegativeReals),
		model.WithBounds(PlanningMin, PlanningMax), model.WithValues(start...))

	inputs := make([][]model.Expr, t)
	nominal := make([]float64, t)
	for i := range inputs {
		inputs[i] = []model.Expr{x.At(i)}
		nominal[i] = math.Exp(-mid / 2)
	}
	set := uncset.NewWarpedGP("uncset", gp, inputs, alpha)
	d := m.AddUncParam("demand", nil, nominal)

	profit := model.Sub(model.DotE(x.Exprs(), d.Exprs()), model.Dot(PlanningCost, x.Exprs()))
	m.AddObjective("obj", profit, model.Maximize)

	return &Instance{
		Model:   m,
		Param:   d,
		Sets:    map[string]*uncset.Set{"uncset": set},
		Default: "uncset",
		Solver:  swarm.Name,
	}, nil
}

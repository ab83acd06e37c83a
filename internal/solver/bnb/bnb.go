// Package bnb is a depth-first branch-and-bound solver for mixed-integer
// models whose continuous relaxations are linear or convex. Nonlinear rows
// are handled by outer approximation with a shared cut pool.
package bnb

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/solver"
)

// Name is the registry name of the solver.
const Name = "bnb"

// Defaults for the solver parameters.
const (
	DefaultBox       = 1e4
	DefaultMaxNodes  = 100000
	DefaultOARounds  = 500
	DefaultFeasTol   = 1e-6
	DefaultIntTol    = 1e-6
	DefaultGap       = 1e-9

	acceptOAViolation = 1e-4
)

// Solver implements solver.Solver.
type Solver struct{}

// New returns a branch-and-bound solver.
func New() solver.Solver { return &Solver{} }

// Name implements solver.Solver.
func (s *Solver) Name() string { return Name }

type node struct {
	lo, hi []float64
	depth  int
}

// search holds the state of one solve.
type search struct {
	p      *solver.Problem
	nvars  int
	cost   []float64
	offset float64
	rows   []lpRow
	fns    []*convexFn
	cuts   []lpRow

	feasTol  float64
	intTol   float64
	oaRounds int
	log      func(msg string, args ...any)
}

// Solve implements solver.Solver.
func (s *Solver) Solve(ctx context.Context, m *model.Model, opts solver.Options) (*solver.Result, error) {
	start := time.Now()
	ctx, cancel := opts.Context(ctx)
	defer cancel()

	p, err := solver.Compile(m)
	if err != nil {
		return nil, err
	}
	st, err := newSearch(p, opts)
	if err != nil {
		return nil, err
	}
	res := &solver.Result{Solver: Name, Stats: m.Stats()}

	ncols := len(st.cost)
	root := node{lo: make([]float64, ncols), hi: make([]float64, ncols)}
	box := opts.Float("box", DefaultBox)
	for j := 0; j < ncols; j++ {
		lo, hi := math.Inf(-1), math.Inf(1)
		if j < st.nvars {
			lo, hi = p.Lower[j], p.Upper[j]
		}
		if len(st.fns) > 0 {
			if math.IsInf(lo, -1) {
				lo = -box
			}
			if math.IsInf(hi, 1) {
				hi = box
			}
		}
		if j < st.nvars && p.Int[j] {
			lo, hi = math.Ceil(lo-st.intTol), math.Floor(hi+st.intTol)
		}
		root.lo[j], root.hi[j] = lo, hi
	}

	maxNodes := opts.Int("max_nodes", DefaultMaxNodes)
	gap := opts.Float("mip_gap", DefaultGap)
	incumbent := math.Inf(1)
	var best []float64
	stack := []node{root}
	nodes := 0
	status := solver.StatusOptimal

loop:
	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			status = solver.StatusTimeLimit
			break loop
		default:
		}
		if nodes >= maxNodes {
			status = solver.StatusIterationLimit
			break loop
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		lps, x, obj, err := st.solveNode(ctx, nd)
		if err != nil {
			return nil, err
		}
		switch lps {
		case nodeInfeasible:
			continue
		case nodeUnbounded:
			if nodes == 1 {
				res.Status = solver.StatusUnbounded
				res.Iterations = nodes
				res.WallTime = time.Since(start)
				return res, nil
			}
			continue
		case nodeStalled:
			if nodes == 1 {
				status = solver.StatusIterationLimit
				break loop
			}
			continue
		}
		if obj >= incumbent-gap*math.Max(1, math.Abs(incumbent)) {
			continue
		}

		j, frac := st.branchVar(x)
		if j < 0 {
			incumbent, best = obj, x
			st.log("New incumbent", "objective", float64(st.p.Sense)*(obj+st.offset), "node", nodes, "depth", nd.depth)
			continue
		}
		down := node{lo: append([]float64(nil), nd.lo...), hi: append([]float64(nil), nd.hi...), depth: nd.depth + 1}
		up := node{lo: append([]float64(nil), nd.lo...), hi: append([]float64(nil), nd.hi...), depth: nd.depth + 1}
		down.hi[j] = math.Floor(x[j])
		up.lo[j] = math.Ceil(x[j])
		// The child nearer to the relaxation is explored first.
		if frac > 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	res.Iterations = nodes
	res.WallTime = time.Since(start)
	if best == nil {
		if status == solver.StatusOptimal {
			status = solver.StatusInfeasible
		}
		res.Status = status
		st.log("Branch and bound finished without a solution", "status", status, "nodes", nodes)
		return res, nil
	}
	res.Status = status
	res.Values = p.Load(best[:st.nvars])
	obj, err := m.Objective()
	if err != nil {
		return nil, err
	}
	res.Objective = obj.Expr.Eval()
	st.log("Branch and bound finished", "status", status, "objective", res.Objective, "nodes", nodes, "cuts", len(st.cuts), "elapsed", res.WallTime)
	return res, nil
}

func newSearch(p *solver.Problem, opts solver.Options) (*search, error) {
	st := &search{
		p:        p,
		nvars:    len(p.Vars),
		feasTol:  opts.Float("feas_tol", DefaultFeasTol),
		intTol:   opts.Float("int_tol", DefaultIntTol),
		oaRounds: opts.Int("oa_rounds", DefaultOARounds),
		log:      slog.Debug,
	}
	if opts.Tee {
		st.log = slog.Info
	}

	fns, err := nonlinearSides(p, st.nvars)
	if err != nil {
		return nil, err
	}
	st.fns = fns

	sense := float64(p.Sense)
	obj := &p.Objective
	ncols := st.nvars
	if obj.Kind == solver.Linear {
		st.cost = make([]float64, ncols)
		for j, a := range obj.Coefs {
			st.cost[j] = sense * a
		}
		st.offset = sense * obj.Const
	} else {
		// Epigraph: minimize t subject to sense*f(x) - t <= 0.
		t := ncols
		ncols++
		st.cost = make([]float64, ncols)
		st.cost[t] = 1
		epi := side{row: obj, sign: sense, bound: 0, extra: map[int]float64{t: -1}}
		f, err := buildFn(p, epi, st.nvars)
		if err != nil {
			return nil, err
		}
		if f.interior == nil {
			f.interior = epigraphInterior(p, f, t)
		}
		st.fns = append(st.fns, f)
	}

	for i := range p.Rows {
		row := &p.Rows[i]
		if row.Kind != solver.Linear {
			continue
		}
		coef := make([]float64, ncols)
		for j, a := range row.Coefs {
			coef[j] = a
		}
		st.rows = append(st.rows, lpRow{coef: coef, lo: row.Lower - row.Const, hi: row.Upper - row.Const})
	}
	return st, nil
}

type nodeStatus int

const (
	nodeOptimal nodeStatus = iota
	nodeInfeasible
	nodeUnbounded
	nodeStalled
)

// solveNode solves the continuous relaxation within the node bounds,
// tightening the outer approximation until every nonlinear side holds.
func (st *search) solveNode(ctx context.Context, nd node) (nodeStatus, []float64, float64, error) {
	ncols := len(st.cost)
	for round := 0; ; round++ {
		rows := make([]lpRow, 0, len(st.rows)+len(st.cuts))
		rows = append(rows, st.rows...)
		rows = append(rows, st.cuts...)
		status, x, obj, err := solveLP(&lpProblem{cost: st.cost, rows: rows, lo: nd.lo, hi: nd.hi})
		if err != nil {
			return nodeInfeasible, nil, 0, err
		}
		switch status {
		case lpInfeasible:
			return nodeInfeasible, nil, 0, nil
		case lpUnbounded:
			return nodeUnbounded, nil, 0, nil
		}
		if len(st.fns) == 0 {
			return nodeOptimal, x, obj, nil
		}

		st.p.Set(x[:st.nvars])
		worst := 0.0
		added := 0
		for _, f := range st.fns {
			g := f.eval(x)
			if g <= st.feasTol {
				continue
			}
			worst = math.Max(worst, g)
			z := x
			if f.interior != nil {
				z = f.boundary(x)
			}
			if c, ok := f.cut(z, ncols); ok {
				st.cuts = append(st.cuts, c)
				added++
			}
		}
		if worst == 0 {
			return nodeOptimal, x, obj, nil
		}
		if round+1 >= st.oaRounds || added == 0 || ctx.Err() != nil {
			if worst <= acceptOAViolation {
				slog.Warn("Outer approximation stopped early, accepting slightly infeasible point", "violation", worst, "rounds", round+1)
				return nodeOptimal, x, obj, nil
			}
			return nodeStalled, nil, 0, nil
		}
	}
}

// branchVar returns the most fractional integer column and its fractional
// part, or -1 when x is integral.
func (st *search) branchVar(x []float64) (int, float64) {
	best, bestDist := -1, 0.0
	bestFrac := 0.0
	for j := 0; j < st.nvars; j++ {
		if !st.p.Int[j] {
			continue
		}
		frac := x[j] - math.Floor(x[j])
		dist := math.Min(frac, 1-frac)
		if dist > st.intTol && dist > bestDist {
			best, bestDist, bestFrac = j, dist, frac
		}
	}
	return best, bestFrac
}

// epigraphInterior returns a point strictly above the objective graph at the
// current var values.
func epigraphInterior(p *solver.Problem, f *convexFn, t int) []float64 {
	x := make([]float64, t+1)
	for j, v := range p.Vars {
		lo, hi := p.Lower[j], p.Upper[j]
		x[j] = math.Min(math.Max(v.Value, lo), hi)
	}
	g := f.eval(x)
	if math.IsNaN(g) || math.IsInf(g, 0) {
		return nil
	}
	interior := make([]float64, len(f.cols))
	for k, c := range f.cols {
		interior[k] = x[c]
	}
	interior[len(interior)-1] = g + 1
	return interior
}

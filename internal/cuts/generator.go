// Package cuts solves robust models by scenario generation: every uncertain
// relation becomes a generator that starts from its nominal version and adds
// a cut for each violated worst case found by a separation problem.
package cuts

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/reformulate"
	"github.com/cwbudde/robustopt/internal/solver"
	"github.com/cwbudde/robustopt/internal/uncset"
)

// State is the lifecycle of a generator.
type State int

const (
	StateBuilt State = iota
	StateFeasible
	StateInfeasible
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateFeasible:
		return "feasible"
	case StateInfeasible:
		return "infeasible"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DefaultTol is the absolute violation, scaled by max(1, |bound|), above
// which a worst case produces a cut.
const DefaultTol = 1e-6

// Generator holds lower <= rule(w) <= upper for all w in Set and the cuts
// added so far.
type Generator struct {
	Name  string
	Lower float64
	Upper float64
	Rule  *reformulate.Affine
	Param *model.VarSet
	Set   *uncset.Set
	Cuts  []*model.Constraint
	// Tol overrides DefaultTol when positive.
	Tol float64

	m     *model.Model
	state State
}

// Build extracts the rule of lower <= body <= upper and installs the nominal
// cut, the relation evaluated at the nominal parameter values.
func Build(m *model.Model, name string, lower float64, body model.Expr, upper float64) (*Generator, error) {
	param, err := reformulate.UncertainParam(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if param == nil {
		return nil, fmt.Errorf("%s: relation has no uncertain parameters", name)
	}
	set, err := reformulate.SetOf(m, param)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	rule, err := reformulate.Extract(body, param)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	g := &Generator{
		Name:  name,
		Lower: lower,
		Upper: upper,
		Rule:  rule,
		Param: param,
		Set:   set,
		m:     m,
	}
	g.addCut(param.Nominals())
	return g, nil
}

// State returns the current state.
func (g *Generator) State() State { return g.state }

// Feasible reports whether the last separation found no violation.
func (g *Generator) Feasible() bool { return g.state == StateFeasible }

// HasUpper reports whether the upper bound is finite.
func (g *Generator) HasUpper() bool { return !math.IsInf(g.Upper, 1) }

// HasLower reports whether the lower bound is finite.
func (g *Generator) HasLower() bool { return !math.IsInf(g.Lower, -1) }

func (g *Generator) addCut(w []float64) *model.Constraint {
	c := g.m.AddConstraint(g.m.UniqueName(fmt.Sprintf("%s_cuts[%d]", g.Name, len(g.Cuts))),
		model.Range(g.Lower, g.Rule.AtValues(w), g.Upper))
	g.Cuts = append(g.Cuts, c)
	return c
}

func (g *Generator) tol() float64 {
	if g.Tol > 0 {
		return g.Tol
	}
	return DefaultTol
}

// Separation is the worst-case problem of one side of a generator at the
// current decision values.
type Separation struct {
	Gen   *Generator
	Upper bool
	Model *model.Model
	W     *model.VarSet

	result *solver.Result
}

// Separations builds one problem per finite side. The rule coefficients are
// evaluated at the current var values, so the returned problems share no
// state with the master model and can be solved concurrently.
func (g *Generator) Separations() ([]*Separation, error) {
	var out []*Separation
	build := func(upper bool) error {
		sense := model.Maximize
		if !upper {
			sense = model.Minimize
		}
		sm := model.New(g.Name + "_separation")
		w := sm.AddVars(g.Param.Name, g.Param.Len())
		for i, p := range g.Param.Vars {
			w.At(i).SetBounds(p.Lower, p.Upper)
			w.At(i).Value = p.Nominal
		}
		coefs, constant := g.Rule.Numeric()
		sm.AddObjective("obj", model.Add(model.C(constant), model.Dot(coefs, w.Exprs())), sense)
		rels, err := uncset.Constraints(g.Set, g.Param, w.Exprs())
		if err != nil {
			return fmt.Errorf("%s: %w", g.Name, err)
		}
		for k, r := range rels {
			sm.AddConstraint(fmt.Sprintf("cons[%d]", k), r)
		}
		out = append(out, &Separation{Gen: g, Upper: upper, Model: sm, W: w})
		return nil
	}
	if g.HasUpper() {
		if err := build(true); err != nil {
			return nil, err
		}
	}
	if g.HasLower() {
		if err := build(false); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Solve runs the separation problem. A non-optimal termination is fatal.
func (s *Separation) Solve(ctx context.Context, sub solver.Solver, opts solver.Options) error {
	res, err := sub.Solve(ctx, s.Model, opts)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", s.Gen.Name, model.ErrSeparationFailed, err)
	}
	if !res.IsOptimal() {
		return fmt.Errorf("%s: %w: solver %s returned %s", s.Gen.Name, model.ErrSeparationFailed, sub.Name(), res.Status)
	}
	s.result = res
	return nil
}

// Violated reports whether the worst case breaks the bound of the side.
func (s *Separation) Violated() bool {
	g := s.Gen
	if s.Upper {
		return s.result.Objective > g.Upper+g.tol()*math.Max(1, math.Abs(g.Upper))
	}
	return s.result.Objective < g.Lower-g.tol()*math.Max(1, math.Abs(g.Lower))
}

// Resolve appends a cut for every violated side of solved separations and
// updates the state. It mutates the master model and must not run
// concurrently with other generators.
func (g *Generator) Resolve(seps []*Separation) bool {
	feasible := true
	for _, s := range seps {
		if s.result == nil {
			panic(fmt.Sprintf("generator %s: separation resolved before it was solved", g.Name))
		}
		if !s.Violated() {
			continue
		}
		feasible = false
		c := g.addCut(s.W.Values())
		slog.Debug("Added cut", "generator", g.Name, "cut", c.Name, "worst_case", s.result.Objective, "upper", s.Upper)
	}
	if feasible {
		g.state = StateFeasible
	} else {
		g.state = StateInfeasible
	}
	return feasible
}

// AddCut separates every side in turn and adds cuts for violations.
func (g *Generator) AddCut(ctx context.Context, sub solver.Solver, opts solver.Options) (bool, error) {
	seps, err := g.Separations()
	if err != nil {
		return false, err
	}
	for _, s := range seps {
		if err := s.Solve(ctx, sub, opts); err != nil {
			return false, err
		}
	}
	return g.Resolve(seps), nil
}

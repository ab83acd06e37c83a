package cuts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/solver/bnb"
	"github.com/cwbudde/robustopt/internal/uncset"
)

func TestBuildInstallsNominalCut(t *testing.T) {
	m := model.New("nominal")
	x := m.AddVars("x", 2, model.WithValues(0.8, 0.8))
	set := uncset.New("U")
	w := m.AddUncParam("w", set, []float64{0.5, 0.5})
	set.Add(model.Leq(w.At(0), model.C(1)))
	set.Add(model.Leq(w.At(1), model.C(1)))

	g, err := Build(m, "c_generator", math.Inf(-1), model.DotE(x.Exprs(), w.Exprs()), 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if g.State() != StateBuilt {
		t.Errorf("State %v, want built", g.State())
	}
	if len(g.Cuts) != 1 {
		t.Fatalf("Expected the nominal cut, got %d cuts", len(g.Cuts))
	}
	if got := g.Cuts[0].Body.Eval(); math.Abs(got-0.8) > 1e-12 {
		t.Errorf("Nominal cut body %g, want 0.8", got)
	}
	for _, v := range model.Vars(g.Cuts[0].Body) {
		if v.Kind() == model.Uncertain {
			t.Errorf("Nominal cut references %s", v.Name())
		}
	}

	seps, err := g.Separations()
	if err != nil {
		t.Fatalf("Separations failed: %v", err)
	}
	if len(seps) != 1 || !seps[0].Upper {
		t.Fatalf("Expected one upper separation, got %d", len(seps))
	}
	obj, _ := seps[0].Model.Objective()
	if obj.Sense != model.Maximize {
		t.Errorf("Separation sense %v, want maximize", obj.Sense)
	}
	seps[0].W.At(0).Value, seps[0].W.At(1).Value = 1, 0
	if got := obj.Expr.Eval(); math.Abs(got-0.8) > 1e-12 {
		t.Errorf("Separation objective at (1, 0) = %g, want 0.8", got)
	}
	if n := len(seps[0].Model.Constraints()); n != 2 {
		t.Errorf("Separation has %d constraints, want 2", n)
	}
}

// scaled is max x s.t. w*x <= 1 for all w in [0.5, 2], with optimum 0.5.
func scaled() *model.Model {
	m := model.New("scaled")
	x := m.AddVar("x", model.WithBounds(0, 10))
	set := uncset.New("U")
	w := m.AddUncParam("w", set, []float64{1})
	set.Add(model.Range(0.5, w.At(0), 2))
	m.AddConstraint("c", model.Leq(model.Mul(w.At(0), x), model.C(1)))
	m.AddObjective("obj", x, model.Maximize)
	return m
}

func TestDriverConverges(t *testing.T) {
	tests := []struct {
		name     string
		parallel bool
		recheck  bool
	}{
		{"serial", false, false},
		{"parallel", true, false},
		{"recheck", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := scaled()
			gens, err := Install(m)
			if err != nil {
				t.Fatalf("Install failed: %v", err)
			}
			var seen []Iteration
			res, err := Run(context.Background(), m, gens, Options{
				Solver:      bnb.New(),
				Parallel:    tt.parallel,
				Recheck:     tt.recheck,
				Tracker:     DefaultTrackerConfig(),
				OnIteration: func(it Iteration) { seen = append(seen, it) },
			})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if res.Status != StatusRobust {
				t.Errorf("Status %v, want robust", res.Status)
			}
			if math.Abs(res.Objective-0.5) > 1e-6 {
				t.Errorf("Objective %g, want 0.5", res.Objective)
			}
			if res.Iterations != 2 {
				t.Errorf("Iterations %d, want 2", res.Iterations)
			}
			if len(seen) != res.Iterations || len(res.History) != res.Iterations {
				t.Errorf("Callback saw %d and history has %d iterations, want %d", len(seen), len(res.History), res.Iterations)
			}
			if last := seen[len(seen)-1]; last.Feasible != 1 || last.Total != 1 || last.Cuts != 2 {
				t.Errorf("Last iteration %+v, want 1/1 feasible with 2 cuts", last)
			}
			if m.Constraint("c").Active() {
				t.Error("Original constraint still active")
			}
		})
	}
}

// coupled is max x + y s.t. y <= w*x for w in [0.5, 2], v*x <= 4 for v in
// [1, 4] and y <= 1. The first master point satisfies the y row robustly,
// the cut on the x row then moves it to a point where it no longer does.
func coupled() *model.Model {
	m := model.New("coupled")
	x := m.AddVar("x", model.WithBounds(0, 10))
	y := m.AddVar("y", model.WithBounds(0, 1))
	ws := uncset.New("W")
	w := m.AddUncParam("w", ws, []float64{1})
	ws.Add(model.Range(0.5, w.At(0), 2))
	vs := uncset.New("V")
	v := m.AddUncParam("v", vs, []float64{1})
	vs.Add(model.Range(1, v.At(0), 4))
	m.AddConstraint("ratio", model.Leq(model.Sub(y, model.Mul(w.At(0), x)), model.C(0)))
	m.AddConstraint("cap", model.Leq(model.Mul(v.At(0), x), model.C(4)))
	m.AddObjective("obj", model.Add(x, y), model.Maximize)
	return m
}

func TestDriverRechecksSettledGenerators(t *testing.T) {
	for _, recheck := range []bool{false, true} {
		t.Run(fmt.Sprintf("recheck=%v", recheck), func(t *testing.T) {
			m := coupled()
			gens, err := Install(m)
			if err != nil {
				t.Fatalf("Install failed: %v", err)
			}
			res, err := Run(context.Background(), m, gens, Options{Solver: bnb.New(), Recheck: recheck})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if res.Status != StatusRobust {
				t.Fatalf("Status %v, want robust", res.Status)
			}
			if math.Abs(res.Objective-1.5) > 1e-6 {
				t.Errorf("Objective %g, want 1.5", res.Objective)
			}
			if res.Iterations != 3 {
				t.Errorf("Iterations %d, want 3", res.Iterations)
			}
			x, y := m.VarSet("x").At(0).Value, m.VarSet("y").At(0).Value
			if y > 0.5*x+1e-6 || x > 1+1e-6 {
				t.Errorf("(x, y) = (%g, %g) is not robustly feasible", x, y)
			}
		})
	}
}

func TestDriverMaxIterExceeded(t *testing.T) {
	m := scaled()
	gens, err := Install(m)
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	res, err := Run(context.Background(), m, gens, Options{Solver: bnb.New(), MaxIter: 1})
	if err != nil {
		t.Fatalf("Run should not fail on the iteration cap: %v", err)
	}
	if res.Status != StatusMaxIterExceeded {
		t.Errorf("Status %v, want max_iter_exceeded", res.Status)
	}
	if res.Iterations != 1 {
		t.Errorf("Iterations %d, want 1", res.Iterations)
	}
	// The last master solution is the nominal one.
	if math.Abs(res.Objective-1) > 1e-6 {
		t.Errorf("Objective %g, want 1", res.Objective)
	}
	if gens[0].State() != StateInfeasible {
		t.Errorf("Generator state %v, want infeasible", gens[0].State())
	}
}

func TestUncertainObjectiveEpigraph(t *testing.T) {
	// min w*x over x in [1, 3] and w in [1, 2] has worst case 2 at x = 1.
	m := model.New("epigraph")
	x := m.AddVar("x", model.WithBounds(1, 3))
	set := uncset.New("U")
	w := m.AddUncParam("w", set, []float64{1.5})
	set.Add(model.Range(1, w.At(0), 2))
	m.AddObjective("obj", model.Mul(w.At(0), x), model.Minimize)

	xf := &Generators{}
	if err := xf.Apply(m); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(xf.Built) != 1 {
		t.Fatalf("Built %d generators, want 1", len(xf.Built))
	}
	if obj, err := m.Objective(); err != nil || obj.Name != "obj_new" {
		t.Fatalf("Active objective %v, %v; want obj_new", obj, err)
	}
	res, err := Run(context.Background(), m, xf.Built, Options{Solver: bnb.New()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != StatusRobust || math.Abs(res.Objective-2) > 1e-6 {
		t.Errorf("Got %v with objective %g, want robust with 2", res.Status, res.Objective)
	}
	if math.Abs(x.Value-1) > 1e-6 {
		t.Errorf("x = %g, want 1", x.Value)
	}
}

func TestSeparationFailureIsFatal(t *testing.T) {
	m := model.New("unbounded")
	x := m.AddVar("x", model.WithBounds(1, 2))
	set := uncset.New("U")
	w := m.AddUncParam("w", set, []float64{1})
	set.Add(model.Geq(w.At(0), model.C(0)))
	m.AddConstraint("c", model.Leq(model.Mul(x, w.At(0)), model.C(10)))
	m.AddObjective("obj", x, model.Minimize)

	gens, err := Install(m)
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	_, err = Run(context.Background(), m, gens, Options{Solver: bnb.New()})
	if !errors.Is(err, model.ErrSeparationFailed) {
		t.Errorf("Error = %v, want ErrSeparationFailed", err)
	}
}

func TestInstallRejectsUncertainEquality(t *testing.T) {
	m := model.New("eq")
	x := m.AddVar("x")
	set := uncset.NewPolyhedral("P", [][]float64{{1}}, []float64{1})
	w := m.AddUncParam("w", set, []float64{0})
	m.AddConstraint("c", model.Eq(model.Mul(x, w.At(0)), model.C(1)))
	m.AddObjective("obj", x, model.Minimize)

	if _, err := Install(m); !errors.Is(err, model.ErrUnsupportedEquality) {
		t.Errorf("Error = %v, want ErrUnsupportedEquality", err)
	}
}

func TestTrackerStall(t *testing.T) {
	tr := NewTracker(TrackerConfig{Enabled: true, Patience: 2, Threshold: 1e-3})
	steps := []struct {
		obj      float64
		feasible int
		stalled  bool
	}{
		{10, 0, false},
		{9, 0, false},
		{9, 0, false},
		{9, 0, true},
		{9, 1, false},
	}
	for i, s := range steps {
		got := tr.Update(Iteration{Iter: i + 1, Objective: s.obj, Feasible: s.feasible, Total: 1})
		if got != s.stalled {
			t.Errorf("step %d: stalled = %v, want %v", i, got, s.stalled)
		}
	}
	if len(tr.History()) != len(steps) {
		t.Errorf("History has %d entries, want %d", len(tr.History()), len(steps))
	}
	tr.Reset()
	if len(tr.History()) != 0 || tr.StaleCount() != 0 {
		t.Error("Reset did not clear the tracker")
	}

	off := NewTracker(DisabledTrackerConfig())
	for i := 0; i < 5; i++ {
		if off.Update(Iteration{Iter: i + 1, Objective: 1, Total: 1}) {
			t.Fatal("Disabled tracker reported a stall")
		}
	}
}

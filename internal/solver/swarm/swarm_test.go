package swarm

import (
	"context"
	"math"
	"testing"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/solver"
)

func TestSwarmKnapsack(t *testing.T) {
	m := model.New("knapsack")
	x := m.AddVars("x", 4, model.WithDomain(model.Binary))
	m.AddConstraint("weight", model.Leq(model.Dot([]float64{5, 7, 4, 3}, x.Exprs()), model.C(14)))
	m.AddObjective("value", model.Dot([]float64{8, 3, 6, 11}, x.Exprs()), model.Maximize)

	res, err := New().Solve(context.Background(), m, solver.Options{})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if !res.IsOptimal() {
		t.Fatalf("Expected optimal, got %v", res.Status)
	}
	if res.Objective != 25 {
		t.Errorf("Objective = %g, want 25", res.Objective)
	}
	for _, v := range x.Values() {
		if v != 0 && v != 1 {
			t.Errorf("Binary var took value %g", v)
		}
	}
}

func TestSwarmNonconvexBox(t *testing.T) {
	m := model.New("wave")
	x := m.AddVar("x", model.WithBounds(0, 4))
	// cos attains its minimum on [0, 4] at π.
	m.AddObjective("obj", model.Apply("cos", math.Cos, func(v float64) float64 { return -math.Sin(v) }, x), model.Minimize)

	res, err := New().Solve(context.Background(), m, solver.Options{})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if !res.IsOptimal() {
		t.Fatalf("Expected optimal, got %v", res.Status)
	}
	if math.Abs(x.Value-math.Pi) > 0.05 {
		t.Errorf("x = %g, want π", x.Value)
	}
}

func TestSwarmInfeasible(t *testing.T) {
	m := model.New("infeasible")
	x := m.AddVar("x", model.WithBounds(0, 1))
	m.AddConstraint("far", model.Geq(x, model.C(2)))
	m.AddObjective("obj", x, model.Minimize)

	res, err := New().Solve(context.Background(), m, solver.Options{Params: map[string]any{"restarts": 1, "iterations": 50}})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if res.Status != solver.StatusInfeasible {
		t.Errorf("Status = %v, want infeasible", res.Status)
	}
}

func TestSwarmNonlinearEquality(t *testing.T) {
	m := model.New("hyperbola")
	x := m.AddVar("x", model.WithBounds(0, 3), model.WithValues(2))
	y := m.AddVar("y", model.WithBounds(0, 3), model.WithValues(0.5))
	m.AddConstraint("curve", model.Eq(model.Mul(x, y), model.C(1)))
	m.AddObjective("obj", model.Add(model.Square(x), model.Square(y)), model.Minimize)

	res, err := New().Solve(context.Background(), m, solver.Options{Params: map[string]any{"restarts": 1, "iterations": 50}})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if !res.IsOptimal() {
		t.Fatalf("Expected optimal, got %v", res.Status)
	}
	if math.Abs(x.Value-1) > 1e-5 || math.Abs(y.Value-1) > 1e-5 {
		t.Errorf("(x, y) = (%g, %g), want (1, 1)", x.Value, y.Value)
	}
	if math.Abs(res.Objective-2) > 1e-5 {
		t.Errorf("Objective = %g, want 2", res.Objective)
	}
}

package metasolver

import (
	"context"
	"math"
	"testing"

	"github.com/cwbudde/robustopt/internal/config"
	"github.com/cwbudde/robustopt/internal/cuts"
	"github.com/cwbudde/robustopt/internal/examples"
	"github.com/cwbudde/robustopt/internal/solver/swarm"
	"github.com/cwbudde/robustopt/internal/uncset"
)

func solve(t *testing.T, method, example, set string, cfg *config.Config) (*examples.Instance, *Result) {
	t.Helper()
	in, err := examples.Build(example, set)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	ms, err := NewRegistry().New(method, Env{Config: cfg})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	res, err := ms.Solve(context.Background(), in.Model)
	if err != nil {
		t.Fatalf("%s on %s/%s failed: %v", method, example, set, err)
	}
	if !res.IsOptimal() {
		t.Fatalf("%s on %s/%s: expected optimal, got %v", method, example, set, res.Status)
	}
	return in, res
}

func TestKnapsack(t *testing.T) {
	tests := []struct {
		set  string
		want float64
	}{
		{"E", 19},
		{"Elib", 25},
		{"P", 19},
		{"Plib", 19},
	}
	for _, method := range []string{NameReformulation, NameCuts} {
		for _, tt := range tests {
			t.Run(method+"/"+tt.set, func(t *testing.T) {
				_, res := solve(t, method, "knapsack", tt.set, config.Default())
				if math.Abs(res.Objective-tt.want) > 1e-6 {
					t.Errorf("expected objective %g, got %g", tt.want, res.Objective)
				}
				if !res.Robust() {
					t.Error("expected a robust solution")
				}
				if method == NameCuts && res.Cuts == nil {
					t.Error("cutting planes should report their history")
				}
			})
		}
	}
}

func TestKnapsackNominal(t *testing.T) {
	in, res := solve(t, NameNominal, "knapsack", "", config.Default())
	if math.Abs(res.Objective-25) > 1e-6 {
		t.Errorf("expected objective 25, got %g", res.Objective)
	}
	want := []float64{1, 0, 1, 1}
	for i, v := range in.Model.VarSet("x").Values() {
		if math.Abs(v-want[i]) > 1e-6 {
			t.Errorf("x[%d]: expected %g, got %g", i, want[i], v)
		}
	}
}

func TestPortfolio(t *testing.T) {
	ellipsoid := 0.7 - math.Sqrt(0.0005)
	tests := []struct {
		method string
		set    string
		want   float64
		tol    float64
	}{
		{NameReformulation, "U", ellipsoid, 1e-3},
		{NameReformulation, "Elib", ellipsoid, 1e-3},
		{NameReformulation, "P", 0.699, 1e-6},
		{NameReformulation, "Plib", 0.699, 1e-6},
		{NameCuts, "P", 0.699, 1e-6},
		{NameCuts, "Plib", 0.699, 1e-6},
		{NameNominal, "U", 0.7, 1e-6},
	}
	for _, tt := range tests {
		t.Run(tt.method+"/"+tt.set, func(t *testing.T) {
			_, res := solve(t, tt.method, "portfolio", tt.set, config.Default())
			if math.Abs(res.Objective-tt.want) > tt.tol {
				t.Errorf("expected objective %.6f, got %.6f", tt.want, res.Objective)
			}
		})
	}
}

func TestCutsParallelMatchesSerial(t *testing.T) {
	cfg := config.Default()
	cfg.Parallel = true
	var rounds []cuts.Iteration
	in, err := examples.Build("knapsack", "Plib")
	if err != nil {
		t.Fatal(err)
	}
	ms, err := NewRegistry().New("cuts", Env{
		Config:      cfg,
		OnIteration: func(it cuts.Iteration) { rounds = append(rounds, it) },
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := ms.Solve(context.Background(), in.Model)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if math.Abs(res.Objective-19) > 1e-6 {
		t.Errorf("expected objective 19, got %g", res.Objective)
	}
	if len(rounds) != res.Cuts.Iterations {
		t.Errorf("expected %d progress callbacks, got %d", res.Cuts.Iterations, len(rounds))
	}
}

func TestCutsMaxIter(t *testing.T) {
	cfg := config.Default()
	cfg.MaxIter = 1
	_, res := solve(t, NameCuts, "knapsack", "P", cfg)
	if res.Cuts.Status != cuts.StatusMaxIterExceeded {
		t.Errorf("expected max_iter_exceeded, got %s", res.Cuts.Status)
	}
	if res.Robust() {
		t.Error("a truncated run is not robust")
	}
	// The first master solve sees the nominal cut only.
	if math.Abs(res.Objective-25) > 1e-6 {
		t.Errorf("expected nominal objective 25, got %g", res.Objective)
	}
}

func TestFacility(t *testing.T) {
	in, res := solve(t, NameReformulation, "facility", "", config.Default())
	x := in.Model.VarSet("x").Values()
	capacity := 0.0
	total := 0.0
	for i, v := range x {
		capacity += math.Round(v) * examples.MaxDemand[i]
	}
	for _, d := range examples.Demand {
		total += 1.1 * d
	}
	if capacity < total-1e-6 {
		t.Errorf("open capacity %g cannot serve peak demand %g", capacity, total)
	}
	// The decision rule evaluated at nominal demand ships exactly the demand.
	y := in.Model.VarSet("y").Values()
	k := len(examples.Demand)
	for j, d := range examples.Demand {
		shipped := 0.0
		for i := range examples.FacilityCost {
			shipped += y[i*k+j]
		}
		if math.Abs(shipped-d) > 1e-5 {
			t.Errorf("customer %d receives %g, want %g", j, shipped, d)
		}
	}

	_, nom := solve(t, NameNominal, "facility", "", config.Default())
	if nom.Objective > res.Objective+1e-6 {
		t.Errorf("nominal cost %g should not exceed robust cost %g", nom.Objective, res.Objective)
	}
}

func TestPlanningNominal(t *testing.T) {
	in, res := solve(t, NameNominal, "planning", "", config.Default())
	d := math.Exp(-(examples.PlanningMin + examples.PlanningMax) / 4)
	want := 0.0
	for _, c := range examples.PlanningCost {
		want += examples.PlanningMax * (d - c)
	}
	if math.Abs(res.Objective-want) > 1e-6 {
		t.Errorf("expected objective %g, got %g", want, res.Objective)
	}
	for i, v := range in.Model.VarSet("x").Values() {
		if math.Abs(v-examples.PlanningMax) > 1e-6 {
			t.Errorf("x[%d]: expected %g, got %g", i, examples.PlanningMax, v)
		}
	}
}

// With the three period inputs at the same production level the latent
// covariance has rank one, so the worst-case demand of every period is
// h⁻¹(μ - sqrt(FΣ₀₀)) and all periods produce at capacity.
func TestPlanningReformulation(t *testing.T) {
	cfg := config.Default()
	cfg.Solver = swarm.Name
	cfg.InitializeWolfe = true
	cfg.Options = map[string]any{"restarts": 1, "iterations": 100}
	in, res := solve(t, NameReformulation, "planning", "", cfg)

	xs, ys := examples.PlanningData(50, 0.05)
	gp, err := uncset.FitWarpedRBF(xs, ys, examples.PlanningWarping, 1, 1, 0.01)
	if err != nil {
		t.Fatalf("FitWarpedRBF failed: %v", err)
	}
	mid := (examples.PlanningMin + examples.PlanningMax) / 2
	mean, cov, err := gp.Predict([][]float64{{mid}})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	worst, ok := uncset.InverseWarp(gp, mean[0]-math.Sqrt(uncset.ChiSquareQuantile(0.9, 3)*cov.At(0, 0)))
	if !ok {
		t.Fatal("InverseWarp found no bracket")
	}
	want := 0.0
	for _, c := range examples.PlanningCost {
		want += examples.PlanningMax * (worst - c)
	}
	if math.Abs(res.Objective-want) > 1e-4*(1+math.Abs(want)) {
		t.Errorf("expected objective %g, got %g", want, res.Objective)
	}
	for i, v := range in.Model.VarSet("x").Values() {
		if math.Abs(v-examples.PlanningMax) > 1e-4 {
			t.Errorf("x[%d]: expected %g, got %g", i, examples.PlanningMax, v)
		}
	}

	_, nominal := solve(t, NameNominal, "planning", "", config.Default())
	if res.Objective >= nominal.Objective {
		t.Errorf("robust profit %g should be below the nominal profit %g", res.Objective, nominal.Objective)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if got := r.Names(); len(got) != 3 {
		t.Errorf("expected 3 meta-solvers, got %v", got)
	}
	for _, name := range []string{"cuts", NameReformulation, "nominal"} {
		if _, err := r.New(name, Env{}); err != nil {
			t.Errorf("New(%s) failed: %v", name, err)
		}
	}
	if _, err := r.New("sampling", Env{}); err == nil {
		t.Error("expected error for unknown meta-solver")
	}

	cfg := config.Default()
	cfg.Solver = "cplex"
	in, err := examples.Build("knapsack", "")
	if err != nil {
		t.Fatal(err)
	}
	ms, _ := r.New(NameReformulation, Env{Config: cfg})
	if _, err := ms.Solve(context.Background(), in.Model); err == nil {
		t.Error("expected error for unknown solver")
	}
}

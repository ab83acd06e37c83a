package adjustable

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/reformulate"
	"github.com/cwbudde/robustopt/internal/solver"
	"github.com/cwbudde/robustopt/internal/solver/bnb"
	"github.com/cwbudde/robustopt/internal/uncset"
)

func boxModel(n int) (*model.Model, *model.VarSet) {
	m := model.New("ldr")
	rows := make([][]float64, 0, 2*n)
	rhs := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		up := make([]float64, n)
		down := make([]float64, n)
		up[i], down[i] = 1, -1
		rows = append(rows, up, down)
		rhs = append(rhs, 1, 1)
	}
	w := m.AddUncParam("w", uncset.NewPolyhedral("Box", rows, rhs), make([]float64, n))
	return m, w
}

func TestLDRStructure(t *testing.T) {
	m, w := boxModel(3)
	y := m.AddAdjustable("y", 3, []*model.VarSet{w}, model.WithBounds(0, 10))
	m.AddConstraint("c", model.Leq(model.Add(y.Exprs()...), model.C(5)))
	m.AddObjective("obj", model.Add(y.Exprs()...), model.Minimize)

	if err := (&LDR{}).Apply(m); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	coef := m.VarSet("y_w_coef")
	if coef == nil || coef.Len() != 9 {
		t.Fatalf("Expected 9 coefficients, got %v", coef)
	}
	c := m.Constraint("c_ldr")
	if c == nil {
		t.Fatal("Replacement constraint not created")
	}
	if m.Constraint("c").Active() {
		t.Error("Original constraint still active")
	}
	for _, v := range model.Vars(c.Body) {
		if v.Kind() == model.Adjustable {
			t.Errorf("Replacement still references %s", v.Name())
		}
	}
	for i := 0; i < 3; i++ {
		b := m.Constraint(fmt.Sprintf("y_bounds[%d]", i))
		if b == nil {
			t.Fatalf("Missing bound constraint for y[%d]", i)
		}
		if b.Lower != 0 || b.Upper != 10 {
			t.Errorf("y_bounds[%d] = [%g, %g], want [0, 10]", i, b.Lower, b.Upper)
		}
	}
	obj, err := m.Objective()
	if err != nil {
		t.Fatalf("Objective: %v", err)
	}
	if obj.Name != "obj_ldr" {
		t.Errorf("Active objective %s, want obj_ldr", obj.Name)
	}
}

func TestLDRReusesCoefficients(t *testing.T) {
	m, w := boxModel(2)
	y := m.AddAdjustable("y", 1, []*model.VarSet{w})
	m.AddConstraint("c", model.Leq(y.At(0), model.C(1)))
	m.AddObjective("obj", y.At(0), model.Maximize)

	if err := (&LDR{}).Apply(m); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	n := len(m.VarSets())
	if err := (&LDR{}).Apply(m); err != nil {
		t.Fatalf("Second Apply failed: %v", err)
	}
	if len(m.VarSets()) != n {
		t.Errorf("Second Apply added %d var sets", len(m.VarSets())-n)
	}
}

func TestLDRSplitsEqualities(t *testing.T) {
	m, w := boxModel(3)
	x := m.AddVar("x")
	y := m.AddAdjustable("y", 1, []*model.VarSet{w})
	// y == w[0] + x for every w.
	m.AddConstraint("e", model.Eq(y.At(0), model.Add(w.At(0), x)))
	m.AddObjective("obj", x, model.Minimize)

	if err := (&LDR{}).Apply(m); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	var parts []*model.Constraint
	for _, c := range m.ActiveConstraints() {
		parts = append(parts, c)
		if !c.IsEquality() {
			t.Errorf("%s is not an equality", c)
		}
		for _, v := range model.Vars(c.Body) {
			if v.Kind() == model.Uncertain {
				t.Errorf("%s still references %s", c.Name, v.Name())
			}
		}
	}
	// One part for the constant -x and one per parameter element.
	if len(parts) != 4 {
		t.Fatalf("Got %d parts, want 4: %v", len(parts), parts)
	}

	coef := m.VarSet("y_w_coef")
	coef.At(0).Value = 1
	x.Value = 0
	for _, c := range parts {
		if v := c.Violation(); v > 1e-12 {
			t.Errorf("%s violated by %g at the exact rule", c.Name, v)
		}
	}
	x.Value = 1
	violated := false
	for _, c := range parts {
		violated = violated || c.Violation() > 0
	}
	if !violated {
		t.Error("A non-zero constant should violate one part")
	}
}

func TestLDRRejectsNonVanishingConstant(t *testing.T) {
	m, w := boxModel(1)
	y := m.AddAdjustable("y", 1, []*model.VarSet{w})
	m.AddConstraint("e", model.Eq(y.At(0), model.Add(w.At(0), model.C(1))))
	m.AddObjective("obj", y.At(0), model.Minimize)

	if err := (&LDR{}).Apply(m); !errors.Is(err, model.ErrNonVanishingConstant) {
		t.Errorf("Error = %v, want ErrNonVanishingConstant", err)
	}
}

func TestLDRRejectsUnknownParam(t *testing.T) {
	m := model.New("bad")
	other := model.New("other").AddUncParam("v", nil, []float64{0})
	y := m.AddAdjustable("y", 1, []*model.VarSet{other})
	m.AddObjective("obj", y.At(0), model.Minimize)

	if err := (&LDR{}).Apply(m); err == nil {
		t.Error("Expected error for a parameter outside the model")
	}
}

func TestLDRThenPolyhedral(t *testing.T) {
	// min x s.t. y >= w and x >= y for all w in [-1, 1]. The rule y = w
	// is optimal and the bound on x is 1.
	m, w := boxModel(1)
	x := m.AddVar("x")
	y := m.AddAdjustable("y", 1, []*model.VarSet{w})
	m.AddConstraint("follow", model.Geq(y.At(0), w.At(0)))
	m.AddConstraint("cover", model.Leq(y.At(0), x))
	m.AddObjective("obj", x, model.Minimize)

	if err := (&LDR{}).Apply(m); err != nil {
		t.Fatalf("LDR failed: %v", err)
	}
	if err := (&reformulate.Polyhedral{}).Apply(m); err != nil {
		t.Fatalf("Polyhedral failed: %v", err)
	}
	res, err := bnb.New().Solve(context.Background(), m, solver.Options{})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if !res.IsOptimal() {
		t.Fatalf("Expected optimal, got %v", res.Status)
	}
	if math.Abs(res.Objective-1) > 1e-6 {
		t.Errorf("Objective %g, want 1", res.Objective)
	}
	if got := m.VarSet("y_w_coef").At(0).Value; math.Abs(got-1) > 1e-6 {
		t.Errorf("Rule coefficient %g, want 1", got)
	}
}

func TestRelaxAndRestore(t *testing.T) {
	m, w := boxModel(1)
	y := m.AddAdjustable("y", 2, []*model.VarSet{w}, model.WithBounds(0, 5))
	y.At(1).FixAt(2)
	m.AddConstraint("c", model.Leq(model.Add(y.Exprs()...), model.C(4)))
	m.AddObjective("obj", model.Add(y.Exprs()...), model.Maximize)
	nsets, ncons := len(m.VarSets()), len(m.Constraints())

	restore := Relax(m)
	nom := m.VarSet("y_nominal")
	if nom == nil {
		t.Fatal("Nominal collection not created")
	}
	if nom.Kind != model.Decision {
		t.Errorf("Nominal kind %v, want decision", nom.Kind)
	}
	if !nom.At(1).Fixed() || nom.At(1).Value != 2 {
		t.Error("Fixed state not copied")
	}
	if nom.At(0).Lower != 0 || nom.At(0).Upper != 5 {
		t.Errorf("Bounds [%g, %g], want [0, 5]", nom.At(0).Lower, nom.At(0).Upper)
	}

	res, err := bnb.New().Solve(context.Background(), m, solver.Options{})
	if err != nil || !res.IsOptimal() {
		t.Fatalf("Solve failed: %v %v", err, res)
	}
	if math.Abs(res.Objective-4) > 1e-6 {
		t.Errorf("Objective %g, want 4", res.Objective)
	}

	restore()
	if math.Abs(y.At(0).Value-2) > 1e-6 {
		t.Errorf("Restored y[0] = %g, want 2", y.At(0).Value)
	}
	if len(m.VarSets()) != nsets || len(m.Constraints()) != ncons {
		t.Errorf("Restore left %d sets and %d constraints, want %d and %d",
			len(m.VarSets()), len(m.Constraints()), nsets, ncons)
	}
	if !m.Constraint("c").Active() {
		t.Error("Original constraint not reactivated")
	}
	if obj, err := m.Objective(); err != nil || obj.Name != "obj" {
		t.Errorf("Objective after restore = %v, %v", obj, err)
	}
}

func TestLDREvaluate(t *testing.T) {
	m := model.New("eval")
	w := m.AddUncParam("w", uncset.New("U"), []float64{2, 3})
	y := m.AddAdjustable("y", 2, []*model.VarSet{w})
	m.AddConstraint("c", model.Leq(model.Add(y.Exprs()...), model.C(1)))

	// Without coefficients nothing changes.
	y.At(0).Value = 7
	(&LDR{}).Evaluate(m)
	if y.At(0).Value != 7 {
		t.Errorf("y[0] changed to %g before rules exist", y.At(0).Value)
	}

	if err := (&LDR{}).Apply(m); err != nil {
		t.Fatal(err)
	}
	coef := m.VarSet("y_w_coef")
	for k, v := range []float64{1, 2, -1, 0.5} {
		coef.At(k).Value = v
	}
	(&LDR{}).Evaluate(m)
	if got := y.At(0).Value; got != 1*2+2*3 {
		t.Errorf("y[0] = %g, want 8", got)
	}
	if got := y.At(1).Value; got != -1*2+0.5*3 {
		t.Errorf("y[1] = %g, want -0.5", got)
	}
}

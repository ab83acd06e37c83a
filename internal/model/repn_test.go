package model

import (
	"math"
	"testing"
)

func TestStandardRepnLinear(t *testing.T) {
	m := New("repn")
	x := m.AddVars("x", 2)
	// 3*x0 - x1 + 4
	e := Add(Scale(3, x.At(0)), Neg(x.At(1)), C(4))

	r := StandardRepn(e)
	if !r.IsLinear() {
		t.Fatalf("Expected linear repn, got %+v", r)
	}
	if len(r.Linear) != 2 {
		t.Fatalf("Expected 2 linear terms, got %d", len(r.Linear))
	}
	want := []float64{3, -1}
	for i, term := range r.Linear {
		if term.Var != x.At(i) {
			t.Errorf("Term %d: expected var %s, got %s", i, x.At(i), term.Var)
		}
		c, ok := IsConst(term.Coef)
		if !ok || c != want[i] {
			t.Errorf("Term %d: expected coef %g, got %s", i, want[i], term.Coef)
		}
	}
	if c, ok := IsConst(r.Constant); !ok || c != 4 {
		t.Errorf("Expected constant 4, got %s", r.Constant)
	}
}

func TestStandardRepnSymbolicCoefficients(t *testing.T) {
	m := New("repn")
	x := m.AddVar("x", WithValues(2))
	w := m.AddVars("w", 2)
	// x*w0 + x**2*w1 + 5*x
	e := Add(Mul(x, w.At(0)), Mul(Square(x), w.At(1)), Scale(5, x))
	x.Fix()
	defer x.Unfix()

	r := StandardRepn(e)
	if !r.IsLinear() {
		t.Fatalf("Expected linear repn in w")
	}
	if len(r.Linear) != 2 {
		t.Fatalf("Expected 2 linear terms, got %d", len(r.Linear))
	}
	if got := r.Linear[0].Coef.Eval(); got != 2 {
		t.Errorf("Expected coef of w0 = 2, got %g", got)
	}
	if got := r.Linear[1].Coef.Eval(); got != 4 {
		t.Errorf("Expected coef of w1 = 4, got %g", got)
	}
	if got := r.Constant.Eval(); got != 10 {
		t.Errorf("Expected constant 10, got %g", got)
	}
}

func TestStandardRepnQuadratic(t *testing.T) {
	m := New("repn")
	w := m.AddVars("w", 2)
	// (w0 - 1)**2 + w0*w1
	e := Add(Square(Sub(w.At(0), C(1))), Mul(w.At(0), w.At(1)))

	r := StandardRepn(e)
	if r.IsLinear() {
		t.Fatal("Expected quadratic repn")
	}
	if !r.IsQuadratic() {
		t.Fatal("Expected polynomial repn")
	}
	if len(r.Quadratic) != 2 {
		t.Fatalf("Expected 2 quadratic terms, got %d", len(r.Quadratic))
	}
	if got := r.Constant.Eval(); got != 1 {
		t.Errorf("Expected constant 1, got %g", got)
	}
	if got := r.LinearCoef(w.At(0)).Eval(); got != -2 {
		t.Errorf("Expected linear coef -2, got %g", got)
	}
}

func TestStandardRepnNonlinear(t *testing.T) {
	m := New("repn")
	w := m.AddVar("w")

	tests := []struct {
		name string
		expr Expr
	}{
		{"sqrt", Sqrt(w)},
		{"cubic", PowE(w, 3)},
		{"fractional power", PowE(w, 0.5)},
		{"exp", Add(w, Exp(w))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := StandardRepn(tt.expr)
			if r.Nonlinear == nil {
				t.Errorf("Expected nonlinear repn for %s", tt.expr)
			}
		})
	}
}

func TestFixGuardRestores(t *testing.T) {
	m := New("guard")
	x := m.AddVars("x", 3)
	x.At(1).Fix()

	g := FixAllExcept(x.Vars, func(v *Var) bool { return v == x.At(1) })
	if !x.At(0).Fixed() || x.At(1).Fixed() || !x.At(2).Fixed() {
		t.Fatal("Guard did not apply the requested state")
	}
	g.Restore()
	g.Restore()

	if x.At(0).Fixed() || !x.At(1).Fixed() || x.At(2).Fixed() {
		t.Error("Guard did not restore the prior state")
	}
}

func TestSubstituteFoldsConstants(t *testing.T) {
	m := New("sub")
	x := m.AddVar("x")
	w := m.AddVar("w")
	e := Add(Mul(x, w), Sqrt(w))

	got := Substitute(e, map[*Var]Expr{w: C(4)})
	x.Value = 3
	if v := got.Eval(); math.Abs(v-14) > 1e-12 {
		t.Errorf("Expected 14, got %g", v)
	}
	for _, v := range Vars(got) {
		if v == w {
			t.Error("Substituted leaf still present")
		}
	}
}

func TestRelationNormalisation(t *testing.T) {
	m := New("rel")
	x := m.AddVar("x")
	y := m.AddVar("y")

	r := Leq(x, C(3))
	if r.Upper != 3 || !math.IsInf(r.Lower, -1) {
		t.Errorf("Leq with constant rhs: got [%g, %g]", r.Lower, r.Upper)
	}
	r = Geq(x, y)
	if r.Upper != 0 {
		t.Errorf("Geq between expressions should have upper 0, got %g", r.Upper)
	}
	x.Value, y.Value = 1, 4
	if r.Body.Eval() != 3 {
		t.Errorf("Expected body y - x = 3, got %g", r.Body.Eval())
	}
}

func TestUniqueName(t *testing.T) {
	m := New("names")
	m.AddVar("x")
	if got := m.UniqueName("x"); got != "x_2" {
		t.Errorf("Expected x_2, got %s", got)
	}
	if got := m.UniqueName("y"); got != "y" {
		t.Errorf("Expected y, got %s", got)
	}
}

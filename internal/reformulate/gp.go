package reformulate

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/uncset"
	"gonum.org/v1/gonum/mat"
)

// GP replaces relations over Gaussian process credible regions by the
// closed form det ± F·sqrt(aᵀΣa), with the moments predicted at the current
// values of the oracle inputs.
type GP struct{}

// Name implements Transformation.
func (*GP) Name() string { return NameGP }

// Apply implements Transformation.
func (*GP) Apply(m *model.Model) error {
	return each(m, func(g uncset.Geometry) bool {
		gp, ok := g.(*uncset.GPCredible)
		return ok && gp.Warped == nil
	}, func(t *Target, g uncset.Geometry) error {
		gp := g.(*uncset.GPCredible)
		a, err := Extract(t.Expr(), t.Param)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
		idx := a.Support()
		mean, cov, err := moments(gp, idx)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
		sub := &Affine{Param: a.Param, Constant: a.Constant}
		for _, i := range idx {
			sub.Coefs = append(sub.Coefs, a.Coefs[i])
		}
		det, pad := ellipsoidTerms(sub, mean, cov)
		closedForm(m, t, det, pad, gp.F, true)
		slog.Debug("Applied GP counterpart", "relation", t.Name(), "set", t.Set.Name(), "quantile", gp.F)
		return nil
	})
}

// moments predicts the oracle at the inputs of the parameter elements idx.
func moments(gp *uncset.GPCredible, idx []int) ([]float64, *mat.SymDense, error) {
	points := make([][]float64, len(idx))
	for k, i := range idx {
		points[k] = make([]float64, len(gp.Inputs[i]))
		for j, e := range gp.Inputs[i] {
			points[k][j] = e.Eval()
		}
	}
	mean, cov, err := gp.Predictor.Predict(points)
	if err != nil {
		return nil, nil, fmt.Errorf("predict: %w", err)
	}
	if len(mean) != len(idx) {
		return nil, nil, fmt.Errorf("predictor returned %d means for %d points", len(mean), len(idx))
	}
	return mean, cov, nil
}

// WarpedGP replaces relations over warped GP credible regions by the Wolfe
// dual of the inner worst-case problem.
type WarpedGP struct {
	// InitializeWolfe sets the multiplier to the value consistent with the
	// initial auxiliary point.
	InitializeWolfe bool
}

// Name implements Transformation.
func (*WarpedGP) Name() string { return NameWarpedGP }

// Apply implements Transformation.
func (w *WarpedGP) Apply(m *model.Model) error {
	return each(m, func(g uncset.Geometry) bool {
		gp, ok := g.(*uncset.GPCredible)
		return ok && gp.Warped != nil
	}, func(t *Target, g uncset.Geometry) error {
		return w.reformulate(m, t, g.(*uncset.GPCredible))
	})
}

func (w *WarpedGP) reformulate(m *model.Model, t *Target, gp *uncset.GPCredible) error {
	if c := t.Constraint; c != nil && c.HasUpper() == c.HasLower() {
		return fmt.Errorf("%s: %w", t.Name(), model.ErrUnsupportedBothBounds)
	}
	a, err := Extract(t.Expr(), t.Param)
	if err != nil {
		return fmt.Errorf("%s: %w", t.Name(), err)
	}
	name := t.Name()

	idx := a.Support()
	mean, cov, err := moments(gp, idx)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	// Auxiliary point in parameter space, kept inside the parameter bounds and
	// the box enclosing the credible region.
	y := m.AddVars(m.UniqueName(name+"_y"), t.Param.Len())
	for i, p := range t.Param.Vars {
		v := y.At(i)
		v.SetBounds(p.Lower, p.Upper)
		v.Value = p.Nominal
		if !math.IsInf(p.Lower, 0) && !math.IsInf(p.Upper, 0) {
			v.Value = 0.5 * (p.Lower + p.Upper)
		}
	}
	for k, i := range idx {
		half := math.Sqrt(gp.F * cov.At(k, k))
		lo, okLo := uncset.InverseWarp(gp.Warped, mean[k]-half)
		hi, okHi := uncset.InverseWarp(gp.Warped, mean[k]+half)
		if !okLo || !okHi {
			continue
		}
		v := y.At(i)
		v.SetBounds(math.Max(v.Lower, lo), math.Min(v.Upper, hi))
		v.Value = math.Min(math.Max(v.Value, v.Lower), v.Upper)
	}

	// The multiplier sign follows the direction of the worst case: u <= 0
	// when the worst case maximizes a·y.
	upper := t.Objective != nil && t.Objective.Sense == model.Minimize ||
		t.Constraint != nil && t.Constraint.HasUpper()
	dom := model.NonNegativeReals
	if upper {
		dom = model.NonPositiveReals
	}
	u := m.AddVar(m.UniqueName(name+"_u"), model.WithDomain(dom))

	sub := make(map[*model.Var]model.Expr, t.Param.Len())
	for i, p := range t.Param.Vars {
		sub[p] = y.At(i)
	}
	if c := t.Constraint; c != nil {
		m.AddConstraint(m.UniqueName(name+"_primal"), model.Range(c.Lower, model.Substitute(c.Body, sub), c.Upper))
	} else {
		m.AddObjective(m.UniqueName(name+"_primal"), model.Substitute(t.Objective.Expr, sub), t.Objective.Sense)
	}

	n := len(idx)
	// scaled[k] = a_k / h'(y_k)
	scaled := make([]model.Expr, n)
	for k, i := range idx {
		scaled[k] = model.Mul(a.Coefs[i], model.PowE(gp.Warped.WarpDeriv(y.At(i)), -1))
	}

	// Σ·D·a + 2u(h(y) - μ) = 0
	for k, i := range idx {
		terms := make([]model.Expr, 0, n+1)
		for l := 0; l < n; l++ {
			if s := cov.At(k, l); s != 0 {
				terms = append(terms, model.Scale(s, scaled[l]))
			}
		}
		resid := model.Sub(gp.Warped.Warp(y.At(i)), model.C(mean[k]))
		terms = append(terms, model.Scale(2, model.Mul(u, resid)))
		m.AddConstraint(m.UniqueName(fmt.Sprintf("%s_stationarity[%d]", name, i)), model.Eq(model.Add(terms...), model.C(0)))
	}

	// 4u²F = aᵀDΣDa
	var quad []model.Expr
	for k := 0; k < n; k++ {
		for l := 0; l < n; l++ {
			if s := cov.At(k, l); s != 0 {
				quad = append(quad, model.Scale(s, model.Mul(scaled[k], scaled[l])))
			}
		}
	}
	rhs := model.Add(quad...)
	m.AddConstraint(m.UniqueName(name+"_dual"), model.Eq(model.Sub(model.Scale(4*gp.F, model.Square(u)), rhs), model.C(0)))

	if w.InitializeWolfe {
		u0 := math.Sqrt(math.Max(rhs.Eval(), 0) / (4 * gp.F))
		if upper {
			u0 = -u0
		}
		u.Value = u0
	}
	slog.Debug("Applied warped GP counterpart", "relation", name, "set", t.Set.Name(), "elements", n)
	return nil
}

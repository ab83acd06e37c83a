package reformulate

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/robustopt/internal/duality"
	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/uncset"
	"gonum.org/v1/gonum/mat"
)

// Polyhedral replaces relations over polyhedral sets by their LP dual.
type Polyhedral struct {
	// Generic builds the dual from the set relations through the duality
	// package instead of the cached matrix.
	Generic bool
}

// Name implements Transformation.
func (p *Polyhedral) Name() string { return NamePolyhedral }

// Apply implements Transformation.
func (p *Polyhedral) Apply(m *model.Model) error {
	return each(m, func(g uncset.Geometry) bool {
		_, ok := g.(*uncset.Polyhedral)
		return ok
	}, func(t *Target, g uncset.Geometry) error {
		a, err := Extract(t.Expr(), t.Param)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
		if p.Generic {
			err = p.generic(m, t, a)
		} else {
			err = p.handBuilt(m, t, a, g.(*uncset.Polyhedral))
		}
		if err == nil {
			slog.Debug("Applied polyhedral counterpart", "relation", t.Name(), "set", t.Set.Name(), "generic", p.Generic)
		}
		return err
	})
}

// handBuilt writes cᵀw <= b for all Mat·w <= Rhs as d >= 0, Matᵀd = c,
// dᵀRhs <= b.
func (p *Polyhedral) handBuilt(m *model.Model, t *Target, a *Affine, poly *uncset.Polyhedral) error {
	if c := t.Constraint; c != nil {
		if c.HasUpper() {
			b := model.Sub(model.C(c.Upper), a.Constant)
			addPolyhedralDual(m, c.Name+"_counterpart_upper", a.Coefs, b, poly)
		}
		if c.HasLower() {
			neg := make([]model.Expr, len(a.Coefs))
			for i, x := range a.Coefs {
				neg[i] = model.Neg(x)
			}
			b := model.Sub(a.Constant, model.C(c.Lower))
			addPolyhedralDual(m, c.Name+"_counterpart_lower", neg, b, poly)
		}
		return nil
	}

	o := t.Objective
	s := float64(o.Sense)
	epi := m.AddVar(m.UniqueName(o.Name + "_epigraph"))
	coefs := make([]model.Expr, len(a.Coefs))
	for i, x := range a.Coefs {
		coefs[i] = model.Scale(s, x)
	}
	b := model.Scale(s, model.Sub(epi, a.Constant))
	addPolyhedralDual(m, o.Name+"_counterpart", coefs, b, poly)
	m.AddObjective(m.UniqueName(o.Name+"_new"), epi, o.Sense)
	return nil
}

func addPolyhedralDual(m *model.Model, prefix string, c []model.Expr, b model.Expr, poly *uncset.Polyhedral) {
	rows, cols := poly.Mat.Dims()
	d := m.AddVars(m.UniqueName(prefix+"_dual"), rows, model.WithDomain(model.NonNegativeReals))
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, poly.Mat)
		lhs := model.Dot(col, d.Exprs())
		// A zero column against a zero coefficient is trivially satisfied.
		if lv, ok := model.IsConst(lhs); ok && lv == 0 {
			if cv, ok := model.IsConst(c[j]); ok && cv == 0 {
				continue
			}
		}
		m.AddConstraint(m.UniqueName(fmt.Sprintf("%s_cons[%d]", prefix, j)), model.Eq(lhs, c[j]))
	}
	m.AddConstraint(m.UniqueName(prefix+"_obj"), model.Leq(model.Dot(poly.Rhs, d.Exprs()), b))
}

// generic dualizes max body over the set relations with the duality package.
func (p *Polyhedral) generic(m *model.Model, t *Target, a *Affine) error {
	rels, err := uncset.Constraints(t.Set, t.Param, t.Param.Exprs())
	if err != nil {
		return err
	}
	body := a.At(t.Param.Exprs())
	install := func(prefix string, objective model.Expr) (*duality.Dual, error) {
		lp, err := duality.FromRelations(objective, rels, t.Param.Vars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name(), err)
		}
		return lp.Install(m, m.UniqueName(prefix)), nil
	}

	if c := t.Constraint; c != nil {
		if c.HasUpper() {
			d, err := install(c.Name+"_counterpart_upper", body)
			if err != nil {
				return err
			}
			m.AddConstraint(m.UniqueName(c.Name+"_counterpart_upper_obj"), model.Range(math.Inf(-1), d.Objective, c.Upper))
		}
		if c.HasLower() {
			d, err := install(c.Name+"_counterpart_lower", model.Neg(body))
			if err != nil {
				return err
			}
			m.AddConstraint(m.UniqueName(c.Name+"_counterpart_lower_obj"), model.Range(math.Inf(-1), d.Objective, -c.Lower))
		}
		return nil
	}

	o := t.Objective
	s := float64(o.Sense)
	epi := m.AddVar(m.UniqueName(o.Name + "_epigraph"))
	d, err := install(o.Name+"_counterpart", model.Scale(s, body))
	if err != nil {
		return err
	}
	m.AddConstraint(m.UniqueName(o.Name+"_counterpart_obj"), model.Leq(d.Objective, model.Scale(s, epi)))
	m.AddObjective(m.UniqueName(o.Name+"_new"), epi, o.Sense)
	return nil
}

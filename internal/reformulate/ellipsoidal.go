package reformulate

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/uncset"
	"gonum.org/v1/gonum/mat"
)

// Ellipsoidal replaces relations over ellipsoidal sets by their closed-form
// worst case aᵀμ ± sqrt(aᵀΣa).
type Ellipsoidal struct {
	// Root writes the square root explicitly. Otherwise a padding variable
	// p >= 0 with aᵀΣa <= p² is introduced.
	Root bool
}

// Name implements Transformation.
func (e *Ellipsoidal) Name() string { return NameEllipsoidal }

// Apply implements Transformation.
func (e *Ellipsoidal) Apply(m *model.Model) error {
	return each(m, func(g uncset.Geometry) bool {
		_, ok := g.(*uncset.Ellipsoidal)
		return ok
	}, func(t *Target, g uncset.Geometry) error {
		a, err := Extract(t.Expr(), t.Param)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
		ell := g.(*uncset.Ellipsoidal)
		det, pad := ellipsoidTerms(a, ell.Mean, ell.Cov)
		closedForm(m, t, det, pad, 1, e.Root)
		slog.Debug("Applied ellipsoidal counterpart", "relation", t.Name(), "set", t.Set.Name(), "root", e.Root)
		return nil
	})
}

// ellipsoidTerms returns det = c + aᵀμ and pad = aᵀΣa.
func ellipsoidTerms(a *Affine, mean []float64, cov mat.Symmetric) (model.Expr, model.Expr) {
	det := model.Add(a.Constant, model.Dot(mean, a.Coefs))
	n := len(a.Coefs)
	var terms []model.Expr
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if s := cov.At(i, j); s != 0 {
				terms = append(terms, model.Scale(s, model.Mul(a.Coefs[i], a.Coefs[j])))
			}
		}
	}
	return det, model.Add(terms...)
}

// closedForm installs det ± scale*sqrt(pad) for every side of t. With root
// false the square root is replaced by a padding variable.
func closedForm(m *model.Model, t *Target, det, pad model.Expr, scale float64, root bool) {
	padding := func(name string) model.Expr {
		if root {
			return model.Scale(scale, model.Sqrt(pad))
		}
		p := m.AddVar(m.UniqueName(name), model.WithBounds(0, math.Inf(1)))
		m.AddConstraint(m.UniqueName(name+"_det"),
			model.Leq(model.Scale(scale*scale, pad), model.Square(p)))
		return p
	}

	if c := t.Constraint; c != nil {
		if c.HasUpper() {
			p := padding(c.Name + "_padding_upper")
			m.AddConstraint(m.UniqueName(c.Name+"_counterpart_upper"),
				model.Range(math.Inf(-1), model.Add(det, p), c.Upper))
		}
		if c.HasLower() {
			p := padding(c.Name + "_padding_lower")
			m.AddConstraint(m.UniqueName(c.Name+"_counterpart_lower"),
				model.Range(c.Lower, model.Sub(det, p), math.Inf(1)))
		}
		return
	}
	o := t.Objective
	p := padding(o.Name + "_padding")
	m.AddObjective(m.UniqueName(o.Name+"_counterpart"),
		model.Add(det, model.Scale(float64(o.Sense), p)), o.Sense)
}

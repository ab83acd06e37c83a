package uncset

import (
	"fmt"
	"math"

	"github.com/cwbudde/robustopt/internal/model"
	"gonum.org/v1/gonum/mat"
)

// Constraints returns the defining relations of s rewritten over w, where
// w[i] stands for element i of param. Generic sets substitute their own
// relations; library shapes synthesize theirs.
func Constraints(s *Set, param *model.VarSet, w []model.Expr) ([]model.Relation, error) {
	if len(w) != param.Len() {
		return nil, fmt.Errorf("uncset %s: got %d expressions for %d parameter elements", s.name, len(w), param.Len())
	}
	switch lib := s.lib.(type) {
	case nil:
		if s.IsEmpty() {
			return nil, fmt.Errorf("%w: %s", model.ErrEmptyUncertaintySet, s.name)
		}
		sub := make(map[*model.Var]model.Expr, len(w))
		for i, v := range param.Vars {
			sub[v] = w[i]
		}
		var out []model.Relation
		for _, c := range s.Relations() {
			out = append(out, model.Range(c.Lower, model.Substitute(c.Body, sub), c.Upper))
		}
		return out, nil
	case *Polyhedral:
		return lib.relations(w)
	case *Ellipsoidal:
		return lib.relations(w)
	}
	return nil, fmt.Errorf("looks like the cutting plane solver is not applicable to library set %s, try romodel.reformulation", s.name)
}

func (p *Polyhedral) relations(w []model.Expr) ([]model.Relation, error) {
	rows, cols := p.Mat.Dims()
	if cols != len(w) {
		return nil, fmt.Errorf("polyhedral set has %d columns, got %d expressions", cols, len(w))
	}
	out := make([]model.Relation, 0, rows)
	for i := 0; i < rows; i++ {
		out = append(out, model.Range(math.Inf(-1), model.Dot(mat.Row(nil, i, p.Mat), w), p.Rhs[i]))
	}
	return out, nil
}

func (e *Ellipsoidal) relations(w []model.Expr) ([]model.Relation, error) {
	n := len(e.Mean)
	if n != len(w) {
		return nil, fmt.Errorf("ellipsoidal set has dimension %d, got %d expressions", n, len(w))
	}
	var inv mat.Dense
	if err := inv.Inverse(e.Cov); err != nil {
		return nil, fmt.Errorf("ellipsoidal set covariance is singular: %w", err)
	}
	centered := make([]model.Expr, n)
	for i := range w {
		centered[i] = model.Sub(w[i], model.C(e.Mean[i]))
	}
	q := make([][]float64, n)
	for i := range q {
		q[i] = mat.Row(nil, i, &inv)
	}
	return []model.Relation{model.Range(math.Inf(-1), model.Quad(q, centered), 1)}, nil
}

// Expand returns a generic set named name whose relations are the
// synthesized constraints of the library set s over param.
func Expand(s *Set, name string, param *model.VarSet) (*Set, error) {
	rels, err := Constraints(s, param, param.Exprs())
	if err != nil {
		return nil, err
	}
	out := New(name)
	for _, r := range rels {
		out.Add(r)
	}
	return out, nil
}

// Package reformulate replaces uncertain constraints and objectives by
// deterministic robust counterparts, one transformation per set geometry.
package reformulate

import (
	"fmt"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/uncset"
)

// Affine is body = Constant + sum_i Coefs[i]*Param.At(i). Coefficients and
// the constant are expressions in the remaining decision vars.
type Affine struct {
	Param    *model.VarSet
	Coefs    []model.Expr
	Constant model.Expr
}

// UncertainParam returns the single uncertain collection referenced by e, or
// nil when e is certain.
func UncertainParam(e model.Expr) (*model.VarSet, error) {
	var param *model.VarSet
	for _, v := range model.Vars(e) {
		if v.Kind() != model.Uncertain {
			continue
		}
		switch {
		case param == nil:
			param = v.Set()
		case param != v.Set():
			return nil, fmt.Errorf("%w: %s and %s", model.ErrMultipleUncertainParameterCollections, param.Name, v.Set().Name)
		}
	}
	return param, nil
}

// Extract returns the affine dependency of e on param. Every other var is
// held constant during extraction and released afterwards.
func Extract(e model.Expr, param *model.VarSet) (*Affine, error) {
	g := model.FixAllExcept(model.Vars(e), func(v *model.Var) bool { return v.Set() == param })
	defer g.Restore()

	r := model.StandardRepn(e)
	if !r.IsLinear() {
		return nil, fmt.Errorf("%w: %s in %s", model.ErrNonLinearInUncertainty, param.Name, e)
	}
	a := &Affine{Param: param, Coefs: make([]model.Expr, param.Len()), Constant: r.Constant}
	for i, v := range param.Vars {
		a.Coefs[i] = r.LinearCoef(v)
	}
	return a, nil
}

// At evaluates the rule symbolically at w.
func (a *Affine) At(w []model.Expr) model.Expr {
	terms := make([]model.Expr, 0, len(w)+1)
	terms = append(terms, a.Constant)
	for i, c := range a.Coefs {
		terms = append(terms, model.Mul(c, w[i]))
	}
	return model.Add(terms...)
}

// AtValues evaluates the rule at numeric w, keeping coefficients symbolic.
func (a *Affine) AtValues(w []float64) model.Expr {
	xs := make([]model.Expr, len(w))
	for i, v := range w {
		xs[i] = model.C(v)
	}
	return a.At(xs)
}

// Numeric evaluates coefficients and constant at the current var values.
func (a *Affine) Numeric() ([]float64, float64) {
	coefs := make([]float64, len(a.Coefs))
	for i, c := range a.Coefs {
		coefs[i] = c.Eval()
	}
	return coefs, a.Constant.Eval()
}

// Support lists the parameter elements with a coefficient that is not a
// literal zero.
func (a *Affine) Support() []int {
	var idx []int
	for i, c := range a.Coefs {
		if v, ok := model.IsConst(c); ok && v == 0 {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

// Target is one active uncertain constraint or objective with its set.
type Target struct {
	Constraint *model.Constraint
	Objective  *model.Objective
	Param      *model.VarSet
	Set        *uncset.Set
}

// Name returns the name of the underlying relation.
func (t *Target) Name() string {
	if t.Constraint != nil {
		return t.Constraint.Name
	}
	return t.Objective.Name
}

// Expr returns the constraint body or objective expression.
func (t *Target) Expr() model.Expr {
	if t.Constraint != nil {
		return t.Constraint.Body
	}
	return t.Objective.Expr
}

// Deactivate switches the original relation off.
func (t *Target) Deactivate() {
	if t.Constraint != nil {
		t.Constraint.Deactivate()
		return
	}
	t.Objective.Deactivate()
}

// Geometry classifies the target's set.
func (t *Target) Geometry() (uncset.Geometry, error) {
	return uncset.Classify(t.Set, t.Param)
}

// Targets scans the active constraints and objectives of m for uncertain
// ones, constraints first.
func Targets(m *model.Model) ([]*Target, error) {
	var out []*Target
	add := func(t *Target) error {
		param, err := UncertainParam(t.Expr())
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
		if param == nil {
			return nil
		}
		set, err := SetOf(m, param)
		if err != nil {
			return err
		}
		t.Param, t.Set = param, set
		out = append(out, t)
		return nil
	}
	for _, c := range m.ActiveConstraints() {
		if err := add(&Target{Constraint: c}); err != nil {
			return nil, err
		}
	}
	for _, o := range m.ActiveObjectives() {
		if err := add(&Target{Objective: o}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SetOf resolves the uncertainty set of param.
func SetOf(m *model.Model, param *model.VarSet) (*uncset.Set, error) {
	s, err := m.UncertaintySetOf(param)
	if err != nil {
		return nil, err
	}
	set, ok := s.(*uncset.Set)
	if !ok {
		return nil, fmt.Errorf("uncertainty set %s of %s has unsupported type %T", s.Name(), param.Name, s)
	}
	return set, nil
}

// CheckConstraint rejects uncertain equalities.
func CheckConstraint(t *Target) error {
	if t.Constraint != nil && t.Constraint.IsEquality() {
		return fmt.Errorf("%s: %w", t.Name(), model.ErrUnsupportedEquality)
	}
	return nil
}

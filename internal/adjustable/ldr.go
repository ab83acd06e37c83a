// Package adjustable removes wait-and-see decisions from a model, either by
// linear decision rules in the uncertain parameters or by treating them as
// ordinary first-stage decisions.
package adjustable

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/robustopt/internal/model"
)

// Transformation names.
const (
	NameLDR     = "romodel.adjustable.ldr"
	NameNominal = "romodel.adjustable.nominal"
)

// LDR substitutes every adjustable var y[i] by sum_j coef[i,j]*w[j] over the
// uncertain collections y depends on.
type LDR struct{}

// Name implements the transformation contract.
func (*LDR) Name() string { return NameLDR }

// rule is the decision rule of one adjustable collection.
type rule struct {
	adj   *model.VarSet
	exprs []model.Expr
}

// Apply replaces adjustable vars in every active constraint and objective.
// Relations without adjustable vars are left alone.
func (l *LDR) Apply(m *model.Model) error {
	rules, sub, err := l.rules(m)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	used := false
	for _, c := range m.ActiveConstraints() {
		if !references(c.Body, sub) {
			continue
		}
		used = true
		body := model.Substitute(c.Body, sub)
		if c.IsEquality() {
			if err := splitEquality(m, c, model.Sub(body, model.C(c.Upper))); err != nil {
				return err
			}
		} else {
			m.AddConstraint(m.UniqueName(c.Name+"_ldr"), model.Range(c.Lower, body, c.Upper))
		}
		c.Deactivate()
	}
	for _, o := range m.ActiveObjectives() {
		if !references(o.Expr, sub) {
			continue
		}
		used = true
		m.AddObjective(m.UniqueName(o.Name+"_ldr"), model.Substitute(o.Expr, sub), o.Sense)
		o.Deactivate()
	}
	if !used {
		return nil
	}

	// Bounds and sign domains of the adjustables move onto the rules.
	for _, r := range rules {
		for i, v := range r.adj.Vars {
			if v.Domain.IsDiscrete() {
				slog.Warn("Decision rule relaxes integrality", "var", v.Name(), "domain", v.Domain)
			}
			lo, hi := v.EffectiveBounds()
			if math.IsInf(lo, -1) && math.IsInf(hi, 1) {
				continue
			}
			m.AddConstraint(m.UniqueName(fmt.Sprintf("%s_bounds[%d]", r.adj.Name, i)), model.Range(lo, r.exprs[i], hi))
		}
		slog.Debug("Applied linear decision rule", "adjustable", r.adj.Name, "uncparams", r.adj.UncParams)
	}
	return nil
}

// Evaluate sets each adjustable var to its decision rule at the current
// values of the uncertain parameters, which start at their nominal values.
// Collections without coefficients are left untouched.
func (l *LDR) Evaluate(m *model.Model) {
	for _, adj := range m.VarSets() {
		if adj.Kind != model.Adjustable || !hasRules(m, adj) {
			continue
		}
		for _, v := range adj.Vars {
			v.Value = 0
		}
		for _, pname := range adj.UncParams {
			param := m.VarSet(pname)
			coef := m.VarSet(adj.Name + "_" + param.Name + "_coef")
			for i, v := range adj.Vars {
				for j, w := range param.Vars {
					v.Value += coef.At(i*param.Len()+j).Value * w.Value
				}
			}
		}
	}
}

func hasRules(m *model.Model, adj *model.VarSet) bool {
	for _, pname := range adj.UncParams {
		param := m.VarSet(pname)
		if param == nil {
			return false
		}
		coef := m.VarSet(adj.Name + "_" + param.Name + "_coef")
		if coef == nil || coef.Len() != adj.Len()*param.Len() {
			return false
		}
	}
	return len(adj.UncParams) > 0
}

// rules creates the coefficient collections and the substitution map.
// Coefficients already present from an earlier pass are reused.
func (l *LDR) rules(m *model.Model) ([]rule, map[*model.Var]model.Expr, error) {
	var rules []rule
	sub := make(map[*model.Var]model.Expr)
	for _, adj := range m.VarSets() {
		if adj.Kind != model.Adjustable {
			continue
		}
		terms := make([][]model.Expr, adj.Len())
		for _, pname := range adj.UncParams {
			param := m.VarSet(pname)
			if param == nil || param.Kind != model.Uncertain {
				return nil, nil, fmt.Errorf("adjustable %s depends on %s, which is not an uncertain parameter of model %s", adj.Name, pname, m.Name)
			}
			name := adj.Name + "_" + param.Name + "_coef"
			coef := m.VarSet(name)
			if coef == nil {
				coef = m.AddVars(name, adj.Len()*param.Len())
			}
			if coef.Len() != adj.Len()*param.Len() {
				return nil, nil, fmt.Errorf("coefficient collection %s has %d vars, want %d", name, coef.Len(), adj.Len()*param.Len())
			}
			for i := range terms {
				for j, w := range param.Vars {
					terms[i] = append(terms[i], model.Mul(coef.At(i*param.Len()+j), w))
				}
			}
		}
		r := rule{adj: adj, exprs: make([]model.Expr, adj.Len())}
		for i, v := range adj.Vars {
			r.exprs[i] = model.Add(terms[i]...)
			sub[v] = r.exprs[i]
		}
		rules = append(rules, r)
	}
	return rules, sub, nil
}

func references(e model.Expr, sub map[*model.Var]model.Expr) bool {
	for _, v := range model.Vars(e) {
		if _, ok := sub[v]; ok {
			return true
		}
	}
	return false
}

// splitEquality requires body == 0 for every realization: each coefficient of
// the uncertain parameters and the remaining constant must vanish.
func splitEquality(m *model.Model, c *model.Constraint, body model.Expr) error {
	g := model.FixAllExcept(model.Vars(body), func(v *model.Var) bool { return v.Kind() == model.Uncertain })
	r := model.StandardRepn(body)
	g.Restore()
	if !r.IsQuadratic() {
		return fmt.Errorf("%s: %w", c.Name, model.ErrNonLinearInUncertainty)
	}

	coefs := make([]model.Expr, 0, len(r.Linear)+len(r.Quadratic)+1)
	if v, ok := model.IsConst(r.Constant); !ok {
		coefs = append(coefs, r.Constant)
	} else if v != 0 {
		return fmt.Errorf("%s: %w: %g", c.Name, model.ErrNonVanishingConstant, v)
	}
	for _, t := range r.Linear {
		coefs = append(coefs, t.Coef)
	}
	for _, t := range r.Quadratic {
		coefs = append(coefs, t.Coef)
	}

	name := m.UniqueName(c.Name + "_ldr")
	k := 0
	for _, coef := range coefs {
		if v, ok := model.IsConst(coef); ok {
			if v != 0 {
				return fmt.Errorf("%s: %w: coefficient %g", c.Name, model.ErrNonVanishingConstant, v)
			}
			continue
		}
		m.AddConstraint(fmt.Sprintf("%s[%d]", name, k), model.Eq(coef, model.C(0)))
		k++
	}
	slog.Debug("Split adjustable equality", "constraint", c.Name, "parts", k)
	return nil
}

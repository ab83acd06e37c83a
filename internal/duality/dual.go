// Package duality builds LP duals with possibly symbolic coefficients.
package duality

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/robustopt/internal/model"
)

// Row is sum_j Coefs[j]*w_j compared with Rhs.
type Row struct {
	Coefs []model.Expr
	Rhs   model.Expr
}

// LP is the primal max Objᵀw + Const s.t. Ineq rows <= rhs, Eq rows == rhs,
// with w free. Coefficients are expressions in leaves other than w.
type LP struct {
	Vars  []*model.Var
	Obj   []model.Expr
	Const model.Expr
	Ineq  []Row
	Eq    []Row
}

// FromRelations extracts a primal LP over w from a linear objective and
// linear relations. Lower bounds become negated rows, equalities go to Eq.
func FromRelations(objective model.Expr, rels []model.Relation, w []*model.Var) (*LP, error) {
	free := make(map[*model.Var]bool, len(w))
	for _, v := range w {
		free[v] = true
	}
	leaves := model.Vars(objective)
	for _, r := range rels {
		leaves = append(leaves, model.Vars(r.Body)...)
	}
	g := model.FixAllExcept(leaves, func(v *model.Var) bool { return free[v] })
	defer g.Restore()

	lp := &LP{Vars: w}
	obj, k, err := linearRow(objective, w)
	if err != nil {
		return nil, fmt.Errorf("objective: %w", err)
	}
	lp.Obj, lp.Const = obj, k

	for i, r := range rels {
		coefs, k, err := linearRow(r.Body, w)
		if err != nil {
			return nil, fmt.Errorf("relation %d: %w", i, err)
		}
		switch {
		case r.Lower == r.Upper:
			lp.Eq = append(lp.Eq, Row{Coefs: coefs, Rhs: model.Sub(model.C(r.Upper), k)})
		default:
			if !math.IsInf(r.Upper, 1) {
				lp.Ineq = append(lp.Ineq, Row{Coefs: coefs, Rhs: model.Sub(model.C(r.Upper), k)})
			}
			if !math.IsInf(r.Lower, -1) {
				neg := make([]model.Expr, len(coefs))
				for j, c := range coefs {
					neg[j] = model.Neg(c)
				}
				lp.Ineq = append(lp.Ineq, Row{Coefs: neg, Rhs: model.Sub(k, model.C(r.Lower))})
			}
		}
	}
	return lp, nil
}

func linearRow(e model.Expr, w []*model.Var) ([]model.Expr, model.Expr, error) {
	r := model.StandardRepn(e)
	if !r.IsLinear() {
		return nil, nil, fmt.Errorf("%w: %s", model.ErrNonLinearInUncertainty, e)
	}
	coefs := make([]model.Expr, len(w))
	for j, v := range w {
		coefs[j] = r.LinearCoef(v)
	}
	return coefs, r.Constant, nil
}

// Dual is an installed dual problem.
type Dual struct {
	// Ineq holds one non-negative multiplier per inequality row.
	Ineq *model.VarSet
	// Eq holds one free multiplier per equality row, nil without equalities.
	Eq *model.VarSet
	// Objective is hᵀλ + fᵀν + Const, to be minimized.
	Objective model.Expr
	// Stationarity holds Gᵀλ + Eᵀν == c, one per primal var.
	Stationarity []*model.Constraint
}

// Install adds the dual variables and constraints to m, naming them with
// prefix.
func (lp *LP) Install(m *model.Model, prefix string) *Dual {
	d := &Dual{}
	d.Ineq = m.AddVars(m.UniqueName(prefix+"_dual"), len(lp.Ineq), model.WithDomain(model.NonNegativeReals))
	if len(lp.Eq) > 0 {
		d.Eq = m.AddVars(m.UniqueName(prefix+"_dual_eq"), len(lp.Eq))
	}

	terms := []model.Expr{lp.Const}
	for i, row := range lp.Ineq {
		terms = append(terms, model.Mul(row.Rhs, d.Ineq.At(i)))
	}
	for i, row := range lp.Eq {
		terms = append(terms, model.Mul(row.Rhs, d.Eq.At(i)))
	}
	d.Objective = model.Add(terms...)

	for j := range lp.Vars {
		var lhs []model.Expr
		for i, row := range lp.Ineq {
			lhs = append(lhs, model.Mul(row.Coefs[j], d.Ineq.At(i)))
		}
		for i, row := range lp.Eq {
			lhs = append(lhs, model.Mul(row.Coefs[j], d.Eq.At(i)))
		}
		name := m.UniqueName(fmt.Sprintf("%s_stationarity[%d]", prefix, j))
		d.Stationarity = append(d.Stationarity, m.AddConstraint(name, model.Eq(model.Sub(model.Add(lhs...), lp.Obj[j]), model.C(0))))
	}
	slog.Debug("Installed LP dual", "prefix", prefix,
		"multipliers", len(lp.Ineq)+len(lp.Eq), "constraints", len(d.Stationarity))
	return d
}

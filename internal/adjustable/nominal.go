package adjustable

import (
	"log/slog"

	"github.com/cwbudde/robustopt/internal/model"
)

// Nominal turns every adjustable collection into an ordinary decision
// collection. The result is a relaxation: the decisions no longer react to
// the realized uncertainty.
type Nominal struct{}

// Name implements the transformation contract.
func (*Nominal) Name() string { return NameNominal }

// Apply relaxes m and discards the restore hook.
func (*Nominal) Apply(m *model.Model) error {
	Relax(m)
	return nil
}

// Relax replaces each adjustable collection y by a decision collection
// y_nominal with the same bounds, domain, values and fixed state. Relations
// referencing y are deactivated and replaced by copies over y_nominal.
//
// The returned function undoes the replacement: it copies the values of
// y_nominal back into y, deletes everything Relax added and reactivates the
// original relations.
func Relax(m *model.Model) (restore func()) {
	sub := make(map[*model.Var]model.Expr)
	pairs := make(map[*model.Var]*model.Var)
	var added []*model.VarSet
	for _, adj := range m.VarSets() {
		if adj.Kind != model.Adjustable {
			continue
		}
		nom := m.AddVars(m.UniqueName(adj.Name+"_nominal"), adj.Len())
		for i, v := range adj.Vars {
			n := nom.At(i)
			n.SetBounds(v.Lower, v.Upper)
			n.Domain = v.Domain
			n.Value = v.Value
			if v.Fixed() {
				n.Fix()
			}
			sub[v] = n
			pairs[v] = n
		}
		added = append(added, nom)
	}
	if len(added) == 0 {
		return func() {}
	}

	var replaced []*model.Constraint
	var copies []*model.Constraint
	for _, c := range m.ActiveConstraints() {
		if !references(c.Body, sub) {
			continue
		}
		copies = append(copies, m.AddConstraint(m.UniqueName(c.Name+"_nominal"),
			model.Range(c.Lower, model.Substitute(c.Body, sub), c.Upper)))
		c.Deactivate()
		replaced = append(replaced, c)
	}
	var replacedObjs, copyObjs []*model.Objective
	for _, o := range m.ActiveObjectives() {
		if !references(o.Expr, sub) {
			continue
		}
		copyObjs = append(copyObjs, m.AddObjective(m.UniqueName(o.Name+"_nominal"), model.Substitute(o.Expr, sub), o.Sense))
		o.Deactivate()
		replacedObjs = append(replacedObjs, o)
	}
	slog.Debug("Relaxed adjustable variables", "collections", len(added), "constraints", len(replaced))

	return func() {
		for v, n := range pairs {
			v.Value = n.Value
		}
		for _, c := range copies {
			m.DeleteConstraint(c)
		}
		for _, o := range copyObjs {
			m.DeleteObjective(o)
		}
		for _, s := range added {
			m.DeleteVarSet(s)
		}
		for _, c := range replaced {
			c.Activate()
		}
		for _, o := range replacedObjs {
			o.Activate()
		}
	}
}

package reformulate

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/robustopt/internal/model"
)

// Nominal replaces every uncertain parameter in active relations by its
// nominal value. The relations are rewritten in place.
type Nominal struct{}

// Name implements Transformation.
func (*Nominal) Name() string { return NameNominal }

// Apply implements Transformation.
func (*Nominal) Apply(m *model.Model) error {
	sub := make(map[*model.Var]model.Expr)
	nominal := func(e model.Expr) (model.Expr, bool) {
		changed := false
		for _, v := range model.Vars(e) {
			if v.Kind() == model.Uncertain {
				sub[v] = model.C(v.Nominal)
				changed = true
			}
		}
		if !changed {
			return e, false
		}
		return model.Substitute(e, sub), true
	}
	n := 0
	for _, c := range m.ActiveConstraints() {
		if body, ok := nominal(c.Body); ok {
			c.Body = body
			n++
		}
	}
	for _, o := range m.ActiveObjectives() {
		if expr, ok := nominal(o.Expr); ok {
			o.Expr = expr
			n++
		}
	}
	slog.Debug("Replaced uncertain parameters by nominal values", "relations", n)
	return nil
}

// Unknown fails on any uncertain relation still active. It runs after every
// counterpart transformation, so the remaining sets have a geometry none of
// them recognised.
type Unknown struct{}

// Name implements Transformation.
func (*Unknown) Name() string { return NameUnknown }

// Apply implements Transformation.
func (*Unknown) Apply(m *model.Model) error {
	targets, err := Targets(m)
	if err != nil {
		return err
	}
	if len(targets) > 0 {
		return fmt.Errorf("%w: %s", model.ErrUnknownGeometry, targets[0].Set.Name())
	}
	return nil
}

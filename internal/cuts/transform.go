package cuts

import (
	"log/slog"
	"math"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/reformulate"
)

// NameGenerators is the registry name of the generators transformation.
const NameGenerators = "romodel.generators"

// Generators replaces every uncertain relation by a generator. Uncertain
// objectives move into an epigraph constraint. The generators built by the
// last Apply are kept in Built.
type Generators struct {
	Built []*Generator
}

// Name implements the transformation contract.
func (*Generators) Name() string { return NameGenerators }

// Apply installs generators for the active uncertain relations of m.
func (t *Generators) Apply(m *model.Model) error {
	gens, err := Install(m)
	if err != nil {
		return err
	}
	t.Built = gens
	return nil
}

// Install builds one generator per active uncertain constraint and
// objective and deactivates the originals.
func Install(m *model.Model) ([]*Generator, error) {
	targets, err := reformulate.Targets(m)
	if err != nil {
		return nil, err
	}
	var gens []*Generator
	for _, tg := range targets {
		if err := reformulate.CheckConstraint(tg); err != nil {
			return nil, err
		}
		var g *Generator
		if c := tg.Constraint; c != nil {
			g, err = Build(m, m.UniqueName(c.Name+"_generator"), c.Lower, c.Body, c.Upper)
		} else {
			o := tg.Objective
			epi := m.AddVar(m.UniqueName(o.Name + "_epigraph"))
			body := model.Sub(o.Expr, epi)
			lo, hi := math.Inf(-1), 0.0
			if o.Sense == model.Maximize {
				lo, hi = 0, math.Inf(1)
			}
			g, err = Build(m, m.UniqueName(o.Name+"_generator"), lo, body, hi)
			if err == nil {
				m.AddObjective(m.UniqueName(o.Name+"_new"), epi, o.Sense)
			}
		}
		if err != nil {
			return nil, err
		}
		tg.Deactivate()
		gens = append(gens, g)
	}
	slog.Info("Adding cutting plane generators", "count", len(gens))
	return gens, nil
}

package examples

import (
	"fmt"
	"math"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/uncset"
)

// Facility data: N facilities serve M customers.
var (
	FacilityCost  = []float64{100, 140, 80, 150}
	TransportCost = [][]float64{
		{2.0, 3.0, 1.5, 4.0, 3.3},
		{1.5, 0.4, 1.0, 2.2, 3.5},
		{3.4, 1.4, 2.1, 3.3, 1.6},
		{2.6, 2.1, 2.0, 1.4, 1.3},
	}
	Demand    = []float64{45, 30, 60, 55, 25}
	MaxDemand = []float64{100, 140, 80, 150}
)

// Facility is a two-stage facility location problem. Openings x are here and
// now; shipments y adapt to the realized demand, which lies within 10% of
// its nominal value. Shipment y[i][j] is flattened to index i*M+j.
func Facility() (*Instance, error) {
	n, k := len(FacilityCost), len(Demand)
	m := model.New("facility")
	x := m.AddVars("x", n, model.WithDomain(model.Binary))

	box := uncset.New("uncset")
	d := m.AddUncParam("demand", nil, Demand)
	for j := 0; j < k; j++ {
		box.Add(model.Range(0.9*Demand[j], d.At(j), 1.1*Demand[j]))
	}
	y := m.AddAdjustable("y", n*k, []*model.VarSet{d}, model.WithBounds(0, math.Inf(1)))

	var cost []model.Expr
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			cost = append(cost, model.Scale(TransportCost[i][j], y.At(i*k+j)))
		}
		cost = append(cost, model.Scale(FacilityCost[i], x.At(i)))
	}
	m.AddObjective("obj", model.Add(cost...), model.Minimize)

	for j := 0; j < k; j++ {
		col := make([]model.Expr, n)
		for i := range col {
			col[i] = y.At(i*k + j)
		}
		m.AddConstraint(fmt.Sprintf("sum_y[%d]", j), model.Eq(model.Add(col...), d.At(j)))
	}
	for i := 0; i < n; i++ {
		m.AddConstraint(fmt.Sprintf("max_dem[%d]", i),
			model.Leq(model.Add(y.Exprs()[i*k:(i+1)*k]...), model.Scale(MaxDemand[i], x.At(i))))
	}

	return &Instance{
		Model:   m,
		Param:   d,
		Sets:    map[string]*uncset.Set{"uncset": box},
		Default: "uncset",
	}, nil
}

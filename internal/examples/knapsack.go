package examples

import (
	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/uncset"
)

// Knapsack items in index order.
var (
	KnapsackItems  = []string{"hammer", "wrench", "screwdriver", "towel"}
	KnapsackValue  = []float64{8, 3, 6, 11}
	KnapsackWeight = []float64{5, 7, 4, 3}
)

// KnapsackLimit is the weight capacity.
const KnapsackLimit = 14

var knapsackShape = [][]float64{
	{0.1, 0.01, 0, 0},
	{0.01, 0.1, 0, 0},
	{0, 0, 0.1, 0},
	{0, 0, 0, 0.1},
}

// Knapsack is a binary knapsack with uncertain weights. Sets:
//
//	E     (w-μ)ᵀA(w-μ) <= 1 written as a relation
//	Elib  library ellipsoid with covariance A
//	P     |sum_i p_i (w_i - μ_i)| <= 5.5 for every sign vector p, as relations
//	Plib  the same polyhedron as a library set
func Knapsack() (*Instance, error) {
	m := model.New("knapsack")
	n := len(KnapsackItems)
	x := m.AddVars("x", n, model.WithDomain(model.Binary))

	e := uncset.New("E")
	p := uncset.New("P")
	w := m.AddUncParam("w", nil, KnapsackWeight)

	centered := make([]model.Expr, n)
	for i := range centered {
		centered[i] = model.Sub(w.At(i), model.C(KnapsackWeight[i]))
	}
	e.Add(model.Leq(model.Quad(knapsackShape, centered), model.C(1)))

	signs := signVectors(n)
	rhs := make([]float64, len(signs))
	for k, s := range signs {
		rhs[k] = floats.Dot(s, KnapsackWeight) + 5.5
		p.Add(model.Leq(model.Dot(s, w.Exprs()), model.C(rhs[k])))
	}

	m.AddObjective("value", model.Dot(KnapsackValue, x.Exprs()), model.Maximize)
	m.AddConstraint("weight", model.Leq(model.DotE(w.Exprs(), x.Exprs()), model.C(KnapsackLimit)))

	return &Instance{
		Model: m,
		Param: w,
		Sets: map[string]*uncset.Set{
			"E":    e,
			"Elib": uncset.NewEllipsoidal("Elib", KnapsackWeight, knapsackShape),
			"P":    p,
			"Plib": uncset.NewPolyhedral("Plib", signs, rhs),
		},
		Default: "E",
	}, nil
}

// signVectors enumerates {1,-1}^n with the first component varying slowest.
func signVectors(n int) [][]float64 {
	out := [][]float64{{}}
	for i := 0; i < n; i++ {
		next := make([][]float64, 0, 2*len(out))
		for _, v := range out {
			for _, s := range []float64{1, -1} {
				next = append(next, append(append([]float64(nil), v...), s))
			}
		}
		out = next
	}
	return out
}

package examples

import (
	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/uncset"
)

// PortfolioMean is the nominal return per asset.
var PortfolioMean = []float64{0.1, 0.3, 0.5, 0.7, 0.4}

// Portfolio maximizes the worst-case return of a fully invested portfolio.
// Sets: U is the ball |r-μ|² <= 0.0005 as a relation, Elib the same ball as
// a library set, P and Plib a polytope of half-width 0.001.
func Portfolio() (*Instance, error) {
	m := model.New("portfolio")
	n := len(PortfolioMean)
	x := m.AddVars("x", n, model.WithBounds(0, 1))
	z := m.AddVar("z", model.WithDomain(model.NonNegativeReals))

	u := uncset.New("U")
	p := uncset.New("P")
	r := m.AddUncParam("r", nil, PortfolioMean)

	sq := make([]model.Expr, n)
	for i := range sq {
		sq[i] = model.Square(model.Sub(r.At(i), model.C(PortfolioMean[i])))
	}
	u.Add(model.Leq(model.Add(sq...), model.C(0.0005)))

	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
		cov[i][i] = 0.0005
	}

	mu := PortfolioMean
	rows := [][]float64{
		{1, 1, 0, 0, 0},
		{-1, 1, 0, 0, 0},
		{1, -1, 0, 0, 0},
		{-1, -1, 0, 0, 0},
		{0, 0, 1, 0, 0},
		{0, 0, -1, 0, 0},
		{0, 0, 0, 1, 0},
		{0, 0, 0, -1, 0},
		{0, 0, 0, 0, 1},
		{0, 0, 0, 0, -1},
	}
	rhs := []float64{
		0.001 + mu[0] + mu[1],
		0.001 - mu[0] + mu[1],
		0.001 + mu[0] - mu[1],
		0.001 - mu[0] - mu[1],
		0.001 + mu[2],
		0.001 - mu[2],
		0.001 + mu[3],
		0.001 - mu[3],
		0.001 + mu[4],
		0.001 - mu[4],
	}
	for k, row := range rows {
		p.Add(model.Leq(model.Dot(row, r.Exprs()), model.C(rhs[k])))
	}

	m.AddObjective("obj", z, model.Maximize)
	m.AddConstraint("budget", model.Eq(model.Add(x.Exprs()...), model.C(1)))
	m.AddConstraint("return", model.Geq(model.DotE(r.Exprs(), x.Exprs()), z))

	return &Instance{
		Model: m,
		Param: r,
		Sets: map[string]*uncset.Set{
			"U":    u,
			"Elib": uncset.NewEllipsoidal("Elib", PortfolioMean, cov),
			"P":    p,
			"Plib": uncset.NewPolyhedral("Plib", rows, rhs),
		},
		Default: "U",
	}, nil
}

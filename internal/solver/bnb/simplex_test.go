package bnb

import (
	"math"
	"math/rand"
	"testing"
)

var inf = math.Inf(1)

func TestSolveLPBoundOffsets(t *testing.T) {
	tests := []struct {
		name    string
		p       *lpProblem
		wantObj float64
		wantX   []float64
	}{
		{
			name: "lower bound",
			p: &lpProblem{
				cost: []float64{-3, -2},
				rows: []lpRow{{coef: []float64{2, 2}, lo: -inf, hi: 9}},
				lo:   []float64{0, 1},
				hi:   []float64{4, 10},
			},
			wantObj: -12.5,
			wantX:   []float64{3.5, 1},
		},
		{
			name: "upper bounds only",
			p: &lpProblem{
				cost: []float64{-1, -1},
				rows: []lpRow{{coef: []float64{1, -1}, lo: -10, hi: inf}},
				lo:   []float64{-inf, -inf},
				hi:   []float64{-1, 2},
			},
			wantObj: 1 - 2,
			wantX:   []float64{-1, 2},
		},
		{
			name: "free and fixed",
			p: &lpProblem{
				cost: []float64{1, 4},
				rows: []lpRow{
					{coef: []float64{1, 0}, lo: 2.5, hi: inf},
					{coef: []float64{1, 1}, lo: -inf, hi: 10},
				},
				lo: []float64{-inf, 3},
				hi: []float64{inf, 3},
			},
			wantObj: 2.5 + 12,
			wantX:   []float64{2.5, 3},
		},
		{
			name: "fixed offset in row",
			p: &lpProblem{
				cost: []float64{2, 1},
				rows: []lpRow{{coef: []float64{1, 1}, lo: 4, hi: inf}},
				lo:   []float64{2, 1},
				hi:   []float64{2, 5},
			},
			wantObj: 6,
			wantX:   []float64{2, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, x, obj, err := solveLP(tt.p)
			if err != nil {
				t.Fatalf("solveLP failed: %v", err)
			}
			if status != lpOptimal {
				t.Fatalf("Status = %v, want optimal", status)
			}
			if math.Abs(obj-tt.wantObj) > 1e-9 {
				t.Errorf("Objective = %g, want %g", obj, tt.wantObj)
			}
			for j := range x {
				if math.Abs(x[j]-tt.wantX[j]) > 1e-9 {
					t.Errorf("x = %v, want %v", x, tt.wantX)
					break
				}
			}
		})
	}
}

// Beale's example is degenerate at the origin.
func TestSolveLPDegenerate(t *testing.T) {
	p := &lpProblem{
		cost: []float64{-0.75, 20, -0.5, 6},
		rows: []lpRow{
			{coef: []float64{0.25, -8, -1, 9}, lo: -inf, hi: 0},
			{coef: []float64{0.5, -12, -0.5, 3}, lo: -inf, hi: 0},
			{coef: []float64{0, 0, 1, 0}, lo: -inf, hi: 1},
		},
		lo: []float64{0, 0, 0, 0},
		hi: []float64{inf, inf, inf, inf},
	}
	status, _, obj, err := solveLP(p)
	if err != nil {
		t.Fatalf("solveLP failed: %v", err)
	}
	if status != lpOptimal {
		t.Fatalf("Status = %v, want optimal", status)
	}
	if math.Abs(obj+1.25) > 1e-9 {
		t.Errorf("Objective = %g, want -1.25", obj)
	}
}

func TestSolveLPStatuses(t *testing.T) {
	infeasible := &lpProblem{
		cost: []float64{1, 1},
		rows: []lpRow{
			{coef: []float64{1, 1}, lo: 5, hi: inf},
			{coef: []float64{1, -1}, lo: 0, hi: 0},
		},
		lo: []float64{0, 0},
		hi: []float64{2, 2},
	}
	if status, _, _, err := solveLP(infeasible); err != nil || status != lpInfeasible {
		t.Errorf("Infeasible LP: status %v, err %v", status, err)
	}

	unbounded := &lpProblem{
		cost: []float64{-1, 0},
		rows: []lpRow{{coef: []float64{1, -1}, lo: -inf, hi: 1}},
		lo:   []float64{0, 0},
		hi:   []float64{inf, inf},
	}
	if status, _, _, err := solveLP(unbounded); err != nil || status != lpUnbounded {
		t.Errorf("Unbounded LP: status %v, err %v", status, err)
	}
}

// randomFeasibleLP builds an LP around a known feasible point x0. Every var
// is boxed either by its bounds or by a range row.
func randomFeasibleLP(rng *rand.Rand, n, m int) (*lpProblem, []float64) {
	x0 := make([]float64, n)
	p := &lpProblem{cost: make([]float64, n), lo: make([]float64, n), hi: make([]float64, n)}
	for j := range x0 {
		x0[j] = float64(rng.Intn(11) - 5)
		p.cost[j] = float64(rng.Intn(11) - 5)
		width := float64(rng.Intn(4))
		switch rng.Intn(5) {
		case 0:
			p.lo[j], p.hi[j] = x0[j]-width, inf
		case 1:
			p.lo[j], p.hi[j] = -inf, x0[j]+width
		case 2:
			p.lo[j], p.hi[j] = -inf, inf
		case 3:
			p.lo[j], p.hi[j] = x0[j], x0[j]
			continue
		default:
			p.lo[j], p.hi[j] = x0[j]-width, x0[j]+1+width
			continue
		}
		coef := make([]float64, n)
		coef[j] = 1
		p.rows = append(p.rows, lpRow{coef: coef, lo: x0[j] - 1 - width, hi: x0[j] + 2})
	}
	for i := 0; i < m; i++ {
		coef := make([]float64, n)
		var ax float64
		for j := range coef {
			coef[j] = float64(rng.Intn(7) - 3)
			ax += coef[j] * x0[j]
		}
		slack := float64(rng.Intn(3))
		row := lpRow{coef: coef, lo: -inf, hi: inf}
		switch rng.Intn(4) {
		case 0:
			row.hi = ax + slack
		case 1:
			row.lo = ax - slack
		case 2:
			row.lo, row.hi = ax-slack, ax+1
		default:
			row.lo, row.hi = ax, ax
		}
		p.rows = append(p.rows, row)
	}
	return p, x0
}

func checkFeasible(t *testing.T, p *lpProblem, x []float64) {
	t.Helper()
	const tol = 1e-6
	for j, v := range x {
		if v < p.lo[j]-tol || v > p.hi[j]+tol {
			t.Errorf("x[%d] = %g outside [%g, %g]", j, v, p.lo[j], p.hi[j])
		}
	}
	for i, r := range p.rows {
		var ax float64
		for j, c := range r.coef {
			ax += c * x[j]
		}
		if ax < r.lo-tol || ax > r.hi+tol {
			t.Errorf("Row %d: %g outside [%g, %g]", i, ax, r.lo, r.hi)
		}
	}
}

func TestSolveLPRandomFeasible(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 300; trial++ {
		p, x0 := randomFeasibleLP(rng, 2+rng.Intn(5), 1+rng.Intn(10))
		status, x, obj, err := solveLP(p)
		if err != nil {
			t.Fatalf("Trial %d: solveLP failed: %v", trial, err)
		}
		if status != lpOptimal {
			t.Fatalf("Trial %d: status %v, want optimal", trial, status)
		}
		checkFeasible(t, p, x)

		var cx, cx0 float64
		for j := range x {
			cx += p.cost[j] * x[j]
			cx0 += p.cost[j] * x0[j]
		}
		if math.Abs(obj-cx) > 1e-7 {
			t.Errorf("Trial %d: objective %g does not match cost·x = %g", trial, obj, cx)
		}
		if obj > cx0+1e-7 {
			t.Errorf("Trial %d: objective %g worse than the feasible point value %g", trial, obj, cx0)
		}
	}
}

// vertexMinimum enumerates intersections of boundary lines of a
// two-dimensional LP and returns the best feasible one.
func vertexMinimum(p *lpProblem) float64 {
	type line struct{ a, b, c float64 }
	var lines []line
	for _, r := range p.rows {
		for _, v := range []float64{r.lo, r.hi} {
			if !math.IsInf(v, 0) {
				lines = append(lines, line{r.coef[0], r.coef[1], v})
			}
		}
	}
	for j := 0; j < 2; j++ {
		for _, v := range []float64{p.lo[j], p.hi[j]} {
			if !math.IsInf(v, 0) {
				l := line{c: v}
				if j == 0 {
					l.a = 1
				} else {
					l.b = 1
				}
				lines = append(lines, l)
			}
		}
	}
	best := math.Inf(1)
	for i := range lines {
		for k := i + 1; k < len(lines); k++ {
			l1, l2 := lines[i], lines[k]
			det := l1.a*l2.b - l1.b*l2.a
			if math.Abs(det) < 1e-12 {
				continue
			}
			x := []float64{(l1.c*l2.b - l1.b*l2.c) / det, (l1.a*l2.c - l1.c*l2.a) / det}
			if !within(p, x, 1e-7) {
				continue
			}
			best = math.Min(best, p.cost[0]*x[0]+p.cost[1]*x[1])
		}
	}
	return best
}

func within(p *lpProblem, x []float64, tol float64) bool {
	for j, v := range x {
		if v < p.lo[j]-tol || v > p.hi[j]+tol {
			return false
		}
	}
	for _, r := range p.rows {
		ax := r.coef[0]*x[0] + r.coef[1]*x[1]
		if ax < r.lo-tol || ax > r.hi+tol {
			return false
		}
	}
	return true
}

func TestSolveLPMatchesVertexEnumeration(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 200; trial++ {
		p, _ := randomFeasibleLP(rng, 2, 1+rng.Intn(6))
		status, _, obj, err := solveLP(p)
		if err != nil || status != lpOptimal {
			t.Fatalf("Trial %d: status %v, err %v", trial, status, err)
		}
		want := vertexMinimum(p)
		if math.Abs(obj-want) > 1e-6*(1+math.Abs(want)) {
			t.Errorf("Trial %d: objective %g, want %g", trial, obj, want)
		}
	}
}

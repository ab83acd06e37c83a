package bnb

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/robustopt/internal/solver"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// convexFn is one side g(x) <= 0 of a nonlinear row, approximated from
// outside by linear cuts.
type convexFn struct {
	name string
	cols []int
	eval func(x []float64) float64
	// grad returns the gradient restricted to cols.
	grad func(x []float64) []float64
	// interior is a point over cols with g < 0, or nil.
	interior []float64
}

// cut linearizes g at z: g(z) + ∇g(z)ᵀ(x - z) <= 0.
func (f *convexFn) cut(z []float64, ncols int) (lpRow, bool) {
	gz := f.eval(z)
	g := f.grad(z)
	coef := make([]float64, ncols)
	rhs := -gz
	norm := 0.0
	for t, c := range f.cols {
		if math.IsNaN(g[t]) || math.IsInf(g[t], 0) {
			return lpRow{}, false
		}
		coef[c] = g[t]
		rhs += g[t] * z[c]
		norm += g[t] * g[t]
	}
	if norm < 1e-18 {
		return lpRow{}, false
	}
	return lpRow{coef: coef, lo: math.Inf(-1), hi: rhs}, true
}

// boundary moves from the interior point towards x until g changes sign and
// returns the point just outside the feasible side.
func (f *convexFn) boundary(x []float64) []float64 {
	pt := append([]float64(nil), x...)
	at := func(tau float64) float64 {
		for t, c := range f.cols {
			pt[c] = f.interior[t] + tau*(x[c]-f.interior[t])
		}
		return f.eval(pt)
	}
	lo, hi := 0.0, 1.0
	for i := 0; i < 60 && hi-lo > 1e-12; i++ {
		mid := 0.5 * (lo + hi)
		if at(mid) > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	at(hi)
	return pt
}

// side describes g = sign*(body - bound) plus optional extra linear terms.
type side struct {
	row   *solver.Row
	sign  float64
	bound float64
	extra map[int]float64
}

func (s side) name() string {
	if s.sign > 0 {
		return s.row.Name + ".upper"
	}
	return s.row.Name + ".lower"
}

func (s side) extraValue(x []float64) float64 {
	var v float64
	for c, a := range s.extra {
		v += a * x[c]
	}
	return v
}

// buildFn creates the outer-approximation function of one row side.
// nvars is the number of model columns; columns beyond are auxiliary.
func buildFn(p *solver.Problem, s side, nvars int) (*convexFn, error) {
	cols := append([]int(nil), s.row.Cols...)
	for c := range s.extra {
		cols = append(cols, c)
	}
	if s.row.Kind == solver.Quadratic {
		if f, ok := quadraticFn(p, s, cols); ok {
			return f, nil
		}
		if f, ok := socFn(p, s, cols); ok {
			return f, nil
		}
		slog.Warn("Quadratic row is not convex, outer approximation may cut off feasible points", "row", s.name())
	}
	return genericFn(p, s, cols, nvars), nil
}

// genericFn evaluates the frozen body and differentiates it numerically.
func genericFn(p *solver.Problem, s side, cols []int, nvars int) *convexFn {
	f := &convexFn{name: s.name(), cols: cols}
	f.eval = func(x []float64) float64 {
		for _, c := range s.row.Cols {
			if c < nvars {
				p.Vars[c].Value = x[c]
			}
		}
		return s.sign*(s.row.Eval(x)-s.bound) + s.extraValue(x)
	}
	settings := &fd.Settings{Formula: fd.Central}
	f.grad = func(x []float64) []float64 {
		sub := make([]float64, len(cols))
		for t, c := range cols {
			sub[t] = x[c]
		}
		work := append([]float64(nil), x...)
		return fd.Gradient(nil, func(y []float64) float64 {
			for t, c := range cols {
				work[c] = y[t]
			}
			return f.eval(work)
		}, sub, settings)
	}
	return f
}

// quadMatrix returns sign*Q and sign*b over cols.
func quadMatrix(s side, cols []int) (*mat.SymDense, []float64) {
	pos := make(map[int]int, len(cols))
	for t, c := range cols {
		pos[c] = t
	}
	n := len(cols)
	q := mat.NewSymDense(n, nil)
	for k, v := range s.row.Quad {
		i, j := pos[k[0]], pos[k[1]]
		if i == j {
			q.SetSym(i, i, q.At(i, i)+s.sign*v)
		} else {
			q.SetSym(i, j, q.At(i, j)+0.5*s.sign*v)
		}
	}
	b := make([]float64, n)
	for c, a := range s.row.Coefs {
		b[pos[c]] += s.sign * a
	}
	for c, a := range s.extra {
		b[pos[c]] += a
	}
	return q, b
}

func eigenvalues(q *mat.SymDense) ([]float64, *mat.Dense, bool) {
	var eig mat.EigenSym
	if ok := eig.Factorize(q, true); !ok {
		return nil, nil, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	return eig.Values(nil), &vecs, true
}

// minimize returns argmin and min of xᵀQx + bᵀx + c for PSD Q, ok false when
// the quadratic is unbounded below.
func minimizeQuadratic(q *mat.SymDense, b []float64, c float64) ([]float64, float64, bool) {
	vals, vecs, ok := eigenvalues(q)
	if !ok {
		return nil, 0, false
	}
	n := len(b)
	bv := mat.NewVecDense(n, b)
	x := mat.NewVecDense(n, nil)
	scale := 1.0
	for _, v := range vals {
		scale = math.Max(scale, math.Abs(v))
	}
	for k, lam := range vals {
		proj := mat.Dot(vecs.ColView(k), bv)
		if lam <= 1e-10*scale {
			if math.Abs(proj) > 1e-9 {
				return nil, 0, false
			}
			continue
		}
		x.AddScaledVec(x, -0.5*proj/lam, vecs.ColView(k))
	}
	val := mat.Inner(x, q, x) + mat.Dot(bv, x) + c
	return x.RawVector().Data, val, true
}

func psd(vals []float64) bool {
	scale := 1.0
	for _, v := range vals {
		scale = math.Max(scale, math.Abs(v))
	}
	for _, v := range vals {
		if v < -1e-9*scale {
			return false
		}
	}
	return true
}

// quadraticFn handles rows whose side is a convex quadratic.
func quadraticFn(p *solver.Problem, s side, cols []int) (*convexFn, bool) {
	q, b := quadMatrix(s, cols)
	vals, _, ok := eigenvalues(q)
	if !ok || !psd(vals) {
		return nil, false
	}
	c := s.sign * (s.row.Const - s.bound)
	f := &convexFn{name: s.name(), cols: cols}
	f.eval = func(x []float64) float64 {
		return s.sign*(s.row.Eval(x)-s.bound) + s.extraValue(x)
	}
	f.grad = func(x []float64) []float64 {
		sub := make([]float64, len(cols))
		for t, col := range cols {
			sub[t] = x[col]
		}
		xv := mat.NewVecDense(len(cols), sub)
		var g mat.VecDense
		g.MulVec(q, xv)
		g.ScaleVec(2, &g)
		g.AddVec(&g, mat.NewVecDense(len(cols), b))
		return g.RawVector().Data
	}
	if center, val, ok := minimizeQuadratic(q, b, c); ok && val < -1e-9 {
		f.interior = center
	}
	return f, true
}

// socFn recognises rest(x) - k*p^2 <= 0 with p >= 0 and rest a convex,
// non-negative quadratic, and uses sqrt(rest/k) - p <= 0 instead.
func socFn(p *solver.Problem, s side, cols []int) (*convexFn, bool) {
	if len(s.extra) > 0 {
		return nil, false
	}
	q, b := quadMatrix(s, cols)
	n := len(cols)
	pt := -1
	for t := 0; t < n; t++ {
		if q.At(t, t) >= 0 || b[t] != 0 {
			continue
		}
		alone := true
		for u := 0; u < n; u++ {
			if u != t && q.At(t, u) != 0 {
				alone = false
				break
			}
		}
		if alone && cols[t] < len(p.Vars) && p.Lower[cols[t]] >= 0 {
			pt = t
			break
		}
	}
	if pt < 0 {
		return nil, false
	}
	k := -q.At(pt, pt)

	rest := make([]int, 0, n-1)
	for t := 0; t < n; t++ {
		if t != pt {
			rest = append(rest, t)
		}
	}
	rq := mat.NewSymDense(len(rest), nil)
	rb := make([]float64, len(rest))
	for i, ti := range rest {
		rb[i] = b[ti]
		for j, tj := range rest {
			if j >= i {
				rq.SetSym(i, j, q.At(ti, tj))
			}
		}
	}
	c := s.sign * (s.row.Const - s.bound)
	vals, _, ok := eigenvalues(rq)
	if !ok || !psd(vals) {
		return nil, false
	}
	center, minRest, ok := minimizeQuadratic(rq, rb, c)
	if !ok || minRest < -1e-9 {
		return nil, false
	}

	pcol := cols[pt]
	restCols := make([]int, len(rest))
	for i, t := range rest {
		restCols[i] = cols[t]
	}
	restValue := func(x []float64) float64 {
		sub := make([]float64, len(rest))
		for i, col := range restCols {
			sub[i] = x[col]
		}
		xv := mat.NewVecDense(len(sub), sub)
		return mat.Inner(xv, rq, xv) + mat.Dot(mat.NewVecDense(len(rb), rb), xv) + c
	}

	f := &convexFn{name: s.name() + ".soc", cols: append(append([]int(nil), restCols...), pcol)}
	f.eval = func(x []float64) float64 {
		return math.Sqrt(math.Max(restValue(x), 0)/k) - x[pcol]
	}
	f.grad = func(x []float64) []float64 {
		g := make([]float64, len(restCols)+1)
		r := restValue(x)
		if r > 1e-14 {
			sub := make([]float64, len(restCols))
			for i, col := range restCols {
				sub[i] = x[col]
			}
			xv := mat.NewVecDense(len(sub), sub)
			var dr mat.VecDense
			dr.MulVec(rq, xv)
			dr.ScaleVec(2, &dr)
			dr.AddVec(&dr, mat.NewVecDense(len(rb), rb))
			den := 2 * math.Sqrt(k*r)
			for i := range restCols {
				g[i] = dr.AtVec(i) / den
			}
		}
		g[len(restCols)] = -1
		return g
	}
	f.interior = append(append([]float64(nil), center...), math.Sqrt(math.Max(minRest, 0)/k)+1)
	slog.Debug("Detected second-order cone row", "row", s.name(), "epigraph", p.Vars[pcol].Name())
	return f, true
}

// nonlinearSides builds functions for every nonlinear side of the rows.
func nonlinearSides(p *solver.Problem, nvars int) ([]*convexFn, error) {
	var fns []*convexFn
	for i := range p.Rows {
		row := &p.Rows[i]
		if row.Kind == solver.Linear {
			continue
		}
		if row.Lower == row.Upper {
			return nil, fmt.Errorf("bnb: nonlinear equality constraint %s is not supported", row.Name)
		}
		if !math.IsInf(row.Upper, 1) {
			f, err := buildFn(p, side{row: row, sign: 1, bound: row.Upper}, nvars)
			if err != nil {
				return nil, err
			}
			fns = append(fns, f)
		}
		if !math.IsInf(row.Lower, -1) {
			f, err := buildFn(p, side{row: row, sign: -1, bound: row.Lower}, nvars)
			if err != nil {
				return nil, err
			}
			fns = append(fns, f)
		}
	}
	return fns, nil
}

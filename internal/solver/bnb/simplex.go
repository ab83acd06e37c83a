package bnb

import (
	"errors"
	"math"
)

const (
	zeroTol  = 1e-9
	pivotTol = 1e-9
	costTol  = 1e-9
	// phaseTol bounds the artificial sum accepted as feasible, relative to
	// the largest right-hand side.
	phaseTol = 1e-7
	// blandAfter is the number of consecutive degenerate pivots after which
	// pricing switches from the steepest reduced cost to Bland's rule.
	blandAfter = 50
)

var errIterationLimit = errors.New("simplex iteration limit reached")

// lpRow is lo <= coef·x <= hi over dense coefficients.
type lpRow struct {
	coef []float64
	lo   float64
	hi   float64
}

// lpProblem is min cost·x s.t. rows, lo <= x <= hi.
type lpProblem struct {
	cost []float64
	rows []lpRow
	lo   []float64
	hi   []float64
}

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
)

// column maps a structural var to standard-form columns:
// x = offset + sign*y[col] (- y[neg] for free vars).
type column struct {
	fixed  bool
	offset float64
	sign   float64
	col    int
	neg    int
}

// solveLP converts p to standard form min cᵀy s.t. Ay = b, y >= 0 and solves
// it with the two-phase tableau simplex. The returned objective is cost·x.
func solveLP(p *lpProblem) (lpStatus, []float64, float64, error) {
	n := len(p.cost)
	cols := make([]column, n)
	ncol := 0
	var boundRows []lpRow
	for j := 0; j < n; j++ {
		lo, hi := p.lo[j], p.hi[j]
		if lo > hi+zeroTol {
			return lpInfeasible, nil, 0, nil
		}
		switch {
		case !math.IsInf(lo, 0) && !math.IsInf(hi, 0) && hi-lo <= zeroTol:
			cols[j] = column{fixed: true, offset: lo}
		case !math.IsInf(lo, 0):
			cols[j] = column{offset: lo, sign: 1, col: ncol, neg: -1}
			ncol++
			if !math.IsInf(hi, 0) {
				coef := make([]float64, n)
				coef[j] = 1
				boundRows = append(boundRows, lpRow{coef: coef, lo: math.Inf(-1), hi: hi})
			}
		case !math.IsInf(hi, 0):
			cols[j] = column{offset: hi, sign: -1, col: ncol, neg: -1}
			ncol++
		default:
			cols[j] = column{sign: 1, col: ncol, neg: ncol + 1}
			ncol += 2
		}
	}

	// Rows in the form a·y + s = b (inequalities) or a·y = b.
	type stdRow struct {
		a     []float64
		b     float64
		slack bool
	}
	var rows []stdRow
	addRow := func(coef []float64, rhs float64, sign float64, slack bool) {
		a := make([]float64, ncol)
		b := rhs
		for j, c := range coef {
			if c == 0 {
				continue
			}
			c *= sign
			cl := cols[j]
			b -= c * cl.offset
			if cl.fixed {
				continue
			}
			a[cl.col] += c * cl.sign
			if cl.neg >= 0 {
				a[cl.neg] -= c
			}
		}
		rows = append(rows, stdRow{a: a, b: b, slack: slack})
	}
	all := append(append([]lpRow(nil), p.rows...), boundRows...)
	for _, r := range all {
		switch {
		case !math.IsInf(r.lo, 0) && r.lo == r.hi:
			addRow(r.coef, r.hi, 1, false)
		default:
			if !math.IsInf(r.hi, 0) {
				addRow(r.coef, r.hi, 1, true)
			}
			if !math.IsInf(r.lo, 0) {
				addRow(r.coef, -r.lo, -1, true)
			}
		}
	}

	cost := make([]float64, ncol)
	for j, c := range p.cost {
		cl := cols[j]
		if cl.fixed {
			continue
		}
		cost[cl.col] += c * cl.sign
		if cl.neg >= 0 {
			cost[cl.neg] -= c
		}
	}

	// Append slack columns.
	nslack := 0
	for _, r := range rows {
		if r.slack {
			nslack++
		}
	}
	total := ncol + nslack
	a := make([][]float64, 0, len(rows))
	b := make([]float64, 0, len(rows))
	s := 0
	for _, r := range rows {
		row := make([]float64, total)
		copy(row, r.a)
		if r.slack {
			row[ncol+s] = 1
			s++
		}
		rhs := r.b
		if rhs < 0 {
			for k := range row {
				row[k] = -row[k]
			}
			rhs = -rhs
		}
		a = append(a, row)
		b = append(b, rhs)
	}
	cost = append(cost, make([]float64, nslack)...)

	y, status, err := solveStandard(cost, a, b)
	if err != nil || status != lpOptimal {
		return status, nil, 0, err
	}

	x := make([]float64, n)
	var obj float64
	for j := range x {
		cl := cols[j]
		if cl.fixed {
			x[j] = cl.offset
		} else {
			x[j] = cl.offset + cl.sign*y[cl.col]
			if cl.neg >= 0 {
				x[j] -= y[cl.neg]
			}
		}
		obj += p.cost[j] * x[j]
	}
	return lpOptimal, x, obj, nil
}

// solveStandard solves min cᵀy s.t. Ay = b, y >= 0 with b >= 0. Phase one
// starts from an artificial basis; dependent rows keep a zero artificial in
// the basis.
func solveStandard(c []float64, a [][]float64, b []float64) ([]float64, lpStatus, error) {
	m, n := len(a), len(c)
	y := make([]float64, n)
	if m == 0 {
		for _, cj := range c {
			if cj < -costTol {
				return nil, lpUnbounded, nil
			}
		}
		return y, lpOptimal, nil
	}

	width := n + m
	tb := &tableau{t: make([][]float64, m), basis: make([]int, m), width: width}
	scale := 1.0
	for i := range a {
		row := make([]float64, width+1)
		copy(row, a[i])
		row[n+i] = 1
		row[width] = b[i]
		tb.t[i] = row
		tb.basis[i] = n + i
		scale = math.Max(scale, b[i])
	}

	phase1 := make([]float64, width)
	for j := n; j < width; j++ {
		phase1[j] = 1
	}
	tb.price(phase1)
	if _, err := tb.run(width); err != nil {
		return nil, lpInfeasible, err
	}
	if -tb.z[width] > phaseTol*scale {
		return nil, lpInfeasible, nil
	}

	// Pivot the remaining artificials out where a structural column allows.
	for i, j := range tb.basis {
		if j < n {
			continue
		}
		e, best := -1, pivotTol
		for k := 0; k < n; k++ {
			if v := math.Abs(tb.t[i][k]); v > best {
				e, best = k, v
			}
		}
		if e >= 0 {
			// The artificial is zero within phaseTol.
			tb.t[i][width] = 0
			tb.pivot(i, e)
		}
	}

	phase2 := make([]float64, width)
	copy(phase2, c)
	tb.price(phase2)
	status, err := tb.run(n)
	if err != nil || status != lpOptimal {
		return nil, status, err
	}
	for i, j := range tb.basis {
		if j < n {
			y[j] = math.Max(tb.t[i][width], 0)
		}
	}
	return y, lpOptimal, nil
}

// tableau is a dense simplex tableau. Each row holds width coefficients
// followed by the right-hand side; z holds the reduced costs followed by the
// negated objective.
type tableau struct {
	t     [][]float64
	z     []float64
	basis []int
	width int
}

// price computes the reduced costs of cost for the current basis.
func (tb *tableau) price(cost []float64) {
	tb.z = make([]float64, tb.width+1)
	copy(tb.z, cost)
	for i, row := range tb.t {
		cb := cost[tb.basis[i]]
		if cb == 0 {
			continue
		}
		for k := range tb.z {
			tb.z[k] -= cb * row[k]
		}
	}
}

// run pivots until no column below admit has a negative reduced cost.
func (tb *tableau) run(admit int) (lpStatus, error) {
	rhs := tb.width
	limit := 100 * (tb.width + len(tb.t) + 1)
	degenerate := 0
	for iter := 0; iter < limit; iter++ {
		bland := degenerate > blandAfter
		e, best := -1, -costTol
		for j := 0; j < admit; j++ {
			if d := tb.z[j]; d < best {
				e = j
				if bland {
					break
				}
				best = d
			}
		}
		if e < 0 {
			return lpOptimal, nil
		}

		r, ratio := -1, math.Inf(1)
		for i, row := range tb.t {
			a := row[e]
			if a <= pivotTol {
				continue
			}
			q := row[rhs] / a
			switch {
			case r < 0 || q < ratio-pivotTol:
				r, ratio = i, q
			case q <= ratio+pivotTol:
				if bland && tb.basis[i] < tb.basis[r] || !bland && a > tb.t[r][e] {
					r = i
				}
			}
		}
		if r < 0 {
			return lpUnbounded, nil
		}
		if ratio <= pivotTol {
			degenerate++
		} else {
			degenerate = 0
		}
		tb.pivot(r, e)
	}
	return lpInfeasible, errIterationLimit
}

// pivot makes column e basic in row r.
func (tb *tableau) pivot(r, e int) {
	rhs := tb.width
	pr := tb.t[r]
	f := pr[e]
	for k := range pr {
		pr[k] /= f
	}
	pr[e] = 1
	eliminate := func(row []float64) {
		g := row[e]
		if g == 0 {
			return
		}
		for k := range row {
			row[k] -= g * pr[k]
		}
		row[e] = 0
	}
	for i, row := range tb.t {
		if i != r {
			eliminate(row)
		}
		if row[rhs] < 0 && row[rhs] > -phaseTol {
			row[rhs] = 0
		}
	}
	eliminate(tb.z)
	tb.basis[r] = e
}

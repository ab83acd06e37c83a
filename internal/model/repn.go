package model

import (
	"sort"
	"strconv"
	"strings"
)

// LinearTerm is Coef*Var.
type LinearTerm struct {
	Coef Expr
	Var  *Var
}

// QuadraticTerm is Coef*Var1*Var2 with Var1.ID() <= Var2.ID().
type QuadraticTerm struct {
	Coef       Expr
	Var1, Var2 *Var
}

// Repn is the standard representation of an expression with respect to its
// unfixed leaves. Coefficients and the constant are expressions in the fixed
// leaves only.
type Repn struct {
	Constant  Expr
	Linear    []LinearTerm
	Quadratic []QuadraticTerm
	// Nonlinear holds the whole expression when it is not a polynomial of
	// degree <= 2 in the unfixed leaves. Constant, Linear and Quadratic are
	// empty in that case.
	Nonlinear Expr
}

// IsLinear reports whether the expression is affine in the unfixed leaves.
func (r *Repn) IsLinear() bool {
	return r.Nonlinear == nil && len(r.Quadratic) == 0
}

// IsQuadratic reports whether the expression is a polynomial of degree <= 2.
func (r *Repn) IsQuadratic() bool {
	return r.Nonlinear == nil
}

// LinearCoef returns the coefficient of v, or Const(0).
func (r *Repn) LinearCoef(v *Var) Expr {
	for _, t := range r.Linear {
		if t.Var == v {
			return t.Coef
		}
	}
	return Const(0)
}

type monomial struct {
	vars []*Var
	coef Expr
}

// poly maps a monomial key to its term.
type poly map[string]*monomial

func monoKey(vars []*Var) string {
	ids := make([]string, len(vars))
	for i, v := range vars {
		ids[i] = strconv.FormatInt(v.ID(), 10)
	}
	return strings.Join(ids, ",")
}

func constPoly(e Expr) poly {
	return poly{"": {coef: e}}
}

func (p poly) add(q poly) poly {
	out := make(poly, len(p)+len(q))
	for k, m := range p {
		out[k] = &monomial{vars: m.vars, coef: m.coef}
	}
	for k, m := range q {
		if cur, ok := out[k]; ok {
			cur.coef = Add(cur.coef, m.coef)
			continue
		}
		out[k] = &monomial{vars: m.vars, coef: m.coef}
	}
	return out
}

func (p poly) mul(q poly) poly {
	out := make(poly)
	for _, a := range p {
		for _, b := range q {
			vars := make([]*Var, 0, len(a.vars)+len(b.vars))
			vars = append(vars, a.vars...)
			vars = append(vars, b.vars...)
			sort.Slice(vars, func(i, j int) bool { return vars[i].ID() < vars[j].ID() })
			k := monoKey(vars)
			c := Mul(a.coef, b.coef)
			if cur, ok := out[k]; ok {
				cur.coef = Add(cur.coef, c)
				continue
			}
			out[k] = &monomial{vars: vars, coef: c}
		}
	}
	return out
}

func (p poly) degree() int {
	d := 0
	for _, m := range p {
		if len(m.vars) > d {
			d = len(m.vars)
		}
	}
	return d
}

func hasFree(e Expr) bool {
	for _, v := range Vars(e) {
		if !v.Fixed() {
			return true
		}
	}
	return false
}

// toPoly expands e into a polynomial in the unfixed leaves. ok is false for
// non-polynomial dependence.
func toPoly(e Expr) (poly, bool) {
	if !hasFree(e) {
		return constPoly(e), true
	}
	switch n := e.(type) {
	case *Var:
		return poly{monoKey([]*Var{n}): {vars: []*Var{n}, coef: Const(1)}}, true
	case *Sum:
		out := poly{}
		for _, t := range n.Terms {
			tp, ok := toPoly(t)
			if !ok {
				return nil, false
			}
			out = out.add(tp)
		}
		return out, true
	case *Product:
		l, ok := toPoly(n.Left)
		if !ok {
			return nil, false
		}
		r, ok := toPoly(n.Right)
		if !ok {
			return nil, false
		}
		return l.mul(r), true
	case *Pow:
		k := int(n.Exp)
		if float64(k) != n.Exp || k < 0 || k > 4 {
			return nil, false
		}
		base, ok := toPoly(n.Base)
		if !ok {
			return nil, false
		}
		out := constPoly(Const(1))
		for i := 0; i < k; i++ {
			out = out.mul(base)
			if out.degree() > 2 {
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}

// StandardRepn computes the representation of e with respect to its unfixed
// leaves. Terms are ordered by leaf creation order; zero coefficients are
// dropped.
func StandardRepn(e Expr) *Repn {
	p, ok := toPoly(e)
	if !ok || p.degree() > 2 {
		return &Repn{Constant: Const(0), Nonlinear: e}
	}
	r := &Repn{Constant: Const(0)}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := p[keys[i]].vars, p[keys[j]].vars
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		for x := range a {
			if a[x].ID() != b[x].ID() {
				return a[x].ID() < b[x].ID()
			}
		}
		return false
	})
	for _, k := range keys {
		m := p[k]
		if c, ok := IsConst(m.coef); ok && c == 0 && len(m.vars) > 0 {
			continue
		}
		switch len(m.vars) {
		case 0:
			r.Constant = m.coef
		case 1:
			r.Linear = append(r.Linear, LinearTerm{Coef: m.coef, Var: m.vars[0]})
		case 2:
			r.Quadratic = append(r.Quadratic, QuadraticTerm{Coef: m.coef, Var1: m.vars[0], Var2: m.vars[1]})
		}
	}
	return r
}

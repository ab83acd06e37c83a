package model

import (
	"math"
	"strconv"
	"strings"
)

// Expr is a node of a symbolic expression tree. Nodes are immutable once
// built; rewriting produces new trees.
type Expr interface {
	// Eval computes the value using the current values of all leaves.
	Eval() float64
	String() string
	isExpr()
}

// Const is a numeric literal.
type Const float64

func (c Const) Eval() float64 { return float64(c) }
func (c Const) isExpr()       {}
func (c Const) String() string {
	return strconv.FormatFloat(float64(c), 'g', -1, 64)
}

// Sum adds its terms.
type Sum struct {
	Terms []Expr
}

func (s *Sum) isExpr() {}

func (s *Sum) Eval() float64 {
	var total float64
	for _, t := range s.Terms {
		total += t.Eval()
	}
	return total
}

func (s *Sum) String() string {
	parts := make([]string, len(s.Terms))
	for i, t := range s.Terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, " + ") + ")"
}

// Product multiplies two factors.
type Product struct {
	Left, Right Expr
}

func (p *Product) isExpr()        {}
func (p *Product) Eval() float64  { return p.Left.Eval() * p.Right.Eval() }
func (p *Product) String() string { return p.Left.String() + "*" + p.Right.String() }

// Pow raises Base to a constant real exponent.
type Pow struct {
	Base Expr
	Exp  float64
}

func (p *Pow) isExpr()       {}
func (p *Pow) Eval() float64 { return math.Pow(p.Base.Eval(), p.Exp) }
func (p *Pow) String() string {
	return p.Base.String() + "**" + strconv.FormatFloat(p.Exp, 'g', -1, 64)
}

// Func applies a scalar function. DF is the derivative, may be nil.
type Func struct {
	Name string
	Arg  Expr
	F    func(float64) float64
	DF   func(float64) float64
}

func (f *Func) isExpr()        {}
func (f *Func) Eval() float64  { return f.F(f.Arg.Eval()) }
func (f *Func) String() string { return f.Name + "(" + f.Arg.String() + ")" }

// C wraps a number.
func C(v float64) Expr { return Const(v) }

// IsConst reports whether e is a literal and returns its value.
func IsConst(e Expr) (float64, bool) {
	c, ok := e.(Const)
	return float64(c), ok
}

// Add sums terms, flattening nested sums and folding constants.
func Add(terms ...Expr) Expr {
	var (
		constant float64
		out      []Expr
	)
	for _, t := range terms {
		switch tt := t.(type) {
		case nil:
			continue
		case Const:
			constant += float64(tt)
		case *Sum:
			for _, inner := range tt.Terms {
				if c, ok := inner.(Const); ok {
					constant += float64(c)
					continue
				}
				out = append(out, inner)
			}
		default:
			out = append(out, t)
		}
	}
	if constant != 0 {
		out = append(out, Const(constant))
	}
	switch len(out) {
	case 0:
		return Const(0)
	case 1:
		return out[0]
	}
	return &Sum{Terms: out}
}

// Mul multiplies two expressions, folding constants.
func Mul(a, b Expr) Expr {
	ca, aConst := a.(Const)
	cb, bConst := b.(Const)
	switch {
	case aConst && bConst:
		return Const(ca * cb)
	case aConst && ca == 0, bConst && cb == 0:
		return Const(0)
	case aConst && ca == 1:
		return b
	case bConst && cb == 1:
		return a
	case bConst:
		return Mul(b, a)
	}
	if aConst {
		// c1*(c2*x) -> (c1*c2)*x
		if p, ok := b.(*Product); ok {
			if c2, ok := p.Left.(Const); ok {
				return Mul(Const(ca*c2), p.Right)
			}
		}
	}
	return &Product{Left: a, Right: b}
}

// Prod multiplies all factors left to right.
func Prod(factors ...Expr) Expr {
	var out Expr = Const(1)
	for _, f := range factors {
		out = Mul(out, f)
	}
	return out
}

// Scale multiplies e by c.
func Scale(c float64, e Expr) Expr { return Mul(Const(c), e) }

// Neg negates e.
func Neg(e Expr) Expr { return Scale(-1, e) }

// Sub returns a - b.
func Sub(a, b Expr) Expr { return Add(a, Neg(b)) }

// PowE raises e to a constant exponent.
func PowE(e Expr, exp float64) Expr {
	if c, ok := e.(Const); ok {
		return Const(math.Pow(float64(c), exp))
	}
	switch exp {
	case 0:
		return Const(1)
	case 1:
		return e
	}
	return &Pow{Base: e, Exp: exp}
}

// Square returns e**2.
func Square(e Expr) Expr { return PowE(e, 2) }

// Apply builds a unary function node, folding constant arguments.
func Apply(name string, f, df func(float64) float64, arg Expr) Expr {
	if c, ok := arg.(Const); ok {
		return Const(f(float64(c)))
	}
	return &Func{Name: name, Arg: arg, F: f, DF: df}
}

// Sqrt returns sqrt(e).
func Sqrt(e Expr) Expr {
	return Apply("sqrt", math.Sqrt, func(x float64) float64 { return 0.5 / math.Sqrt(x) }, e)
}

// Exp returns exp(e).
func Exp(e Expr) Expr { return Apply("exp", math.Exp, math.Exp, e) }

// Log returns log(e).
func Log(e Expr) Expr {
	return Apply("log", math.Log, func(x float64) float64 { return 1 / x }, e)
}

// Tanh returns tanh(e).
func Tanh(e Expr) Expr {
	return Apply("tanh", math.Tanh, func(x float64) float64 {
		t := math.Tanh(x)
		return 1 - t*t
	}, e)
}

// Dot returns sum_i coefs[i]*xs[i].
func Dot(coefs []float64, xs []Expr) Expr {
	terms := make([]Expr, 0, len(xs))
	for i, x := range xs {
		terms = append(terms, Scale(coefs[i], x))
	}
	return Add(terms...)
}

// DotE returns sum_i a[i]*b[i] for symbolic factors.
func DotE(a, b []Expr) Expr {
	terms := make([]Expr, 0, len(a))
	for i := range a {
		terms = append(terms, Mul(a[i], b[i]))
	}
	return Add(terms...)
}

// Quad returns xsᵀ Q xs for a dense row-major matrix.
func Quad(q [][]float64, xs []Expr) Expr {
	var terms []Expr
	for i := range xs {
		for j := range xs {
			if q[i][j] == 0 {
				continue
			}
			terms = append(terms, Mul(Const(q[i][j]), Mul(xs[i], xs[j])))
		}
	}
	return Add(terms...)
}

// Vars returns the distinct vars of e in first-visit order.
func Vars(e Expr) []*Var {
	seen := make(map[*Var]bool)
	var out []*Var
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case *Var:
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		case *Sum:
			for _, t := range n.Terms {
				walk(t)
			}
		case *Product:
			walk(n.Left)
			walk(n.Right)
		case *Pow:
			walk(n.Base)
		case *Func:
			walk(n.Arg)
		}
	}
	walk(e)
	return out
}

// Substitute replaces leaves according to sub and rebuilds the tree with
// constant folding. Leaves missing from sub are kept.
func Substitute(e Expr, sub map[*Var]Expr) Expr {
	switch n := e.(type) {
	case *Var:
		if r, ok := sub[n]; ok {
			return r
		}
		return n
	case *Sum:
		terms := make([]Expr, len(n.Terms))
		for i, t := range n.Terms {
			terms[i] = Substitute(t, sub)
		}
		return Add(terms...)
	case *Product:
		return Mul(Substitute(n.Left, sub), Substitute(n.Right, sub))
	case *Pow:
		return PowE(Substitute(n.Base, sub), n.Exp)
	case *Func:
		return Apply(n.Name, n.F, n.DF, Substitute(n.Arg, sub))
	}
	return e
}

// Freeze replaces every fixed leaf by its current value.
func Freeze(e Expr) Expr {
	sub := make(map[*Var]Expr)
	for _, v := range Vars(e) {
		if v.Fixed() {
			sub[v] = Const(v.Value)
		}
	}
	return Substitute(e, sub)
}

// EvalAt computes e with the given leaf values, restoring the previous
// values afterwards.
func EvalAt(e Expr, values map[*Var]float64) float64 {
	saved := make(map[*Var]float64, len(values))
	for v, x := range values {
		saved[v] = v.Value
		v.Value = x
	}
	defer func() {
		for v, x := range saved {
			v.Value = x
		}
	}()
	return e.Eval()
}

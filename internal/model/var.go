package model

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Domain restricts the values a variable may take.
type Domain int

const (
	Reals Domain = iota
	NonNegativeReals
	NonPositiveReals
	Binary
	Integers
)

func (d Domain) String() string {
	switch d {
	case Reals:
		return "Reals"
	case NonNegativeReals:
		return "NonNegativeReals"
	case NonPositiveReals:
		return "NonPositiveReals"
	case Binary:
		return "Binary"
	case Integers:
		return "Integers"
	default:
		return fmt.Sprintf("Domain(%d)", int(d))
	}
}

// IsDiscrete reports whether the domain only admits integral values.
func (d Domain) IsDiscrete() bool {
	return d == Binary || d == Integers
}

// Kind distinguishes ordinary decisions from uncertain parameters and
// wait-and-see decisions.
type Kind int

const (
	Decision Kind = iota
	Uncertain
	Adjustable
)

func (k Kind) String() string {
	switch k {
	case Decision:
		return "decision"
	case Uncertain:
		return "uncertain"
	case Adjustable:
		return "adjustable"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var nextVarID atomic.Int64

// Var is a scalar leaf of an expression. Every var belongs to a VarSet; a
// scalar var is a set of length one.
type Var struct {
	id    int64
	set   *VarSet
	index int

	// Lower and Upper are the bounds; ±Inf means unbounded.
	Lower float64
	Upper float64

	Domain  Domain
	Value   float64
	Nominal float64

	fixed bool
}

func newVar(set *VarSet, index int) *Var {
	return &Var{
		id:    nextVarID.Add(1),
		set:   set,
		index: index,
		Lower: math.Inf(-1),
		Upper: math.Inf(1),
	}
}

// ID returns a process-unique identifier. IDs increase with creation order.
func (v *Var) ID() int64 { return v.id }

// Set returns the collection that owns v.
func (v *Var) Set() *VarSet { return v.set }

// Index returns the position of v inside its collection.
func (v *Var) Index() int { return v.index }

// Kind returns the kind of the owning collection.
func (v *Var) Kind() Kind { return v.set.Kind }

// Name returns "x" for scalars and "x[i]" for indexed collections.
func (v *Var) Name() string {
	if v.set.scalar {
		return v.set.Name
	}
	return fmt.Sprintf("%s[%d]", v.set.Name, v.index)
}

// Fixed reports whether the var is currently treated as a constant.
func (v *Var) Fixed() bool { return v.fixed }

// Fix freezes the var at its current value.
func (v *Var) Fix() { v.fixed = true }

// FixAt sets the value and freezes the var.
func (v *Var) FixAt(value float64) {
	v.Value = value
	v.fixed = true
}

// Unfix releases the var.
func (v *Var) Unfix() { v.fixed = false }

// SetBounds replaces both bounds.
func (v *Var) SetBounds(lower, upper float64) {
	v.Lower = lower
	v.Upper = upper
}

// HasLower reports whether the var has a finite lower bound, taking the
// domain into account.
func (v *Var) HasLower() bool {
	lo, _ := v.EffectiveBounds()
	return !math.IsInf(lo, -1)
}

// HasUpper reports whether the var has a finite upper bound, taking the
// domain into account.
func (v *Var) HasUpper() bool {
	_, hi := v.EffectiveBounds()
	return !math.IsInf(hi, 1)
}

// EffectiveBounds intersects the explicit bounds with the domain.
func (v *Var) EffectiveBounds() (float64, float64) {
	lo, hi := v.Lower, v.Upper
	switch v.Domain {
	case NonNegativeReals:
		lo = math.Max(lo, 0)
	case NonPositiveReals:
		hi = math.Min(hi, 0)
	case Binary:
		lo = math.Max(lo, 0)
		hi = math.Min(hi, 1)
	}
	return lo, hi
}

func (v *Var) isExpr() {}

// Eval returns the current value.
func (v *Var) Eval() float64 { return v.Value }

func (v *Var) String() string { return v.Name() }

// VarSet is an indexed collection of vars sharing a name and kind.
type VarSet struct {
	Name string
	Kind Kind
	Vars []*Var

	// UncSet names the uncertainty set of an uncertain collection.
	UncSet string
	// UncParams names the uncertain collections an adjustable collection
	// depends on.
	UncParams []string

	scalar bool
}

func newVarSet(name string, n int, kind Kind, scalar bool) *VarSet {
	s := &VarSet{Name: name, Kind: kind, scalar: scalar}
	s.Vars = make([]*Var, n)
	for i := range s.Vars {
		s.Vars[i] = newVar(s, i)
	}
	return s
}

// At returns the i-th var.
func (s *VarSet) At(i int) *Var { return s.Vars[i] }

// Len returns the number of vars in the collection.
func (s *VarSet) Len() int { return len(s.Vars) }

// Scalar reports whether the collection was declared as a single var.
func (s *VarSet) Scalar() bool { return s.scalar }

// Values returns the current values in index order.
func (s *VarSet) Values() []float64 {
	out := make([]float64, len(s.Vars))
	for i, v := range s.Vars {
		out[i] = v.Value
	}
	return out
}

// Nominals returns the nominal values in index order.
func (s *VarSet) Nominals() []float64 {
	out := make([]float64, len(s.Vars))
	for i, v := range s.Vars {
		out[i] = v.Nominal
	}
	return out
}

// Exprs returns the vars as a slice of expressions.
func (s *VarSet) Exprs() []Expr {
	out := make([]Expr, len(s.Vars))
	for i, v := range s.Vars {
		out[i] = v
	}
	return out
}

// VarOption configures vars at creation time.
type VarOption func(*VarSet)

// WithBounds sets the same bounds on every var of the collection.
func WithBounds(lower, upper float64) VarOption {
	return func(s *VarSet) {
		for _, v := range s.Vars {
			v.SetBounds(lower, upper)
		}
	}
}

// WithDomain sets the domain of every var of the collection.
func WithDomain(d Domain) VarOption {
	return func(s *VarSet) {
		for _, v := range s.Vars {
			v.Domain = d
		}
	}
}

// WithValues initialises values in index order.
func WithValues(values ...float64) VarOption {
	return func(s *VarSet) {
		for i, v := range s.Vars {
			if i < len(values) {
				v.Value = values[i]
			}
		}
	}
}

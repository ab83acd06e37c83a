// Package uncset defines uncertainty sets, classifies their geometry and
// synthesizes their constraints for separation problems.
package uncset

import (
	"fmt"

	"github.com/cwbudde/robustopt/internal/model"
	"gonum.org/v1/gonum/mat"
)

// Set is a named uncertainty set. It is either generic, defined by relations
// over one uncertain parameter collection, or a library shape with
// closed-form parameters.
type Set struct {
	name string
	rels []*model.Constraint
	lib  Geometry

	cache map[string]Geometry
}

// New creates an empty generic set. Relations are added with Add once the
// uncertain parameter exists.
func New(name string) *Set {
	return &Set{name: name, cache: make(map[string]Geometry)}
}

// Name returns the set name.
func (s *Set) Name() string { return s.name }

// Add appends a defining relation and returns it.
func (s *Set) Add(r model.Relation) *model.Constraint {
	if s.lib != nil {
		panic(fmt.Sprintf("uncset %s: cannot add relations to a library set", s.name))
	}
	c := model.NewConstraint(fmt.Sprintf("%s.cons[%d]", s.name, len(s.rels)), r)
	s.rels = append(s.rels, c)
	s.invalidate()
	return c
}

// Relations returns the active defining relations of a generic set.
func (s *Set) Relations() []*model.Constraint {
	var out []*model.Constraint
	for _, c := range s.rels {
		if c.Active() {
			out = append(out, c)
		}
	}
	return out
}

// IsLibrary reports whether the set has a closed-form shape.
func (s *Set) IsLibrary() bool { return s.lib != nil }

// IsEmpty reports whether a generic set has no active relations.
func (s *Set) IsEmpty() bool {
	return s.lib == nil && len(s.Relations()) == 0
}

func (s *Set) invalidate() {
	for k := range s.cache {
		delete(s.cache, k)
	}
}

// NewPolyhedral creates the library set {w : mat·w <= rhs}.
func NewPolyhedral(name string, rows [][]float64, rhs []float64) *Set {
	if len(rows) != len(rhs) {
		panic(fmt.Sprintf("uncset %s: %d rows but %d right-hand sides", name, len(rows), len(rhs)))
	}
	n := 0
	if len(rows) > 0 {
		n = len(rows[0])
	}
	a := mat.NewDense(len(rows), n, nil)
	for i, row := range rows {
		if len(row) != n {
			panic(fmt.Sprintf("uncset %s: row %d has %d columns, want %d", name, i, len(row), n))
		}
		a.SetRow(i, row)
	}
	return &Set{
		name:  name,
		lib:   &Polyhedral{Mat: a, Rhs: append([]float64(nil), rhs...)},
		cache: make(map[string]Geometry),
	}
}

// NewEllipsoidal creates the library set {w : (w-mean)ᵀ cov⁻¹ (w-mean) <= 1}.
func NewEllipsoidal(name string, mean []float64, cov [][]float64) *Set {
	n := len(mean)
	if len(cov) != n {
		panic(fmt.Sprintf("uncset %s: covariance has %d rows, want %d", name, len(cov), n))
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(cov[i][j]+cov[j][i]))
		}
	}
	return &Set{
		name:  name,
		lib:   &Ellipsoidal{Mean: append([]float64(nil), mean...), Cov: sym},
		cache: make(map[string]Geometry),
	}
}

// NewGP creates a credible region of a Gaussian process prediction. inputs[i]
// holds the model expressions the predictor is evaluated at for parameter
// element i; alpha is the confidence level.
func NewGP(name string, p Predictor, inputs [][]model.Expr, alpha float64) *Set {
	return &Set{
		name: name,
		lib: &GPCredible{
			Predictor: p,
			Inputs:    inputs,
			Alpha:     alpha,
			F:         NormalQuantile(alpha),
		},
		cache: make(map[string]Geometry),
	}
}

// NewWarpedGP creates a credible region of a warped Gaussian process. The
// quantile is the chi-square quantile with one degree of freedom per
// parameter element.
func NewWarpedGP(name string, p WarpedPredictor, inputs [][]model.Expr, alpha float64) *Set {
	return &Set{
		name: name,
		lib: &GPCredible{
			Predictor: p,
			Warped:    p,
			Inputs:    inputs,
			Alpha:     alpha,
			F:         ChiSquareQuantile(alpha, len(inputs)),
		},
		cache: make(map[string]Geometry),
	}
}

package uncset

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/robustopt/internal/model"
	"gonum.org/v1/gonum/mat"
)

// Geometry is the classified shape of an uncertainty set. It is one of
// *Polyhedral, *Ellipsoidal, *GPCredible or *Unknown.
type Geometry interface {
	geometry()
}

// Polyhedral is {w : Mat·w <= Rhs}.
type Polyhedral struct {
	Mat *mat.Dense
	Rhs []float64
}

// Ellipsoidal is {w : (w-Mean)ᵀ Cov⁻¹ (w-Mean) <= 1}.
type Ellipsoidal struct {
	Mean []float64
	Cov  *mat.SymDense
}

// GPCredible is a credible region of a predictive model evaluated at Inputs.
// Warped is set for warped processes, in which case the moments are latent.
type GPCredible struct {
	Predictor Predictor
	Warped    WarpedPredictor
	Inputs    [][]model.Expr
	Alpha     float64
	F         float64
}

// Unknown is any set none of the reformulations recognise.
type Unknown struct {
	Reason string
}

func (*Polyhedral) geometry()  {}
func (*Ellipsoidal) geometry() {}
func (*GPCredible) geometry()  {}
func (*Unknown) geometry()     {}

// Moments evaluates the predictor at the current values of the inputs.
func (g *GPCredible) Moments() ([]float64, *mat.SymDense, error) {
	points := make([][]float64, len(g.Inputs))
	for i, in := range g.Inputs {
		points[i] = make([]float64, len(in))
		for j, e := range in {
			points[i][j] = e.Eval()
		}
	}
	return g.Predictor.Predict(points)
}

// Classify returns the geometry of s as seen by the uncertain collection
// param. The result is cached per collection.
func Classify(s *Set, param *model.VarSet) (Geometry, error) {
	if g, ok := s.cache[param.Name]; ok {
		return g, nil
	}
	g, err := classify(s, param)
	if err != nil {
		return nil, err
	}
	s.cache[param.Name] = g
	return g, nil
}

func classify(s *Set, param *model.VarSet) (Geometry, error) {
	n := param.Len()
	switch lib := s.lib.(type) {
	case *Polyhedral:
		if _, c := lib.Mat.Dims(); c != n {
			return nil, fmt.Errorf("uncset %s: matrix has %d columns but parameter %s has %d elements", s.name, c, param.Name, n)
		}
		return lib, nil
	case *Ellipsoidal:
		if len(lib.Mean) != n {
			return nil, fmt.Errorf("uncset %s: mean has %d elements but parameter %s has %d", s.name, len(lib.Mean), param.Name, n)
		}
		return lib, nil
	case *GPCredible:
		if len(lib.Inputs) != n {
			return nil, fmt.Errorf("uncset %s: %d inputs but parameter %s has %d elements", s.name, len(lib.Inputs), param.Name, n)
		}
		return lib, nil
	}

	rels := s.Relations()
	if len(rels) == 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrEmptyUncertaintySet, s.name)
	}
	for _, c := range rels {
		for _, v := range model.Vars(c.Body) {
			if v.Kind() == model.Uncertain && v.Set() != param {
				return nil, fmt.Errorf("%w: set %s references %s and %s",
					model.ErrMultipleUncertainParameterCollections, s.name, param.Name, v.Set().Name)
			}
		}
	}

	if g, ok := polyhedral(rels, param); ok {
		slog.Debug("Classified uncertainty set", "set", s.name, "geometry", "polyhedral")
		return g, nil
	}
	if g, reason := ellipsoidal(rels, param); g != nil {
		slog.Debug("Classified uncertainty set", "set", s.name, "geometry", "ellipsoidal")
		return g, nil
	} else if reason != "" {
		return &Unknown{Reason: reason}, nil
	}
	return &Unknown{Reason: "relations are neither linear nor a single ellipsoid"}, nil
}

// numericRepn extracts the repn of body with param as the only free leaves
// and requires every coefficient to be a number.
func numericRepn(body model.Expr, param *model.VarSet) (*model.Repn, bool) {
	g := model.FixAllExcept(model.Vars(body), func(v *model.Var) bool { return v.Set() == param })
	defer g.Restore()

	r := model.StandardRepn(body)
	if r.Nonlinear != nil {
		return r, false
	}
	if _, ok := model.IsConst(r.Constant); !ok {
		return r, false
	}
	for _, t := range r.Linear {
		if _, ok := model.IsConst(t.Coef); !ok {
			return r, false
		}
	}
	for _, t := range r.Quadratic {
		if _, ok := model.IsConst(t.Coef); !ok {
			return r, false
		}
	}
	return r, true
}

func value(e model.Expr) float64 {
	c, _ := model.IsConst(e)
	return c
}

func polyhedral(rels []*model.Constraint, param *model.VarSet) (*Polyhedral, bool) {
	n := param.Len()
	var (
		rows [][]float64
		rhs  []float64
	)
	for _, c := range rels {
		r, ok := numericRepn(c.Body, param)
		if !ok || !r.IsLinear() {
			return nil, false
		}
		row := make([]float64, n)
		for _, t := range r.Linear {
			row[t.Var.Index()] += value(t.Coef)
		}
		k := value(r.Constant)
		if c.HasUpper() {
			rows = append(rows, row)
			rhs = append(rhs, c.Upper-k)
		}
		if c.HasLower() {
			neg := make([]float64, n)
			for j, a := range row {
				neg[j] = -a
			}
			rows = append(rows, neg)
			rhs = append(rhs, k-c.Lower)
		}
	}
	if len(rows) == 0 {
		return nil, false
	}
	a := mat.NewDense(len(rows), n, nil)
	for i, row := range rows {
		a.SetRow(i, row)
	}
	return &Polyhedral{Mat: a, Rhs: rhs}, true
}

// ellipsoidal recognises a single relation wᵀQw + bᵀw + c <= u with Q
// positive definite, or the mirrored lower-bounded form. A non-empty reason
// explains why a quadratic relation was rejected.
func ellipsoidal(rels []*model.Constraint, param *model.VarSet) (*Ellipsoidal, string) {
	if len(rels) != 1 {
		return nil, ""
	}
	c := rels[0]
	r, ok := numericRepn(c.Body, param)
	if !ok || r.IsLinear() {
		return nil, ""
	}
	if c.HasLower() == c.HasUpper() {
		return nil, "quadratic relation must be one-sided"
	}

	n := param.Len()
	q := mat.NewDense(n, n, nil)
	for _, t := range r.Quadratic {
		i, j := t.Var1.Index(), t.Var2.Index()
		q.Set(i, j, q.At(i, j)+value(t.Coef))
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(q.At(i, j)+q.At(j, i)))
		}
	}
	b := make([]float64, n)
	for _, t := range r.Linear {
		b[t.Var.Index()] += value(t.Coef)
	}
	k := value(r.Constant)
	bound := c.Upper

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		return nil, "eigendecomposition failed"
	}
	vals := eig.Values(nil)
	switch {
	case c.HasUpper() && allSign(vals, 1):
	case c.HasLower() && allSign(vals, -1):
		sym.ScaleSym(-1, sym)
		for i := range b {
			b[i] = -b[i]
		}
		k = -k
		bound = -c.Lower
	default:
		return nil, "quadratic form is not definite in the bounded direction"
	}

	var qinv mat.Dense
	if err := qinv.Inverse(sym); err != nil {
		return nil, "quadratic form is singular"
	}
	bv := mat.NewVecDense(n, b)
	var mu mat.VecDense
	mu.MulVec(&qinv, bv)
	mu.ScaleVec(-0.5, &mu)
	radius := bound - k + mat.Inner(&mu, sym, &mu)
	if radius <= 0 {
		return nil, "ellipsoid is empty or a single point"
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, radius*0.5*(qinv.At(i, j)+qinv.At(j, i)))
		}
	}
	mean := make([]float64, n)
	for i := range mean {
		mean[i] = mu.AtVec(i)
	}
	return &Ellipsoidal{Mean: mean, Cov: cov}, ""
}

func allSign(vals []float64, sign float64) bool {
	for _, v := range vals {
		if sign*v <= 0 || math.IsNaN(v) {
			return false
		}
	}
	return true
}

package uncset

import (
	"fmt"
	"math"

	"github.com/cwbudde/robustopt/internal/model"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Predictor is a predictive-model oracle. Predict returns the mean at each
// point and the joint covariance between the points.
type Predictor interface {
	Predict(points [][]float64) ([]float64, *mat.SymDense, error)
}

// WarpedPredictor predicts latent Gaussian moments for targets that were
// passed through a monotone warping. Warp and WarpDeriv act elementwise and
// must accept symbolic arguments.
type WarpedPredictor interface {
	Predictor
	Warp(y model.Expr) model.Expr
	WarpDeriv(y model.Expr) model.Expr
}

// NormalQuantile maps a confidence level to the standard normal quantile.
func NormalQuantile(alpha float64) float64 {
	return distuv.UnitNormal.Quantile(alpha)
}

// ChiSquareQuantile maps a confidence level to the chi-square quantile with k
// degrees of freedom.
func ChiSquareQuantile(alpha float64, k int) float64 {
	return distuv.ChiSquared{K: float64(k)}.Quantile(alpha)
}

// RBFProcess is a Gaussian process regressor with a squared exponential
// kernel and fixed hyperparameters.
type RBFProcess struct {
	LengthScale float64
	Variance    float64
	Noise       float64
	Mean        float64

	x     [][]float64
	alpha *mat.VecDense
	chol  mat.Cholesky
}

// FitRBF conditions a process on observations y at points x.
func FitRBF(x [][]float64, y []float64, lengthScale, variance, noise float64) (*RBFProcess, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("gp: %d points but %d targets", len(x), len(y))
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("gp: no training data")
	}
	g := &RBFProcess{LengthScale: lengthScale, Variance: variance, Noise: noise}
	for _, v := range y {
		g.Mean += v
	}
	g.Mean /= float64(len(y))
	g.x = x

	n := len(x)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := g.kernel(x[i], x[j])
			if i == j {
				v += noise + 1e-10
			}
			k.SetSym(i, j, v)
		}
	}
	if ok := g.chol.Factorize(k); !ok {
		return nil, fmt.Errorf("gp: kernel matrix is not positive definite")
	}
	centered := mat.NewVecDense(n, nil)
	for i, v := range y {
		centered.SetVec(i, v-g.Mean)
	}
	g.alpha = mat.NewVecDense(n, nil)
	if err := g.chol.SolveVecTo(g.alpha, centered); err != nil {
		return nil, fmt.Errorf("gp: failed to solve for weights: %w", err)
	}
	return g, nil
}

func (g *RBFProcess) kernel(a, b []float64) float64 {
	var d2 float64
	for i := range a {
		d := a[i] - b[i]
		d2 += d * d
	}
	return g.Variance * math.Exp(-0.5*d2/(g.LengthScale*g.LengthScale))
}

// Predict returns the posterior mean and covariance at points.
func (g *RBFProcess) Predict(points [][]float64) ([]float64, *mat.SymDense, error) {
	n, m := len(g.x), len(points)
	ks := mat.NewDense(m, n, nil)
	for i, p := range points {
		if len(p) != len(g.x[0]) {
			return nil, nil, fmt.Errorf("gp: point %d has dimension %d, want %d", i, len(p), len(g.x[0]))
		}
		for j, x := range g.x {
			ks.Set(i, j, g.kernel(p, x))
		}
	}
	mean := make([]float64, m)
	var mu mat.VecDense
	mu.MulVec(ks, g.alpha)
	for i := range mean {
		mean[i] = g.Mean + mu.AtVec(i)
	}

	var v mat.Dense
	if err := g.chol.SolveTo(&v, ks.T()); err != nil {
		return nil, nil, fmt.Errorf("gp: failed to solve for covariance: %w", err)
	}
	var reduce mat.Dense
	reduce.Mul(ks, &v)
	cov := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			c := g.kernel(points[i], points[j]) - 0.5*(reduce.At(i, j)+reduce.At(j, i))
			if i == j {
				c = math.Max(c, 1e-12)
			}
			cov.SetSym(i, j, c)
		}
	}
	return mean, cov, nil
}

// TanhWarping is h(y) = y + sum_k A[k]*tanh(B[k]*(y + C[k])), monotone for
// non-negative A and B.
type TanhWarping struct {
	A, B, C []float64
}

// Value applies the warping to a number.
func (w TanhWarping) Value(y float64) float64 {
	out := y
	for k := range w.A {
		out += w.A[k] * math.Tanh(w.B[k]*(y+w.C[k]))
	}
	return out
}

// Warp applies the warping to an expression.
func (w TanhWarping) Warp(y model.Expr) model.Expr {
	terms := []model.Expr{y}
	for k := range w.A {
		terms = append(terms, model.Scale(w.A[k], model.Tanh(model.Scale(w.B[k], model.Add(y, model.C(w.C[k]))))))
	}
	return model.Add(terms...)
}

// WarpDeriv returns dh/dy as an expression.
func (w TanhWarping) WarpDeriv(y model.Expr) model.Expr {
	terms := []model.Expr{model.C(1)}
	for k := range w.A {
		t := model.Tanh(model.Scale(w.B[k], model.Add(y, model.C(w.C[k]))))
		terms = append(terms, model.Scale(w.A[k]*w.B[k], model.Sub(model.C(1), model.Square(t))))
	}
	return model.Add(terms...)
}

// WarpedRBF is an RBF process fitted on warped targets.
type WarpedRBF struct {
	*RBFProcess
	TanhWarping
}

// FitWarpedRBF warps the targets and fits the latent process.
func FitWarpedRBF(x [][]float64, y []float64, w TanhWarping, lengthScale, variance, noise float64) (*WarpedRBF, error) {
	latent := make([]float64, len(y))
	for i, v := range y {
		latent[i] = w.Value(v)
	}
	g, err := FitRBF(x, latent, lengthScale, variance, noise)
	if err != nil {
		return nil, err
	}
	return &WarpedRBF{RBFProcess: g, TanhWarping: w}, nil
}

// Warping is a monotone increasing transform applied elementwise.
type Warping interface {
	Warp(y model.Expr) model.Expr
}

// InverseWarp solves h(y) = target by bisection. ok is false when no bracket
// is found.
func InverseWarp(w Warping, target float64) (y float64, ok bool) {
	h := func(v float64) float64 { return w.Warp(model.C(v)).Eval() }
	lo, hi := -1.0, 1.0
	for i := 0; h(lo) > target; i++ {
		if i == 64 {
			return 0, false
		}
		lo *= 2
	}
	for i := 0; h(hi) < target; i++ {
		if i == 64 {
			return 0, false
		}
		hi *= 2
	}
	for i := 0; i < 200 && hi-lo > 1e-14*math.Max(1, math.Abs(lo)); i++ {
		mid := 0.5 * (lo + hi)
		if h(mid) < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi), true
}

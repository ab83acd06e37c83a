package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinPopulation is the smallest population the mayfly library accepts.
const MinPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	if popSize < MinPopulation {
		popSize = MinPopulation
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization. The library only takes scalar bounds,
// so the search runs on the unit cube and points are mapped to [lower, upper]
// before evaluation.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error) {
	if len(lower) != dim || len(upper) != dim {
		return nil, 0, fmt.Errorf("mayfly: bounds have length %d/%d, want %d", len(lower), len(upper), dim)
	}
	for i := range lower {
		if !(lower[i] <= upper[i]) {
			return nil, 0, fmt.Errorf("mayfly: empty bounds [%g, %g] in dimension %d", lower[i], upper[i], i)
		}
	}

	point := make([]float64, dim)
	scale := func(z []float64) []float64 {
		for i := range point {
			zi := z[i]
			if zi < 0 {
				zi = 0
			} else if zi > 1 {
				zi = 1
			}
			point[i] = lower[i] + zi*(upper[i]-lower[i])
		}
		return point
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(z []float64) float64 { return eval(scale(z)) }
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly: %w", err)
	}
	best := append([]float64(nil), scale(result.GlobalBest.Position)...)
	return best, result.GlobalBest.Cost, nil
}

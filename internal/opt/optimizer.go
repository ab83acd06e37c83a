// Package opt wraps derivative-free optimizers behind a common interface.
package opt

// Optimizer defines an optimization algorithm interface
type Optimizer interface {
	// Run minimizes eval over the box [lower, upper] of dimension dim and
	// returns the best point with its cost.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error)
}

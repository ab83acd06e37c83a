package cuts

import (
	"log/slog"
	"math"
)

// TrackerConfig defines when the master objective counts as stalled.
type TrackerConfig struct {
	// Enabled controls whether stall detection is active
	Enabled bool

	// Patience is the number of iterations without a significant change of
	// the master objective before a stall is reported
	Patience int

	// Threshold is the minimum relative change that counts as progress.
	// Relative change = |obj - lastSignificant| / max(1, |lastSignificant|)
	Threshold float64
}

// DefaultTrackerConfig returns the defaults used by the driver.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Enabled:   true,
		Patience:  10,
		Threshold: 1e-6,
	}
}

// DisabledTrackerConfig turns stall detection off.
func DisabledTrackerConfig() TrackerConfig {
	return TrackerConfig{Enabled: false}
}

// Iteration summarises one master solve and the cut round after it.
type Iteration struct {
	Iter      int     `json:"iter"`
	Objective float64 `json:"objective"`
	Feasible  int     `json:"feasible"`
	Total     int     `json:"total"`
	Cuts      int     `json:"cuts"`
}

// Tracker records the driver history and detects a master objective that
// stops moving while generators remain infeasible.
type Tracker struct {
	config          TrackerConfig
	history         []Iteration
	lastSignificant float64
	staleCount      int
	warned          bool
}

// NewTracker creates a tracker with the given config.
func NewTracker(config TrackerConfig) *Tracker {
	return &Tracker{
		config:          config,
		lastSignificant: math.NaN(),
	}
}

// Update records an iteration and returns true if the master objective has
// stalled. A stall is logged once.
func (t *Tracker) Update(it Iteration) bool {
	t.history = append(t.history, it)
	slog.Info("Cut round finished",
		"iter", it.Iter,
		"objective", it.Objective,
		"robustly_feasible", it.Feasible,
		"total", it.Total,
	)
	if !t.config.Enabled {
		return false
	}

	if math.IsNaN(t.lastSignificant) {
		t.lastSignificant = it.Objective
		return false
	}

	change := math.Abs(it.Objective-t.lastSignificant) / math.Max(1, math.Abs(t.lastSignificant))
	if change >= t.config.Threshold || it.Feasible == it.Total {
		t.lastSignificant = it.Objective
		t.staleCount = 0
		return false
	}

	t.staleCount++
	slog.Debug("Master objective unchanged",
		"objective", it.Objective,
		"relative_change", change,
		"stale_count", t.staleCount,
		"patience", t.config.Patience,
	)
	if t.staleCount < t.config.Patience {
		return false
	}
	if !t.warned {
		slog.Warn("Cutting planes are not moving the master objective",
			"stale_count", t.staleCount,
			"objective", it.Objective,
			"robustly_feasible", it.Feasible,
			"total", it.Total,
		)
		t.warned = true
	}
	return true
}

// History returns a copy of the recorded iterations.
func (t *Tracker) History() []Iteration {
	return append([]Iteration{}, t.history...)
}

// StaleCount returns the number of iterations without significant change.
func (t *Tracker) StaleCount() int {
	return t.staleCount
}

// Reset clears the tracker state.
func (t *Tracker) Reset() {
	t.history = nil
	t.lastSignificant = math.NaN()
	t.staleCount = 0
	t.warned = false
}

package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/robustopt/internal/config"
)

// Run is the persisted outcome of one robust solve.
type Run struct {
	// ID is a random UUID assigned by NewRun.
	ID      string `json:"id"`
	Example string `json:"example"`
	Set     string `json:"set"`
	Method  string `json:"method"`

	// Status is the status of the final deterministic solve; CutStatus is
	// set by cutting-plane runs.
	Status    string  `json:"status"`
	CutStatus string  `json:"cutStatus,omitempty"`
	Objective float64 `json:"objective"`
	// Iterations counts master solves for cutting planes and solver
	// iterations otherwise.
	Iterations int `json:"iterations"`

	// Values maps variable names to their final values.
	Values map[string]float64 `json:"values"`

	Elapsed   time.Duration  `json:"elapsed"`
	Timestamp time.Time      `json:"timestamp"`
	Config    *config.Config `json:"config"`
}

// RunInfo is the listing view of a run.
type RunInfo struct {
	ID        string    `json:"id"`
	Example   string    `json:"example"`
	Set       string    `json:"set"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Objective float64   `json:"objective"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRun creates a record with a fresh ID and the current time.
func NewRun(example, set, method string, cfg *config.Config) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Example:   example,
		Set:       set,
		Method:    method,
		Values:    make(map[string]float64),
		Timestamp: time.Now(),
		Config:    cfg,
	}
}

// ToInfo converts a full Run to RunInfo.
func (r *Run) ToInfo() RunInfo {
	return RunInfo{
		ID:        r.ID,
		Example:   r.Example,
		Set:       r.Set,
		Method:    r.Method,
		Status:    r.Status,
		Objective: r.Objective,
		Timestamp: r.Timestamp,
	}
}

// Validate checks that the record can be listed and reloaded.
func (r *Run) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return &ValidationError{Field: "ID", Reason: "must be a UUID"}
	}
	if r.Example == "" {
		return &ValidationError{Field: "Example", Reason: "cannot be empty"}
	}
	if r.Method == "" {
		return &ValidationError{Field: "Method", Reason: "cannot be empty"}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a run validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

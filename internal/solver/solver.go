// Package solver defines the contract between the robust engine and the
// numeric solvers it delegates master and separation problems to.
package solver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/robustopt/internal/model"
)

// Status is the termination condition of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusIterationLimit
	StatusTimeLimit
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusIterationLimit:
		return "iteration_limit"
	case StatusTimeLimit:
		return "time_limit"
	default:
		return "error"
	}
}

// Options are forwarded verbatim to a solver.
type Options struct {
	// TimeLimit bounds the wall-clock time of one solve; zero means none.
	TimeLimit time.Duration
	// Tee raises solver progress logs from debug to info.
	Tee bool
	// Params holds solver-specific keys.
	Params map[string]any
}

// Float returns a numeric parameter or def.
func (o Options) Float(key string, def float64) float64 {
	switch v := o.Params[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// Int returns an integer parameter or def.
func (o Options) Int(key string, def int) int {
	switch v := o.Params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Context derives a context honouring TimeLimit.
func (o Options) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.TimeLimit > 0 {
		return context.WithTimeout(ctx, o.TimeLimit)
	}
	return context.WithCancel(ctx)
}

// Result reports the outcome of a solve. On StatusOptimal the solution has
// already been loaded into the model vars.
type Result struct {
	Solver     string
	Status     Status
	Objective  float64
	Values     map[*model.Var]float64
	Iterations int
	WallTime   time.Duration
	Stats      model.Statistics
	Message    string
}

// IsOptimal reports whether the solve terminated optimally.
func (r *Result) IsOptimal() bool { return r != nil && r.Status == StatusOptimal }

// Solver solves finite deterministic models. Implementations keep no state
// between calls.
type Solver interface {
	Name() string
	Solve(ctx context.Context, m *model.Model, opts Options) (*Result, error)
}

// Factory creates a solver instance.
type Factory func() Solver

// Registry maps solver names to factories. It is built explicitly at startup
// and passed to whoever needs to resolve solver names.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New instantiates the solver registered under name.
func (r *Registry) New(name string) (Solver, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown solver %q (available: %v)", name, r.Names())
	}
	return f(), nil
}

// Names lists registered solvers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

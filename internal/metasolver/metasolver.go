// Package metasolver solves robust models end to end by chaining the
// adjustable, counterpart and cutting-plane transformations with a
// deterministic solver.
package metasolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cwbudde/robustopt/internal/adjustable"
	"github.com/cwbudde/robustopt/internal/config"
	"github.com/cwbudde/robustopt/internal/cuts"
	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/reformulate"
	"github.com/cwbudde/robustopt/internal/solver"
	"github.com/cwbudde/robustopt/internal/solver/bnb"
	"github.com/cwbudde/robustopt/internal/solver/swarm"
)

// Meta-solver names.
const (
	NameCuts          = "romodel.cuts"
	NameReformulation = "romodel.reformulation"
	NameNominal       = "romodel.nominal"
)

// Result is the outcome of a robust solve. The embedded result is the final
// deterministic solve; Cuts is set by the cutting-plane method.
type Result struct {
	*solver.Result
	Method  string
	Cuts    *cuts.Result
	Elapsed time.Duration
}

// Robust reports whether the returned solution is feasible for every
// realization the method accounts for.
func (r *Result) Robust() bool {
	if !r.IsOptimal() {
		return false
	}
	return r.Cuts == nil || r.Cuts.Status == cuts.StatusRobust
}

// MetaSolver solves a model containing uncertain parameters.
type MetaSolver interface {
	Name() string
	Solve(ctx context.Context, m *model.Model) (*Result, error)
}

// Solvers returns a registry with the embedded deterministic solvers.
func Solvers() *solver.Registry {
	r := solver.NewRegistry()
	r.Register(bnb.Name, bnb.New)
	r.Register(swarm.Name, swarm.New)
	return r
}

// Env is what every meta-solver is built from.
type Env struct {
	Config  *config.Config
	Solvers *solver.Registry
	// OnIteration receives the progress of cutting-plane rounds.
	OnIteration func(cuts.Iteration)
}

// Factory builds a meta-solver from an environment.
type Factory func(Env) MetaSolver

// Registry maps meta-solver names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry holding the three meta-solvers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(NameCuts, func(e Env) MetaSolver { return &Cuts{env: e} })
	r.Register(NameReformulation, func(e Env) MetaSolver { return &Reformulation{env: e} })
	r.Register(NameNominal, func(e Env) MetaSolver { return &Nominal{env: e} })
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New builds the meta-solver registered under name. The short forms "cuts",
// "reformulation" and "nominal" are accepted.
func (r *Registry) New(name string, env Env) (MetaSolver, error) {
	if !strings.Contains(name, ".") {
		name = "romodel." + name
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown meta-solver %q (available: %v)", name, r.Names())
	}
	if env.Config == nil {
		env.Config = config.Default()
	}
	if env.Solvers == nil {
		env.Solvers = Solvers()
	}
	return f(env), nil
}

// Names lists registered meta-solvers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// adjust runs the configured adjustable transformation. The returned hook
// loads adjustable values after the solve: relaxed copies are copied back,
// decision rules are evaluated at the nominal parameters.
func adjust(cfg *config.Config, m *model.Model) (func(), error) {
	switch cfg.Adjustable {
	case config.AdjustableNominal:
		slog.Debug("Relaxing adjustable variables", "model", m.Name)
		return adjustable.Relax(m), nil
	default:
		slog.Debug("Applying linear decision rules", "model", m.Name)
		ldr := &adjustable.LDR{}
		if err := ldr.Apply(m); err != nil {
			return nil, fmt.Errorf("%s: %w", adjustable.NameLDR, err)
		}
		return func() { ldr.Evaluate(m) }, nil
	}
}

func solveDeterministic(ctx context.Context, env Env, m *model.Model) (*solver.Result, error) {
	s, err := env.Solvers.New(env.Config.Solver)
	if err != nil {
		return nil, err
	}
	res, err := s.Solve(ctx, m, env.Config.SolverOptions())
	if err != nil {
		return nil, fmt.Errorf("%s solve: %w", s.Name(), err)
	}
	return res, nil
}

// Reformulation replaces every uncertain relation by its deterministic
// counterpart and solves the result once.
type Reformulation struct {
	env Env
}

// Name implements MetaSolver.
func (*Reformulation) Name() string { return NameReformulation }

// Solve implements MetaSolver. The model is transformed in place.
func (r *Reformulation) Solve(ctx context.Context, m *model.Model) (*Result, error) {
	start := time.Now()
	restore, err := adjust(r.env.Config, m)
	if err != nil {
		return nil, err
	}
	defer restore()

	reg := reformulate.NewRegistry()
	reformulate.Options{
		Root:            r.env.Config.Root,
		GenericDual:     r.env.Config.GenericDual,
		InitializeWolfe: r.env.Config.InitializeWolfe,
	}.Register(reg)
	for _, name := range reformulate.Counterparts {
		slog.Debug("Applying transformation", "name", name, "model", m.Name)
		if err := reg.Apply(name, m); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	res, err := solveDeterministic(ctx, r.env, m)
	if err != nil {
		return nil, err
	}
	slog.Info("Reformulation solved", "model", m.Name, "status", res.Status.String(), "objective", res.Objective)
	return &Result{Result: res, Method: NameReformulation, Elapsed: time.Since(start)}, nil
}

// Cuts replaces every uncertain relation by a generator and runs the
// cutting-plane loop.
type Cuts struct {
	env Env
}

// Name implements MetaSolver.
func (*Cuts) Name() string { return NameCuts }

// Solve implements MetaSolver. The model is transformed in place.
func (c *Cuts) Solve(ctx context.Context, m *model.Model) (*Result, error) {
	start := time.Now()
	cfg := c.env.Config
	restore, err := adjust(cfg, m)
	if err != nil {
		return nil, err
	}
	defer restore()

	gens, err := cuts.Install(m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cuts.NameGenerators, err)
	}

	master, err := c.env.Solvers.New(cfg.Solver)
	if err != nil {
		return nil, err
	}
	sub, err := c.env.Solvers.New(cfg.SubsolverName())
	if err != nil {
		return nil, err
	}
	subOpts := cfg.SeparationOptions()
	res, err := cuts.Run(ctx, m, gens, cuts.Options{
		Solver:           master,
		Subsolver:        sub,
		SolverOptions:    cfg.SolverOptions(),
		SubsolverOptions: &subOpts,
		MaxIter:          cfg.MaxIter,
		Parallel:         cfg.Parallel,
		Recheck:          cfg.Recheck,
		Tracker:          cuts.DefaultTrackerConfig(),
		OnIteration:      c.env.OnIteration,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Result: res.Master, Method: NameCuts, Cuts: res, Elapsed: time.Since(start)}, nil
}

// Nominal solves the model at the nominal parameter values with adjustable
// variables treated as first-stage decisions. Adjustable collections get the
// values of their relaxed copies back.
type Nominal struct {
	env Env
}

// Name implements MetaSolver.
func (*Nominal) Name() string { return NameNominal }

// Solve implements MetaSolver.
func (n *Nominal) Solve(ctx context.Context, m *model.Model) (*Result, error) {
	start := time.Now()
	restore := adjustable.Relax(m)
	defer restore()

	if err := (&reformulate.Nominal{}).Apply(m); err != nil {
		return nil, fmt.Errorf("%s: %w", reformulate.NameNominal, err)
	}
	res, err := solveDeterministic(ctx, n.env, m)
	if err != nil {
		return nil, err
	}
	slog.Info("Nominal problem solved", "model", m.Name, "status", res.Status.String(), "objective", res.Objective)
	return &Result{Result: res, Method: NameNominal, Elapsed: time.Since(start)}, nil
}

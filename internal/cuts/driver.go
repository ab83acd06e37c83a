package cuts

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/solver"
)

// DefaultMaxIter caps the number of master solves.
const DefaultMaxIter = 300

// Status is the outcome of the cutting-plane loop. Running out of iterations
// is a normal termination, not an error.
type Status int

const (
	StatusRobust Status = iota
	StatusMaxIterExceeded
)

func (s Status) String() string {
	if s == StatusMaxIterExceeded {
		return "max_iter_exceeded"
	}
	return "robust"
}

// Options configure the driver.
type Options struct {
	Solver    solver.Solver
	Subsolver solver.Solver // defaults to Solver
	// SolverOptions are used for master solves and, unless
	// SubsolverOptions is set, for separation problems.
	SolverOptions    solver.Options
	SubsolverOptions *solver.Options
	MaxIter          int
	// Parallel solves the separation problems of distinct generators
	// concurrently.
	Parallel bool
	// Recheck separates every generator in every round. Without it a
	// generator found feasible is separated again only once all the others
	// are feasible.
	Recheck bool
	Tracker TrackerConfig
	// OnIteration is called after every cut round.
	OnIteration func(Iteration)
}

// Result is the final state of the loop. Master holds the last master solve;
// its values are loaded in the model.
type Result struct {
	Status     Status
	Iterations int
	Objective  float64
	Master     *solver.Result
	History    []Iteration
	WallTime   time.Duration
}

// Run alternates master solves and cut rounds until every generator is
// feasible or opts.MaxIter master solves have been made.
func Run(ctx context.Context, m *model.Model, gens []*Generator, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Solver == nil {
		return nil, fmt.Errorf("cutting planes need a master solver")
	}
	sub := opts.Subsolver
	if sub == nil {
		sub = opts.Solver
	}
	subOpts := opts.SolverOptions
	if opts.SubsolverOptions != nil {
		subOpts = *opts.SubsolverOptions
	}
	maxIter := opts.MaxIter
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}
	tracker := NewTracker(opts.Tracker)
	slog.Info("Starting cutting planes",
		"generators", len(gens),
		"solver", opts.Solver.Name(),
		"subsolver", sub.Name(),
		"max_iter", maxIter,
	)

	res := &Result{Status: StatusMaxIterExceeded}
	for iter := 1; ; iter++ {
		master, err := opts.Solver.Solve(ctx, m, opts.SolverOptions)
		if err != nil {
			return nil, fmt.Errorf("master solve %d: %w", iter, err)
		}
		if !master.IsOptimal() {
			return nil, fmt.Errorf("master solve %d terminated with status %s", iter, master.Status)
		}
		res.Master, res.Objective, res.Iterations = master, master.Objective, iter

		var pending, settled []*Generator
		for _, g := range gens {
			if g.Feasible() && !opts.Recheck {
				settled = append(settled, g)
			} else {
				pending = append(pending, g)
			}
		}
		if err := round(ctx, pending, sub, subOpts, opts.Parallel); err != nil {
			return nil, err
		}
		// The master point may have moved since settled generators were last
		// separated.
		if len(settled) > 0 && allFeasible(pending) {
			slog.Debug("Re-separating settled generators", "iter", iter, "settled", len(settled))
			if err := round(ctx, settled, sub, subOpts, opts.Parallel); err != nil {
				return nil, err
			}
		}
		it := Iteration{Iter: iter, Objective: master.Objective, Total: len(gens)}
		for _, g := range gens {
			if g.Feasible() {
				it.Feasible++
			}
			it.Cuts += len(g.Cuts)
		}
		tracker.Update(it)
		if opts.OnIteration != nil {
			opts.OnIteration(it)
		}

		if it.Feasible == it.Total {
			res.Status = StatusRobust
			break
		}
		if iter >= maxIter {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cutting planes interrupted after %d iterations: %w", iter, err)
		}
	}
	res.History = tracker.History()
	res.WallTime = time.Since(start)

	if res.Status == StatusRobust {
		slog.Info("All constraints robustly feasible", "iterations", res.Iterations, "objective", res.Objective)
	} else {
		slog.Warn("Reached max_iter, solution is not robustly feasible", "max_iter", maxIter, "objective", res.Objective)
	}
	return res, nil
}

func allFeasible(gens []*Generator) bool {
	for _, g := range gens {
		if !g.Feasible() {
			return false
		}
	}
	return true
}

// round separates gens at the current master point and adds their cuts.
func round(ctx context.Context, gens []*Generator, sub solver.Solver, opts solver.Options, parallel bool) error {
	type job struct {
		gen  *Generator
		seps []*Separation
	}
	var jobs []job
	// Separation models are built before any solve so that coefficient
	// evaluation never overlaps a concurrent solve.
	for _, g := range gens {
		seps, err := g.Separations()
		if err != nil {
			return err
		}
		jobs = append(jobs, job{gen: g, seps: seps})
	}

	if parallel {
		eg, ectx := errgroup.WithContext(ctx)
		eg.SetLimit(runtime.NumCPU())
		for _, j := range jobs {
			for _, s := range j.seps {
				eg.Go(func() error { return s.Solve(ectx, sub, opts) })
			}
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	} else {
		for _, j := range jobs {
			for _, s := range j.seps {
				if err := s.Solve(ctx, sub, opts); err != nil {
					return err
				}
			}
		}
	}

	for _, j := range jobs {
		j.gen.Resolve(j.seps)
	}
	return nil
}

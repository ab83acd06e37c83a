package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/robustopt/internal/config"
	"github.com/cwbudde/robustopt/internal/examples"
	"github.com/cwbudde/robustopt/internal/metasolver"
	"github.com/cwbudde/robustopt/internal/model"
	"github.com/cwbudde/robustopt/internal/store"
)

var (
	method    string
	setName   string
	save      bool
	solverOpt string
	maxIter   int
	parallel  bool
)

var solveCmd = &cobra.Command{
	Use:   "solve <example>",
	Short: "Solve a bundled robust model",
	Long: `Builds one of the bundled models (knapsack, portfolio, facility, planning),
attaches the selected uncertainty set and solves it with the selected method.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: examples.Names(),
	RunE:      runSolve,
}

func init() {
	solveCmd.Flags().StringVar(&method, "method", "reformulation", "Method: reformulation, cuts, nominal")
	solveCmd.Flags().StringVar(&setName, "set", "", "Uncertainty set of the example (default: the example's default)")
	solveCmd.Flags().BoolVar(&save, "save", false, "Persist the run record and cut trace")
	solveCmd.Flags().StringVar(&solverOpt, "solver", "", "Master solver (overrides the options file)")
	solveCmd.Flags().IntVar(&maxIter, "max-iter", 0, "Cutting-plane iteration cap (overrides the options file)")
	solveCmd.Flags().BoolVar(&parallel, "parallel", false, "Solve separation problems concurrently")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	in, err := examples.Build(args[0], setName)
	if err != nil {
		return err
	}

	cfg.Solver = masterSolver(cfg.Solver, in.Solver, solverOpt)
	if maxIter > 0 {
		cfg.MaxIter = maxIter
	}
	if parallel {
		cfg.Parallel = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	set := in.Param.UncSet

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		run   *store.Run
		fs    *store.FSStore
		trace *store.TraceWriter
	)
	env := metasolver.Env{Config: cfg, Solvers: metasolver.Solvers()}
	if save {
		fs, err = store.NewFSStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		run = store.NewRun(args[0], set, method, cfg)
		trace, err = store.NewTraceWriter(fs.BaseDir(), run.ID)
		if err != nil {
			return err
		}
		env.OnIteration = trace.Record
	}

	ms, err := metasolver.NewRegistry().New(method, env)
	if err != nil {
		return err
	}
	if run != nil {
		run.Method = ms.Name()
	}

	shown := firstStage(in.Model)
	slog.Info("Solving", "example", args[0], "set", set, "method", ms.Name(), "solver", cfg.Solver)
	res, err := ms.Solve(ctx, in.Model)
	if trace != nil {
		if cerr := trace.Close(); cerr != nil {
			slog.Warn("Failed to write cut trace", "error", cerr)
		}
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", ms.Name(), err)
	}

	printResult(cmd.OutOrStdout(), res, shown)

	if run != nil {
		fillRun(run, res, in.Model)
		if err := fs.SaveRun(run); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nSaved run %s\n", run.ID)
	}
	return nil
}

// firstStage returns the variable collections a user declared, before any
// transformation adds its own.
func firstStage(m *model.Model) []*model.VarSet {
	var sets []*model.VarSet
	for _, s := range m.VarSets() {
		if s.Kind != model.Uncertain {
			sets = append(sets, s)
		}
	}
	return sets
}

func printResult(w io.Writer, res *metasolver.Result, sets []*model.VarSet) {
	fmt.Fprintf(w, "Method:    %s\n", res.Method)
	fmt.Fprintf(w, "Status:    %s\n", res.Status)
	if res.Cuts != nil {
		fmt.Fprintf(w, "Cuts:      %s after %d iterations\n", res.Cuts.Status, res.Cuts.Iterations)
	}
	fmt.Fprintf(w, "Objective: %.6f\n", res.Objective)
	fmt.Fprintf(w, "Time:      %v\n\n", res.Elapsed)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tVALUE")
	fmt.Fprintln(tw, "--------\t-----")
	for _, s := range sets {
		for _, v := range s.Vars {
			fmt.Fprintf(tw, "%s\t%.6g\n", v.Name(), v.Value)
		}
	}
	tw.Flush()
}

func fillRun(run *store.Run, res *metasolver.Result, m *model.Model) {
	run.Status = res.Status.String()
	run.Objective = res.Objective
	run.Iterations = res.Iterations
	run.Elapsed = res.Elapsed
	if res.Cuts != nil {
		run.CutStatus = res.Cuts.Status.String()
		run.Iterations = res.Cuts.Iterations
	}
	for _, v := range m.Vars() {
		if v.Kind() != model.Uncertain {
			run.Values[v.Name()] = v.Value
		}
	}
}

// masterSolver picks the --solver flag first, then the example's solver unless
// the options file chose a non-default one.
func masterSolver(configured, example, flag string) string {
	switch {
	case flag != "":
		return flag
	case example != "" && configured == config.Default().Solver:
		slog.Debug("Using the solver requested by the example", "solver", example)
		return example
	}
	return configured
}

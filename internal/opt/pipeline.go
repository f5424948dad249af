package opt

import (
	"context"
	"log"
	"time"

	"depotplan/internal/model"
	"depotplan/internal/solver"
)

// Pipeline runs one optimization: sets and parameters from the dataset,
// model construction against the solver collaborator, solve, extraction.
// Every stage works on values it derived itself; nothing is shared mutable
// state, so a Pipeline can be reused across runs.
type Pipeline struct {
	TimeLimit time.Duration
	Tolerance float64
	Verbose   bool
	Progress  ProgressFunc
}

// RunResult snapshots one finished run.
type RunResult struct {
	Status    string // model.Plan* status
	Proven    bool
	Objective float64
	Results
	Stats          solver.Stats
	NumVariables   int
	NumConstraints int
}

// Run executes the pipeline on ds. Integrity and domain errors return a
// non-nil error with no result; solver terminal states (infeasible,
// unbounded, limit hit before any incumbent) are valid outcomes carried in
// RunResult.Status.
func (p Pipeline) Run(ctx context.Context, ds model.Dataset) (*RunResult, error) {
	sets := BuildSets(ds.Stock, ds.Orders)
	params, err := BuildParams(ds.Stock, ds.Orders, ds.TransferCosts)
	if err != nil {
		return nil, err
	}

	m := solver.NewModel()
	m.Options = solver.Options{
		TimeLimit: p.TimeLimit,
		Verbose:   p.Verbose,
		Logf:      log.Printf,
	}
	built, err := BuildModel(m, sets, params, p.Progress)
	if err != nil {
		return nil, err
	}

	if p.Progress != nil {
		p.Progress("solve", 0, 1)
	}
	sol, err := m.Solve(ctx)
	if err != nil {
		return nil, err
	}
	if p.Progress != nil {
		p.Progress("solve", 1, 1)
	}

	out := &RunResult{
		Stats:          sol.Stats,
		NumVariables:   m.NumVars(),
		NumConstraints: m.NumConstraints(),
	}
	switch sol.Status {
	case solver.StatusOptimal:
		out.Status = model.PlanOptimal
		out.Proven = true
	case solver.StatusFeasible:
		out.Status = model.PlanFeasible
	case solver.StatusInfeasible:
		out.Status = model.PlanInfeasible
		return out, nil
	case solver.StatusUnbounded:
		out.Status = model.PlanUnbounded
		return out, nil
	default:
		out.Status = model.PlanFailed
		return out, nil
	}

	out.Objective = sol.Objective
	out.Results = ExtractResults(sol, built, ds.Orders, params, p.Tolerance)
	return out, nil
}

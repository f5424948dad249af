// Package solver is a small MILP engine behind the add-variable /
// add-constraint / solve surface the optimizer builds against. It solves
// LP relaxations with a two-phase simplex and branches on binary variables.
package solver

import (
	"context"
	"fmt"
	"time"
)

// Var is an opaque variable handle returned by the Add*Var methods.
type Var int

// VarKind distinguishes continuous from binary columns.
type VarKind int

const (
	Continuous VarKind = iota
	Binary
)

// Sense of a linear constraint.
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

// Direction of the objective.
type Direction int

const (
	Maximize Direction = iota
	Minimize
)

// Status of a finished solve.
type Status int

const (
	// StatusOptimal: proven optimal solution.
	StatusOptimal Status = iota
	// StatusFeasible: a limit stopped the search; the incumbent is valid
	// but not proven optimal.
	StatusFeasible
	// StatusInfeasible: no assignment satisfies the constraints.
	StatusInfeasible
	// StatusUnbounded: the objective can grow without limit.
	StatusUnbounded
	// StatusUnknown: a limit stopped the search before any incumbent.
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	default:
		return "unknown"
	}
}

type term struct {
	v    Var
	coef float64
}

// LinearExpr is a sum of coefficient·variable terms.
type LinearExpr struct {
	terms []term
}

func NewLinearExpr() *LinearExpr { return &LinearExpr{} }

// AddTerm appends coef·v and returns the expression for chaining.
func (e *LinearExpr) AddTerm(v Var, coef float64) *LinearExpr {
	e.terms = append(e.terms, term{v: v, coef: coef})
	return e
}

// NumTerms reports how many terms the expression carries.
func (e *LinearExpr) NumTerms() int { return len(e.terms) }

type row struct {
	terms []term
	sense Sense
	rhs   float64
	name  string
}

// Options are solver knobs forwarded by callers without interpretation.
type Options struct {
	// TimeLimit bounds the branch-and-bound wall clock. Zero means no limit.
	TimeLimit time.Duration
	// Verbose enables per-node logging via Logf.
	Verbose bool
	// Logf receives verbose output; nil falls back to a no-op.
	Logf func(format string, args ...any)
}

// Stats summarizes the work one solve performed.
type Stats struct {
	Nodes        int
	SimplexIters int
	Wall         time.Duration
}

// Solution is the read-only result snapshot of a solve.
type Solution struct {
	Status    Status
	Objective float64
	// Values is indexed by Var; populated for StatusOptimal and
	// StatusFeasible only.
	Values []float64
	Stats  Stats
}

// HasValues reports whether the solution carries variable values.
func (s Solution) HasValues() bool {
	return s.Status == StatusOptimal || s.Status == StatusFeasible
}

// Value returns the solved value of v.
func (s Solution) Value(v Var) float64 { return s.Values[int(v)] }

// Model accumulates variables, constraints and an objective, then solves.
type Model struct {
	kinds  []VarKind
	lower  []float64
	names  []string
	rows   []row
	obj    []float64
	objDir Direction
	objSet bool

	Options Options
}

func NewModel() *Model { return &Model{} }

// AddBinaryVar creates a 0/1 variable.
func (m *Model) AddBinaryVar(name string) Var {
	m.kinds = append(m.kinds, Binary)
	m.lower = append(m.lower, 0)
	m.names = append(m.names, name)
	return Var(len(m.kinds) - 1)
}

// AddContinuousVar creates a continuous variable bounded below by lb and
// unbounded above.
func (m *Model) AddContinuousVar(name string, lb float64) Var {
	m.kinds = append(m.kinds, Continuous)
	m.lower = append(m.lower, lb)
	m.names = append(m.names, name)
	return Var(len(m.kinds) - 1)
}

// AddConstraint records expr (sense) rhs.
func (m *Model) AddConstraint(expr *LinearExpr, sense Sense, rhs float64, name string) {
	terms := make([]term, len(expr.terms))
	copy(terms, expr.terms)
	m.rows = append(m.rows, row{terms: terms, sense: sense, rhs: rhs, name: name})
}

// SetObjective installs the objective. Calling it again replaces the
// previous objective entirely; objectives do not combine.
func (m *Model) SetObjective(expr *LinearExpr, dir Direction) {
	m.obj = make([]float64, len(m.kinds))
	for _, t := range expr.terms {
		m.obj[int(t.v)] += t.coef
	}
	m.objDir = dir
	m.objSet = true
}

// NumVars reports the number of variables created so far.
func (m *Model) NumVars() int { return len(m.kinds) }

// NumConstraints reports the number of constraints added so far.
func (m *Model) NumConstraints() int { return len(m.rows) }

// VarName returns the name v was created with.
func (m *Model) VarName(v Var) string { return m.names[int(v)] }

func (m *Model) logf(format string, args ...any) {
	if m.Options.Verbose && m.Options.Logf != nil {
		m.Options.Logf(format, args...)
	}
}

// Solve runs branch and bound over the binary variables, solving LP
// relaxations with the two-phase simplex. It honors ctx cancellation and
// Options.TimeLimit, returning the best incumbent found when interrupted.
func (m *Model) Solve(ctx context.Context) (Solution, error) {
	if len(m.kinds) == 0 {
		return Solution{}, fmt.Errorf("solver: model has no variables")
	}
	start := time.Now()
	sol := m.branchAndBound(ctx)
	sol.Stats.Wall = time.Since(start)
	return sol, nil
}

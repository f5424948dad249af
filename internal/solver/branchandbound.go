package solver

import (
	"context"
	"math"
	"time"
)

// Branch and bound over the binary variables. LP relaxations bound each
// node; the best integer incumbent survives interruption, so a time limit
// degrades the answer to "feasible, not proven" instead of losing it.

const intTol = 1e-6

type bbNode struct {
	// fixed rows pin branched binaries to 0 or 1.
	fixed []row
}

func (m *Model) branchAndBound(ctx context.Context) Solution {
	// Normalize to maximization internally.
	obj := make([]float64, len(m.kinds))
	if m.objSet {
		copy(obj, m.obj)
	}
	flip := m.objDir == Minimize
	if flip {
		for j := range obj {
			obj[j] = -obj[j]
		}
	}

	// Binaries get explicit x <= 1 rows in every relaxation.
	var ubRows []row
	var binaries []int
	for j, k := range m.kinds {
		if k == Binary {
			ubRows = append(ubRows, row{
				terms: []term{{v: Var(j), coef: 1}},
				sense: LE,
				rhs:   1,
				name:  "ub_" + m.names[j],
			})
			binaries = append(binaries, j)
		}
	}

	var deadline time.Time
	if m.Options.TimeLimit > 0 {
		deadline = time.Now().Add(m.Options.TimeLimit)
	}
	expired := func() bool {
		if ctx.Err() != nil {
			return true
		}
		return !deadline.IsZero() && time.Now().After(deadline)
	}

	var (
		incumbent   []float64
		incObj      = math.Inf(-1)
		hasInc      bool
		interrupted bool
		stats       Stats
	)

	stack := []bbNode{{}}
	for len(stack) > 0 {
		if expired() {
			interrupted = true
			break
		}
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stats.Nodes++

		extra := make([]row, 0, len(ubRows)+len(node.fixed))
		extra = append(extra, ubRows...)
		extra = append(extra, node.fixed...)
		res := m.solveLP(obj, extra)
		stats.SimplexIters += res.iters

		switch res.status {
		case lpInfeasible:
			continue
		case lpUnbounded:
			// Binaries are bounded, so an unbounded relaxation means the
			// continuous part is unbounded in the objective for the whole
			// problem.
			return Solution{Status: StatusUnbounded, Stats: stats}
		case lpStalled:
			continue
		}
		if hasInc && res.obj <= incObj+1e-9 {
			continue // bound: cannot beat the incumbent
		}

		// Most fractional binary, if any.
		branch := -1
		worst := intTol
		for _, j := range binaries {
			f := math.Abs(res.x[j] - math.Round(res.x[j]))
			if f > worst {
				worst = f
				branch = j
			}
		}
		if branch < 0 {
			// Integer feasible; round off simplex noise on binaries.
			x := append([]float64(nil), res.x...)
			for _, j := range binaries {
				x[j] = math.Round(x[j])
			}
			if !hasInc || res.obj > incObj {
				incumbent = x
				incObj = res.obj
				hasInc = true
				m.logf("solver: node %d incumbent %.6f", stats.Nodes, incObj)
			}
			continue
		}

		down := bbNode{fixed: appendFix(node.fixed, Var(branch), 0)}
		up := bbNode{fixed: appendFix(node.fixed, Var(branch), 1)}
		// Explore the side the relaxation leans toward first.
		if res.x[branch] >= 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	if !hasInc {
		if interrupted {
			return Solution{Status: StatusUnknown, Stats: stats}
		}
		return Solution{Status: StatusInfeasible, Stats: stats}
	}
	objVal := incObj
	if flip {
		objVal = -objVal
	}
	status := StatusOptimal
	if interrupted {
		status = StatusFeasible
	}
	return Solution{Status: status, Objective: objVal, Values: incumbent, Stats: stats}
}

func appendFix(fixed []row, v Var, val float64) []row {
	out := make([]row, 0, len(fixed)+1)
	out = append(out, fixed...)
	out = append(out, row{terms: []term{{v: v, coef: 1}}, sense: EQ, rhs: val})
	return out
}

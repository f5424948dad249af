package solver

import "math"

// Two-phase dense simplex over the model's rows, with Bland's rule for
// both entering and leaving choices so the iteration cannot cycle.

const (
	eps = 1e-9
	// maxIters is a safety net; Bland's rule terminates long before it.
	maxItersPerDim = 200
)

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
	lpStalled
)

type lpResult struct {
	status lpStatus
	x      []float64 // structural values, lower bounds applied
	obj    float64
	iters  int
}

// tableau holds the working arrays of one LP solve. Columns are laid out
// structural, then slack/surplus, then artificial.
type tableau struct {
	t        [][]float64
	b        []float64
	basis    []int
	ncols    int
	nart     int // artificial columns occupy [ncols-nart, ncols)
	iters    int
	maxIters int
}

// solveLP maximizes obj over the model's rows plus extra rows (bound rows
// injected by branch and bound). Variable lower bounds are applied by
// substitution; binaries rely on explicit x<=1 rows supplied by the caller.
func (m *Model) solveLP(obj []float64, extra []row) lpResult {
	n := len(m.kinds)
	rows := make([]row, 0, len(m.rows)+len(extra))
	rows = append(rows, m.rows...)
	rows = append(rows, extra...)

	// Shift x = lb + y so every column is >= 0.
	type prepRow struct {
		coef  []float64
		sense Sense
		rhs   float64
	}
	prep := make([]prepRow, len(rows))
	for i, r := range rows {
		c := make([]float64, n)
		rhs := r.rhs
		for _, t := range r.terms {
			c[int(t.v)] += t.coef
		}
		for j := 0; j < n; j++ {
			rhs -= c[j] * m.lower[j]
		}
		sense := r.sense
		if rhs < 0 {
			for j := range c {
				c[j] = -c[j]
			}
			rhs = -rhs
			switch sense {
			case LE:
				sense = GE
			case GE:
				sense = LE
			}
		}
		prep[i] = prepRow{coef: c, sense: sense, rhs: rhs}
	}

	nslack := 0
	nart := 0
	for _, r := range prep {
		switch r.sense {
		case LE:
			nslack++
		case GE:
			nslack++
			nart++
		case EQ:
			nart++
		}
	}
	mrows := len(prep)
	ncols := n + nslack + nart
	tb := &tableau{
		t:        make([][]float64, mrows),
		b:        make([]float64, mrows),
		basis:    make([]int, mrows),
		ncols:    ncols,
		nart:     nart,
		maxIters: maxItersPerDim * (mrows + ncols),
	}
	slackAt := n
	artAt := n + nslack
	for i, r := range prep {
		tr := make([]float64, ncols)
		copy(tr, r.coef)
		tb.b[i] = r.rhs
		switch r.sense {
		case LE:
			tr[slackAt] = 1
			tb.basis[i] = slackAt
			slackAt++
		case GE:
			tr[slackAt] = -1
			slackAt++
			tr[artAt] = 1
			tb.basis[i] = artAt
			artAt++
		case EQ:
			tr[artAt] = 1
			tb.basis[i] = artAt
			artAt++
		}
		tb.t[i] = tr
	}

	// Phase 1: drive the artificials to zero.
	if nart > 0 {
		cost1 := make([]float64, ncols)
		for j := ncols - nart; j < ncols; j++ {
			cost1[j] = -1
		}
		if st := tb.iterate(cost1, nil); st != lpOptimal {
			// Phase 1 is bounded above by zero; anything else is numeric
			// trouble and gets reported as a stall.
			return lpResult{status: lpStalled, iters: tb.iters}
		}
		sum := 0.0
		for i, bi := range tb.basis {
			if bi >= ncols-nart {
				sum += tb.b[i]
			}
		}
		if sum > 1e-7 {
			return lpResult{status: lpInfeasible, iters: tb.iters}
		}
		tb.dropArtificials()
	}

	// Phase 2: original objective over structural + slack columns.
	cost2 := make([]float64, tb.ncols)
	copy(cost2, obj)
	st := tb.iterate(cost2, nil)
	switch st {
	case lpUnbounded:
		return lpResult{status: lpUnbounded, iters: tb.iters}
	case lpStalled:
		return lpResult{status: lpStalled, iters: tb.iters}
	}

	x := make([]float64, n)
	copy(x, m.lower)
	for i, bi := range tb.basis {
		if bi < n {
			x[bi] = m.lower[bi] + tb.b[i]
		}
	}
	val := 0.0
	for j := 0; j < n; j++ {
		val += obj[j] * x[j]
	}
	return lpResult{status: lpOptimal, x: x, obj: val, iters: tb.iters}
}

// iterate runs primal simplex maximizing cost until optimal, unbounded or
// the safety cap. blocked marks columns that may never enter.
func (tb *tableau) iterate(cost []float64, blocked func(int) bool) lpStatus {
	for {
		if tb.iters >= tb.maxIters {
			return lpStalled
		}
		// Reduced cost r_j = cost_j - cost_B · column_j.
		enter := -1
		for j := 0; j < tb.ncols; j++ {
			if blocked != nil && blocked(j) {
				continue
			}
			r := cost[j]
			for i, bi := range tb.basis {
				if cbi := cost[bi]; cbi != 0 {
					r -= cbi * tb.t[i][j]
				}
			}
			if r > eps {
				enter = j
				break // Bland: smallest improving index
			}
		}
		if enter < 0 {
			return lpOptimal
		}
		leave := -1
		best := math.Inf(1)
		for i := range tb.t {
			a := tb.t[i][enter]
			if a <= eps {
				continue
			}
			ratio := tb.b[i] / a
			if ratio < best-eps || (ratio < best+eps && (leave < 0 || tb.basis[i] < tb.basis[leave])) {
				best = ratio
				leave = i
			}
		}
		if leave < 0 {
			return lpUnbounded
		}
		tb.pivot(leave, enter)
		tb.iters++
	}
}

func (tb *tableau) pivot(r, c int) {
	p := tb.t[r][c]
	for j := 0; j < tb.ncols; j++ {
		tb.t[r][j] /= p
	}
	tb.b[r] /= p
	for i := range tb.t {
		if i == r {
			continue
		}
		f := tb.t[i][c]
		if f == 0 {
			continue
		}
		for j := 0; j < tb.ncols; j++ {
			tb.t[i][j] -= f * tb.t[r][j]
		}
		tb.b[i] -= f * tb.b[r]
	}
	tb.basis[r] = c
}

// dropArtificials pivots basic artificials out after phase 1, deleting rows
// that turn out redundant, then truncates the artificial columns.
func (tb *tableau) dropArtificials() {
	structCols := tb.ncols - tb.nart
	for i := 0; i < len(tb.t); {
		if tb.basis[i] < structCols {
			i++
			continue
		}
		pivoted := false
		for j := 0; j < structCols; j++ {
			if math.Abs(tb.t[i][j]) > eps {
				tb.pivot(i, j)
				pivoted = true
				break
			}
		}
		if pivoted {
			i++
			continue
		}
		// Redundant row: every structural coefficient is zero.
		tb.t = append(tb.t[:i], tb.t[i+1:]...)
		tb.b = append(tb.b[:i], tb.b[i+1:]...)
		tb.basis = append(tb.basis[:i], tb.basis[i+1:]...)
	}
	for i := range tb.t {
		tb.t[i] = tb.t[i][:structCols]
	}
	tb.ncols = structCols
	tb.nart = 0
}

package opt

import (
	"errors"
	"strings"
	"testing"

	"depotplan/internal/model"
	"depotplan/internal/solver"
)

type recordedRow struct {
	name  string
	sense solver.Sense
	rhs   float64
	terms int
}

// recordingModel captures builder emissions without solving anything.
type recordingModel struct {
	binaries    []string
	continuous  []string
	rows        []recordedRow
	objDir      solver.Direction
	objTerms    int
	objInstalls int
}

func (r *recordingModel) AddBinaryVar(name string) solver.Var {
	r.binaries = append(r.binaries, name)
	return solver.Var(len(r.binaries) + len(r.continuous) - 1)
}

func (r *recordingModel) AddContinuousVar(name string, lb float64) solver.Var {
	r.continuous = append(r.continuous, name)
	return solver.Var(len(r.binaries) + len(r.continuous) - 1)
}

func (r *recordingModel) AddConstraint(expr *solver.LinearExpr, sense solver.Sense, rhs float64, name string) {
	r.rows = append(r.rows, recordedRow{name: name, sense: sense, rhs: rhs, terms: expr.NumTerms()})
}

func (r *recordingModel) SetObjective(expr *solver.LinearExpr, dir solver.Direction) {
	r.objDir = dir
	r.objTerms = expr.NumTerms()
	r.objInstalls++
}

func buildFixture(t *testing.T) (Sets, Params) {
	t.Helper()
	stock := []model.StockRow{
		{DepotID: "S1", MaterialID: "M1", Qty: 10},
		{DepotID: "S2", MaterialID: "M1", Qty: 0},
		{DepotID: "S2", MaterialID: "M2", Qty: 6},
	}
	orders := []model.OrderRow{
		{OrderID: "T1", DepotID: "S1", Priority: 5, MaterialID: "M1", Demand: 4},
		{OrderID: "T1", DepotID: "S2", Priority: 5, MaterialID: "M1", Demand: 4},
		{OrderID: "T2", DepotID: "S2", Priority: 3, MaterialID: "M2", Demand: 2},
	}
	sets := BuildSets(stock, orders)
	params, err := BuildParams(stock, orders, nil)
	if err != nil {
		t.Fatal(err)
	}
	return sets, params
}

func TestBuildModelShape(t *testing.T) {
	sets, params := buildFixture(t)
	rec := &recordingModel{}

	b, err := BuildModel(rec, sets, params, nil)
	if err != nil {
		t.Fatal(err)
	}

	// x only over candidate pairs: (T1,S1), (T1,S2), (T2,S2).
	if len(rec.binaries) != 3 {
		t.Fatalf("binaries: %v", rec.binaries)
	}
	// t dense: 2 ordered depot pairs × 2 materials.
	if len(rec.continuous) != 4 {
		t.Fatalf("continuous: %v", rec.continuous)
	}

	var oneExec, balance int
	for _, r := range rec.rows {
		switch {
		case strings.HasPrefix(r.name, "one_execution["):
			oneExec++
			if r.sense != solver.LE || r.rhs != 1 {
				t.Fatalf("bad assignment row %+v", r)
			}
		case strings.HasPrefix(r.name, "stock_balance["):
			balance++
			if r.sense != solver.LE {
				t.Fatalf("bad balance row %+v", r)
			}
		default:
			t.Fatalf("unexpected row %q", r.name)
		}
	}
	if oneExec != 2 {
		t.Fatalf("one_execution rows = %d", oneExec)
	}
	// Full cross product, including (M2,S1) where nothing consumes.
	if balance != 4 {
		t.Fatalf("stock_balance rows = %d", balance)
	}
	if b.NumConstraints != len(rec.rows) {
		t.Fatalf("NumConstraints = %d, rows = %d", b.NumConstraints, len(rec.rows))
	}

	if rec.objInstalls != 1 || rec.objDir != solver.Maximize || rec.objTerms != 3 {
		t.Fatalf("objective: installs=%d dir=%v terms=%d", rec.objInstalls, rec.objDir, rec.objTerms)
	}
}

func TestBuildModelBalanceBoundsPassThrough(t *testing.T) {
	sets, params := buildFixture(t)
	rec := &recordingModel{}
	if _, err := BuildModel(rec, sets, params, nil); err != nil {
		t.Fatal(err)
	}
	for _, r := range rec.rows {
		if r.name == "stock_balance[M2,S1]" {
			// No consumption at S1 for M2, only the two flow terms.
			if r.terms != 2 || r.rhs != 0 {
				t.Fatalf("pass-through row %+v", r)
			}
			return
		}
	}
	t.Fatal("stock_balance[M2,S1] not emitted")
}

func TestAssignVarOutsideDomain(t *testing.T) {
	sets, params := buildFixture(t)
	b, err := BuildModel(&recordingModel{}, sets, params, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.AssignVar("T2", "S1")
	var sde *SparseDomainError
	if !errors.As(err, &sde) {
		t.Fatalf("want SparseDomainError, got %v", err)
	}
	if sde.OrderID != "T2" || sde.DepotID != "S1" {
		t.Fatalf("error carries %q/%q", sde.OrderID, sde.DepotID)
	}
}

func TestBuildModelProgressStages(t *testing.T) {
	sets, params := buildFixture(t)
	stages := map[string]bool{}
	_, err := BuildModel(&recordingModel{}, sets, params, func(stage string, done, total int) {
		stages[stage] = true
		if done > total {
			t.Fatalf("stage %s: done %d > total %d", stage, done, total)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"variables", "assignment_constraints", "balance_constraints"} {
		if !stages[want] {
			t.Fatalf("missing stage %q (got %v)", want, stages)
		}
	}
}

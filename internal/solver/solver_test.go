package solver

import (
	"context"
	"math"
	"testing"
)

func almostEq(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestLPOptimal(t *testing.T) {
	m := NewModel()
	x := m.AddContinuousVar("x", 0)
	y := m.AddContinuousVar("y", 0)
	m.AddConstraint(NewLinearExpr().AddTerm(x, 1).AddTerm(y, 1), LE, 4, "cap")
	m.AddConstraint(NewLinearExpr().AddTerm(x, 1), LE, 2, "x_ub")
	m.AddConstraint(NewLinearExpr().AddTerm(y, 1), LE, 3, "y_ub")
	m.SetObjective(NewLinearExpr().AddTerm(x, 3).AddTerm(y, 2), Maximize)

	sol, err := m.Solve(context.Background())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusOptimal {
		t.Fatalf("status: %v", sol.Status)
	}
	if !almostEq(sol.Objective, 10) {
		t.Fatalf("objective: got %f want 10", sol.Objective)
	}
	if !almostEq(sol.Value(x), 2) || !almostEq(sol.Value(y), 2) {
		t.Fatalf("values: x=%f y=%f", sol.Value(x), sol.Value(y))
	}
}

func TestLPEquality(t *testing.T) {
	m := NewModel()
	x := m.AddContinuousVar("x", 0)
	y := m.AddContinuousVar("y", 0)
	m.AddConstraint(NewLinearExpr().AddTerm(x, 1).AddTerm(y, 1), EQ, 2, "sum")
	m.AddConstraint(NewLinearExpr().AddTerm(x, 1), LE, 1.5, "x_ub")
	m.SetObjective(NewLinearExpr().AddTerm(x, 1), Maximize)

	sol, err := m.Solve(context.Background())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusOptimal || !almostEq(sol.Value(x), 1.5) || !almostEq(sol.Value(y), 0.5) {
		t.Fatalf("got status=%v x=%f y=%f", sol.Status, sol.Value(x), sol.Value(y))
	}
}

func TestLPInfeasible(t *testing.T) {
	m := NewModel()
	x := m.AddContinuousVar("x", 0)
	m.AddConstraint(NewLinearExpr().AddTerm(x, 1), GE, 2, "lo")
	m.AddConstraint(NewLinearExpr().AddTerm(x, 1), LE, 1, "hi")
	m.SetObjective(NewLinearExpr().AddTerm(x, 1), Maximize)

	sol, err := m.Solve(context.Background())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusInfeasible {
		t.Fatalf("status: got %v want infeasible", sol.Status)
	}
	if sol.HasValues() {
		t.Fatal("infeasible solution should carry no values")
	}
}

func TestLPUnbounded(t *testing.T) {
	m := NewModel()
	x := m.AddContinuousVar("x", 0)
	m.SetObjective(NewLinearExpr().AddTerm(x, 1), Maximize)

	sol, err := m.Solve(context.Background())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusUnbounded {
		t.Fatalf("status: got %v want unbounded", sol.Status)
	}
}

func TestMinimize(t *testing.T) {
	m := NewModel()
	x := m.AddContinuousVar("x", 0)
	y := m.AddContinuousVar("y", 0)
	m.AddConstraint(NewLinearExpr().AddTerm(x, 1).AddTerm(y, 1), GE, 2, "lo")
	m.SetObjective(NewLinearExpr().AddTerm(x, 1).AddTerm(y, 1), Minimize)

	sol, err := m.Solve(context.Background())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusOptimal || !almostEq(sol.Objective, 2) {
		t.Fatalf("got status=%v obj=%f", sol.Status, sol.Objective)
	}
}

func TestKnapsack(t *testing.T) {
	// max 5a+4b+3c s.t. 4a+3b+2c <= 5, binaries. Optimum picks b+c = 7.
	m := NewModel()
	a := m.AddBinaryVar("a")
	b := m.AddBinaryVar("b")
	c := m.AddBinaryVar("c")
	m.AddConstraint(NewLinearExpr().AddTerm(a, 4).AddTerm(b, 3).AddTerm(c, 2), LE, 5, "cap")
	m.SetObjective(NewLinearExpr().AddTerm(a, 5).AddTerm(b, 4).AddTerm(c, 3), Maximize)

	sol, err := m.Solve(context.Background())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusOptimal {
		t.Fatalf("status: %v", sol.Status)
	}
	if !almostEq(sol.Objective, 7) {
		t.Fatalf("objective: got %f want 7", sol.Objective)
	}
	if !almostEq(sol.Value(a), 0) || !almostEq(sol.Value(b), 1) || !almostEq(sol.Value(c), 1) {
		t.Fatalf("values: a=%f b=%f c=%f", sol.Value(a), sol.Value(b), sol.Value(c))
	}
	if sol.Stats.Nodes == 0 {
		t.Fatal("expected at least one node")
	}
}

func TestMixedIntegerWithContinuous(t *testing.T) {
	// Binary gate y releases capacity for continuous x: x <= 3y, max 2x - y.
	m := NewModel()
	x := m.AddContinuousVar("x", 0)
	y := m.AddBinaryVar("y")
	m.AddConstraint(NewLinearExpr().AddTerm(x, 1).AddTerm(y, -3), LE, 0, "gate")
	m.SetObjective(NewLinearExpr().AddTerm(x, 2).AddTerm(y, -1), Maximize)

	sol, err := m.Solve(context.Background())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusOptimal || !almostEq(sol.Objective, 5) {
		t.Fatalf("got status=%v obj=%f want 5", sol.Status, sol.Objective)
	}
}

func TestSetObjectiveReplaces(t *testing.T) {
	m := NewModel()
	x := m.AddContinuousVar("x", 0)
	m.AddConstraint(NewLinearExpr().AddTerm(x, 1), LE, 3, "ub")
	m.SetObjective(NewLinearExpr().AddTerm(x, 1), Minimize)
	m.SetObjective(NewLinearExpr().AddTerm(x, 1), Maximize)

	sol, err := m.Solve(context.Background())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !almostEq(sol.Objective, 3) {
		t.Fatalf("second objective should win: got %f", sol.Objective)
	}
}

func TestCancelledContext(t *testing.T) {
	m := NewModel()
	x := m.AddBinaryVar("x")
	m.AddConstraint(NewLinearExpr().AddTerm(x, 1), LE, 1, "ub")
	m.SetObjective(NewLinearExpr().AddTerm(x, 1), Maximize)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol, err := m.Solve(ctx)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != StatusUnknown {
		t.Fatalf("status: got %v want unknown", sol.Status)
	}
}

func TestEmptyModel(t *testing.T) {
	if _, err := NewModel().Solve(context.Background()); err == nil {
		t.Fatal("expected error for model without variables")
	}
}

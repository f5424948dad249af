package opt

import (
	"math"
	"testing"

	"depotplan/internal/model"
	"depotplan/internal/solver"
)

func TestExtractResultsRoundTrip(t *testing.T) {
	stock := []model.StockRow{
		{DepotID: "S1", MaterialID: "M1", Qty: 10},
		{DepotID: "S2", MaterialID: "M1", Qty: 0},
	}
	orders := []model.OrderRow{
		{OrderID: "T1", DepotID: "S1", Priority: 5, MaterialID: "M1", Demand: 4},
		{OrderID: "T1", DepotID: "S2", Priority: 5, MaterialID: "M1", Demand: 4},
		{OrderID: "T2", DepotID: "S2", Priority: 3, MaterialID: "M1", Demand: 2},
	}
	costs := []model.TransferCostRow{
		{FromDepotID: "S1", ToDepotID: "S2", MaterialID: "M1", Cost: 1.5},
	}
	sets := BuildSets(stock, orders)
	params, err := BuildParams(stock, orders, costs)
	if err != nil {
		t.Fatal(err)
	}
	m := solver.NewModel()
	built, err := BuildModel(m, sets, params, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Fabricate a solution: T1 served at S1 (value noisy but within
	// tolerance), T2 served at S2 via a 2-unit transfer from S1.
	vals := make([]float64, m.NumVars())
	vT1, _ := built.AssignVar("T1", "S1")
	vT2, _ := built.AssignVar("T2", "S2")
	vals[int(vT1)] = 1 - 1e-9
	vals[int(vT2)] = 1
	flow, _ := built.FlowVar("S1", "S2", "M1")
	vals[int(flow)] = 2
	sol := solver.Solution{Status: solver.StatusOptimal, Objective: 8, Values: vals}

	res := ExtractResults(sol, built, orders, params, 0)

	if len(res.Assignments) != 2 {
		t.Fatalf("assignments: %+v", res.Assignments)
	}
	if len(res.Reconciled) != 3 {
		t.Fatalf("reconciled: %+v", res.Reconciled)
	}
	for _, row := range res.Reconciled {
		wantServed := (row.OrderID == "T1" && row.DepotID == "S1") ||
			(row.OrderID == "T2" && row.DepotID == "S2")
		if (row.Served == 1) != wantServed {
			t.Fatalf("row %+v served mismatch", row)
		}
		if row.Served == 1 && row.ServedPriority != row.Priority {
			t.Fatalf("row %+v served priority mismatch", row)
		}
	}

	if len(res.Summaries) != 2 {
		t.Fatalf("summaries: %+v", res.Summaries)
	}
	s1, s2 := res.Summaries[0], res.Summaries[1]
	if s1.DepotID != "S1" || s1.AssociatedOrders != 1 || s1.ServedOrders != 1 || s1.ServedPriority != 5 || s1.AssociatedPriority != 5 {
		t.Fatalf("S1 summary: %+v", s1)
	}
	if s2.DepotID != "S2" || s2.AssociatedOrders != 2 || s2.ServedOrders != 1 || s2.ServedPriority != 3 || s2.AssociatedPriority != 8 {
		t.Fatalf("S2 summary: %+v", s2)
	}

	if len(res.Transfers) != 1 {
		t.Fatalf("transfers: %+v", res.Transfers)
	}
	tr := res.Transfers[0]
	if tr.FromDepotID != "S1" || tr.ToDepotID != "S2" || tr.MaterialID != "M1" || tr.Qty != 2 {
		t.Fatalf("transfer: %+v", tr)
	}
	if math.Abs(tr.Cost-3) > 1e-9 || math.Abs(res.TransferCost-3) > 1e-9 {
		t.Fatalf("transfer cost: %v / %v", tr.Cost, res.TransferCost)
	}
}

func TestExtractResultsDropsNoise(t *testing.T) {
	stock := []model.StockRow{
		{DepotID: "S1", MaterialID: "M1", Qty: 1},
		{DepotID: "S2", MaterialID: "M1", Qty: 1},
	}
	orders := []model.OrderRow{
		{OrderID: "T1", DepotID: "S1", Priority: 2, MaterialID: "M1", Demand: 1},
	}
	sets := BuildSets(stock, orders)
	params, err := BuildParams(stock, orders, nil)
	if err != nil {
		t.Fatal(err)
	}
	m := solver.NewModel()
	built, err := BuildModel(m, sets, params, nil)
	if err != nil {
		t.Fatal(err)
	}

	vals := make([]float64, m.NumVars())
	flow, _ := built.FlowVar("S1", "S2", "M1")
	vals[int(flow)] = 1e-9 // solver noise, below tolerance
	sol := solver.Solution{Status: solver.StatusOptimal, Values: vals}

	res := ExtractResults(sol, built, orders, params, 0)
	if len(res.Assignments) != 0 {
		t.Fatalf("assignments: %+v", res.Assignments)
	}
	if len(res.Transfers) != 0 {
		t.Fatalf("transfers: %+v", res.Transfers)
	}
	if res.Reconciled[0].Served != 0 || res.Reconciled[0].ServedPriority != 0 {
		t.Fatalf("reconciled: %+v", res.Reconciled[0])
	}
}

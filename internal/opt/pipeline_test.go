package opt

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"depotplan/internal/model"
)

func TestPipelineSingleOrder(t *testing.T) {
	ds := model.Dataset{
		Stock:  []model.StockRow{{DepotID: "S1", MaterialID: "M1", Qty: 10}},
		Orders: []model.OrderRow{{OrderID: "T1", DepotID: "S1", Priority: 5, MaterialID: "M1", Demand: 4}},
	}
	out, err := Pipeline{}.Run(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != model.PlanOptimal || !out.Proven {
		t.Fatalf("status %s proven=%v", out.Status, out.Proven)
	}
	if math.Abs(out.Objective-5) > 1e-6 {
		t.Fatalf("objective %v", out.Objective)
	}
	if len(out.Assignments) != 1 || out.Assignments[0].OrderID != "T1" || out.Assignments[0].DepotID != "S1" {
		t.Fatalf("assignments: %+v", out.Assignments)
	}
	if len(out.Summaries) != 1 {
		t.Fatalf("summaries: %+v", out.Summaries)
	}
	s := out.Summaries[0]
	if s.AssociatedOrders != 1 || s.ServedOrders != 1 || s.ServedPriority != 5 {
		t.Fatalf("summary: %+v", s)
	}
	if len(out.Transfers) != 0 || out.TransferCost != 0 {
		t.Fatalf("transfers: %+v", out.Transfers)
	}
}

func TestPipelineNoStockServesNothing(t *testing.T) {
	// Both candidate depots have zero stock: the model stays feasible,
	// it just cannot serve the order.
	ds := model.Dataset{
		Stock: []model.StockRow{
			{DepotID: "S1", MaterialID: "M1", Qty: 0},
			{DepotID: "S2", MaterialID: "M1", Qty: 0},
		},
		Orders: []model.OrderRow{
			{OrderID: "T1", DepotID: "S1", Priority: 5, MaterialID: "M1", Demand: 4},
			{OrderID: "T1", DepotID: "S2", Priority: 5, MaterialID: "M1", Demand: 4},
		},
	}
	out, err := Pipeline{}.Run(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != model.PlanOptimal {
		t.Fatalf("status %s", out.Status)
	}
	if math.Abs(out.Objective) > 1e-6 {
		t.Fatalf("objective %v", out.Objective)
	}
	if len(out.Assignments) != 0 {
		t.Fatalf("assignments: %+v", out.Assignments)
	}
	if len(out.Reconciled) != 2 {
		t.Fatalf("reconciled: %+v", out.Reconciled)
	}
}

func TestPipelineScarcityPrefersPriority(t *testing.T) {
	// One depot, five units, two orders of four units each: only one
	// fits and the higher priority must win.
	ds := model.Dataset{
		Stock: []model.StockRow{{DepotID: "S1", MaterialID: "M1", Qty: 5}},
		Orders: []model.OrderRow{
			{OrderID: "T1", DepotID: "S1", Priority: 5, MaterialID: "M1", Demand: 4},
			{OrderID: "T2", DepotID: "S1", Priority: 3, MaterialID: "M1", Demand: 4},
		},
	}
	out, err := Pipeline{}.Run(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != model.PlanOptimal {
		t.Fatalf("status %s", out.Status)
	}
	if math.Abs(out.Objective-5) > 1e-6 {
		t.Fatalf("objective %v", out.Objective)
	}
	if len(out.Assignments) != 1 || out.Assignments[0].OrderID != "T1" {
		t.Fatalf("assignments: %+v", out.Assignments)
	}
}

func TestPipelineTransferEnablesService(t *testing.T) {
	// The order's only candidate depot is empty; stock has to come from
	// the other depot to serve it.
	ds := model.Dataset{
		Stock: []model.StockRow{
			{DepotID: "S1", MaterialID: "M1", Qty: 4},
			{DepotID: "S2", MaterialID: "M1", Qty: 0},
		},
		Orders: []model.OrderRow{
			{OrderID: "T1", DepotID: "S2", Priority: 7, MaterialID: "M1", Demand: 4},
		},
		TransferCosts: []model.TransferCostRow{
			{FromDepotID: "S1", ToDepotID: "S2", MaterialID: "M1", Cost: 2},
		},
	}
	out, err := Pipeline{}.Run(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != model.PlanOptimal {
		t.Fatalf("status %s", out.Status)
	}
	if math.Abs(out.Objective-7) > 1e-6 {
		t.Fatalf("objective %v", out.Objective)
	}
	if len(out.Assignments) != 1 || out.Assignments[0].DepotID != "S2" {
		t.Fatalf("assignments: %+v", out.Assignments)
	}
	if len(out.Transfers) != 1 {
		t.Fatalf("transfers: %+v", out.Transfers)
	}
	tr := out.Transfers[0]
	if tr.FromDepotID != "S1" || tr.ToDepotID != "S2" || math.Abs(tr.Qty-4) > 1e-6 {
		t.Fatalf("transfer: %+v", tr)
	}
	if math.Abs(out.TransferCost-8) > 1e-6 {
		t.Fatalf("transfer cost: %v", out.TransferCost)
	}
}

func TestPipelineIntegrityErrorAborts(t *testing.T) {
	ds := model.Dataset{
		Stock: []model.StockRow{{DepotID: "S1", MaterialID: "M1", Qty: 1}},
		Orders: []model.OrderRow{
			{OrderID: "T1", DepotID: "S1", Priority: 5, MaterialID: "M1", Demand: 1},
			{OrderID: "T1", DepotID: "S1", Priority: 2, MaterialID: "M2", Demand: 1},
		},
	}
	_, err := Pipeline{}.Run(context.Background(), ds)
	var ie *DataIntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("want DataIntegrityError, got %v", err)
	}
}

func TestPipelineTimeLimitFails(t *testing.T) {
	ds := model.Dataset{
		Stock:  []model.StockRow{{DepotID: "S1", MaterialID: "M1", Qty: 10}},
		Orders: []model.OrderRow{{OrderID: "T1", DepotID: "S1", Priority: 5, MaterialID: "M1", Demand: 4}},
	}
	out, err := Pipeline{TimeLimit: time.Nanosecond}.Run(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != model.PlanFailed {
		t.Fatalf("status %s", out.Status)
	}
	if len(out.Assignments) != 0 {
		t.Fatalf("assignments: %+v", out.Assignments)
	}
}

func TestPipelineProgressStages(t *testing.T) {
	ds := model.Dataset{
		Stock:  []model.StockRow{{DepotID: "S1", MaterialID: "M1", Qty: 10}},
		Orders: []model.OrderRow{{OrderID: "T1", DepotID: "S1", Priority: 5, MaterialID: "M1", Demand: 4}},
	}
	var stages []string
	p := Pipeline{Progress: func(stage string, done, total int) {
		if len(stages) == 0 || stages[len(stages)-1] != stage {
			stages = append(stages, stage)
		}
	}}
	if _, err := p.Run(context.Background(), ds); err != nil {
		t.Fatal(err)
	}
	want := []string{"variables", "assignment_constraints", "balance_constraints", "solve"}
	if len(stages) != len(want) {
		t.Fatalf("stages: %v", stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stages: %v", stages)
		}
	}
}

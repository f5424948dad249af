package opt

import (
	"reflect"
	"testing"

	"depotplan/internal/model"
)

func TestBuildSetsDedup(t *testing.T) {
	stock := []model.StockRow{
		{DepotID: "S2", MaterialID: "M1", Qty: 10},
		{DepotID: "S1", MaterialID: "M2", Qty: 3},
		{DepotID: "S1", MaterialID: "M1", Qty: 5},
	}
	orders := []model.OrderRow{
		{OrderID: "T1", DepotID: "S1", Priority: 5, MaterialID: "M1", Demand: 4},
		{OrderID: "T1", DepotID: "S1", Priority: 5, MaterialID: "M1", Demand: 4}, // duplicate row
		{OrderID: "T1", DepotID: "S2", Priority: 5, MaterialID: "M2", Demand: 1},
		{OrderID: "T2", DepotID: "S1", Priority: 3, MaterialID: "M1", Demand: 2},
	}

	s := BuildSets(stock, orders)
	if !reflect.DeepEqual(s.Orders, []string{"T1", "T2"}) {
		t.Fatalf("orders: %v", s.Orders)
	}
	if !reflect.DeepEqual(s.Depots, []string{"S1", "S2"}) {
		t.Fatalf("depots: %v", s.Depots)
	}
	if !reflect.DeepEqual(s.Materials, []string{"M1", "M2"}) {
		t.Fatalf("materials: %v", s.Materials)
	}
	if !reflect.DeepEqual(s.CandidateDepots["T1"], []string{"S1", "S2"}) {
		t.Fatalf("J_T1: %v", s.CandidateDepots["T1"])
	}
	if !reflect.DeepEqual(s.OrdersByDepot["S1"], []string{"T1", "T2"}) {
		t.Fatalf("I_S1: %v", s.OrdersByDepot["S1"])
	}
	if !reflect.DeepEqual(s.MaterialsByOrder["T1"], []string{"M1", "M2"}) {
		t.Fatalf("M_T1: %v", s.MaterialsByOrder["T1"])
	}
	if !s.Requires("T2", "M1") || s.Requires("T2", "M2") {
		t.Fatal("Requires mismatch")
	}
}

func TestBuildSetsDepotsComeFromStock(t *testing.T) {
	// A stock-bearing depot with no orders still belongs to J.
	stock := []model.StockRow{
		{DepotID: "S1", MaterialID: "M1", Qty: 1},
		{DepotID: "S9", MaterialID: "M1", Qty: 7},
	}
	orders := []model.OrderRow{
		{OrderID: "T1", DepotID: "S1", Priority: 1, MaterialID: "M1", Demand: 1},
	}
	s := BuildSets(stock, orders)
	if !reflect.DeepEqual(s.Depots, []string{"S1", "S9"}) {
		t.Fatalf("depots: %v", s.Depots)
	}
	if got := s.OrdersByDepot["S9"]; len(got) != 0 {
		t.Fatalf("I_S9 should be empty: %v", got)
	}
}

func TestBuildSetsIdempotent(t *testing.T) {
	stock := []model.StockRow{{DepotID: "S1", MaterialID: "M1", Qty: 1}}
	orders := []model.OrderRow{
		{OrderID: "T2", DepotID: "S1", Priority: 1, MaterialID: "M1", Demand: 1},
		{OrderID: "T1", DepotID: "S1", Priority: 2, MaterialID: "M1", Demand: 1},
	}
	a := BuildSets(stock, orders)
	b := BuildSets(stock, orders)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("not idempotent:\n%+v\n%+v", a, b)
	}
}

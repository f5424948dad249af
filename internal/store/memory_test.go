package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"depotplan/internal/model"
)

func TestMemoryDatasetLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ds, err := m.CreateDataset(ctx, "t_demo", model.DatasetIn{
		Name:  "august",
		Stock: []model.StockRow{{DepotID: "S1", MaterialID: "M1", Qty: 10}},
		Orders: []model.OrderRow{
			{OrderID: "T1", DepotID: "S1", Priority: 5, MaterialID: "M1", Demand: 4},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ds.ID == "" || ds.TenantID != "t_demo" {
		t.Fatalf("dataset: %+v", ds)
	}

	got, err := m.GetDataset(ctx, "t_demo", ds.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Stock) != 1 || len(got.Orders) != 1 {
		t.Fatalf("roundtrip: %+v", got)
	}

	if _, err := m.GetDataset(ctx, "t_other", ds.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tenant isolation: %v", err)
	}

	list, next, err := m.ListDatasets(ctx, "t_demo", "", 10)
	if err != nil || len(list) != 1 || next != "" {
		t.Fatalf("list: %v %q %v", list, next, err)
	}
}

func TestMemoryPlanStatusFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, st := range []string{model.PlanOptimal, model.PlanInfeasible, model.PlanOptimal} {
		if _, err := m.CreatePlan(ctx, model.Plan{TenantID: "t_demo", DatasetID: "d1", Status: st}); err != nil {
			t.Fatal(err)
		}
	}
	all, _, err := m.ListPlans(ctx, "t_demo", "", "", 10)
	if err != nil || len(all) != 3 {
		t.Fatalf("all: %v %v", all, err)
	}
	opt, _, err := m.ListPlans(ctx, "t_demo", model.PlanOptimal, "", 10)
	if err != nil || len(opt) != 2 {
		t.Fatalf("filtered: %v %v", opt, err)
	}
}

func TestMemorySubscriptions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub, err := m.CreateSubscription(ctx, model.SubscriptionRequest{
		TenantID: "t_demo", URL: "https://example.com/hook",
		Events: []string{"plan.completed"}, Secret: "s",
	})
	if err != nil {
		t.Fatal(err)
	}

	hits, err := m.GetSubscriptionsForEvent(ctx, "t_demo", "plan.completed")
	if err != nil || len(hits) != 1 {
		t.Fatalf("event match: %v %v", hits, err)
	}
	miss, err := m.GetSubscriptionsForEvent(ctx, "t_demo", "plan.failed")
	if err != nil || len(miss) != 0 {
		t.Fatalf("event miss: %v %v", miss, err)
	}

	if err := m.DeleteSubscription(ctx, "t_demo", sub.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteSubscription(ctx, "t_demo", sub.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.EnqueueWebhook(ctx, "t_demo", "sub1", "plan.completed", "https://example.com/hook", "s", []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].ID != id {
		t.Fatalf("due: %v %v", due, err)
	}

	// Failed attempt reschedules into the future.
	later := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 12); err != nil {
		t.Fatal(err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("rescheduled delivery still due: %v", due)
	}

	// Admin retry makes it due again; success retires it.
	if err := m.RetryWebhookDelivery(ctx, "t_demo", id); err != nil {
		t.Fatal(err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 {
		t.Fatalf("retried delivery not due: %v", due)
	}
	if err := m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 8); err != nil {
		t.Fatal(err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("delivered delivery still due: %v", due)
	}

	items, _, err := m.ListWebhookDeliveries(ctx, "t_demo", "delivered", "", 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("list: %v %v", items, err)
	}
}

func TestMemoryOptimizerConfig(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	cfg, err := m.GetOptimizerConfig(ctx, "t_demo")
	if err != nil || cfg != nil {
		t.Fatalf("empty config: %v %v", cfg, err)
	}
	if err := m.SaveOptimizerConfig(ctx, "t_demo", map[string]any{"timeLimitMs": 5000}); err != nil {
		t.Fatal(err)
	}
	cfg, err = m.GetOptimizerConfig(ctx, "t_demo")
	if err != nil || cfg["timeLimitMs"] != 5000 {
		t.Fatalf("config roundtrip: %v %v", cfg, err)
	}
}

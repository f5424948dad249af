package model

// Core domain types shared by the store, the optimizer and the API.

// StockRow is one line of the stock relation: on-hand quantity of a
// material at a depot.
type StockRow struct {
    DepotID    string  `json:"depotId"`
    MaterialID string  `json:"materialId"`
    Qty        float64 `json:"qty"`
}

// OrderRow is one line of the work-order relation. An order typically spans
// several rows: one per candidate-depot × required-material combination.
type OrderRow struct {
    OrderID    string  `json:"orderId"`
    DepotID    string  `json:"depotId"`
    Priority   float64 `json:"priority"`
    MaterialID string  `json:"materialId"`
    Demand     float64 `json:"demand"`
}

// TransferCostRow prices moving one unit of a material between two depots.
// Pairs absent from the table cost zero.
type TransferCostRow struct {
    FromDepotID string  `json:"fromDepotId"`
    ToDepotID   string  `json:"toDepotId"`
    MaterialID  string  `json:"materialId"`
    Cost        float64 `json:"cost"`
}

// Dataset is an immutable input snapshot: the three relations one
// optimization run consumes.
type Dataset struct {
    ID            string            `json:"id"`
    TenantID      string            `json:"tenantId"`
    Name          string            `json:"name,omitempty"`
    Stock         []StockRow        `json:"stock"`
    Orders        []OrderRow        `json:"orders"`
    TransferCosts []TransferCostRow `json:"transferCosts,omitempty"`
    CreatedAt     string            `json:"createdAt,omitempty"`
}

// DatasetIn is the upload body; the store assigns ID and timestamps.
type DatasetIn struct {
    Name          string            `json:"name,omitempty"`
    Stock         []StockRow        `json:"stock"`
    Orders        []OrderRow        `json:"orders"`
    TransferCosts []TransferCostRow `json:"transferCosts,omitempty"`
}

// OptimizeRequest configures one pipeline run. Solver knobs are forwarded
// to the solver collaborator without interpretation.
type OptimizeRequest struct {
    TenantID    string  `json:"tenantId"`
    DatasetID   string  `json:"datasetId"`
    // PlanID optionally names the plan up front so a client can attach to
    // the progress stream before starting the run.
    PlanID      string  `json:"planId,omitempty"`
    TimeLimitMs int     `json:"timeLimitMs,omitempty"`
    Tolerance   float64 `json:"tolerance,omitempty"`
    Verbose     bool    `json:"verbose,omitempty"`
}

// Plan statuses. Feasible means a time limit cut the search short: the
// incumbent is valid but not proven optimal.
const (
    PlanOptimal    = "optimal"
    PlanFeasible   = "feasible"
    PlanInfeasible = "infeasible"
    PlanUnbounded  = "unbounded"
    PlanFailed     = "failed"
)

// Assignment is one served (order, depot) pair.
type Assignment struct {
    OrderID string `json:"orderId"`
    DepotID string `json:"depotId"`
    Served  int    `json:"served"`
}

// ReconciledRow is the left-join of every distinct (order, depot, priority)
// input combination against the served assignments.
type ReconciledRow struct {
    OrderID        string  `json:"orderId"`
    DepotID        string  `json:"depotId"`
    Priority       float64 `json:"priority"`
    Served         int     `json:"served"`
    ServedPriority float64 `json:"servedPriority"`
}

// DepotSummary aggregates the reconciled table per depot.
type DepotSummary struct {
    DepotID            string  `json:"depotId"`
    AssociatedOrders   int     `json:"associatedOrders"`
    ServedOrders       int     `json:"servedOrders"`
    ServedPriority     float64 `json:"servedPriority"`
    AssociatedPriority float64 `json:"associatedPriority"`
}

// Transfer is a nonzero material flow in the solved plan, priced from the
// transfer-cost table.
type Transfer struct {
    FromDepotID string  `json:"fromDepotId"`
    ToDepotID   string  `json:"toDepotId"`
    MaterialID  string  `json:"materialId"`
    Qty         float64 `json:"qty"`
    Cost        float64 `json:"cost"`
}

// Plan is the read-only snapshot of one optimization run.
type Plan struct {
    ID           string          `json:"id"`
    TenantID     string          `json:"tenantId"`
    DatasetID    string          `json:"datasetId"`
    Status       string          `json:"status"`
    Proven       bool            `json:"proven"`
    Objective    float64         `json:"objective"`
    Assignments  []Assignment    `json:"assignments,omitempty"`
    Reconciled   []ReconciledRow `json:"reconciled,omitempty"`
    Summaries    []DepotSummary  `json:"summaries,omitempty"`
    Transfers    []Transfer      `json:"transfers,omitempty"`
    TransferCost float64         `json:"transferCost"`
    SolveMs      int64           `json:"solveMs"`
    Error        string          `json:"error,omitempty"`
    CreatedAt    string          `json:"createdAt,omitempty"`
}

// Webhook subscriptions (plan.completed, plan.failed).
type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}

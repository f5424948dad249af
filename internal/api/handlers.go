package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/google/uuid"
    "golang.org/x/time/rate"

    "depotplan/internal/config"
    "depotplan/internal/ingest"
    "depotplan/internal/metrics"
    "depotplan/internal/model"
    "depotplan/internal/opt"
    "depotplan/internal/store"
    "depotplan/internal/webhooks"
)

// DatasetsHandler handles POST/GET /v1/datasets
func (s *Server) DatasetsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        p := s.getPrincipal(r)
        if !p.CanPlan() { writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path); return }
        var in model.DatasetIn
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if len(in.Stock) == 0 && len(in.Orders) == 0 {
            writeProblem(w, http.StatusBadRequest, "Empty dataset", "stock or orders required", r.URL.Path)
            return
        }
        ds, err := s.Store.CreateDataset(r.Context(), p.Tenant, in)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create dataset failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, ds)
    case http.MethodGet:
        p := s.getPrincipal(r)
        cursor := r.URL.Query().Get("cursor")
        limit := queryInt(r, "limit", 100)
        items, next, err := s.Store.ListDatasets(r.Context(), p.Tenant, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List datasets failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// DatasetByIDHandler handles GET /v1/datasets/{id}
func (s *Server) DatasetByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/datasets/")
    if id == "" || strings.Contains(id, "/") {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    ds, err := s.Store.GetDataset(r.Context(), p.Tenant, id)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Dataset not found", "", r.URL.Path); return }
        writeProblem(w, 500, "Get dataset failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, ds)
}

// ImportHandler handles POST /v1/datasets/import with multipart files:
// stock (CSV), orders (CSV) and optional costs (JSON).
func (s *Server) ImportHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    if !p.CanPlan() { writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path); return }
    if err := r.ParseMultipartForm(32 << 20); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid multipart form", err.Error(), r.URL.Path)
        return
    }
    var in model.DatasetIn
    in.Name = r.FormValue("name")

    stockFile, _, err := r.FormFile("stock")
    if err != nil { writeProblem(w, 400, "Missing stock file", err.Error(), r.URL.Path); return }
    defer func() { _ = stockFile.Close() }()
    in.Stock, err = ingest.ReadStock(stockFile)
    if err != nil { writeIngestProblem(w, r, err); return }

    ordersFile, _, err := r.FormFile("orders")
    if err != nil { writeProblem(w, 400, "Missing orders file", err.Error(), r.URL.Path); return }
    defer func() { _ = ordersFile.Close() }()
    in.Orders, err = ingest.ReadOrders(ordersFile)
    if err != nil { writeIngestProblem(w, r, err); return }

    if costsFile, _, err := r.FormFile("costs"); err == nil {
        defer func() { _ = costsFile.Close() }()
        in.TransferCosts, err = ingest.ReadTransferCosts(costsFile)
        if err != nil { writeIngestProblem(w, r, err); return }
    }

    ds, err := s.Store.CreateDataset(r.Context(), p.Tenant, in)
    if err != nil {
        writeProblem(w, 500, "Create dataset failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusCreated, ds)
}

// OptimizeHandler handles POST /v1/optimize: runs the pipeline on a stored
// dataset and persists the resulting plan.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.CanPlan() { writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path); return }
    var req model.OptimizeRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.TenantID == "" { req.TenantID = p.Tenant }
    if err := validateOptimizeRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
        return
    }
    ds, err := s.Store.GetDataset(r.Context(), req.TenantID, req.DatasetID)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Dataset not found", "", r.URL.Path); return }
        writeProblem(w, 500, "Get dataset failed", err.Error(), r.URL.Path)
        return
    }

    sc := s.solverDefaults(r.Context(), req.TenantID)
    if req.TimeLimitMs > 0 { sc.TimeLimitMs = req.TimeLimitMs }
    if req.Tolerance > 0 { sc.Tolerance = req.Tolerance }
    if req.Verbose { sc.Verbose = true }

    planID := req.PlanID
    if planID == "" {
        planID = uuid.New().String()
    }
    progress := opt.Throttled(func(stage string, done, total int) {
        s.Broker.Publish(planID, Event{Type: "plan.progress", Data: map[string]any{
            "planId": planID, "stage": stage, "done": done, "total": total,
        }})
    }, rate.Limit(20))

    pipeline := opt.Pipeline{
        TimeLimit: sc.TimeLimit(),
        Tolerance: sc.Tolerance,
        Verbose:   sc.Verbose,
        Progress:  progress,
    }
    start := time.Now()
    out, err := pipeline.Run(r.Context(), ds)
    solveMs := time.Since(start).Milliseconds()

    plan := model.Plan{
        ID:        planID,
        TenantID:  req.TenantID,
        DatasetID: req.DatasetID,
        SolveMs:   solveMs,
    }
    if err != nil {
        var ie *opt.DataIntegrityError
        var sde *opt.SparseDomainError
        if errors.As(err, &ie) || errors.As(err, &sde) {
            // bad input: reject without writing any plan artifact
            writeProblem(w, http.StatusUnprocessableEntity, "Invalid dataset", err.Error(), r.URL.Path)
            return
        }
        plan.Status = model.PlanFailed
        plan.Error = err.Error()
        stored, serr := s.Store.CreatePlan(r.Context(), plan)
        if serr == nil { plan = stored }
        s.finishPlan(r.Context(), plan, out)
        writeProblem(w, http.StatusInternalServerError, "Optimization failed", err.Error(), r.URL.Path)
        return
    }

    plan.Status = out.Status
    plan.Proven = out.Proven
    plan.Objective = out.Objective
    plan.Assignments = out.Assignments
    plan.Reconciled = out.Reconciled
    plan.Summaries = out.Summaries
    plan.Transfers = out.Transfers
    plan.TransferCost = out.TransferCost
    plan, err = s.Store.CreatePlan(r.Context(), plan)
    if err != nil {
        writeProblem(w, 500, "Store plan failed", err.Error(), r.URL.Path)
        return
    }
    s.finishPlan(r.Context(), plan, out)
    writeJSON(w, http.StatusOK, plan)
}

// finishPlan records metrics and fans out completion notifications.
func (s *Server) finishPlan(ctx context.Context, plan model.Plan, out *opt.RunResult) {
    metrics.SolveDuration.WithLabelValues(plan.Status).Observe(float64(plan.SolveMs) / 1000)
    stats := opt.SolveStats{Status: plan.Status, Objective: plan.Objective, WallMs: plan.SolveMs}
    if out != nil {
        metrics.ModelVariables.Observe(float64(out.NumVariables))
        metrics.ModelConstraints.Observe(float64(out.NumConstraints))
        metrics.BranchNodes.Add(float64(out.Stats.Nodes))
        stats.Nodes = out.Stats.Nodes
        stats.SimplexIters = out.Stats.SimplexIters
        stats.Variables = out.NumVariables
        stats.Constraints = out.NumConstraints
    }
    opt.RecordStats(plan.TenantID, plan.DatasetID, stats)

    event := webhooks.EventPlanCompleted
    if plan.Status == model.PlanFailed { event = webhooks.EventPlanFailed }
    s.Broker.Publish(plan.ID, Event{Type: event, Data: map[string]any{
        "planId": plan.ID, "status": plan.Status, "proven": plan.Proven, "objective": plan.Objective,
    }})
    s.Pub.Emit(ctx, plan.TenantID, event, map[string]any{
        "planId": plan.ID, "datasetId": plan.DatasetID, "status": plan.Status,
        "proven": plan.Proven, "objective": plan.Objective, "transferCost": plan.TransferCost,
        "solveMs": plan.SolveMs,
    })
}

// PlansHandler handles GET /v1/plans
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    status := r.URL.Query().Get("status")
    cursor := r.URL.Query().Get("cursor")
    limit := queryInt(r, "limit", 100)
    items, next, err := s.Store.ListPlans(r.Context(), p.Tenant, status, cursor, limit)
    if err != nil {
        writeProblem(w, 500, "List plans failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// PlanByIDHandler handles GET /v1/plans/{id} plus the CSV exports and the
// websocket progress stream under the plan path.
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    if len(parts) > 1 {
        switch strings.Join(parts[1:], "/") {
        case "assignments.csv":
            s.planAssignmentsCSV(w, r, id)
        case "summary.csv":
            s.planSummaryCSV(w, r, id)
        case "progress/ws":
            s.ProgressWSHandler(w, r, id)
        default:
            writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        }
        return
    }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    plan, err := s.Store.GetPlan(r.Context(), p.Tenant, id)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Plan not found", "", r.URL.Path); return }
        writeProblem(w, 500, "Get plan failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, plan)
}

func (s *Server) planAssignmentsCSV(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    plan, err := s.Store.GetPlan(r.Context(), p.Tenant, id)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Plan not found", "", r.URL.Path); return }
        writeProblem(w, 500, "Get plan failed", err.Error(), r.URL.Path)
        return
    }
    rows := [][]string{{"order", "depot", "priority", "served", "served_priority"}}
    for _, rr := range plan.Reconciled {
        rows = append(rows, []string{
            rr.OrderID, rr.DepotID,
            formatFloat(rr.Priority), strconv.Itoa(rr.Served), formatFloat(rr.ServedPriority),
        })
    }
    writeCSV(w, fmt.Sprintf("assignments_%s.csv", id), rows)
}

func (s *Server) planSummaryCSV(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p := s.getPrincipal(r)
    plan, err := s.Store.GetPlan(r.Context(), p.Tenant, id)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Plan not found", "", r.URL.Path); return }
        writeProblem(w, 500, "Get plan failed", err.Error(), r.URL.Path)
        return
    }
    rows := [][]string{{"depot", "associated_orders", "served_orders", "served_priority", "associated_priority"}}
    for _, sm := range plan.Summaries {
        rows = append(rows, []string{
            sm.DepotID,
            strconv.Itoa(sm.AssociatedOrders), strconv.Itoa(sm.ServedOrders),
            formatFloat(sm.ServedPriority), formatFloat(sm.AssociatedPriority),
        })
    }
    writeCSV(w, fmt.Sprintf("summary_%s.csv", id), rows)
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        p := s.getPrincipal(r)
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.TenantID == "" { req.TenantID = p.Tenant }
        if req.URL == "" || len(req.Events) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events required", r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        p := s.getPrincipal(r)
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        cursor := r.URL.Query().Get("cursor")
        limit := queryInt(r, "limit", 100)
        items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Subscription not found", "", r.URL.Path); return }
        writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path)
        return
    }
    w.WriteHeader(204)
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    status := r.URL.Query().Get("status")
    cursor := r.URL.Query().Get("cursor")
    limit := queryInt(r, "limit", 100)
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil {
        if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Delivery not found", "", r.URL.Path); return }
        writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, 202, map[string]int{"accepted": 1})
}

// OptimizerConfigHandler returns the effective solver defaults for the tenant.
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/optimizer/config" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    sc := s.solverDefaults(r.Context(), p.Tenant)
    writeJSON(w, 200, map[string]any{"defaults": map[string]any{
        "timeLimitMs": sc.TimeLimitMs,
        "tolerance":   sc.Tolerance,
        "verbose":     sc.Verbose,
    }})
}

// Admin get/set optimizer tenant config
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/optimizer/config" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        cfg, _ := s.Store.GetOptimizerConfig(r.Context(), p.Tenant)
        if cfg == nil { cfg = map[string]any{} }
        writeJSON(w, 200, map[string]any{"config": cfg})
    case http.MethodPut:
        var body struct{ Config map[string]any `json:"config"` }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if body.Config == nil { writeProblem(w, 400, "Missing config", "", r.URL.Path); return }
        if err := s.Store.SaveOptimizerConfig(r.Context(), p.Tenant, body.Config); err != nil { writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]bool{"ok": true})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SolveMetricsHandler handles GET /v1/admin/solve-metrics
func (s *Server) SolveMetricsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/solve-metrics" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": opt.GetStats(p.Tenant)})
}

// solverDefaults overlays stored per-tenant config on the service defaults.
func (s *Server) solverDefaults(ctx context.Context, tenant string) config.SolverConfig {
    sc := s.Cfg.Solver
    cfg, _ := s.Store.GetOptimizerConfig(ctx, tenant)
    if cfg == nil { return sc }
    if v, ok := asInt(cfg["timeLimitMs"]); ok && v > 0 { sc.TimeLimitMs = v }
    if v, ok := cfg["tolerance"].(float64); ok && v > 0 { sc.Tolerance = v }
    if v, ok := cfg["verbose"].(bool); ok { sc.Verbose = v }
    return sc
}

func asInt(v any) (int, bool) {
    switch n := v.(type) {
    case int:
        return n, true
    case int64:
        return int(n), true
    case float64:
        return int(n), true
    }
    return 0, false
}

func queryInt(r *http.Request, key string, def int) int {
    v := r.URL.Query().Get(key)
    if v == "" { return def }
    n, err := strconv.Atoi(v)
    if err != nil { return def }
    return n
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func writeIngestProblem(w http.ResponseWriter, r *http.Request, err error) {
    var ie *opt.DataIntegrityError
    if errors.As(err, &ie) {
        writeProblem(w, http.StatusUnprocessableEntity, "Invalid input data", err.Error(), r.URL.Path)
        return
    }
    writeProblem(w, http.StatusBadRequest, "Parse failed", err.Error(), r.URL.Path)
}

package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "depotplan/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate creates the schema when it does not exist yet. Relations and
// plan artifacts are stored as JSONB blobs; they are written once and
// read whole, never queried by field.
func (p *Postgres) Migrate(ctx context.Context) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS datasets (
            id UUID PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            name TEXT,
            stock JSONB NOT NULL,
            orders JSONB NOT NULL,
            transfer_costs JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
        `CREATE INDEX IF NOT EXISTS datasets_tenant_idx ON datasets (tenant_id, id)`,
        `CREATE TABLE IF NOT EXISTS plans (
            id UUID PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            dataset_id UUID NOT NULL,
            status TEXT NOT NULL,
            proven BOOLEAN NOT NULL DEFAULT FALSE,
            objective DOUBLE PRECISION NOT NULL DEFAULT 0,
            result JSONB,
            transfer_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
            solve_ms BIGINT NOT NULL DEFAULT 0,
            error TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
        `CREATE INDEX IF NOT EXISTS plans_tenant_idx ON plans (tenant_id, id)`,
        `CREATE TABLE IF NOT EXISTS subscriptions (
            id UUID PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            url TEXT NOT NULL,
            events JSONB NOT NULL,
            secret TEXT
        )`,
        `CREATE TABLE IF NOT EXISTS webhook_deliveries (
            id UUID PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            subscription_id UUID,
            event_type TEXT NOT NULL,
            url TEXT NOT NULL,
            secret TEXT,
            payload BYTEA NOT NULL,
            status TEXT NOT NULL,
            attempts INT NOT NULL DEFAULT 0,
            next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            last_error TEXT,
            response_code INT,
            latency_ms INT,
            dedup_key TEXT,
            delivered_at TIMESTAMPTZ,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            UNIQUE (tenant_id, event_type, url, dedup_key)
        )`,
        `CREATE TABLE IF NOT EXISTS optimizer_config (
            tenant_id TEXT PRIMARY KEY,
            config JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
    }
    for _, s := range stmts {
        if _, err := p.db.ExecContext(ctx, s); err != nil {
            return err
        }
    }
    return nil
}

func (p *Postgres) CreateDataset(ctx context.Context, tenantID string, in model.DatasetIn) (model.Dataset, error) {
    id := uuid.New().String()
    stock := toJSON(in.Stock)
    orders := toJSON(in.Orders)
    costs := toJSON(in.TransferCosts)
    var created time.Time
    err := p.db.QueryRowContext(ctx, `INSERT INTO datasets (id, tenant_id, name, stock, orders, transfer_costs)
        VALUES ($1,$2,$3,$4,$5,$6) RETURNING created_at`, id, tenantID, nullIfEmpty(in.Name), stock, orders, costs).Scan(&created)
    if err != nil { return model.Dataset{}, err }
    return model.Dataset{
        ID: id, TenantID: tenantID, Name: in.Name,
        Stock: in.Stock, Orders: in.Orders, TransferCosts: in.TransferCosts,
        CreatedAt: created.UTC().Format(time.RFC3339),
    }, nil
}

func (p *Postgres) GetDataset(ctx context.Context, tenantID, id string) (model.Dataset, error) {
    row := p.db.QueryRowContext(ctx, `SELECT id::text, COALESCE(name,''), stock, orders, COALESCE(transfer_costs,'null'::jsonb), created_at
        FROM datasets WHERE tenant_id=$1 AND id=$2::uuid`, tenantID, id)
    var ds model.Dataset
    var stock, orders, costs []byte
    var created time.Time
    if err := row.Scan(&ds.ID, &ds.Name, &stock, &orders, &costs, &created); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return model.Dataset{}, ErrNotFound }
        return model.Dataset{}, err
    }
    ds.TenantID = tenantID
    ds.CreatedAt = created.UTC().Format(time.RFC3339)
    if err := json.Unmarshal(stock, &ds.Stock); err != nil { return model.Dataset{}, err }
    if err := json.Unmarshal(orders, &ds.Orders); err != nil { return model.Dataset{}, err }
    _ = json.Unmarshal(costs, &ds.TransferCosts)
    return ds, nil
}

func (p *Postgres) ListDatasets(ctx context.Context, tenantID, cursor string, limit int) ([]model.Dataset, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, COALESCE(name,''), created_at FROM datasets
            WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, COALESCE(name,''), created_at FROM datasets
            WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    var out []model.Dataset
    var last string
    for rows.Next() {
        var ds model.Dataset
        var created time.Time
        if err := rows.Scan(&ds.ID, &ds.Name, &created); err != nil { return nil, "", err }
        ds.TenantID = tenantID
        ds.CreatedAt = created.UTC().Format(time.RFC3339)
        out = append(out, ds)
        last = ds.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

// planResult is the JSONB blob holding the solved artifacts of a plan.
type planResult struct {
    Assignments []model.Assignment    `json:"assignments,omitempty"`
    Reconciled  []model.ReconciledRow `json:"reconciled,omitempty"`
    Summaries   []model.DepotSummary  `json:"summaries,omitempty"`
    Transfers   []model.Transfer      `json:"transfers,omitempty"`
}

func (p *Postgres) CreatePlan(ctx context.Context, plan model.Plan) (model.Plan, error) {
    if plan.ID == "" { plan.ID = uuid.New().String() }
    res := toJSON(planResult{Assignments: plan.Assignments, Reconciled: plan.Reconciled, Summaries: plan.Summaries, Transfers: plan.Transfers})
    var created time.Time
    err := p.db.QueryRowContext(ctx, `INSERT INTO plans (id, tenant_id, dataset_id, status, proven, objective, result, transfer_cost, solve_ms, error)
        VALUES ($1,$2,$3::uuid,$4,$5,$6,$7,$8,$9,$10) RETURNING created_at`,
        plan.ID, plan.TenantID, plan.DatasetID, plan.Status, plan.Proven, plan.Objective, res, plan.TransferCost, plan.SolveMs, nullIfEmpty(plan.Error)).Scan(&created)
    if err != nil { return model.Plan{}, err }
    plan.CreatedAt = created.UTC().Format(time.RFC3339)
    return plan, nil
}

func (p *Postgres) GetPlan(ctx context.Context, tenantID, id string) (model.Plan, error) {
    row := p.db.QueryRowContext(ctx, `SELECT id::text, dataset_id::text, status, proven, objective, COALESCE(result,'{}'::jsonb), transfer_cost, solve_ms, COALESCE(error,''), created_at
        FROM plans WHERE tenant_id=$1 AND id=$2::uuid`, tenantID, id)
    var pl model.Plan
    var res []byte
    var created time.Time
    if err := row.Scan(&pl.ID, &pl.DatasetID, &pl.Status, &pl.Proven, &pl.Objective, &res, &pl.TransferCost, &pl.SolveMs, &pl.Error, &created); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return model.Plan{}, ErrNotFound }
        return model.Plan{}, err
    }
    pl.TenantID = tenantID
    pl.CreatedAt = created.UTC().Format(time.RFC3339)
    var pr planResult
    if err := json.Unmarshal(res, &pr); err != nil { return model.Plan{}, err }
    pl.Assignments = pr.Assignments
    pl.Reconciled = pr.Reconciled
    pl.Summaries = pr.Summaries
    pl.Transfers = pr.Transfers
    return pl, nil
}

func (p *Postgres) ListPlans(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Plan, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, dataset_id::text, status, proven, objective, transfer_cost, solve_ms, created_at FROM plans WHERE tenant_id=$1`
    args := []any{tenantID}
    idx := 2
    if status != "" { q += ` AND status=$2`; args = append(args, status); idx++ }
    if cursor != "" {
        q += ` AND id::text > $` + fmt.Sprint(idx)
        args = append(args, cursor)
        idx++
    }
    q += ` ORDER BY id LIMIT $` + fmt.Sprint(idx)
    args = append(args, limit)
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    var out []model.Plan
    var last string
    for rows.Next() {
        var pl model.Plan
        var created time.Time
        if err := rows.Scan(&pl.ID, &pl.DatasetID, &pl.Status, &pl.Proven, &pl.Objective, &pl.TransferCost, &pl.SolveMs, &created); err != nil { return nil, "", err }
        pl.TenantID = tenantID
        pl.CreatedAt = created.UTC().Format(time.RFC3339)
        out = append(out, pl)
        last = pl.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    ev, _ := json.Marshal([]string{eventType})
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, ev)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil { return nil, err }
        s.TenantID = tenantID
        _ = json.Unmarshal(events, &s.Events)
        out = append(out, s)
    }
    return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    var out []model.Subscription
    var last string
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
        s.TenantID = tenantID
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    _, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2::uuid`, tenantID, id)
    return err
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1::uuid`,
            id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1::uuid`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1::uuid`,
        id, nullIfEmpty(lastError), responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url FROM webhook_deliveries WHERE tenant_id=$1`
    args := []any{tenantID}
    idx := 2
    if status != "" { q += ` AND status=$2`; args = append(args, status); idx++ }
    if cursor != "" {
        q += ` AND id::text > $` + fmt.Sprint(idx)
        args = append(args, cursor)
        idx++
    }
    q += ` ORDER BY id LIMIT $` + fmt.Sprint(idx)
    args = append(args, limit)
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, eventType, st, url, lastError string
        var attempts int
        var nextAt time.Time
        if err := rows.Scan(&id, &eventType, &st, &attempts, &nextAt, &lastError, &url); err != nil { return nil, "", err }
        item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url, "nextAttemptAt": nextAt}
        if lastError != "" { item["lastError"] = lastError }
        out = append(out, item)
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE tenant_id=$1 AND id=$2::uuid`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
    row := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID)
    var js []byte
    if err := row.Scan(&js); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, nil }
        return nil, err
    }
    var cfg map[string]any
    if err := json.Unmarshal(js, &cfg); err != nil { return nil, err }
    return cfg, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
    _, err := p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, toJSON(cfg))
    return err
}

func toJSON(v any) []byte {
    b, _ := json.Marshal(v)
    return b
}

func nullIfEmpty(s string) any {
    if s == "" { return nil }
    return s
}

func computeDedupKey(payload []byte) string {
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:])
}

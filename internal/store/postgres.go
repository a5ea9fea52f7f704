package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"evalassign/internal/model"
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

// Ping checks database connectivity for readiness probes.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every *.sql file in dir in lexical order. Files are
// expected to be idempotent (CREATE TABLE IF NOT EXISTS and friends).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return err
		}
	}
	return nil
}

// Datasets replace the tenant's previous upload wholesale inside one tx.
func (p *Postgres) SaveMileage(ctx context.Context, tenantID string, records []model.MileageRecord) (string, int, error) {
	datasetID := uuid.New().String()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil { return "", 0, err }
	defer func(){ _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM mileage_records WHERE tenant_id=$1`, tenantID); err != nil { return "", 0, err }
	for _, r := range records {
		_, err = tx.ExecContext(ctx, `INSERT INTO mileage_records (id, tenant_id, dataset_id, evaluator, customer, one_way_miles, round_trip_miles, drive_time_min, base_cost)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			uuid.New().String(), tenantID, datasetID, r.Evaluator, r.Customer, nullFloat(r.OneWayMiles), nullFloat(r.RoundTripMiles), nullFloat(r.DriveTimeMin), nullFloat(r.BaseCost))
		if err != nil { return "", 0, err }
	}
	if err := tx.Commit(); err != nil { return "", 0, err }
	return datasetID, len(records), nil
}

func (p *Postgres) GetMileage(ctx context.Context, tenantID string) ([]model.MileageRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT evaluator, customer, one_way_miles, round_trip_miles, drive_time_min, base_cost
		FROM mileage_records WHERE tenant_id=$1 ORDER BY created_at, id`, tenantID)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.MileageRecord{}
	for rows.Next() {
		var r model.MileageRecord
		var ow, rt, dt, bc sql.NullFloat64
		if err := rows.Scan(&r.Evaluator, &r.Customer, &ow, &rt, &dt, &bc); err != nil { return nil, err }
		r.OneWayMiles = floatPtr(ow)
		r.RoundTripMiles = floatPtr(rt)
		r.DriveTimeMin = floatPtr(dt)
		r.BaseCost = floatPtr(bc)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveRoster(ctx context.Context, tenantID string, names []string) (string, int, error) {
	datasetID := uuid.New().String()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil { return "", 0, err }
	defer func(){ _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM roster_names WHERE tenant_id=$1`, tenantID); err != nil { return "", 0, err }
	for i, n := range names {
		if _, err := tx.ExecContext(ctx, `INSERT INTO roster_names (id, tenant_id, dataset_id, pos, name) VALUES ($1,$2,$3,$4,$5)`,
			uuid.New().String(), tenantID, datasetID, i, n); err != nil { return "", 0, err }
	}
	if err := tx.Commit(); err != nil { return "", 0, err }
	return datasetID, len(names), nil
}

func (p *Postgres) GetRoster(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT name FROM roster_names WHERE tenant_id=$1 ORDER BY pos`, tenantID)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil { return nil, err }
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveJobs(ctx context.Context, tenantID string, jobs []model.Job) (string, int, error) {
	datasetID := uuid.New().String()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil { return "", 0, err }
	defer func(){ _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE tenant_id=$1`, tenantID); err != nil { return "", 0, err }
	for i, j := range jobs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO jobs (id, tenant_id, dataset_id, pos, job_number, customer, assignees) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			uuid.New().String(), tenantID, datasetID, i, j.Number, j.Customer, nullIfEmpty(j.Assignees)); err != nil { return "", 0, err }
	}
	if err := tx.Commit(); err != nil { return "", 0, err }
	return datasetID, len(jobs), nil
}

func (p *Postgres) GetJobs(ctx context.Context, tenantID string) ([]model.Job, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT job_number, customer, COALESCE(assignees,'') FROM jobs WHERE tenant_id=$1 ORDER BY pos`, tenantID)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.Job{}
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.Number, &j.Customer, &j.Assignees); err != nil { return nil, err }
		out = append(out, j)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveRun(ctx context.Context, run model.RunResult) error {
	rowsJSON, err := json.Marshal(run.Rows)
	if err != nil { return err }
	diagJSON, err := json.Marshal(run.Diagnostics)
	if err != nil { return err }
	_, err = p.db.ExecContext(ctx, `INSERT INTO runs (id, tenant_id, mode, status, rows, grand_total, slot_count, filled_count, diagnostics, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		run.ID, run.TenantID, run.Mode, run.Status, rowsJSON, run.GrandTotal, run.SlotCount, run.FilledCount, diagJSON, run.CreatedAt)
	return err
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, runID string) (model.RunResult, error) {
	var r model.RunResult
	var rowsJSON, diagJSON []byte
	err := p.db.QueryRowContext(ctx, `SELECT id::text, tenant_id, mode, status, rows, grand_total, slot_count, filled_count, diagnostics, created_at
		FROM runs WHERE tenant_id=$1 AND id=$2`, tenantID, runID).
		Scan(&r.ID, &r.TenantID, &r.Mode, &r.Status, &rowsJSON, &r.GrandTotal, &r.SlotCount, &r.FilledCount, &diagJSON, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) { return model.RunResult{}, ErrNotFound }
	if err != nil { return model.RunResult{}, err }
	if err := json.Unmarshal(rowsJSON, &r.Rows); err != nil { return model.RunResult{}, err }
	if err := json.Unmarshal(diagJSON, &r.Diagnostics); err != nil { return model.RunResult{}, err }
	return r, nil
}

func (p *Postgres) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.RunResult, string, error) {
	if limit <= 0 || limit > 500 { limit = 100 }
	q := `SELECT id::text, tenant_id, mode, status, rows, grand_total, slot_count, filled_count, diagnostics, created_at FROM runs WHERE tenant_id=$1`
	var rows *sql.Rows
	var err error
	if cursor != "" {
		q += ` AND id > $2 ORDER BY id LIMIT $3`
		rows, err = p.db.QueryContext(ctx, q, tenantID, cursor, limit)
	} else {
		q += ` ORDER BY id LIMIT $2`
		rows, err = p.db.QueryContext(ctx, q, tenantID, limit)
	}
	if err != nil { return nil, "", err }
	defer rows.Close()
	out := []model.RunResult{}
	var last string
	for rows.Next() {
		var r model.RunResult
		var rowsJSON, diagJSON []byte
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Mode, &r.Status, &rowsJSON, &r.GrandTotal, &r.SlotCount, &r.FilledCount, &diagJSON, &r.CreatedAt); err != nil { return nil, "", err }
		_ = json.Unmarshal(rowsJSON, &r.Rows)
		_ = json.Unmarshal(diagJSON, &r.Diagnostics)
		out = append(out, r)
		last = r.ID
	}
	next := ""
	if len(out) == limit { next = last }
	return out, next, rows.Err()
}

func (p *Postgres) GetAssignConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT cfg FROM assign_configs WHERE tenant_id=$1`, tenantID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) { return nil, nil }
	if err != nil { return nil, err }
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil { return nil, err }
	return cfg, nil
}

func (p *Postgres) SaveAssignConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	raw, err := json.Marshal(cfg)
	if err != nil { return err }
	_, err = p.db.ExecContext(ctx, `INSERT INTO assign_configs (tenant_id, cfg, updated_at) VALUES ($1,$2,now())
		ON CONFLICT (tenant_id) DO UPDATE SET cfg=EXCLUDED.cfg, updated_at=now()`, tenantID, raw)
	return err
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.TenantID, s.URL, strings.Join(s.Events, ","), nullIfEmpty(s.Secret))
	if err != nil { return model.Subscription{}, err }
	return s, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, url, events, COALESCE(secret,'') FROM subscriptions WHERE tenant_id=$1`, tenantID)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events string
		if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &events, &s.Secret); err != nil { return nil, err }
		s.Events = strings.Split(events, ",")
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 { limit = 100 }
	q := `SELECT id::text, tenant_id, url, events, COALESCE(secret,'') FROM subscriptions WHERE tenant_id=$1`
	var rows *sql.Rows
	var err error
	if cursor != "" {
		q += ` AND id > $2 ORDER BY id LIMIT $3`
		rows, err = p.db.QueryContext(ctx, q, tenantID, cursor, limit)
	} else {
		q += ` ORDER BY id LIMIT $2`
		rows, err = p.db.QueryContext(ctx, q, tenantID, limit)
	}
	if err != nil { return nil, "", err }
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		var s model.Subscription
		var events string
		if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &events, &s.Secret); err != nil { return nil, "", err }
		s.Events = strings.Split(events, ",")
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit { next = last }
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

// Webhook deliveries
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
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil { return nil, err }
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		var payload []byte
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil { return nil, err }
		d.Payload = payload
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_at=$2, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$3`,
			nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 { limit = 100 }
	q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url FROM webhook_deliveries WHERE tenant_id=$1`
	var rows *sql.Rows
	var err error
	if status != "" {
		q += ` AND status=$2 ORDER BY id LIMIT $3`
		rows, err = p.db.QueryContext(ctx, q, tenantID, status, limit)
	} else {
		q += ` ORDER BY id LIMIT $2`
		rows, err = p.db.QueryContext(ctx, q, tenantID, limit)
	}
	if err != nil { return nil, "", err }
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, eventType, st, lastErr, url string
		var attempts int
		var nextAt sql.NullTime
		if err := rows.Scan(&id, &eventType, &st, &attempts, &nextAt, &lastErr, &url); err != nil { return nil, "", err }
		item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
		if nextAt.Valid { item["nextAttemptAt"] = nextAt.Time }
		if lastErr != "" { item["lastError"] = lastErr }
		out = append(out, item)
		last = id
	}
	next := ""
	if len(out) == limit { next = last }
	return out, next, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

func computeDedupKey(payload []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err == nil {
		delete(obj, "ts")
		if b, err := json.Marshal(obj); err == nil {
			sum := sha256.Sum256(b)
			return hex.EncodeToString(sum[:])
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func nullFloat(f *float64) any { if f == nil { return nil }; return *f }

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid { return nil }
	f := v.Float64
	return &f
}

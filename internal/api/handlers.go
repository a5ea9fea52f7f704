package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"evalassign/internal/assign"
	"evalassign/internal/config"
	"evalassign/internal/ingest"
	"evalassign/internal/metrics"
	"evalassign/internal/model"
	"evalassign/internal/webhooks"
)

func isCSV(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "text/csv") || strings.HasPrefix(ct, "application/csv")
}

// DatasetsHandler handles /v1/datasets/mileage and /v1/datasets/roster.
// POST accepts CSV (text/csv) or a JSON array; each upload replaces the
// tenant's previous dataset.
func (s *Server) DatasetsHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/datasets/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing dataset kind", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	switch rest {
	case "mileage":
		switch r.Method {
		case http.MethodPost:
			var records []model.MileageRecord
			if isCSV(r) {
				var err error
				records, err = ingest.ParseMileage(r.Body)
				if err != nil {
					writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error(), r.URL.Path)
					return
				}
			} else {
				if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
					writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
					return
				}
			}
			id, n, err := s.Store.SaveMileage(r.Context(), tenant, records)
			if err != nil {
				writeProblem(w, http.StatusInternalServerError, "Save mileage failed", err.Error(), r.URL.Path)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"datasetId": id, "count": n})
		case http.MethodGet:
			items, err := s.Store.GetMileage(r.Context(), tenant)
			if err != nil {
				writeProblem(w, http.StatusInternalServerError, "Get mileage failed", err.Error(), r.URL.Path)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "roster":
		switch r.Method {
		case http.MethodPost:
			var names []string
			if isCSV(r) {
				var err error
				names, err = ingest.ParseRoster(r.Body)
				if err != nil {
					writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error(), r.URL.Path)
					return
				}
			} else {
				if err := json.NewDecoder(r.Body).Decode(&names); err != nil {
					writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
					return
				}
			}
			id, n, err := s.Store.SaveRoster(r.Context(), tenant, names)
			if err != nil {
				writeProblem(w, http.StatusInternalServerError, "Save roster failed", err.Error(), r.URL.Path)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"datasetId": id, "count": n})
		case http.MethodGet:
			items, err := s.Store.GetRoster(r.Context(), tenant)
			if err != nil {
				writeProblem(w, http.StatusInternalServerError, "Get roster failed", err.Error(), r.URL.Path)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "unknown dataset kind: "+rest, r.URL.Path)
	}
}

// JobsHandler handles POST/GET /v1/jobs. Duplicate job numbers in an upload
// keep the first occurrence; the response reports how many were dropped.
func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
	_, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodPost:
		var jobs []model.Job
		duplicates := 0
		if isCSV(r) {
			var err error
			jobs, duplicates, err = ingest.ParseJobs(r.Body)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error(), r.URL.Path)
				return
			}
		} else {
			if err := json.NewDecoder(r.Body).Decode(&jobs); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			seen := map[string]bool{}
			kept := jobs[:0]
			for _, j := range jobs {
				if seen[j.Number] {
					duplicates++
					continue
				}
				seen[j.Number] = true
				kept = append(kept, j)
			}
			jobs = kept
		}
		id, n, err := s.Store.SaveJobs(r.Context(), tenant, jobs)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save jobs failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"datasetId": id, "count": n, "duplicates": duplicates})
	case http.MethodGet:
		items, err := s.Store.GetJobs(r.Context(), tenant)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get jobs failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// effectiveConfig layers defaults, the tenant's stored overlay, and the
// per-request knobs, in that order.
func (s *Server) effectiveConfig(ctx context.Context, tenant string, req *model.AssignRequest) (config.Config, error) {
	cfg := config.Default()
	if overlay, err := s.Store.GetAssignConfig(ctx, tenant); err == nil && overlay != nil {
		if b, err := json.Marshal(overlay); err == nil {
			_ = json.Unmarshal(b, &cfg)
		}
	}
	if req != nil {
		if req.Threshold > 0 {
			cfg.MatchThreshold = req.Threshold
		}
		if req.Metric != "" {
			cfg.MatchMetric = req.Metric
		}
		if req.TopK > 0 {
			cfg.ShortlistTopK = req.TopK
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (s *Server) loadSnapshot(ctx context.Context, tenant string) (assign.Snapshot, error) {
	var snap assign.Snapshot
	var err error
	if snap.Mileage, err = s.Store.GetMileage(ctx, tenant); err != nil {
		return snap, err
	}
	if snap.FullTimeNames, err = s.Store.GetRoster(ctx, tenant); err != nil {
		return snap, err
	}
	if snap.Jobs, err = s.Store.GetJobs(ctx, tenant); err != nil {
		return snap, err
	}
	return snap, nil
}

// AssignHandler handles POST /v1/assign
func (s *Server) AssignHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req model.AssignRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.TenantID == "" {
		req.TenantID = p.Tenant
	}
	if err := validateAssignRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
		return
	}
	cfg, err := s.effectiveConfig(r.Context(), req.TenantID, &req)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid config", err.Error(), r.URL.Path)
		return
	}
	snap, err := s.loadSnapshot(r.Context(), req.TenantID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load datasets failed", err.Error(), r.URL.Path)
		return
	}

	start := time.Now()
	run := assign.Run(snap, cfg, req.AvailableEvaluators)
	elapsed := time.Since(start)

	run.ID = uuid.New().String()
	run.TenantID = req.TenantID
	run.Mode = "auto"
	run.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := s.Store.SaveRun(r.Context(), run); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save run failed", err.Error(), r.URL.Path)
		return
	}

	metrics.AssignRuns.WithLabelValues(run.Mode, run.Status).Inc()
	metrics.SolveDuration.Observe(elapsed.Seconds())
	metrics.UnresolvedCustomers.Add(float64(len(run.Diagnostics.Unresolved)))
	metrics.UnfillableSlots.Add(float64(len(run.Diagnostics.Unfillable)))
	assign.RecordStats(req.TenantID, assign.RunStats{
		RunID: run.ID, Status: run.Status, SlotCount: run.SlotCount, FilledCount: run.FilledCount,
		Unresolved: len(run.Diagnostics.Unresolved), Unfillable: len(run.Diagnostics.Unfillable),
		Objective: run.GrandTotal, DurationMs: elapsed.Milliseconds(),
	})

	event := webhooks.EventRunCompleted
	if run.Status == assign.StatusInfeasible {
		event = webhooks.EventRunInfeasible
	}
	data := map[string]any{"runId": run.ID, "status": run.Status, "grandTotal": run.GrandTotal, "filled": run.FilledCount, "slots": run.SlotCount}
	s.Pub.Emit(r.Context(), req.TenantID, event, data)
	s.Broker.Publish(run.ID, SSEEvent{Type: event, Data: data})
	// tenant-wide channel so clients can listen before a run id exists
	s.Broker.Publish("tenant:"+req.TenantID, SSEEvent{Type: event, Data: data})

	writeJSON(w, http.StatusOK, run)
}

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/runs" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListRuns(r.Context(), tenant, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id} and GET /v1/runs/{id}/events/stream (SSE)
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		ch := s.Broker.Subscribe(id)
		defer s.Broker.Unsubscribe(id, ch)
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"runId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
		flusher.Flush()
		notify := r.Context().Done()
		for {
			select {
			case <-notify:
				return
			case evt := <-ch:
				b, _ := json.Marshal(evt.Data)
				fmt.Fprintf(w, "event: %s\n", evt.Type)
				fmt.Fprintf(w, "data: %s\n\n", string(b))
				flusher.Flush()
			case <-time.After(15 * time.Second):
				fmt.Fprintf(w, "event: heartbeat\n")
				fmt.Fprintf(w, "data: {\"runId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
				flusher.Flush()
			}
		}
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	run, err := s.Store.GetRun(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Run not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ShortlistHandler handles POST /v1/shortlist: ranked candidates for one
// job, excluding evaluators the caller has already hand-picked.
func (s *Server) ShortlistHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req model.ShortlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = p.Tenant
	}
	if err := validateShortlistRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
		return
	}
	cfg, err := s.effectiveConfig(r.Context(), req.TenantID, nil)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid config", err.Error(), r.URL.Path)
		return
	}
	snap, err := s.loadSnapshot(r.Context(), req.TenantID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load datasets failed", err.Error(), r.URL.Path)
		return
	}
	var job *model.Job
	for i := range snap.Jobs {
		if snap.Jobs[i].Number == req.JobNumber {
			job = &snap.Jobs[i]
			break
		}
	}
	if job == nil {
		writeProblem(w, http.StatusNotFound, "Job not found", req.JobNumber, r.URL.Path)
		return
	}

	roster := assign.NewRoster(snap.FullTimeNames)
	annotated := assign.Annotate(snap.Mileage, roster, cfg)
	canonical := make([]string, 0, len(annotated))
	seen := map[string]bool{}
	for _, rec := range annotated {
		if !seen[rec.Customer] {
			seen[rec.Customer] = true
			canonical = append(canonical, rec.Customer)
		}
	}
	resolver := assign.NewResolver(canonical, cfg.Overrides, cfg.MatchThreshold, cfg.MatchMetric)
	customer, _, ok := resolver.Resolve(job.Customer)
	if !ok {
		writeProblem(w, http.StatusUnprocessableEntity, "Customer unresolved", job.Customer, r.URL.Path)
		return
	}

	slots := []model.JobSlot{{JobNumber: job.Number, Ordinal: 0, Customer: customer}}
	m, _ := assign.BuildMatrix(annotated, slots, cfg, nil)
	used := map[string]bool{}
	for _, u := range req.Used {
		used[u] = true
	}
	topK := req.TopK
	if topK <= 0 {
		topK = cfg.ShortlistTopK
	}
	cands := m.Shortlist(customer, used, topK)
	writeJSON(w, http.StatusOK, map[string]any{"jobNumber": job.Number, "customer": customer, "candidates": cands})
}

// AssignConfigHandler handles GET /v1/assign/config
func (s *Server) AssignConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/assign/config" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	cfg, err := s.effectiveConfig(r.Context(), p.Tenant, nil)
	if err != nil {
		writeProblem(w, 500, "Config failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"defaults": cfg})
}

// Admin get/set assignment tenant config
func (s *Server) AdminAssignConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/assign/config" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, _ := s.Store.GetAssignConfig(r.Context(), p.Tenant)
		if cfg == nil {
			cfg = map[string]any{}
		}
		writeJSON(w, 200, map[string]any{"config": cfg})
	case http.MethodPut:
		var body struct {
			Config map[string]any `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, 400, "Missing config", "", r.URL.Path)
			return
		}
		if err := s.Store.SaveAssignConfig(r.Context(), p.Tenant, body.Config); err != nil {
			writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RunStatsHandler handles GET /v1/admin/runs/stats (recent in-process runs)
func (s *Server) RunStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/runs/stats" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": assign.GetStats(p.Tenant)})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(204)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(405)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 202, map[string]int{"accepted": 1})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}

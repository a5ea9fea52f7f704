package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"evalassign/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func postCSV(t *testing.T, s *Server, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	handler(rr, req)
	return rr
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(v)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	handler(rr, req)
	return rr
}

func seedDatasets(t *testing.T, s *Server) {
	t.Helper()
	mileage := "Evaluator,Customer,Round Trip Miles,Cost ($)\n" +
		"Alpha,Acme Power,50,10\n" +
		"Alpha,Borealis Gas,50,100\n" +
		"Beta,Acme Power,50,20\n" +
		"Beta,Borealis Gas,50,30\n"
	if rr := postCSV(t, s, s.DatasetsHandler, "/v1/datasets/mileage", mileage); rr.Code != 201 {
		t.Fatalf("mileage upload: %d %s", rr.Code, rr.Body.String())
	}
	if rr := postJSON(t, s.DatasetsHandler, "/v1/datasets/roster", []string{"Alpha", "Beta"}); rr.Code != 201 {
		t.Fatalf("roster upload: %d %s", rr.Code, rr.Body.String())
	}
	jobs := "Job #,Customer Company,Assignee(s)\nJ-1,Acme Power,\nJ-2,Borealis Gas,\n"
	if rr := postCSV(t, s, s.JobsHandler, "/v1/jobs", jobs); rr.Code != 201 {
		t.Fatalf("jobs upload: %d %s", rr.Code, rr.Body.String())
	}
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	s := newTestServer(t)
	seedDatasets(t, s)
	rr := httptest.NewRecorder()
	s.DatasetsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/datasets/mileage", nil))
	if rr.Code != 200 {
		t.Fatalf("mileage get: %d", rr.Code)
	}
	var resp struct {
		Items []model.MileageRecord `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 4 {
		t.Fatalf("expected 4 records, got %d", len(resp.Items))
	}
	if resp.Items[0].Evaluator != "Alpha" || resp.Items[0].BaseCost == nil || *resp.Items[0].BaseCost != 10 {
		t.Fatalf("unexpected first record: %+v", resp.Items[0])
	}
}

func TestJobsDuplicatesCounted(t *testing.T) {
	s := newTestServer(t)
	jobs := "Job #,Customer Company\nJ-1,Acme Power\nJ-1,Acme Power\nJ-2,Borealis Gas\n"
	rr := postCSV(t, s, s.JobsHandler, "/v1/jobs", jobs)
	if rr.Code != 201 {
		t.Fatalf("jobs upload: %d", rr.Code)
	}
	var resp struct {
		Count      int `json:"count"`
		Duplicates int `json:"duplicates"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Count != 2 || resp.Duplicates != 1 {
		t.Fatalf("expected 2 kept / 1 duplicate, got %+v", resp)
	}
}

func TestAssignFlow(t *testing.T) {
	s := newTestServer(t)
	seedDatasets(t, s)

	rr := postJSON(t, s.AssignHandler, "/v1/assign", model.AssignRequest{})
	if rr.Code != 200 {
		t.Fatalf("assign: %d %s", rr.Code, rr.Body.String())
	}
	var run model.RunResult
	if err := json.Unmarshal(rr.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != "optimal" {
		t.Fatalf("expected optimal, got %s (%+v)", run.Status, run.Diagnostics)
	}
	if len(run.Rows) != 2 || run.FilledCount != 2 {
		t.Fatalf("expected 2 rows, got %d", len(run.Rows))
	}
	// cheapest disjoint pairing: Alpha handles Acme, Beta handles Borealis
	if run.Rows[0].Evaluator != "Alpha" || run.Rows[1].Evaluator != "Beta" {
		t.Fatalf("unexpected pairing: %+v", run.Rows)
	}
	if run.GrandTotal != 40 {
		t.Fatalf("expected grand total 40, got %v", run.GrandTotal)
	}

	// run is retrievable
	rr = httptest.NewRecorder()
	s.RunByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/"+run.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("run get: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.RunsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	if rr.Code != 200 {
		t.Fatalf("runs list: %d", rr.Code)
	}
}

func TestAssignValidation(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s.AssignHandler, "/v1/assign", model.AssignRequest{Metric: "soundex"})
	if rr.Code != 400 {
		t.Fatalf("expected 400 for unknown metric, got %d", rr.Code)
	}
	rr = postJSON(t, s.AssignHandler, "/v1/assign", model.AssignRequest{Threshold: 1.5})
	if rr.Code != 400 {
		t.Fatalf("expected 400 for threshold > 1, got %d", rr.Code)
	}
}

func TestShortlist(t *testing.T) {
	s := newTestServer(t)
	seedDatasets(t, s)

	rr := postJSON(t, s.ShortlistHandler, "/v1/shortlist", model.ShortlistRequest{JobNumber: "J-1"})
	if rr.Code != 200 {
		t.Fatalf("shortlist: %d %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Customer   string                     `json:"customer"`
		Candidates []model.ShortlistCandidate `json:"candidates"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Customer != "Acme Power" {
		t.Fatalf("resolved customer: %s", resp.Customer)
	}
	if len(resp.Candidates) != 2 || resp.Candidates[0].Evaluator != "Alpha" || resp.Candidates[1].Evaluator != "Beta" {
		t.Fatalf("unexpected ranking: %+v", resp.Candidates)
	}

	// excluding the cheapest pick promotes the runner-up
	rr = postJSON(t, s.ShortlistHandler, "/v1/shortlist", model.ShortlistRequest{JobNumber: "J-1", Used: []string{"Alpha"}})
	if rr.Code != 200 {
		t.Fatalf("shortlist used: %d", rr.Code)
	}
	resp.Candidates = nil
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Candidates) != 1 || resp.Candidates[0].Evaluator != "Beta" {
		t.Fatalf("expected Beta only, got %+v", resp.Candidates)
	}
}

func TestShortlistUnknownJob(t *testing.T) {
	s := newTestServer(t)
	seedDatasets(t, s)
	rr := postJSON(t, s.ShortlistHandler, "/v1/shortlist", model.ShortlistRequest{JobNumber: "nope"})
	if rr.Code != 404 {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAdminAssignConfigOverlay(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{"config": map[string]any{"matchThreshold": 0.9}}
	rr := httptest.NewRecorder()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/assign/config", bytes.NewReader(b))
	s.AdminAssignConfigHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("config put: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.AssignConfigHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/assign/config", nil))
	if rr.Code != 200 {
		t.Fatalf("config get: %d", rr.Code)
	}
	var resp struct {
		Defaults struct {
			MatchThreshold float64 `json:"matchThreshold"`
			PerDiemAmount  float64 `json:"perDiemAmount"`
		} `json:"defaults"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Defaults.MatchThreshold != 0.9 {
		t.Fatalf("overlay ignored: %+v", resp.Defaults)
	}
	if resp.Defaults.PerDiemAmount != 225 {
		t.Fatalf("defaults lost under overlay: %+v", resp.Defaults)
	}
}

func TestSubscriptionsRBAC(t *testing.T) {
	s := newTestServer(t)
	b, _ := json.Marshal(model.SubscriptionRequest{URL: "http://example.com/h", Events: []string{"run.completed"}})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(b))
	req.Header.Set("X-Role", "viewer")
	s.SubscriptionsHandler(rr, req)
	if rr.Code != 403 {
		t.Fatalf("viewer should be forbidden, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(b))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != 201 {
		t.Fatalf("admin create: %d %s", rr.Code, rr.Body.String())
	}
}

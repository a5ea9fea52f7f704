package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"evalassign/internal/model"
)

func TestMemoryDatasetReplace(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	miles := 120.0
	_, n, err := m.SaveMileage(ctx, "t1", []model.MileageRecord{{Evaluator: "Alpha", Customer: "Acme", RoundTripMiles: &miles}})
	if err != nil || n != 1 {
		t.Fatalf("save: n=%d err=%v", n, err)
	}
	// second upload replaces, not appends
	if _, n, _ = m.SaveMileage(ctx, "t1", []model.MileageRecord{{Evaluator: "Beta", Customer: "Acme"}, {Evaluator: "Gamma", Customer: "Borealis"}}); n != 2 {
		t.Fatalf("replace save count = %d", n)
	}
	got, err := m.GetMileage(ctx, "t1")
	if err != nil || len(got) != 2 {
		t.Fatalf("get after replace: %d records, err=%v", len(got), err)
	}
	if got[0].Evaluator != "Beta" {
		t.Fatalf("unexpected first record %q", got[0].Evaluator)
	}
	other, _ := m.GetMileage(ctx, "t2")
	if len(other) != 0 {
		t.Fatal("tenant isolation broken")
	}
}

func TestMemoryRunsAndPagination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 5; i++ {
		run := model.RunResult{ID: fmt.Sprintf("r%d", i), TenantID: "t1", Status: "optimal", CreatedAt: time.Now().UTC().Format(time.RFC3339)}
		if err := m.SaveRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := m.GetRun(ctx, "t2", "r0"); err != ErrNotFound {
		t.Fatalf("cross-tenant read should be not found, got %v", err)
	}
	if _, err := m.GetRun(ctx, "t1", "missing"); err != ErrNotFound {
		t.Fatalf("missing run should be not found, got %v", err)
	}
	page1, next, err := m.ListRuns(ctx, "t1", "", 2)
	if err != nil || len(page1) != 2 || next == "" {
		t.Fatalf("page1: %d items next=%q err=%v", len(page1), next, err)
	}
	page2, next2, _ := m.ListRuns(ctx, "t1", next, 2)
	if len(page2) != 2 || page2[0].ID == page1[0].ID {
		t.Fatalf("page2 overlaps or wrong size: %+v", page2)
	}
	page3, next3, _ := m.ListRuns(ctx, "t1", next2, 2)
	if len(page3) != 1 || next3 != "" {
		t.Fatalf("final page: %d items next=%q", len(page3), next3)
	}
}

func TestMemorySubscriptionsEventFilter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s1, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://a", Events: []string{"run.completed"}})
	if err != nil || s1.ID == "" {
		t.Fatalf("create: %v", err)
	}
	m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://b", Events: []string{"run.infeasible"}})
	m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t2", URL: "http://c", Events: []string{"run.completed"}})

	subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", "run.completed")
	if len(subs) != 1 || subs[0].URL != "http://a" {
		t.Fatalf("event filter wrong: %+v", subs)
	}
	if err := m.DeleteSubscription(ctx, "t1", s1.ID); err != nil {
		t.Fatal(err)
	}
	subs, _ = m.GetSubscriptionsForEvent(ctx, "t1", "run.completed")
	if len(subs) != 0 {
		t.Fatalf("subscription not deleted: %+v", subs)
	}
}

func TestMemoryWebhookDeliveryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.EnqueueWebhook(ctx, "t1", "sub1", "run.completed", "http://hook", "sec", []byte(`{"id":"evt"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue: %v", err)
	}

	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].Status != "pending" {
		t.Fatalf("expected one pending delivery, got %+v", due)
	}

	// a failed attempt reschedules into the future and leaves the queue
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &next, "timeout", 0, 120); err != nil {
		t.Fatal(err)
	}
	if due, _ = m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("retry scheduled in future should not be due: %+v", due)
	}
	items, _, _ := m.ListWebhookDeliveries(ctx, "t1", "retry", "", 10)
	if len(items) != 1 || items[0]["attempts"] != 1 || items[0]["lastError"] != "timeout" {
		t.Fatalf("retry state wrong: %+v", items)
	}

	// operator retry makes it due again, then a success terminates it
	if err := m.RetryWebhookDelivery(ctx, "t1", id); err != nil {
		t.Fatal(err)
	}
	if due, _ = m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 1 {
		t.Fatalf("retried delivery should be due: %+v", due)
	}
	if err := m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 30); err != nil {
		t.Fatal(err)
	}
	items, _, _ = m.ListWebhookDeliveries(ctx, "t1", "delivered", "", 10)
	if len(items) != 1 || items[0]["attempts"] != 2 {
		t.Fatalf("delivered state wrong: %+v", items)
	}

	// permanent failure path
	id2, _ := m.EnqueueWebhook(ctx, "t1", "sub1", "run.infeasible", "http://hook", "sec", []byte(`{}`))
	m.FailWebhookDelivery(ctx, id2, "gone", 410, 10)
	if due, _ = m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("failed delivery should not be due: %+v", due)
	}
	items, _, _ = m.ListWebhookDeliveries(ctx, "t1", "failed", "", 10)
	if len(items) != 1 || items[0]["lastError"] != "gone" {
		t.Fatalf("failed state wrong: %+v", items)
	}
}

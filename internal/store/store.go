package store

import (
	"context"
	"errors"
	"time"

	"evalassign/internal/model"
)

// Store is the persistence interface used by the API server. Datasets are
// replaced wholesale per upload; a solver run reads one snapshot and never
// mutates it.
type Store interface {
	// Datasets
	SaveMileage(ctx context.Context, tenantID string, records []model.MileageRecord) (datasetID string, count int, err error)
	GetMileage(ctx context.Context, tenantID string) ([]model.MileageRecord, error)
	SaveRoster(ctx context.Context, tenantID string, names []string) (datasetID string, count int, err error)
	GetRoster(ctx context.Context, tenantID string) ([]string, error)
	SaveJobs(ctx context.Context, tenantID string, jobs []model.Job) (datasetID string, count int, err error)
	GetJobs(ctx context.Context, tenantID string) ([]model.Job, error)

	// Runs
	SaveRun(ctx context.Context, run model.RunResult) error
	GetRun(ctx context.Context, tenantID, runID string) (model.RunResult, error)
	ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.RunResult, string, error)

	// Assignment config overlay per tenant
	GetAssignConfig(ctx context.Context, tenantID string) (map[string]any, error)
	SaveAssignConfig(ctx context.Context, tenantID string, cfg map[string]any) error

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

var ErrNotFound = errors.New("not found")

package store

import (
	"context"
	"errors"
	"time"

	"fieldops/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Jobs
	UpsertJob(ctx context.Context, tenantID string, j model.Job) (model.Job, error)
	GetJob(ctx context.Context, tenantID, id string) (model.Job, error)
	ListJobs(ctx context.Context, tenantID, status, date string) ([]model.Job, error)
	// ListJobsForTechnician returns scheduled and in_progress jobs for one
	// technician on one date; other statuses never reach the planner.
	ListJobsForTechnician(ctx context.Context, tenantID, technicianID, date string) ([]model.Job, error)
	CountJobsForTechnician(ctx context.Context, tenantID, technicianID, date string) (int, error)
	ListJobsInRange(ctx context.Context, tenantID, fromDate, toDate string) ([]model.Job, error)

	// Technicians
	UpsertTechnician(ctx context.Context, tenantID string, t model.Technician) (model.Technician, error)
	GetTechnician(ctx context.Context, tenantID, id string) (model.Technician, error)
	ListTechnicians(ctx context.Context, tenantID string) ([]model.Technician, error)
	ListAvailableTechnicians(ctx context.Context, tenantID string, skills []string, emergencyOnly bool) ([]model.Technician, error)
	UpdateTechnicianLocation(ctx context.Context, tenantID, id string, lat, lng float64) error

	// Service types
	UpsertServiceType(ctx context.Context, tenantID string, st model.ServiceType) (model.ServiceType, error)
	ListServiceTypes(ctx context.Context, tenantID string) ([]model.ServiceType, error)

	// Conflicts
	CreateConflict(ctx context.Context, tenantID string, c model.Conflict) (model.Conflict, error)
	HasConflict(ctx context.Context, tenantID, jobID, conflictType, date string) (bool, error)
	ListConflicts(ctx context.Context, tenantID string, resolved *bool) ([]model.Conflict, error)
	ResolveConflict(ctx context.Context, tenantID, id, notes string) (model.Conflict, error)

	// Optimization audit trail
	SaveOptimizationRun(ctx context.Context, tenantID string, run model.OptimizationRun) (model.OptimizationRun, error)
	ListOptimizationRuns(ctx context.Context, tenantID, technicianID, date string) ([]model.OptimizationRun, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

// WebhookDelivery is one pending outbound webhook attempt.
type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Attempts       int
}

var ErrNotFound = errors.New("not found")

// Package webhooks fans scheduling events out to tenant-registered HTTP
// endpoints. Emit enqueues durable deliveries; the Worker drains the queue
// with signed POSTs and exponential backoff.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fieldops/internal/store"
)

// Event types published by the scheduling core.
const (
	EventRouteOptimized    = "route.optimized"
	EventConflictDetected  = "conflict.detected"
	EventTechnicianLocated = "technician.location"
)

type Publisher struct {
	Store store.Store
	Log   *zap.Logger
}

func NewPublisher(s store.Store, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{Store: s, Log: log}
}

// Emit sends an event to all subscriptions for the tenant and event type.
// Emission is best-effort; delivery failures are the worker's concern.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		p.Log.Warn("webhook subscription lookup failed",
			zap.String("tenant", tenantID), zap.String("event", eventType), zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":       fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.Log.Error("webhook payload marshal failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			p.Log.Warn("webhook enqueue failed",
				zap.String("subscription", s.ID), zap.String("event", eventType), zap.Error(err))
		}
	}
}

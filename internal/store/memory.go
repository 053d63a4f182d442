package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldops/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
// Insertion order is preserved per tenant so listings are deterministic.
type Memory struct {
	mu      sync.Mutex
	jobs    map[string]model.Job        // id -> job
	jobsTen map[string][]string         // tenant -> job ids
	techs   map[string]model.Technician // id -> technician
	techTen map[string][]string         // tenant -> technician ids
	svcs    map[string][]model.ServiceType
	cfls    map[string]model.Conflict // id -> conflict
	cflTen  map[string][]string       // tenant -> conflict ids
	runs    map[string][]model.OptimizationRun
	subs    map[string][]model.Subscription
	// webhook queue state
	deliveries map[string]*memDelivery
	order      []string // delivery ids, FIFO
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		jobs:       map[string]model.Job{},
		jobsTen:    map[string][]string{},
		techs:      map[string]model.Technician{},
		techTen:    map[string][]string{},
		svcs:       map[string][]model.ServiceType{},
		cfls:       map[string]model.Conflict{},
		cflTen:     map[string][]string{},
		runs:       map[string][]model.OptimizationRun{},
		subs:       map[string][]model.Subscription{},
		deliveries: map[string]*memDelivery{},
		now:        time.Now,
	}
}

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
	Dead          bool
}

func (m *Memory) UpsertJob(ctx context.Context, tenantID string, j model.Job) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	j.TenantID = tenantID
	if j.Status == "" {
		j.Status = model.JobStatusPending
	}
	if _, ok := m.jobs[j.ID]; !ok {
		m.jobsTen[tenantID] = append(m.jobsTen[tenantID], j.ID)
	}
	m.jobs[j.ID] = j
	return j, nil
}

func (m *Memory) GetJob(ctx context.Context, tenantID, id string) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.TenantID != tenantID {
		return model.Job{}, ErrNotFound
	}
	return j, nil
}

func (m *Memory) ListJobs(ctx context.Context, tenantID, status, date string) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Job{}
	for _, id := range m.jobsTen[tenantID] {
		j := m.jobs[id]
		if status != "" && j.Status != status {
			continue
		}
		if date != "" && j.ScheduledDate != date {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func workday(status string) bool {
	return status == model.JobStatusScheduled || status == model.JobStatusInProgress
}

func (m *Memory) ListJobsForTechnician(ctx context.Context, tenantID, technicianID, date string) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Job{}
	for _, id := range m.jobsTen[tenantID] {
		j := m.jobs[id]
		if j.TechnicianID != technicianID || j.ScheduledDate != date || !workday(j.Status) {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (m *Memory) CountJobsForTechnician(ctx context.Context, tenantID, technicianID, date string) (int, error) {
	jobs, err := m.ListJobsForTechnician(ctx, tenantID, technicianID, date)
	return len(jobs), err
}

func (m *Memory) ListJobsInRange(ctx context.Context, tenantID, fromDate, toDate string) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Job{}
	for _, id := range m.jobsTen[tenantID] {
		j := m.jobs[id]
		if !workday(j.Status) || j.ScheduledDate == "" {
			continue
		}
		if j.ScheduledDate < fromDate || j.ScheduledDate > toDate {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (m *Memory) UpsertTechnician(ctx context.Context, tenantID string, t model.Technician) (model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.TenantID = tenantID
	if _, ok := m.techs[t.ID]; !ok {
		m.techTen[tenantID] = append(m.techTen[tenantID], t.ID)
	}
	m.techs[t.ID] = t
	return t, nil
}

func (m *Memory) GetTechnician(ctx context.Context, tenantID, id string) (model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.techs[id]
	if !ok || t.TenantID != tenantID {
		return model.Technician{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListTechnicians(ctx context.Context, tenantID string) ([]model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Technician{}
	for _, id := range m.techTen[tenantID] {
		out = append(out, m.techs[id])
	}
	return out, nil
}

func (m *Memory) ListAvailableTechnicians(ctx context.Context, tenantID string, skills []string, emergencyOnly bool) ([]model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	allowed := map[string]bool{}
	for _, s := range skills {
		allowed[s] = true
	}
	out := []model.Technician{}
	for _, id := range m.techTen[tenantID] {
		t := m.techs[id]
		if !t.IsAvailable {
			continue
		}
		if len(allowed) > 0 && !allowed[t.SkillLevel] {
			continue
		}
		if emergencyOnly && !t.EmergencyAvailability {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *Memory) UpdateTechnicianLocation(ctx context.Context, tenantID, id string, lat, lng float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.techs[id]
	if !ok || t.TenantID != tenantID {
		return ErrNotFound
	}
	t.Location = &model.GeoPoint{Lat: lat, Lng: lng}
	m.techs[id] = t
	return nil
}

func (m *Memory) UpsertServiceType(ctx context.Context, tenantID string, st model.ServiceType) (model.ServiceType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.svcs[tenantID]
	for i := range list {
		if list[i].Name == st.Name {
			list[i] = st
			return st, nil
		}
	}
	m.svcs[tenantID] = append(list, st)
	return st, nil
}

func (m *Memory) ListServiceTypes(ctx context.Context, tenantID string) ([]model.ServiceType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ServiceType{}, m.svcs[tenantID]...), nil
}

func (m *Memory) CreateConflict(ctx context.Context, tenantID string, c model.Conflict) (model.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New().String()
	c.TenantID = tenantID
	c.DetectedAt = m.now().UTC().Format(time.RFC3339)
	m.cfls[c.ID] = c
	m.cflTen[tenantID] = append(m.cflTen[tenantID], c.ID)
	return c, nil
}

func (m *Memory) HasConflict(ctx context.Context, tenantID, jobID, conflictType, date string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.cflTen[tenantID] {
		c := m.cfls[id]
		if c.JobID == jobID && c.Type == conflictType && c.Date == date {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListConflicts(ctx context.Context, tenantID string, resolved *bool) ([]model.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Conflict{}
	for _, id := range m.cflTen[tenantID] {
		c := m.cfls[id]
		if resolved != nil && c.Resolved != *resolved {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) ResolveConflict(ctx context.Context, tenantID, id, notes string) (model.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cfls[id]
	if !ok || c.TenantID != tenantID {
		return model.Conflict{}, ErrNotFound
	}
	c.Resolved = true
	c.ResolutionNotes = notes
	c.ResolvedAt = m.now().UTC().Format(time.RFC3339)
	m.cfls[id] = c
	return c, nil
}

func (m *Memory) SaveOptimizationRun(ctx context.Context, tenantID string, run model.OptimizationRun) (model.OptimizationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = uuid.New().String()
	run.TenantID = tenantID
	run.CreatedAt = m.now().UTC().Format(time.RFC3339)
	m.runs[tenantID] = append(m.runs[tenantID], run)
	return run, nil
}

func (m *Memory) ListOptimizationRuns(ctx context.Context, tenantID, technicianID, date string) ([]model.OptimizationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.OptimizationRun{}
	for _, r := range m.runs[tenantID] {
		if technicianID != "" && r.TechnicianID != technicianID {
			continue
		}
		if date != "" && r.TargetDate != date {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Subscription{}, m.subs[tenantID]...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	for i := range arr {
		if arr[i].ID == id {
			m.subs[tenantID] = append(arr[:i], arr[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, TenantID: tenantID, SubscriptionID: subscriptionID,
			EventType: eventType, URL: url, Secret: secret, Payload: payload,
		},
		NextAttemptAt: m.now(),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	now := m.now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if d.Dead || d.DeliveredAt != nil || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Attempts < out[j].Attempts })
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		now := m.now()
		d.DeliveredAt = &now
	} else if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	d.Dead = true
	return nil
}

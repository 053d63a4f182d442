package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fieldops/internal/model"
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

// MigrateDir applies every .sql file in dir in lexical order. Statements are
// expected to be idempotent (CREATE TABLE IF NOT EXISTS and friends).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
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
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("apply migration %s: %w", f, err)
		}
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanJob(scan func(dest ...any) error) (model.Job, error) {
	var j model.Job
	var svc, desc, prio, date, start, end, techID, jobNum, title sql.NullString
	var lat, lng, aiHours sql.NullFloat64
	err := scan(&j.ID, &j.TenantID, &jobNum, &title, &desc, &j.Status, &prio,
		&svc, &lat, &lng, &date, &start, &end, &techID, &aiHours)
	if err != nil {
		return j, err
	}
	j.JobNumber = jobNum.String
	j.Title = title.String
	j.Description = desc.String
	j.Priority = prio.String
	j.ScheduledDate = date.String
	j.ScheduledStart = start.String
	j.ScheduledEnd = end.String
	j.TechnicianID = techID.String
	j.AISuggestedHours = aiHours.Float64
	if svc.Valid && svc.String != "" {
		var st model.ServiceType
		if err := json.Unmarshal([]byte(svc.String), &st); err == nil {
			j.ServiceType = &st
		}
	}
	if lat.Valid && lng.Valid {
		j.Location = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	return j, nil
}

const jobCols = `id::text, tenant_id, job_number, title, description, status, priority,
	service_type, lat, lng, scheduled_date, scheduled_start, scheduled_end, technician_id::text, ai_suggested_hours`

func (p *Postgres) UpsertJob(ctx context.Context, tenantID string, j model.Job) (model.Job, error) {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = model.JobStatusPending
	}
	j.TenantID = tenantID
	var svc, lat, lng any
	if j.ServiceType != nil {
		b, err := json.Marshal(j.ServiceType)
		if err != nil {
			return j, err
		}
		svc = string(b)
	}
	if j.Location != nil {
		lat, lng = j.Location.Lat, j.Location.Lng
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO jobs (id, tenant_id, job_number, title, description, status, priority,
			service_type, lat, lng, scheduled_date, scheduled_start, scheduled_end, technician_id, ai_suggested_hours)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			job_number=EXCLUDED.job_number, title=EXCLUDED.title, description=EXCLUDED.description,
			status=EXCLUDED.status, priority=EXCLUDED.priority, service_type=EXCLUDED.service_type,
			lat=EXCLUDED.lat, lng=EXCLUDED.lng, scheduled_date=EXCLUDED.scheduled_date,
			scheduled_start=EXCLUDED.scheduled_start, scheduled_end=EXCLUDED.scheduled_end,
			technician_id=EXCLUDED.technician_id, ai_suggested_hours=EXCLUDED.ai_suggested_hours`,
		j.ID, tenantID, nullIfEmpty(j.JobNumber), nullIfEmpty(j.Title), nullIfEmpty(j.Description),
		j.Status, nullIfEmpty(j.Priority), svc, lat, lng, nullIfEmpty(j.ScheduledDate),
		nullIfEmpty(j.ScheduledStart), nullIfEmpty(j.ScheduledEnd), nullIfEmpty(j.TechnicianID), j.AISuggestedHours)
	return j, err
}

func (p *Postgres) GetJob(ctx context.Context, tenantID, id string) (model.Job, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	j, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	return j, err
}

func (p *Postgres) queryJobs(ctx context.Context, q string, args ...any) ([]model.Job, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Job{}
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (p *Postgres) ListJobs(ctx context.Context, tenantID, status, date string) ([]model.Job, error) {
	q := `SELECT ` + jobCols + ` FROM jobs WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if date != "" {
		args = append(args, date)
		q += fmt.Sprintf(" AND scheduled_date=$%d", len(args))
	}
	q += " ORDER BY created_at, id"
	return p.queryJobs(ctx, q, args...)
}

func (p *Postgres) ListJobsForTechnician(ctx context.Context, tenantID, technicianID, date string) ([]model.Job, error) {
	return p.queryJobs(ctx, `SELECT `+jobCols+` FROM jobs
		WHERE tenant_id=$1 AND technician_id=$2 AND scheduled_date=$3
		  AND status IN ('scheduled','in_progress')
		ORDER BY created_at, id`, tenantID, technicianID, date)
}

func (p *Postgres) CountJobsForTechnician(ctx context.Context, tenantID, technicianID, date string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM jobs
		WHERE tenant_id=$1 AND technician_id=$2 AND scheduled_date=$3
		  AND status IN ('scheduled','in_progress')`, tenantID, technicianID, date).Scan(&n)
	return n, err
}

func (p *Postgres) ListJobsInRange(ctx context.Context, tenantID, fromDate, toDate string) ([]model.Job, error) {
	return p.queryJobs(ctx, `SELECT `+jobCols+` FROM jobs
		WHERE tenant_id=$1 AND scheduled_date BETWEEN $2 AND $3
		  AND status IN ('scheduled','in_progress')
		ORDER BY scheduled_date, created_at, id`, tenantID, fromDate, toDate)
}

func scanTechnician(scan func(dest ...any) error) (model.Technician, error) {
	var t model.Technician
	var name sql.NullString
	var specs sql.NullString
	var lat, lng sql.NullFloat64
	err := scan(&t.ID, &t.TenantID, &name, &t.SkillLevel, &specs, &lat, &lng, &t.IsAvailable, &t.EmergencyAvailability)
	if err != nil {
		return t, err
	}
	t.Name = name.String
	if specs.Valid && specs.String != "" {
		_ = json.Unmarshal([]byte(specs.String), &t.Specialties)
	}
	if lat.Valid && lng.Valid {
		t.Location = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	return t, nil
}

const techCols = `id::text, tenant_id, name, skill_level, specialties, lat, lng, is_available, emergency_availability`

func (p *Postgres) UpsertTechnician(ctx context.Context, tenantID string, t model.Technician) (model.Technician, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.TenantID = tenantID
	var specs, lat, lng any
	if len(t.Specialties) > 0 {
		b, err := json.Marshal(t.Specialties)
		if err != nil {
			return t, err
		}
		specs = string(b)
	}
	if t.Location != nil {
		lat, lng = t.Location.Lat, t.Location.Lng
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO technicians (id, tenant_id, name, skill_level, specialties, lat, lng, is_available, emergency_availability)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, skill_level=EXCLUDED.skill_level, specialties=EXCLUDED.specialties,
			lat=EXCLUDED.lat, lng=EXCLUDED.lng, is_available=EXCLUDED.is_available,
			emergency_availability=EXCLUDED.emergency_availability`,
		t.ID, tenantID, nullIfEmpty(t.Name), t.SkillLevel, specs, lat, lng, t.IsAvailable, t.EmergencyAvailability)
	return t, err
}

func (p *Postgres) GetTechnician(ctx context.Context, tenantID, id string) (model.Technician, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+techCols+` FROM technicians WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	t, err := scanTechnician(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Technician{}, ErrNotFound
	}
	return t, err
}

func (p *Postgres) queryTechnicians(ctx context.Context, q string, args ...any) ([]model.Technician, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Technician{}
	for rows.Next() {
		t, err := scanTechnician(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) ListTechnicians(ctx context.Context, tenantID string) ([]model.Technician, error) {
	return p.queryTechnicians(ctx, `SELECT `+techCols+` FROM technicians WHERE tenant_id=$1 ORDER BY created_at, id`, tenantID)
}

func (p *Postgres) ListAvailableTechnicians(ctx context.Context, tenantID string, skills []string, emergencyOnly bool) ([]model.Technician, error) {
	q := `SELECT ` + techCols + ` FROM technicians WHERE tenant_id=$1 AND is_available`
	args := []any{tenantID}
	if len(skills) > 0 {
		ph := make([]string, len(skills))
		for i, s := range skills {
			args = append(args, s)
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		q += " AND skill_level IN (" + strings.Join(ph, ",") + ")"
	}
	if emergencyOnly {
		q += " AND emergency_availability"
	}
	q += " ORDER BY created_at, id"
	return p.queryTechnicians(ctx, q, args...)
}

func (p *Postgres) UpdateTechnicianLocation(ctx context.Context, tenantID, id string, lat, lng float64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE technicians SET lat=$1, lng=$2 WHERE tenant_id=$3 AND id=$4`,
		lat, lng, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpsertServiceType(ctx context.Context, tenantID string, st model.ServiceType) (model.ServiceType, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO service_types (tenant_id, name, skill_level_required, estimated_duration_hours)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (tenant_id, name) DO UPDATE SET
			skill_level_required=EXCLUDED.skill_level_required,
			estimated_duration_hours=EXCLUDED.estimated_duration_hours`,
		tenantID, st.Name, nullIfEmpty(st.SkillLevelRequired), st.EstimatedDurationHours)
	return st, err
}

func (p *Postgres) ListServiceTypes(ctx context.Context, tenantID string) ([]model.ServiceType, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT name, skill_level_required, estimated_duration_hours
		FROM service_types WHERE tenant_id=$1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ServiceType{}
	for rows.Next() {
		var st model.ServiceType
		var skill sql.NullString
		if err := rows.Scan(&st.Name, &skill, &st.EstimatedDurationHours); err != nil {
			return nil, err
		}
		st.SkillLevelRequired = skill.String
		out = append(out, st)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateConflict(ctx context.Context, tenantID string, c model.Conflict) (model.Conflict, error) {
	c.ID = uuid.New().String()
	c.TenantID = tenantID
	c.DetectedAt = time.Now().UTC().Format(time.RFC3339)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO schedule_conflicts (id, tenant_id, type, description, job_id, other_job_id,
			technician_id, date, start_time, end_time, resolved, detected_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false,now())`,
		c.ID, tenantID, c.Type, nullIfEmpty(c.Description), c.JobID, nullIfEmpty(c.OtherJobID),
		c.TechnicianID, c.Date, nullIfEmpty(c.StartTime), nullIfEmpty(c.EndTime))
	return c, err
}

func (p *Postgres) HasConflict(ctx context.Context, tenantID, jobID, conflictType, date string) (bool, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM schedule_conflicts
		WHERE tenant_id=$1 AND job_id=$2 AND type=$3 AND date=$4`, tenantID, jobID, conflictType, date).Scan(&n)
	return n > 0, err
}

func (p *Postgres) ListConflicts(ctx context.Context, tenantID string, resolved *bool) ([]model.Conflict, error) {
	q := `SELECT id::text, tenant_id, type, description, job_id::text, other_job_id::text,
		technician_id::text, date, start_time, end_time, resolved, resolution_notes, detected_at, resolved_at
		FROM schedule_conflicts WHERE tenant_id=$1`
	args := []any{tenantID}
	if resolved != nil {
		args = append(args, *resolved)
		q += " AND resolved=$2"
	}
	q += " ORDER BY detected_at, id"
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Conflict{}
	for rows.Next() {
		var c model.Conflict
		var desc, other, start, end, notes sql.NullString
		var detectedAt time.Time
		var resolvedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Type, &desc, &c.JobID, &other,
			&c.TechnicianID, &c.Date, &start, &end, &c.Resolved, &notes, &detectedAt, &resolvedAt); err != nil {
			return nil, err
		}
		c.Description = desc.String
		c.OtherJobID = other.String
		c.StartTime = start.String
		c.EndTime = end.String
		c.ResolutionNotes = notes.String
		c.DetectedAt = detectedAt.UTC().Format(time.RFC3339)
		if resolvedAt.Valid {
			c.ResolvedAt = resolvedAt.Time.UTC().Format(time.RFC3339)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) ResolveConflict(ctx context.Context, tenantID, id, notes string) (model.Conflict, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE schedule_conflicts
		SET resolved=true, resolution_notes=$1, resolved_at=now()
		WHERE tenant_id=$2 AND id=$3`, nullIfEmpty(notes), tenantID, id)
	if err != nil {
		return model.Conflict{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Conflict{}, ErrNotFound
	}
	list, err := p.ListConflicts(ctx, tenantID, nil)
	if err != nil {
		return model.Conflict{}, err
	}
	for _, c := range list {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Conflict{}, ErrNotFound
}

func (p *Postgres) SaveOptimizationRun(ctx context.Context, tenantID string, run model.OptimizationRun) (model.OptimizationRun, error) {
	run.ID = uuid.New().String()
	run.TenantID = tenantID
	run.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO optimization_runs (id, tenant_id, technician_id, target_date, jobs_optimized,
			total_distance_miles, travel_time_sec, efficiency_score, refined, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())`,
		run.ID, tenantID, run.TechnicianID, run.TargetDate, run.JobsOptimized,
		run.TotalDistanceMiles, run.TravelTimeSec, run.EfficiencyScore, run.Refined)
	return run, err
}

func (p *Postgres) ListOptimizationRuns(ctx context.Context, tenantID, technicianID, date string) ([]model.OptimizationRun, error) {
	q := `SELECT id::text, tenant_id, technician_id::text, target_date, jobs_optimized,
		total_distance_miles, travel_time_sec, efficiency_score, refined, created_at
		FROM optimization_runs WHERE tenant_id=$1`
	args := []any{tenantID}
	if technicianID != "" {
		args = append(args, technicianID)
		q += fmt.Sprintf(" AND technician_id=$%d", len(args))
	}
	if date != "" {
		args = append(args, date)
		q += fmt.Sprintf(" AND target_date=$%d", len(args))
	}
	q += " ORDER BY created_at, id"
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.OptimizationRun{}
	for rows.Next() {
		var r model.OptimizationRun
		var createdAt time.Time
		if err := rows.Scan(&r.ID, &r.TenantID, &r.TechnicianID, &r.TargetDate, &r.JobsOptimized,
			&r.TotalDistanceMiles, &r.TravelTimeSec, &r.EfficiencyScore, &r.Refined, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	events, err := json.Marshal(req.Events)
	if err != nil {
		return s, err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.TenantID, s.URL, string(events), s.Secret)
	return s, err
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	subs, err := p.ListSubscriptions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []model.Subscription
	for _, s := range subs {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, url, events, secret
		FROM subscriptions WHERE tenant_id=$1 ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events string
		if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &events, &s.Secret); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(events), &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, tenantID, subscriptionID, eventType, url, secret, payload)
	return id, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, subscription_id::text, event_type, url, secret, payload, attempts
		FROM webhook_deliveries
		WHERE status='pending' AND next_attempt_at <= now()
		ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries
			SET status='delivered', attempts=attempts+1, delivered_at=now(),
				last_error=NULL, response_code=$1, latency_ms=$2
			WHERE id=$3`, responseCode, latencyMs, id)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries
		SET attempts=attempts+1, next_attempt_at=$1, last_error=$2, response_code=$3, latency_ms=$4
		WHERE id=$5`, nextAttemptAt, nullIfEmpty(lastError), responseCode, latencyMs, id)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries
		SET status='failed', attempts=attempts+1, last_error=$1, response_code=$2, latency_ms=$3
		WHERE id=$4`, nullIfEmpty(lastError), responseCode, latencyMs, id)
	return err
}

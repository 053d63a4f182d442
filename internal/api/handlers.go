package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fieldops/internal/metrics"
	"fieldops/internal/model"
	"fieldops/internal/webhooks"
)

// OptimizeHandler plans a technician's day: POST /v1/routes/optimize.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.OptimizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TechnicianID == "" || req.Date == "" {
		writeProblem(w, http.StatusBadRequest, "Missing fields", "technicianId and date are required", r.URL.Path)
		return
	}
	ctx, tenant := s.withTenant(r)

	tech, err := s.Store.GetTechnician(ctx, tenant, req.TechnicianID)
	if err != nil {
		metrics.RouteOptimizations.WithLabelValues("error").Inc()
		writeStoreError(w, r, "technician lookup failed", err)
		return
	}

	start := time.Now()
	jobs, err := s.Optimizer.OptimizeRoute(ctx, tenant, tech, req.Date)
	if err != nil {
		metrics.RouteOptimizations.WithLabelValues("error").Inc()
		writeProblem(w, http.StatusInternalServerError, "Optimization failed", err.Error(), r.URL.Path)
		return
	}
	startLat, startLng := s.Optimizer.Start(tech)
	if req.Refine {
		jobs = s.Optimizer.Refine(jobs, startLat, startLng)
	}
	m := s.Optimizer.RouteMetrics(jobs, startLat, startLng)
	metrics.OptimizationDuration.Observe(time.Since(start).Seconds())
	metrics.RouteOptimizations.WithLabelValues("ok").Inc()

	run, err := s.Store.SaveOptimizationRun(ctx, tenant, model.OptimizationRun{
		TechnicianID:       tech.ID,
		TargetDate:         req.Date,
		JobsOptimized:      len(jobs),
		TotalDistanceMiles: m.TotalDistanceMiles,
		TravelTimeSec:      m.TravelTimeSec,
		EfficiencyScore:    m.EfficiencyScore,
		Refined:            req.Refine,
	})
	if err != nil {
		s.Log.Warn("optimization run not persisted", zap.Error(err))
	}

	payload := map[string]any{
		"technicianId": tech.ID,
		"date":         req.Date,
		"jobs":         jobs,
		"metrics":      m,
		"refined":      req.Refine,
		"runId":        run.ID,
	}
	s.Pub.Emit(ctx, tenant, webhooks.EventRouteOptimized, payload)
	s.Broker.Publish(tech.ID, DispatchEvent{Type: webhooks.EventRouteOptimized, Data: map[string]any{
		"technicianId": tech.ID, "date": req.Date, "jobs": len(jobs), "efficiencyScore": m.EfficiencyScore,
	}})
	writeJSON(w, http.StatusOK, payload)
}

// OptimizationRunsHandler lists past runs: GET /v1/routes/runs?technicianId=&date=.
func (s *Server) OptimizationRunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, tenant := s.withTenant(r)
	runs, err := s.Store.ListOptimizationRuns(ctx, tenant, r.URL.Query().Get("technicianId"), r.URL.Query().Get("date"))
	if err != nil {
		writeStoreError(w, r, "list runs failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": runs})
}

// JobByIDHandler routes /v1/jobs/{id} and its sub-resources:
// suggest-technicians, complexity, time-slot.
func (s *Server) JobByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not found", "", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	ctx, tenant := s.withTenant(r)

	job, err := s.Store.GetJob(ctx, tenant, id)
	if err != nil {
		writeStoreError(w, r, "job lookup failed", err)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, job)
		return
	}

	switch parts[1] {
	case "suggest-technicians":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		metrics.TechnicianSuggestions.Inc()
		scored, err := s.Assistant.SuggestTechnicians(ctx, tenant, job)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Suggestion failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobId": job.ID, "suggestions": scored})
	case "complexity":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobId": job.ID, "score": s.Assistant.EstimateComplexity(job)})
	case "time-slot":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req model.TimeSlotRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.TechnicianID == "" || req.Date == "" {
			writeProblem(w, http.StatusBadRequest, "Missing fields", "technicianId and date are required", r.URL.Path)
			return
		}
		slot, found, err := s.Assistant.SuggestTimeSlot(ctx, tenant, job, req.TechnicianID, req.Date)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Time slot search failed", err.Error(), r.URL.Path)
			return
		}
		resp := map[string]any{"jobId": job.ID, "found": found}
		if found {
			resp["slot"] = slot
		} else {
			resp["slot"] = nil
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeProblem(w, http.StatusNotFound, "Not found", "", r.URL.Path)
	}
}

// JobsHandler seeds and lists jobs: POST/GET /v1/jobs.
func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodPost:
		var j model.Job
		if !decodeBody(w, r, &j) {
			return
		}
		out, err := s.Store.UpsertJob(ctx, tenant, j)
		if err != nil {
			writeStoreError(w, r, "job upsert failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodGet:
		items, err := s.Store.ListJobs(ctx, tenant, r.URL.Query().Get("status"), r.URL.Query().Get("date"))
		if err != nil {
			writeStoreError(w, r, "list jobs failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// TechniciansHandler seeds and lists technicians: POST/GET /v1/technicians.
func (s *Server) TechniciansHandler(w http.ResponseWriter, r *http.Request) {
	ctx, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodPost:
		var t model.Technician
		if !decodeBody(w, r, &t) {
			return
		}
		if t.SkillLevel == "" {
			t.SkillLevel = model.SkillApprentice
		}
		out, err := s.Store.UpsertTechnician(ctx, tenant, t)
		if err != nil {
			writeStoreError(w, r, "technician upsert failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodGet:
		items, err := s.Store.ListTechnicians(ctx, tenant)
		if err != nil {
			writeStoreError(w, r, "list technicians failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// TechnicianByIDHandler routes /v1/technicians/{id} and /location.
func (s *Server) TechnicianByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/technicians/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not found", "", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	ctx, tenant := s.withTenant(r)

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		t, err := s.Store.GetTechnician(ctx, tenant, id)
		if err != nil {
			writeStoreError(w, r, "technician lookup failed", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
		return
	}

	if parts[1] != "location" {
		writeProblem(w, http.StatusNotFound, "Not found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var upd model.LocationUpdate
	if !decodeBody(w, r, &upd) {
		return
	}
	if err := s.Store.UpdateTechnicianLocation(ctx, tenant, id, upd.Lat, upd.Lng); err != nil {
		writeStoreError(w, r, "location update failed", err)
		return
	}
	ts := upd.TS
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	s.Locations.Upsert(tenant, id, upd.Lat, upd.Lng, ts)
	s.Broker.Publish(id, DispatchEvent{Type: webhooks.EventTechnicianLocated, Data: map[string]any{
		"technicianId": id, "lat": upd.Lat, "lng": upd.Lng, "ts": ts,
	}})
	s.Pub.Emit(ctx, tenant, webhooks.EventTechnicianLocated, map[string]any{
		"technicianId": id, "lat": upd.Lat, "lng": upd.Lng, "ts": ts,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ServiceTypesHandler seeds and lists service types: POST/GET /v1/service-types.
func (s *Server) ServiceTypesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodPost:
		var st model.ServiceType
		if !decodeBody(w, r, &st) {
			return
		}
		if st.Name == "" {
			writeProblem(w, http.StatusBadRequest, "Missing fields", "name is required", r.URL.Path)
			return
		}
		out, err := s.Store.UpsertServiceType(ctx, tenant, st)
		if err != nil {
			writeStoreError(w, r, "service type upsert failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	case http.MethodGet:
		items, err := s.Store.ListServiceTypes(ctx, tenant)
		if err != nil {
			writeStoreError(w, r, "list service types failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ConflictsDetectHandler scans for overlaps: POST /v1/conflicts/detect.
func (s *Server) ConflictsDetectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.ConflictDetectRequest
	if r.Body != nil {
		// body is optional: default window is today through a week out,
		// but a body that is present and malformed is the caller's error
		if err := decodeOptional(r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid request body", err.Error(), r.URL.Path)
			return
		}
	}
	if req.StartDate == "" {
		req.StartDate = time.Now().Format("2006-01-02")
	}
	if req.EndDate == "" {
		from, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid date", req.StartDate, r.URL.Path)
			return
		}
		req.EndDate = from.AddDate(0, 0, 7).Format("2006-01-02")
	}
	ctx, tenant := s.withTenant(r)
	created, err := s.Detector.DetectConflicts(ctx, tenant, req.StartDate, req.EndDate)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Conflict detection failed", err.Error(), r.URL.Path)
		return
	}
	metrics.ConflictsDetected.Add(float64(created))
	if created > 0 {
		s.Pub.Emit(ctx, tenant, webhooks.EventConflictDetected, map[string]any{
			"startDate": req.StartDate, "endDate": req.EndDate, "conflictsCreated": created,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"startDate": req.StartDate, "endDate": req.EndDate, "conflictsCreated": created,
	})
}

// ConflictsHandler lists conflicts: GET /v1/conflicts?resolved=.
func (s *Server) ConflictsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, tenant := s.withTenant(r)
	var resolved *bool
	switch r.URL.Query().Get("resolved") {
	case "true":
		v := true
		resolved = &v
	case "false":
		v := false
		resolved = &v
	}
	items, err := s.Store.ListConflicts(ctx, tenant, resolved)
	if err != nil {
		writeStoreError(w, r, "list conflicts failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ConflictByIDHandler routes POST /v1/conflicts/{id}/resolve.
func (s *Server) ConflictByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/conflicts/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "resolve" {
		writeProblem(w, http.StatusNotFound, "Not found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Notes string `json:"notes"`
	}
	_ = decodeOptional(r, &body)
	ctx, tenant := s.withTenant(r)
	c, err := s.Store.ResolveConflict(ctx, tenant, parts[0], body.Notes)
	if err != nil {
		writeStoreError(w, r, "conflict resolve failed", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SubscriptionsHandler manages webhook subscriptions: POST/GET /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.TenantID = tenant
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Missing fields", "url and events are required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(ctx, req)
		if err != nil {
			writeStoreError(w, r, "subscription create failed", err)
			return
		}
		sub.Secret = "" // never echo secrets
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, err := s.Store.ListSubscriptions(ctx, tenant)
		if err != nil {
			writeStoreError(w, r, "list subscriptions failed", err)
			return
		}
		for i := range items {
			items[i].Secret = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, tenant := s.withTenant(r)
	if err := s.Store.DeleteSubscription(ctx, tenant, id); err != nil {
		writeStoreError(w, r, "subscription delete failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DispatchStreamHandler is the SSE feed: GET /v1/dispatch/stream?technicianId=.
func (s *Server) DispatchStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	techID := r.URL.Query().Get("technicianId")
	if techID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing fields", "technicianId is required", r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(techID)
	defer s.Broker.Unsubscribe(techID, ch)

	writeSSE(w, "heartbeat", heartbeat(techID))
	if loc, ok := s.Locations.Get(tenant, techID); ok {
		writeSSE(w, webhooks.EventTechnicianLocated, map[string]any{
			"technicianId": loc.TechnicianID, "lat": loc.Lat, "lng": loc.Lng, "ts": loc.TS,
		})
	}
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, evt.Type, evt.Data)
			flusher.Flush()
		case <-time.After(15 * time.Second):
			writeSSE(w, "heartbeat", heartbeat(techID))
			flusher.Flush()
		}
	}
}

func heartbeat(techID string) map[string]any {
	return map[string]any{"technicianId": techID, "ts": time.Now().UTC().Format(time.RFC3339)}
}

// HealthHandler is a liveness probe.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ReadyHandler is a readiness probe: verifies the store answers.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, tenant := s.withTenant(r)
	if _, err := s.Store.ListServiceTypes(ctx, tenant); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func writeSSE(w http.ResponseWriter, event string, data map[string]any) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", b)
}

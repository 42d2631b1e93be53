// Package monitorapi exposes the monitoring service over HTTP.
package monitorapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/vitalwatch/internal/alerting"
	"github.com/linnemanlabs/vitalwatch/internal/escalate"
	"github.com/linnemanlabs/vitalwatch/internal/monitor"
	"github.com/linnemanlabs/vitalwatch/internal/triage"
	"github.com/linnemanlabs/vitalwatch/internal/vitals"
)

// MonitorService defines the business operations the API needs.
type MonitorService interface {
	Ingest(ctx context.Context, patientID string, obs monitor.Observation) (*monitor.IngestResult, error)
	Emergency(ctx context.Context, patientID, title, message string, at time.Time) (*monitor.IngestResult, error)
	Acknowledge(ctx context.Context, alertID, actor string) (alerting.Record, error)
	Resolve(ctx context.Context, alertID string) (alerting.Record, error)
	ResolveEmergency(ctx context.Context, patientID string) (*escalate.Transition, error)
	Stop(ctx context.Context, patientID, reason string) (*escalate.Transition, error)
	CurrentState(ctx context.Context, patientID string) (monitor.StateSnapshot, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    MonitorService
	store  monitor.Store
}

// New creates a new API handler. The store backs the history and stats
// reads and is required.
func New(logger log.Logger, svc MonitorService, store monitor.Store) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("monitor service is required"))
	}
	if store == nil {
		panic(xerrors.New("store is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		store:  store,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/patients/{id}", func(r chi.Router) {
			r.Post("/vitals", a.handleIngestVitals)
			r.Post("/emergency", a.handleEmergency)
			r.Post("/emergency/resolve", a.handleResolveEmergency)
			r.Post("/stop", a.handleStop)
			r.Get("/state", a.handleGetState)
			r.Get("/alerts", a.handleListAlerts)
			r.Get("/assessments", a.handleListAssessments)
			r.Get("/transitions", a.handleListTransitions)
		})
		r.Post("/alerts/{id}/ack", a.handleAcknowledge)
		r.Post("/alerts/{id}/resolve", a.handleResolve)
		r.Get("/stats", a.handleStats)
	})
}

type ingestResult struct {
	Findings   []vitals.Finding     `json:"findings"`
	Unknown    []vitals.Signal      `json:"unknown_signals,omitempty"`
	Assessment *triage.Assessment   `json:"assessment,omitempty"`
	Alerts     []alerting.Record    `json:"alerts"`
	Escalated  []alerting.Record    `json:"escalated_alerts,omitempty"`
	Transition *escalate.Transition `json:"transition,omitempty"`
}

func ingestResponse(res *monitor.IngestResult) ingestResult {
	return ingestResult{
		Findings:   res.Findings,
		Unknown:    res.Unknown,
		Assessment: res.Assessment,
		Alerts:     res.Created,
		Escalated:  res.Escalated,
		Transition: res.Transition,
	}
}

type ingestRequest struct {
	RecordedAt     time.Time      `json:"recorded_at"`
	Vitals         map[string]any `json:"vitals"`
	Symptoms       []string       `json:"symptoms"`
	ChiefComplaint string         `json:"chief_complaint"`
}

func (a *API) handleIngestVitals(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("vitalwatch.patient.id", patientID))

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	values, err := vitals.ParseValues(req.Vitals)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	at := req.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}

	res, err := a.svc.Ingest(r.Context(), patientID, monitor.Observation{
		Sample:         vitals.NewSample(patientID, at, values),
		Symptoms:       req.Symptoms,
		ChiefComplaint: req.ChiefComplaint,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if res.Transition != nil {
		span.SetAttributes(attribute.String("vitalwatch.tier", string(res.Transition.To)))
	}
	writeJSON(w, http.StatusOK, ingestResponse(res))
}

type emergencyRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (a *API) handleEmergency(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")

	var req emergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		req.Title = "Emergency declared"
	}

	res, err := a.svc.Emergency(r.Context(), patientID, req.Title, req.Message, time.Now())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse(res))
}

type ackRequest struct {
	Actor string `json:"actor"`
}

func (a *API) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.Actor == "" {
		http.Error(w, `{"error":"actor is required"}`, http.StatusBadRequest)
		return
	}

	rec, err := a.svc.Acknowledge(r.Context(), alertID, req.Actor)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	rec, err := a.svc.Resolve(r.Context(), alertID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleResolveEmergency(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")

	tr, err := a.svc.ResolveEmergency(r.Context(), patientID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transition": tr})
}

type stopRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")

	var req stopRequest
	if r.Body != nil {
		// An empty body means no reason; anything else must parse.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
			return
		}
	}

	tr, err := a.svc.Stop(r.Context(), patientID, req.Reason)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transition": tr})
}

func (a *API) handleGetState(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")

	state, err := a.svc.CurrentState(r.Context(), patientID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")

	alerts, err := a.store.ListAlerts(r.Context(), patientID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	assessments, err := a.store.ListAssessments(r.Context(), patientID, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessments": assessments})
}

func (a *API) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")

	transitions, err := a.store.ListTransitions(r.Context(), patientID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": transitions})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.store.Stats(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeError maps the service error taxonomy onto HTTP statuses.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ie *vitals.InputError
	switch {
	case errors.As(err, &ie):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": ie.Error()})
	case errors.Is(err, monitor.ErrSessionClosed):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "session closed"})
	case errors.Is(err, escalate.ErrNotInEmergency):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "not in emergency tier"})
	case errors.Is(err, alerting.ErrNotFound), errors.Is(err, monitor.ErrPatientNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	default:
		a.logger.Error(r.Context(), err, "request failed",
			"method", r.Method, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

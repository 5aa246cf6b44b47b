package fitd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/amplitude"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/config"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/logger"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/models"
)

const maxBodyBytes = 256 << 20

type HTTPServer struct {
	mux      *http.ServeMux
	Executor *FitExecutor
}

func NewHTTPServer(executor *FitExecutor) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		Executor: executor,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/v1/datasets", s.handleDatasets)
	s.mux.HandleFunc("/v1/sessions", s.handleSessions)
	s.mux.HandleFunc("/v1/sessions/", s.handleSessionByID)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleDatasets handles /v1/datasets
func (s *HTTPServer) handleDatasets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleUploadDataset(w, r)
	case http.MethodGet:
		infos, err := s.Executor.Store().ListDatasets(r.Context())
		if err != nil {
			s.writeErrorFor(w, err)
			return
		}
		if infos == nil {
			infos = []models.DatasetInfo{}
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"datasets": infos})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleUploadDataset handles POST /v1/datasets
func (s *HTTPServer) handleUploadDataset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string          `json:"name"`
		Events []dataset.Event `json:"events"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == "" || strings.ContainsAny(req.Name, "/:") {
		s.writeError(w, http.StatusBadRequest, "a dataset name without '/' or ':' is required")
		return
	}

	ds := dataset.New(req.Events)
	if err := s.Executor.Store().SaveDataset(r.Context(), req.Name, ds); err != nil {
		s.writeErrorFor(w, err)
		return
	}
	logger.Info("dataset stored", "name", req.Name, "events", ds.Len())
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"dataset": models.DatasetInfo{
			Name:       req.Name,
			Events:     ds.Len(),
			SumWeights: ds.SumWeights(),
			CreatedAt:  time.Now().UTC(),
		},
	})
}

// handleSessions handles /v1/sessions
func (s *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in SessionInput
		if !s.decode(w, r, &in) {
			return
		}
		rec, err := s.Executor.CreateSession(r.Context(), in)
		if err != nil {
			s.writeErrorFor(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]any{"session": s.sessionJSON(rec)})
	case http.MethodGet:
		limit := 50
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
				limit = min(parsed, 1000)
			}
		}
		recs := s.Executor.Sessions().List(limit)
		out := make([]*models.Session, 0, len(recs))
		for _, rec := range recs {
			out = append(out, s.sessionJSON(rec))
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSessionByID handles /v1/sessions/{id} and its sub-resources:
// {id}:fit, {id}:stop, {id}/fit, {id}/nll, {id}/intensity, {id}/parameters,
// {id}/tree and {id}/results.
func (s *HTTPServer) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "session ID is required")
		return
	}

	if id, action, ok := strings.Cut(path, ":"); ok {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		switch action {
		case "fit":
			s.handleStartFit(w, r, id)
		case "stop":
			fit, err := s.Executor.StopFit(id)
			if err != nil {
				s.writeErrorFor(w, err)
				return
			}
			s.writeJSON(w, http.StatusOK, map[string]any{"fit": fitJSON(fit)})
		default:
			s.writeError(w, http.StatusNotFound, "unknown action: "+action)
		}
		return
	}

	id, sub, _ := strings.Cut(path, "/")
	switch sub {
	case "":
		s.handleSession(w, r, id)
	case "fit":
		if !s.allow(w, r, http.MethodGet) {
			return
		}
		fit, err := s.Executor.Fit(id)
		if err != nil {
			s.writeErrorFor(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"fit": fitJSON(fit)})
	case "nll":
		s.handleNLL(w, r, id)
	case "intensity":
		s.handleIntensity(w, r, id)
	case "parameters":
		s.handleParameters(w, r, id)
	case "tree":
		s.handleTree(w, r, id)
	case "results":
		if !s.allow(w, r, http.MethodGet) {
			return
		}
		if _, err := s.Executor.session(id); err != nil {
			s.writeErrorFor(w, err)
			return
		}
		results, err := s.Executor.Store().ListFitResults(r.Context(), id)
		if err != nil {
			s.writeErrorFor(w, err)
			return
		}
		out := make([]map[string]any, 0, len(results))
		for _, res := range results {
			out = append(out, resultJSON(res))
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"results": out})
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		rec, err := s.Executor.session(id)
		if err != nil {
			s.writeErrorFor(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"session": s.sessionJSON(rec)})
	case http.MethodDelete:
		if err := s.Executor.DeleteSession(id); err != nil {
			s.writeErrorFor(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleStartFit(w http.ResponseWriter, r *http.Request, id string) {
	var req FitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	fit, err := s.Executor.StartFit(id, req)
	if err != nil {
		s.writeErrorFor(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"fit": fitJSON(fit)})
}

type paramsRequest struct {
	Parameters []float64 `json:"parameters"`
}

type intensityRequest struct {
	Parameters []float64 `json:"parameters"`
	// MC names a stored dataset to plot over; empty means the session's own.
	MC string `json:"mc,omitempty"`
}

func (s *HTTPServer) handleNLL(w http.ResponseWriter, r *http.Request, id string) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req paramsRequest
	if !s.decode(w, r, &req) {
		return
	}
	nll, err := s.Executor.Evaluate(id, req.Parameters)
	if err != nil {
		s.writeErrorFor(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"nll": jsonFloat(nll)})
}

func (s *HTTPServer) handleIntensity(w http.ResponseWriter, r *http.Request, id string) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req intensityRequest
	if !s.decode(w, r, &req) {
		return
	}
	values, err := s.Executor.Intensity(r.Context(), id, req.Parameters, req.MC)
	if err != nil {
		s.writeErrorFor(w, err)
		return
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = jsonFloat(v)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"intensity": out})
}

func (s *HTTPServer) handleParameters(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		rec, err := s.Executor.session(id)
		if err != nil {
			s.writeErrorFor(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, parametersJSON(rec.Model))
	case http.MethodPost:
		var plan config.ParameterPlan
		if !s.decode(w, r, &plan) {
			return
		}
		if err := s.Executor.ApplyPlan(id, &plan); err != nil {
			s.writeErrorFor(w, err)
			return
		}
		rec, err := s.Executor.session(id)
		if err != nil {
			s.writeErrorFor(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, parametersJSON(rec.Model))
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleTree(w http.ResponseWriter, r *http.Request, id string) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	rec, err := s.Executor.session(id)
	if err != nil {
		s.writeErrorFor(w, err)
		return
	}
	var b strings.Builder
	if err := rec.Model.PrintTree(&b); err != nil {
		s.writeErrorFor(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(b.String())); err != nil {
		logger.Error("failed to write tree", "error", err)
	}
}

func (s *HTTPServer) allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *HTTPServer) sessionJSON(rec *SessionRecord) *models.Session {
	out := &models.Session{
		ID:             rec.ID,
		DataDataset:    rec.DataName,
		MCDataset:      rec.MCName,
		Model:          rec.Model.String(),
		Amplitudes:     len(rec.Model.Amplitudes()),
		FreeParameters: rec.Model.FreeParameterNames(),
		CreatedAt:      rec.CreatedAt,
	}
	if fit, err := s.Executor.Fit(rec.ID); err == nil && fit.Status != models.FitStatusIdle {
		fit.History = nil
		fit.BestNLL = finiteOrZero(fit.BestNLL)
		out.Fit = fit
	}
	return out
}

func parametersJSON(m *amplitude.Model) map[string]any {
	return map[string]any{
		"parameters": m.Parameters(),
		"free":       m.FreeParameterNames(),
		"initial":    m.Initial(),
		"bounds":     m.Bounds(),
		"amplitudes": m.Amplitudes(),
	}
}

func fitJSON(fit *models.Fit) *models.Fit {
	out := *fit
	out.BestNLL = finiteOrZero(fit.BestNLL)
	return &out
}

func resultJSON(r models.FitResult) map[string]any {
	return map[string]any{
		"id":              r.ID,
		"session_id":      r.SessionID,
		"status":          r.Status,
		"method":          r.Method,
		"nll":             jsonFloat(r.NLL),
		"parameters":      r.Parameters,
		"parameter_names": r.ParameterNames,
		"evaluations":     r.Evaluations,
		"duration_ms":     r.Duration.Milliseconds(),
		"stop_reason":     r.StopReason,
		"error":           r.Error,
		"created_at":      r.CreatedAt,
	}
}

// jsonFloat returns v, or its string form when JSON cannot encode it.
func jsonFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return v
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrDatasetNotFound), errors.Is(err, ErrNoFit):
		return http.StatusNotFound
	case errors.Is(err, ErrSessionExists), errors.Is(err, ErrFitRunning), errors.Is(err, ErrSessionTerminal):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrSessionIDMissing),
		errors.Is(err, amplitude.ErrParameterCount), errors.Is(err, amplitude.ErrAmplitudeNotFound),
		errors.Is(err, amplitude.ErrParameterNotFound), errors.Is(err, amplitude.ErrInvalidBounds):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeErrorFor(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	s.writeError(w, code, err.Error())
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}

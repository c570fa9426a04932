package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-insights/internal/advisor"
	"github.com/dvloznov/finance-insights/internal/api/middleware"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/jobs"
	"github.com/dvloznov/finance-insights/internal/jsonval"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/dvloznov/finance-insights/internal/schema"
)

const dateLayout = "2006-01-02"

// analysisRequest is the body of POST /api/analyses and its variants.
type analysisRequest struct {
	UserID string          `json:"user_id"`
	Kind   string          `json:"kind"`
	Bundle json.RawMessage `json:"bundle,omitempty"`
	From   string          `json:"from,omitempty"`
	To     string          `json:"to,omitempty"`
}

type issueResponse struct {
	Path string `json:"path"`
	Rule string `json:"rule"`
}

// AnalysesHandler handles analysis endpoints.
type AnalysesHandler struct {
	svc       *advisor.Service
	publisher jobs.Publisher
}

// NewAnalysesHandler creates a new analyses handler. A nil publisher disables
// asynchronous analyses. Handlers log through the request-scoped logger.
func NewAnalysesHandler(svc *advisor.Service, publisher jobs.Publisher) *AnalysesHandler {
	return &AnalysesHandler{
		svc:       svc,
		publisher: publisher,
	}
}

// Analyze handles POST /api/analyses. Kind "all" runs every kind
// concurrently and returns the analyses in kind order.
func (h *AnalysesHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r, true)
	if !ok {
		return
	}

	if isAllKinds(string(req.Kind)) {
		results, err := h.svc.AnalyzeAll(r.Context(), req)
		if err != nil {
			h.writeAnalysisError(w, r, err)
			return
		}
		bodies := make([]map[string]interface{}, len(results))
		for i, res := range results {
			bodies[i] = analysisBody(res)
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"analyses": bodies,
			"count":    len(bodies),
		})
		return
	}

	res, err := h.svc.Analyze(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, analysisBody(res))
}

func analysisBody(res *advisor.Result) map[string]interface{} {
	warnings := res.Warnings
	if warnings == nil {
		warnings = []schema.Issue{}
	}
	return map[string]interface{}{
		"analysis_id": res.Analysis.ID,
		"user_ref":    res.Analysis.UserRef,
		"kind":        res.Analysis.Kind,
		"model":       res.Analysis.Model,
		"attempts":    res.Analysis.Attempts,
		"created_at":  res.Analysis.CreatedAt,
		"response":    res.Response,
		"warnings":    warnings,
	}
}

func isAllKinds(kind string) bool {
	return strings.EqualFold(strings.TrimSpace(kind), advisor.AllKinds)
}

// Enqueue handles POST /api/analyses/jobs
func (h *AnalysesHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Job queue is disabled")
		return
	}

	var body analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	kind, err := schema.ParseKind(body.Kind)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "kind must be single or integrated")
		return
	}
	if len(body.Bundle) > 0 && !json.Valid(body.Bundle) {
		middleware.WriteError(w, http.StatusBadRequest, "bundle must be valid JSON")
		return
	}
	from, to, err := parseRange(body.From, body.To)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := h.svc.NewJob(body.UserID, kind, body.Bundle)
	if !from.IsZero() {
		job.From = &from
	}
	if !to.IsZero() {
		job.To = &to
	}

	if err := h.publisher.PublishAnalysis(r.Context(), job); err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to enqueue analysis job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue analysis job")
		return
	}

	logger.FromContext(r.Context()).Info().
		Str("job_id", job.JobID).
		Str("user", job.UserRef).
		Str("kind", job.Kind).
		Msg("Analysis job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   job.JobID,
		"user_ref": job.UserRef,
		"status":   string(job.Status),
	})
}

// Get handles GET /api/analyses/{id}
func (h *AnalysesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, domain.ErrAnalysisNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Analysis not found")
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Str("analysis_id", id).Msg("Failed to get analysis")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get analysis")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, a)
}

// List handles GET /api/analyses?user_id=...&limit=...
// The user id travels in the query so it never appears in access logs.
func (h *AnalysesHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID := query.Get("user_id")
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 || n > 100 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	list, err := h.svc.ListForUser(r.Context(), userID, limit)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to list analyses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list analyses")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": list,
		"count":    len(list),
	})
}

// Preview handles POST /api/sanitize/preview
func (h *AnalysesHandler) Preview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r, false)
	if !ok {
		return
	}

	sanitized, err := h.svc.Preview(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sanitized": sanitized,
	})
}

// decodeRequest reads an analysisRequest into an advisor.Request. Kind is
// only checked when requireKind is set.
func (h *AnalysesHandler) decodeRequest(w http.ResponseWriter, r *http.Request, requireKind bool) (advisor.Request, bool) {
	var body analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return advisor.Request{}, false
	}

	req := advisor.Request{UserID: body.UserID, Kind: schema.Kind(body.Kind)}
	if requireKind {
		if body.UserID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
			return advisor.Request{}, false
		}
		if _, err := schema.ParseKind(body.Kind); err != nil && !isAllKinds(body.Kind) {
			middleware.WriteError(w, http.StatusBadRequest, "kind must be single, integrated or all")
			return advisor.Request{}, false
		}
	} else if body.UserID == "" && len(body.Bundle) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "bundle or user_id is required")
		return advisor.Request{}, false
	}

	if len(body.Bundle) > 0 {
		bundle, err := jsonval.Parse(body.Bundle)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "bundle must be valid JSON")
			return advisor.Request{}, false
		}
		req.Bundle = bundle
	}

	from, to, err := parseRange(body.From, body.To)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return advisor.Request{}, false
	}
	req.From, req.To = from, to

	return req, true
}

func (h *AnalysesHandler) writeAnalysisError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := advisor.PublicMessage(err)

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Warn().Int("status", status).Str("reason", message).Msg("Analysis request failed")
	}

	var ve *advisor.ValidationError
	if errors.As(err, &ve) {
		// Messages can quote model output; only paths and rule names are returned.
		issues := make([]issueResponse, len(ve.Issues))
		for i, issue := range ve.Issues {
			issues[i] = issueResponse{Path: issue.Path, Rule: issue.Rule}
		}
		middleware.WriteJSON(w, status, map[string]interface{}{
			"error":    message,
			"attempts": ve.Attempts,
			"issues":   issues,
		})
		return
	}

	middleware.WriteError(w, status, message)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, advisor.ErrInvalidRequest), errors.Is(err, advisor.ErrNoData):
		return http.StatusBadRequest
	case errors.Is(err, advisor.ErrValidationFailed), errors.Is(err, advisor.ErrUnsafeBundle):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromStr != "" {
		if from, err = time.Parse(dateLayout, fromStr); err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be a date in YYYY-MM-DD format")
		}
	}
	if toStr != "" {
		if to, err = time.Parse(dateLayout, toStr); err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be a date in YYYY-MM-DD format")
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not be before from")
	}
	return from, to, nil
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserRef: query.Get("user_ref"),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

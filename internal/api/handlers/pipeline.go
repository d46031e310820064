package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/internal/guard"
	"github.com/quantfoundry/foresight/internal/scheduler"
)

// PipelineHandler serves integrity audits and job status for operators.
type PipelineHandler struct {
	guard *guard.Guard
	sched *scheduler.Scheduler
	log   zerolog.Logger
}

// NewPipelineHandler creates a pipeline handler. The scheduler may be nil
// when the API runs without one.
func NewPipelineHandler(g *guard.Guard, sched *scheduler.Scheduler, log zerolog.Logger) *PipelineHandler {
	return &PipelineHandler{
		guard: g,
		sched: sched,
		log:   log.With().Str("component", "api").Logger(),
	}
}

// RunAudit runs an on-demand integrity audit over a trailing window.
// GET /api/audit?window=24h
func (h *PipelineHandler) RunAudit(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if s := r.URL.Query().Get("window"); s != "" {
		parsed, err := time.ParseDuration(s)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "window must be a positive duration")
			return
		}
		window = parsed
	}

	now := time.Now()
	report, err := h.guard.Audit(r.Context(), now.Add(-window), now.Add(time.Second))
	if err != nil {
		h.log.Error().Err(err).Msg("audit failed")
		respondError(w, http.StatusInternalServerError, "audit failed")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// JobStats returns scheduler job statistics.
// GET /api/jobs
func (h *PipelineHandler) JobStats(w http.ResponseWriter, r *http.Request) {
	if h.sched == nil {
		respondError(w, http.StatusNotFound, "scheduler is not running")
		return
	}
	respondJSON(w, http.StatusOK, h.sched.Stats())
}

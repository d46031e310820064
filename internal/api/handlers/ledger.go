package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/internal/contracts"
)

// LedgerHandler serves read-only views of the prediction ledger and the
// outcome store. There is deliberately no write surface: predictions enter
// through the engine and outcomes through the evaluator, nowhere else.
type LedgerHandler struct {
	ledger   contracts.LedgerRepository
	outcomes contracts.OutcomeRepository
	log      zerolog.Logger
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(ledger contracts.LedgerRepository, outcomes contracts.OutcomeRepository, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger:   ledger,
		outcomes: outcomes,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// ListPredictions returns predictions in a time window.
// GET /api/predictions?from=...&to=...
func (h *LedgerHandler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	from, to, err := timeRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "from/to must be RFC3339 timestamps")
		return
	}

	predictions, err := h.ledger.ListPredictions(r.Context(), from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list predictions")
		respondError(w, http.StatusInternalServerError, "failed to list predictions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"from":        from,
		"to":          to,
		"count":       len(predictions),
		"predictions": predictions,
	})
}

// GetPrediction returns one prediction with its outcomes.
// GET /api/predictions/{id}
func (h *LedgerHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	p, err := h.ledger.GetPrediction(r.Context(), id)
	if err != nil {
		if errors.Is(err, contracts.ErrPredictionNotFound) {
			respondError(w, http.StatusNotFound, "prediction not found")
			return
		}
		h.log.Error().Err(err).Str("prediction_id", id).Msg("failed to get prediction")
		respondError(w, http.StatusInternalServerError, "failed to get prediction")
		return
	}

	outcomes, err := h.outcomes.ListOutcomesForPrediction(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("prediction_id", id).Msg("failed to list outcomes")
		respondError(w, http.StatusInternalServerError, "failed to list outcomes")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"prediction": p,
		"outcomes":   outcomes,
	})
}

// ListOutcomes returns outcomes evaluated in a time window.
// GET /api/outcomes?from=...&to=...
func (h *LedgerHandler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	from, to, err := timeRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "from/to must be RFC3339 timestamps")
		return
	}

	outcomes, err := h.outcomes.ListOutcomes(r.Context(), from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list outcomes")
		respondError(w, http.StatusInternalServerError, "failed to list outcomes")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"from":     from,
		"to":       to,
		"count":    len(outcomes),
		"outcomes": outcomes,
	})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/internal/contracts"
)

// ModelHandler serves read-only views of the bundle registry.
type ModelHandler struct {
	bundles contracts.BundleRepository
	log     zerolog.Logger
}

// NewModelHandler creates a model handler.
func NewModelHandler(bundles contracts.BundleRepository, log zerolog.Logger) *ModelHandler {
	return &ModelHandler{
		bundles: bundles,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// ListModels returns the bundle version history, newest first.
// GET /api/models
func (h *ModelHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	infos, err := h.bundles.ListBundles(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list bundles")
		respondError(w, http.StatusInternalServerError, "failed to list models")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(infos),
		"models": infos,
	})
}

// GetPromotedModel returns the currently promoted bundle.
// GET /api/models/promoted
func (h *ModelHandler) GetPromotedModel(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.bundles.GetPromoted(r.Context())
	if err != nil {
		if errors.Is(err, contracts.ErrNoPromotedModel) {
			respondError(w, http.StatusNotFound, "no promoted model")
			return
		}
		h.log.Error().Err(err).Msg("failed to get promoted bundle")
		respondError(w, http.StatusInternalServerError, "failed to get promoted model")
		return
	}

	respondJSON(w, http.StatusOK, bundle)
}

// GetModel returns one bundle version.
// GET /api/models/{version}
func (h *ModelHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	version := mux.Vars(r)["version"]

	bundle, err := h.bundles.GetBundle(r.Context(), version)
	if err != nil {
		if errors.Is(err, contracts.ErrBundleNotFound) {
			respondError(w, http.StatusNotFound, "model version not found")
			return
		}
		h.log.Error().Err(err).Str("model_version", version).Msg("failed to get bundle")
		respondError(w, http.StatusInternalServerError, "failed to get model")
		return
	}

	respondJSON(w, http.StatusOK, bundle)
}

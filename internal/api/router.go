package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/internal/api/handlers"
)

// NewRouter wires the read-only operator endpoints.
func NewRouter(ledger *handlers.LedgerHandler, models *handlers.ModelHandler, pipeline *handlers.PipelineHandler, log zerolog.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/predictions", ledger.ListPredictions).Methods("GET")
	api.HandleFunc("/predictions/{id}", ledger.GetPrediction).Methods("GET")
	api.HandleFunc("/outcomes", ledger.ListOutcomes).Methods("GET")

	// /models/promoted must register before the {version} route
	api.HandleFunc("/models", models.ListModels).Methods("GET")
	api.HandleFunc("/models/promoted", models.GetPromotedModel).Methods("GET")
	api.HandleFunc("/models/{version}", models.GetModel).Methods("GET")

	api.HandleFunc("/audit", pipeline.RunAudit).Methods("GET")
	api.HandleFunc("/jobs", pipeline.JobStats).Methods("GET")

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "foresight-api",
	})
}

func loggingMiddleware(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

func recoveryMiddleware(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("error", err).
						Str("path", r.URL.Path).
						Msg("panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "internal server error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/stockmonitor/monthend/internal/api/handlers"
	"github.com/stockmonitor/monthend/internal/realtime"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	runHandler *handlers.RunHandler,
	holdingHandler *handlers.HoldingHandler,
	profileHandler *handlers.ProfileHandler,
	notificationHandler *handlers.NotificationHandler,
	hub *realtime.Hub,
	log *logger.Logger,
) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Real-time run status stream
	r.HandleFunc("/ws/runs", hub.ServeWS)

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Run endpoints
	api.HandleFunc("/runs", runHandler.List).Methods("GET")
	api.HandleFunc("/runs", runHandler.TriggerOffCycle).Methods("POST")
	api.HandleFunc("/runs/{id}", runHandler.Get).Methods("GET")
	api.HandleFunc("/runs/{id}/recommendations", runHandler.GetRecommendations).Methods("GET")
	api.HandleFunc("/runs/{id}/exclusions", runHandler.GetExclusions).Methods("GET")

	// Holdings endpoints
	api.HandleFunc("/portfolio", holdingHandler.GetPortfolio).Methods("GET")
	api.HandleFunc("/portfolio/holdings", holdingHandler.ListHoldings).Methods("GET")
	api.HandleFunc("/portfolio/holdings/upload", holdingHandler.Upload).Methods("POST")
	api.HandleFunc("/portfolio/recalculate", holdingHandler.Recalculate).Methods("POST")

	// Constraint profile endpoints
	api.HandleFunc("/profiles/active", profileHandler.GetActive).Methods("GET")
	api.HandleFunc("/profiles", profileHandler.Create).Methods("POST")
	api.HandleFunc("/profiles/{id}/versions", profileHandler.CreateVersion).Methods("POST")
	api.HandleFunc("/profiles/{id}/activate", profileHandler.Activate).Methods("POST")

	// Notification endpoints
	api.HandleFunc("/notifications", notificationHandler.List).Methods("GET")
	api.HandleFunc("/notifications/{id}/read", notificationHandler.MarkRead).Methods("POST")
	api.HandleFunc("/notifications/read-all", notificationHandler.MarkAllRead).Methods("POST")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "monthend-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

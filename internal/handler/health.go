package handler

import (
	"net/http"

	"neurodrive/internal/dto"
	"neurodrive/internal/service"
)

// HealthHandler reports whether the detection model is loaded.
func HealthHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.Ready(); err != nil {
			respondJSON(w, dto.HealthStatus{Status: "unavailable", Model: err.Error()}, http.StatusServiceUnavailable)
			return
		}
		respondJSON(w, dto.HealthStatus{Status: "ok", Model: "loaded"}, http.StatusOK)
	}
}

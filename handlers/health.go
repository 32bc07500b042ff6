package handlers

import (
	"net/http"

	"github.com/cosmomed/pharmacy-locator/interfaces"
)

// HealthResponse keeps the JSON field order stable.
type HealthResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

// HealthCheck handles GET /health.
func HealthCheck(checker interfaces.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, data, code := checker.HealthCheck()
		RespondWithJSON(w, code, HealthResponse{Status: status, Data: data})
	}
}

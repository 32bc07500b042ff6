// Package health provides the health check served at GET /health.
package health

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/cosmomed/pharmacy-locator/interfaces"
)

const pingTimeout = 2 * time.Second

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	catalog         interfaces.CatalogStore
	directory       interfaces.DirectoryStore
	sessions        interfaces.SessionRegistry
	refreshInterval time.Duration
}

// NewHealthChecker creates a health checker. refreshInterval is how often
// the scheduler refreshes the catalog; stats older than four intervals are
// reported as stale.
func NewHealthChecker(catalog interfaces.CatalogStore, directory interfaces.DirectoryStore,
	sessions interfaces.SessionRegistry, refreshInterval time.Duration) interfaces.HealthChecker {
	return &HealthCheckerImpl{
		catalog:         catalog,
		directory:       directory,
		sessions:        sessions,
		refreshInterval: refreshInterval,
	}
}

// HealthCheck returns the status, the details shown to operators and the
// HTTP status code.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	pingErr := h.directory.Ping(ctx)

	stats := h.catalog.GetStats()
	lastUpdate := h.catalog.GetLastUpdated()
	isUpdating := h.catalog.IsUpdating()
	dataAge := time.Since(lastUpdate)

	switch {
	case pingErr != nil:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case lastUpdate.IsZero():
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case h.refreshInterval > 0 && dataAge > 4*h.refreshInterval:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case stats.Total == 0:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"directory":       "ok",
		"total":           stats.Total,
		"with_coords":     stats.WithCoords,
		"is_updating":     isUpdating,
		"active_sessions": h.sessions.Len(),
	}
	if pingErr != nil {
		data["directory"] = "unreachable"
	}
	if !lastUpdate.IsZero() {
		data["last_update"] = lastUpdate.Format(time.RFC3339)
		data["data_age_minutes"] = math.Round(dataAge.Minutes()*10) / 10
	}
	if start := h.catalog.GetServerStartTime(); !start.IsZero() {
		data["uptime_seconds"] = math.Round(time.Since(start).Seconds())
	}

	return status, data, httpStatus
}

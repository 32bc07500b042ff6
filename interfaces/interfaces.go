// Package interfaces defines the seams between the locator's components so
// each can be replaced by a test double.
package interfaces

import (
	"context"
	"time"

	"github.com/cosmomed/pharmacy-locator/pharmacy"
)

// PharmacySource fetches the bulk pharmacy list from the directory.
type PharmacySource interface {
	Fetch(ctx context.Context, q pharmacy.Query) (*pharmacy.Batch, error)
}

// DirectoryStore is the persistent pharmacy directory behind GET /pharmacies.
type DirectoryStore interface {
	Search(ctx context.Context, q pharmacy.Query) ([]pharmacy.Listing, error)
	Stats(ctx context.Context) (pharmacy.Stats, error)
	Ping(ctx context.Context) error
}

// CatalogStore holds the last known directory totals between refreshes.
type CatalogStore interface {
	GetStats() pharmacy.Stats
	GetLastUpdated() time.Time
	GetServerStartTime() time.Time
	IsUpdating() bool
	UpdateStats(stats pharmacy.Stats)
	BeginUpdate() bool
	EndUpdate()
}

// Publisher emits selected-pharmacy events to downstream consumers.
type Publisher interface {
	PublishSelection(ctx context.Context, evt pharmacy.SelectionEvent) error
	Close() error
}

// SessionRegistry is the part of the session registry the scheduler and
// health checks need.
type SessionRegistry interface {
	Len() int
	SweepIdle(maxIdle time.Duration) int
}

// Scheduler defines the contract for background jobs.
type Scheduler interface {
	Start() error
	Stop()
}

// HealthChecker reports the service health for GET /health.
type HealthChecker interface {
	HealthCheck() (status string, details map[string]any, httpStatus int)
}

// InputValidator checks user-supplied filter and location input.
type InputValidator interface {
	ValidateSearch(input string) error
	ValidateRadius(km int) error
	ValidateCoordinates(lat, lng float64) error
	ValidateQuery(q pharmacy.Query) error
	ValidateTravelMode(mode string) error
}

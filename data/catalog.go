// Package data keeps the directory-wide counters that the scheduler refreshes
// and the health and stats endpoints read. Values are swapped atomically so
// readers never block on a refresh.
package data

import (
	"sync/atomic"
	"time"

	"github.com/cosmomed/pharmacy-locator/interfaces"
	"github.com/cosmomed/pharmacy-locator/logging"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
)

var _ interfaces.CatalogStore = (*Catalog)(nil)

// Catalog holds the last known directory totals.
type Catalog struct {
	stats           atomic.Value // pharmacy.Stats
	lastUpdated     atomic.Value // time.Time
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	c := &Catalog{}
	c.stats.Store(pharmacy.Stats{})
	c.lastUpdated.Store(time.Time{})
	c.serverStartTime.Store(time.Time{})
	return c
}

// GetStats returns the directory totals from the last refresh.
func (c *Catalog) GetStats() pharmacy.Stats {
	if v := c.stats.Load(); v != nil {
		if stats, ok := v.(pharmacy.Stats); ok {
			return stats
		}
	}

	logging.Warn("Directory stats are missing or invalid")
	return pharmacy.Stats{}
}

// GetLastUpdated returns when the stats were last refreshed.
func (c *Catalog) GetLastUpdated() time.Time {
	if v := c.lastUpdated.Load(); v != nil {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating reports whether a refresh is in progress.
func (c *Catalog) IsUpdating() bool {
	return c.updating.Load()
}

// SetServerStartTime records when the server started.
func (c *Catalog) SetServerStartTime(t time.Time) {
	c.serverStartTime.Store(t)
}

// GetServerStartTime returns the server start time.
func (c *Catalog) GetServerStartTime() time.Time {
	if v := c.serverStartTime.Load(); v != nil {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// UpdateStats swaps in new totals and stamps the update time.
func (c *Catalog) UpdateStats(stats pharmacy.Stats) {
	c.stats.Store(stats)
	c.lastUpdated.Store(time.Now())
}

// BeginUpdate marks the start of a refresh.
// Returns false if another refresh is already running.
func (c *Catalog) BeginUpdate() bool {
	return c.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a refresh.
func (c *Catalog) EndUpdate() {
	c.updating.Store(false)
}

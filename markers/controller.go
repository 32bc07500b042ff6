package markers

import (
	"fmt"
	"slices"
	"sync"

	"github.com/cosmomed/pharmacy-locator/logging"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
	"github.com/google/uuid"
)

// Default zoom levels of the map viewport.
const (
	CountryZoom = 7
	NearbyZoom  = 12

	MinZoom = 0
	MaxZoom = 22
)

type markerEntry struct {
	marker Marker
	record pharmacy.Record
}

// Controller owns the markers, clusters and info window drawn on a Surface.
type Controller struct {
	mu        sync.Mutex
	surface   Surface
	clusterer *GridClusterer
	onSelect  func(Selection)
	onRender  func(count int)

	state    State
	zoom     int
	entries  map[string]markerEntry
	order    []string
	selected *Selection

	pending    []pharmacy.Record
	hasPending bool
}

// Option customises a Controller.
type Option func(*Controller)

// WithOnSelect registers a hook that runs after every successful click.
func WithOnSelect(fn func(Selection)) Option {
	return func(c *Controller) { c.onSelect = fn }
}

// WithOnRender registers a hook that receives the marker count after every rebuild.
func WithOnRender(fn func(count int)) Option {
	return func(c *Controller) { c.onRender = fn }
}

// WithZoom sets the initial zoom used for clustering.
func WithZoom(zoom int) Option {
	return func(c *Controller) { c.zoom = zoom }
}

// NewController returns an Uninitialized controller drawing on surface.
func NewController(surface Surface, clusterer *GridClusterer, opts ...Option) *Controller {
	if clusterer == nil {
		clusterer = NewGridClusterer(DefaultGridPx)
	}
	c := &Controller{
		surface:   surface,
		clusterer: clusterer,
		zoom:      CountryZoom,
		entries:   make(map[string]markerEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ready marks the surface usable and renders the list queued before it,
// if any. Calling it again is a no-op.
func (c *Controller) Ready() {
	c.mu.Lock()
	if c.state != Uninitialized {
		c.mu.Unlock()
		return
	}
	c.state = Idle

	var count = -1
	if c.hasPending {
		count = c.render(c.pending)
		c.pending, c.hasPending = nil, false
	}
	c.mu.Unlock()

	if count >= 0 {
		c.rendered(count)
	}
}

// Update replaces every marker with one per record. Before Ready the list
// is queued and only the latest queued list is rendered.
func (c *Controller) Update(records []pharmacy.Record) {
	c.mu.Lock()
	if c.state == Uninitialized {
		c.pending = slices.Clone(records)
		c.hasPending = true
		c.mu.Unlock()
		return
	}
	count := c.render(records)
	c.mu.Unlock()

	c.rendered(count)
}

// render tears down the current markers and builds new ones. Caller holds mu.
func (c *Controller) render(records []pharmacy.Record) int {
	c.state = Rendering

	if c.selected != nil {
		c.surface.CloseInfo()
		c.selected = nil
	}
	c.surface.ClearClusters()
	for _, id := range c.order {
		c.surface.RemoveMarker(id)
	}
	clear(c.entries)
	c.order = c.order[:0]

	markers := make([]Marker, 0, len(records))
	for _, r := range records {
		m := Marker{
			ID:         uuid.NewString(),
			PharmacyID: r.ID,
			Title:      r.Name,
			Position:   r.Coordinates,
		}
		c.entries[m.ID] = markerEntry{marker: m, record: r}
		c.order = append(c.order, m.ID)
		markers = append(markers, m)

		id := m.ID
		c.surface.AddMarker(m, func() error {
			_, err := c.Click(id)
			return err
		})
	}

	c.surface.SetClusters(c.clusterer.Cluster(markers, c.zoom))
	c.state = Idle

	logging.Debug("Markers rebuilt", "count", len(markers), "zoom", c.zoom)
	return len(markers)
}

func (c *Controller) rendered(count int) {
	if c.onRender != nil {
		c.onRender(count)
	}
}

// Click selects the pharmacy behind markerID and opens its info window.
func (c *Controller) Click(markerID string) (Selection, error) {
	c.mu.Lock()
	if c.state == Uninitialized {
		c.mu.Unlock()
		return Selection{}, ErrSurfaceNotReady
	}
	entry, ok := c.entries[markerID]
	if !ok {
		c.mu.Unlock()
		return Selection{}, fmt.Errorf("%w: %s", ErrUnknownMarker, markerID)
	}

	sel := Selection{MarkerID: markerID, Record: entry.record}
	c.selected = &sel
	c.state = Selected
	c.surface.OpenInfo(InfoWindow{
		MarkerID: markerID,
		Title:    entry.record.Name,
		Address:  entry.record.Address,
		Position: entry.record.Coordinates,
	})
	onSelect := c.onSelect
	c.mu.Unlock()

	if onSelect != nil {
		onSelect(sel)
	}
	return sel, nil
}

// Deselect closes the info window. Deselecting with nothing selected is a no-op.
func (c *Controller) Deselect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Uninitialized {
		return ErrSurfaceNotReady
	}
	if c.selected == nil {
		return nil
	}
	c.surface.CloseInfo()
	c.selected = nil
	c.state = Idle
	return nil
}

// SetZoom changes the clustering zoom and regroups the current markers.
func (c *Controller) SetZoom(zoom int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if zoom == c.zoom {
		return
	}
	c.zoom = zoom
	if c.state == Uninitialized {
		return
	}

	markers := make([]Marker, 0, len(c.order))
	for _, id := range c.order {
		markers = append(markers, c.entries[id].marker)
	}
	c.surface.SetClusters(c.clusterer.Cluster(markers, zoom))
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Zoom returns the clustering zoom.
func (c *Controller) Zoom() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

// Selected returns the current selection, if any.
func (c *Controller) Selected() (Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return Selection{}, false
	}
	return *c.selected, true
}

// Markers returns the attached markers in render order.
func (c *Controller) Markers() []Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Marker, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].marker)
	}
	return out
}

// Pending reports whether a list is waiting for Ready.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasPending
}

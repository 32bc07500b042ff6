// Package locator ties the geo filters, the marker controller and the
// directions coordinator into one session per map view. A Session is passed
// explicitly to every handler; there is no ambient user state.
package locator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cosmomed/pharmacy-locator/access"
	"github.com/cosmomed/pharmacy-locator/directions"
	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/cosmomed/pharmacy-locator/interfaces"
	"github.com/cosmomed/pharmacy-locator/logging"
	"github.com/cosmomed/pharmacy-locator/markers"
	"github.com/cosmomed/pharmacy-locator/metrics"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
	"github.com/cosmomed/pharmacy-locator/validation"
)

var _ interfaces.PharmacySource = (*pharmacy.HTTPSource)(nil)

const publishTimeout = 5 * time.Second

// Deps are the collaborators shared by every session.
type Deps struct {
	Source        interfaces.PharmacySource
	Publisher     interfaces.Publisher
	Provider      directions.Provider
	ClusterGridPx int
	RouteTimeout  time.Duration
}

// Session is one user's locator state.
type Session struct {
	id        string
	principal access.Principal
	createdAt time.Time
	lastSeen  atomic.Int64

	source    interfaces.PharmacySource
	publisher interfaces.Publisher
	surface   *markers.MemorySurface
	markers   *markers.Controller
	route     *directions.Coordinator

	mu             sync.Mutex
	location       *geo.Coordinates
	locationStatus LocationStatus
	filter         FilterState
	bulk           []pharmacy.Record
	visible        []pharmacy.Record
	stats          pharmacy.Stats
	seq            uint64
	inflight       int
	fetchFailure   *Message
	routeFailure   *Message
	notices        []Message
}

// NewSession returns a session for principal. The marker controller starts
// Uninitialized until MapReady is called.
func NewSession(id string, principal access.Principal, deps Deps) *Session {
	if principal.Role == nil {
		principal = access.Anonymous
	}
	now := time.Now()
	s := &Session{
		id:             id,
		principal:      principal,
		createdAt:      now,
		source:         deps.Source,
		publisher:      deps.Publisher,
		surface:        markers.NewMemorySurface(),
		locationStatus: LocationPending,
		filter:         DefaultFilter(),
		bulk:           []pharmacy.Record{},
		visible:        []pharmacy.Record{},
	}
	s.lastSeen.Store(now.UnixNano())

	gridPx := deps.ClusterGridPx
	if gridPx <= 0 {
		gridPx = markers.DefaultGridPx
	}
	s.markers = markers.NewController(s.surface, markers.NewGridClusterer(gridPx),
		markers.WithOnSelect(s.selected),
		markers.WithOnRender(func(count int) {
			metrics.VisiblePharmacies.Observe(float64(count))
		}),
	)

	routeOpts := []directions.CoordinatorOption{
		directions.WithOutcomeHook(func(outcome string) {
			metrics.RouteRequestsTotal.WithLabelValues(outcome).Inc()
		}),
	}
	if deps.RouteTimeout > 0 {
		routeOpts = append(routeOpts, directions.WithTimeout(deps.RouteTimeout))
	}
	s.route = directions.NewCoordinator(deps.Provider, routeOpts...)

	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Principal returns the caller the session was opened for.
func (s *Session) Principal() access.Principal { return s.principal }

// Touch records activity for idle sweeping.
func (s *Session) Touch() { s.lastSeen.Store(time.Now().UnixNano()) }

// LastAccess returns the time of the last recorded activity.
func (s *Session) LastAccess() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// SetLocation stores the user's position. The lookup is one-shot: once a
// position or a failure is recorded, later reports are rejected.
func (s *Session) SetLocation(c geo.Coordinates) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidLocation, c)
	}

	s.mu.Lock()
	if s.locationStatus != LocationPending {
		s.mu.Unlock()
		return ErrLocationResolved
	}
	s.location = &c
	s.locationStatus = LocationAvailable
	s.mu.Unlock()

	s.markers.SetZoom(markers.NearbyZoom)
	return nil
}

// SetZoom records the zoom the client's map is showing so clusters are
// regrouped the way the client draws them.
func (s *Session) SetZoom(zoom int) error {
	if zoom < markers.MinZoom || zoom > markers.MaxZoom {
		return fmt.Errorf("%w: %d", ErrInvalidZoom, zoom)
	}
	s.markers.SetZoom(zoom)
	return nil
}

// LocationFailed records that no position could be obtained. The user is
// told once; there is no retry.
func (s *Session) LocationFailed(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locationStatus != LocationPending {
		return ErrLocationResolved
	}
	s.locationStatus = LocationUnavailable
	s.notices = append(s.notices, Message{
		Kind: KindLocationUnavailable,
		Text: "Your location is not available. Nearby search and directions are disabled.",
	})
	logging.Info("User location unavailable", "session_id", s.id, "reason", reason)
	return nil
}

// Location returns the user's position, or nil.
func (s *Session) Location() *geo.Coordinates {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.location == nil {
		return nil
	}
	c := *s.location
	return &c
}

// SetFilter replaces the filter. It does not refetch or refilter on its own.
func (s *Session) SetFilter(f FilterState) error {
	if f.RadiusKm == 0 {
		f.RadiusKm = validation.DefaultRadiusKm
	}
	if !validation.IsAllowedRadius(f.RadiusKm) {
		return fmt.Errorf("%w: %d km", ErrInvalidRadius, f.RadiusKm)
	}

	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	return nil
}

// Filter returns the current filter.
func (s *Session) Filter() FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Fetch downloads the pharmacy list for the current filter. The result is
// applied only if no newer fetch or list change happened meanwhile;
// otherwise it is dropped and ErrSuperseded is returned. On success the
// list replaces the previous one and becomes the visible list. On failure
// the visible list is emptied and a retryable message is kept.
func (s *Session) Fetch(ctx context.Context) (VisibleStats, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	q := s.filter.Query()
	s.inflight++
	s.mu.Unlock()

	batch, err := s.source.Fetch(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--

	if seq != s.seq {
		metrics.FetchTotal.WithLabelValues(metrics.OutcomeSuperseded).Inc()
		logging.Debug("Discarded superseded fetch", "session_id", s.id, "seq", seq, "latest", s.seq)
		return VisibleStats{}, ErrSuperseded
	}

	if err != nil {
		metrics.FetchTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		s.fetchFailure = &Message{
			Kind:  KindFetchFailure,
			Text:  "Pharmacies could not be loaded. Please try again.",
			Retry: true,
		}
		s.setVisible([]pharmacy.Record{})
		return s.statsLocked(), err
	}

	metrics.FetchTotal.WithLabelValues(metrics.OutcomeApplied).Inc()
	s.fetchFailure = nil
	s.bulk = batch.Records
	if s.bulk == nil {
		s.bulk = []pharmacy.Record{}
	}
	s.stats = batch.Stats
	s.setVisible(slices.Clone(s.bulk))

	logging.Debug("Pharmacy list applied", "session_id", s.id, "seq", seq,
		"total", s.stats.Total, "with_coords", s.stats.WithCoords)
	return s.statsLocked(), nil
}

// FindNearby shows the fetched pharmacies within the filter radius of the
// user whose name matches the search text.
func (s *Session) FindNearby() ([]pharmacy.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nearby, err := geo.FilterByRadius(s.location, s.bulk, float64(s.filter.RadiusKm))
	if err != nil {
		return nil, err
	}
	nearby = geo.FilterByName(nearby, s.filter.SearchText)

	s.seq++
	s.setVisible(nearby)
	return slices.Clone(nearby), nil
}

// Reset clears the text filters and shows the whole fetched list again.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filter.SearchText = ""
	s.filter.District = ""
	s.filter.MOH = ""

	s.seq++
	s.setVisible(slices.Clone(s.bulk))
}

// setVisible replaces the visible list, drops the route and redraws the
// markers. Caller holds mu.
func (s *Session) setVisible(records []pharmacy.Record) {
	s.visible = records
	s.routeFailure = nil
	s.route.Clear()
	s.markers.Update(records)
}

// Visible returns a copy of the visible list.
func (s *Session) Visible() []pharmacy.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.visible)
}

// MapReady marks the client's map as ready to draw.
func (s *Session) MapReady() {
	s.markers.Ready()
}

// SelectMarker handles a click on a marker.
func (s *Session) SelectMarker(markerID string) (markers.Selection, error) {
	return s.markers.Click(markerID)
}

// selected runs after every marker click, including clicks that arrive
// through the surface.
func (s *Session) selected(sel markers.Selection) {
	s.route.Clear()

	s.mu.Lock()
	s.routeFailure = nil
	s.mu.Unlock()

	if s.publisher == nil {
		return
	}
	evt := pharmacy.SelectionEvent{
		SessionID:  s.id,
		PharmacyID: sel.Record.ID,
		Name:       sel.Record.Name,
		Address:    sel.Record.Address,
		Location:   sel.Record.Coordinates,
		Role:       s.principal.Role.Name(),
		OrderPanel: access.Can(s.principal.Role, access.OpenOrderPanel),
		At:         time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishSelection(ctx, evt); err != nil {
		logging.Warn("Failed to publish selection", "session_id", s.id, "pharmacy_id", sel.Record.ID, "error", err)
	}
}

// Deselect closes the info window and drops the route.
func (s *Session) Deselect() error {
	if err := s.markers.Deselect(); err != nil {
		return err
	}
	s.route.Clear()

	s.mu.Lock()
	s.routeFailure = nil
	s.mu.Unlock()
	return nil
}

func (s *Session) destination() *directions.Destination {
	sel, ok := s.markers.Selected()
	if !ok {
		return nil
	}
	return &directions.Destination{
		ID:          sel.Record.ID,
		Name:        sel.Record.Name,
		Coordinates: sel.Record.Coordinates,
	}
}

// RequestRoute asks for a route from the user to the selected pharmacy.
// Failures are kept as a message next to the selection and returned.
func (s *Session) RequestRoute(ctx context.Context, mode directions.TravelMode) (*directions.RouteResult, error) {
	origin := s.Location()
	dest := s.destination()

	result, err := s.route.RequestRoute(ctx, origin, dest, mode)

	switch kind := directions.KindOf(err); {
	case err == nil:
		s.mu.Lock()
		s.routeFailure = nil
		s.mu.Unlock()
	case kind != 0:
		s.mu.Lock()
		s.routeFailure = routeMessage(kind)
		s.mu.Unlock()
	}
	return result, err
}

// NavigationLink returns the deep link that opens navigation to the
// selected pharmacy in the maps application.
func (s *Session) NavigationLink(mode directions.TravelMode) (string, error) {
	origin := s.Location()
	if origin == nil {
		return "", geo.ErrLocationUnavailable
	}
	dest := s.destination()
	if dest == nil {
		return "", ErrNoSelection
	}
	return directions.ExternalNavigationLink(*origin, dest.Coordinates, mode), nil
}

// Stats returns the visible-count statistic.
func (s *Session) Stats() VisibleStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Session) statsLocked() VisibleStats {
	return VisibleStats{
		Visible:    len(s.visible),
		Total:      s.stats.Total,
		WithCoords: s.stats.WithCoords,
	}
}

// MapView returns the markers, clusters, selection and route to draw.
func (s *Session) MapView() MapView {
	view := MapView{
		State:   s.markers.State().String(),
		Surface: s.surface.Snapshot(),
		Viewport: Viewport{
			Center: DefaultCenter,
			Zoom:   s.markers.Zoom(),
		},
	}
	if sel, ok := s.markers.Selected(); ok {
		view.Selection = &sel
	}
	if r, ok := s.route.Current(); ok {
		view.Route = r
	}

	s.mu.Lock()
	if s.location != nil {
		view.Viewport.Center = *s.location
	}
	if s.routeFailure != nil {
		m := *s.routeFailure
		view.RouteError = &m
	}
	s.mu.Unlock()

	return view
}

// View summarises the session. One-shot notices are returned once.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]Message, 0, len(s.notices)+1)
	if s.fetchFailure != nil {
		msgs = append(msgs, *s.fetchFailure)
	}
	msgs = append(msgs, s.notices...)
	s.notices = nil

	var loc *geo.Coordinates
	if s.location != nil {
		c := *s.location
		loc = &c
	}

	return View{
		ID:             s.id,
		Role:           s.principal.Role.Name(),
		Capabilities:   access.Capabilities(s.principal.Role).Names(),
		Location:       loc,
		LocationStatus: s.locationStatus,
		Filter:         s.filter,
		Stats:          s.statsLocked(),
		Fetching:       s.inflight > 0,
		Messages:       msgs,
		CreatedAt:      s.createdAt,
		LastAccess:     s.LastAccess(),
	}
}

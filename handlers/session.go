package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cosmomed/pharmacy-locator/access"
	"github.com/cosmomed/pharmacy-locator/directions"
	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/cosmomed/pharmacy-locator/interfaces"
	"github.com/cosmomed/pharmacy-locator/locator"
	"github.com/cosmomed/pharmacy-locator/logging"
	"github.com/cosmomed/pharmacy-locator/markers"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
	"github.com/go-chi/chi/v5"
)

// SessionHandler serves the /v1/sessions API.
type SessionHandler struct {
	registry  *locator.Registry
	validator interfaces.InputValidator
	catalog   interfaces.CatalogStore
}

// NewSessionHandler creates a new session handler with injected dependencies
func NewSessionHandler(registry *locator.Registry, validator interfaces.InputValidator, catalog interfaces.CatalogStore) *SessionHandler {
	return &SessionHandler{registry: registry, validator: validator, catalog: catalog}
}

// session loads the session named in the URL. Sessions opened by a signed-in
// caller are visible to that caller only.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*locator.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	s, err := h.registry.Get(id)
	if err == nil {
		owner := s.Principal().Subject
		if owner == "" || owner == access.PrincipalFrom(r.Context()).Subject {
			return s, true
		}
	}
	RespondWithError(w, http.StatusNotFound, "Session not found")
	return nil, false
}

// CreateSession handles POST /v1/sessions. The initial fetch runs before the
// response; a failed fetch still opens the session and shows up in its messages.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.registry.Create(access.PrincipalFrom(r.Context()))

	if _, err := s.Fetch(r.Context()); err != nil && !errors.Is(err, locator.ErrSuperseded) {
		logging.Warn("Initial pharmacy fetch failed", "session_id", s.ID(), "error", err)
	}

	w.Header().Set("Location", "/v1/sessions/"+s.ID())
	RespondWithJSON(w, http.StatusCreated, s.View())
}

// GetSession handles GET /v1/sessions/{sessionID}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	RespondWithJSON(w, http.StatusOK, s.View())
}

// DeleteSession handles DELETE /v1/sessions/{sessionID}.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.registry.Delete(s.ID()); err != nil {
		RespondWithError(w, http.StatusNotFound, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LocationRequest is the body of PUT .../location: a position, or the error
// the device reported instead.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Error     string   `json:"error"`
}

// SetLocation handles PUT /v1/sessions/{sessionID}/location.
func (h *SessionHandler) SetLocation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req LocationRequest
	if err := decodeBody(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	var err error
	if req.Error != "" || req.Latitude == nil || req.Longitude == nil {
		reason := req.Error
		if reason == "" {
			reason = "no position reported"
		}
		err = s.LocationFailed(reason)
	} else {
		if verr := h.validator.ValidateCoordinates(*req.Latitude, *req.Longitude); verr != nil {
			RespondWithError(w, http.StatusBadRequest, verr.Error())
			return
		}
		err = s.SetLocation(geo.Coordinates{Lat: *req.Latitude, Lng: *req.Longitude})
	}

	switch {
	case errors.Is(err, locator.ErrLocationResolved):
		RespondWithError(w, http.StatusConflict, "Location has already been resolved for this session")
	case errors.Is(err, locator.ErrInvalidLocation):
		RespondWithError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		RespondWithError(w, http.StatusInternalServerError, "Failed to record location")
	default:
		RespondWithJSON(w, http.StatusOK, s.View())
	}
}

// FilterRequest is the body of PUT .../filter.
type FilterRequest struct {
	RadiusKm int    `json:"radius_km"`
	Search   string `json:"search"`
	District string `json:"district"`
	MOH      string `json:"moh"`
}

// SetFilter handles PUT /v1/sessions/{sessionID}/filter.
func (h *SessionHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req FilterRequest
	if err := decodeBody(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	q := pharmacy.Query{
		Search:   strings.TrimSpace(req.Search),
		District: strings.TrimSpace(req.District),
		MOH:      strings.TrimSpace(req.MOH),
	}
	if err := h.validator.ValidateQuery(q); err != nil {
		logging.Warn("Unusual user input", "session_id", s.ID(), "error", err)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RadiusKm != 0 {
		if err := h.validator.ValidateRadius(req.RadiusKm); err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	f := locator.FilterState{RadiusKm: req.RadiusKm, SearchText: q.Search, District: q.District, MOH: q.MOH}
	if err := s.SetFilter(f); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusOK, s.Filter())
}

// ListResponse is the visible list after a list-changing action.
type ListResponse struct {
	Pharmacies []pharmacy.Record    `json:"pharmacies"`
	Stats      locator.VisibleStats `json:"stats"`
}

// Fetch handles POST /v1/sessions/{sessionID}/fetch.
func (h *SessionHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	_, err := s.Fetch(r.Context())
	switch {
	case errors.Is(err, locator.ErrSuperseded):
		respondWithKind(w, http.StatusConflict, "superseded", "A newer request replaced this one", false)
	case err != nil:
		respondWithKind(w, http.StatusBadGateway, locator.KindFetchFailure, "Pharmacies could not be loaded. Please try again.", true)
	default:
		RespondWithJSON(w, http.StatusOK, ListResponse{Pharmacies: s.Visible(), Stats: s.Stats()})
	}
}

// FindNearby handles POST /v1/sessions/{sessionID}/nearby.
func (h *SessionHandler) FindNearby(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	nearby, err := s.FindNearby()
	if errors.Is(err, geo.ErrLocationUnavailable) {
		respondWithKind(w, http.StatusConflict, locator.KindLocationUnavailable, "User location not available", false)
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Nearby search failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, ListResponse{Pharmacies: nearby, Stats: s.Stats()})
}

// Reset handles POST /v1/sessions/{sessionID}/reset.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Reset()
	RespondWithJSON(w, http.StatusOK, ListResponse{Pharmacies: s.Visible(), Stats: s.Stats()})
}

// MapReady handles POST /v1/sessions/{sessionID}/map/ready.
func (h *SessionHandler) MapReady(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.MapReady()
	RespondWithJSON(w, http.StatusOK, s.MapView())
}

// GetMap handles GET /v1/sessions/{sessionID}/map.
func (h *SessionHandler) GetMap(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	RespondWithJSON(w, http.StatusOK, s.MapView())
}

// ZoomRequest is the body of PUT .../map/zoom.
type ZoomRequest struct {
	Zoom *int `json:"zoom"`
}

// SetZoom handles PUT /v1/sessions/{sessionID}/map/zoom.
func (h *SessionHandler) SetZoom(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req ZoomRequest
	if err := decodeBody(r, &req); err != nil || req.Zoom == nil {
		RespondWithError(w, http.StatusBadRequest, "Body must be {\"zoom\": <0-22>}")
		return
	}
	if err := s.SetZoom(*req.Zoom); err != nil {
		RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Zoom must be between %d and %d", markers.MinZoom, markers.MaxZoom))
		return
	}
	RespondWithJSON(w, http.StatusOK, s.MapView())
}

// ClickMarker handles POST /v1/sessions/{sessionID}/markers/{markerID}/click.
func (h *SessionHandler) ClickMarker(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	sel, err := s.SelectMarker(chi.URLParam(r, "markerID"))
	switch {
	case errors.Is(err, markers.ErrSurfaceNotReady):
		RespondWithError(w, http.StatusConflict, "Map is not ready yet")
	case errors.Is(err, markers.ErrUnknownMarker):
		RespondWithError(w, http.StatusNotFound, "Marker not found")
	case err != nil:
		RespondWithError(w, http.StatusInternalServerError, "Selection failed")
	default:
		RespondWithJSON(w, http.StatusOK, sel)
	}
}

// Deselect handles DELETE /v1/sessions/{sessionID}/selection.
func (h *SessionHandler) Deselect(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Deselect(); errors.Is(err, markers.ErrSurfaceNotReady) {
		RespondWithError(w, http.StatusConflict, "Map is not ready yet")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RouteRequest is the body of POST .../route.
type RouteRequest struct {
	Mode string `json:"mode"`
}

// routeStatus maps route failures to HTTP status codes.
func routeStatus(kind directions.ErrorKind) int {
	switch kind {
	case directions.OriginUnavailable, directions.DestinationUnavailable:
		return http.StatusConflict
	case directions.NoRouteFound:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// RequestRoute handles POST /v1/sessions/{sessionID}/route.
func (h *SessionHandler) RequestRoute(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req RouteRequest
	if err := decodeBody(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	mode, err := directions.ParseTravelMode(req.Mode)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.RequestRoute(r.Context(), mode)
	if errors.Is(err, directions.ErrSuperseded) {
		respondWithKind(w, http.StatusConflict, "superseded", "A newer route request replaced this one", false)
		return
	}
	if kind := directions.KindOf(err); kind != 0 {
		respondWithKind(w, routeStatus(kind), kind.String(), kind.Message(),
			kind == directions.ProviderUnreachable || kind == directions.NoRouteFound)
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Route request failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, result)
}

// Navigation handles GET /v1/sessions/{sessionID}/navigation?mode=.
func (h *SessionHandler) Navigation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	mode, err := directions.ParseTravelMode(r.URL.Query().Get("mode"))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	link, err := s.NavigationLink(mode)
	switch {
	case errors.Is(err, geo.ErrLocationUnavailable):
		respondWithKind(w, http.StatusConflict, directions.OriginUnavailable.String(), directions.OriginUnavailable.Message(), false)
	case errors.Is(err, locator.ErrNoSelection):
		respondWithKind(w, http.StatusConflict, directions.DestinationUnavailable.String(), directions.DestinationUnavailable.Message(), false)
	case err != nil:
		RespondWithError(w, http.StatusInternalServerError, "Failed to build navigation link")
	default:
		RespondWithJSON(w, http.StatusOK, map[string]string{"url": link})
	}
}

// DirectoryStats are the register-wide totals shown to pharmacists and NMRA staff.
type DirectoryStats struct {
	Total       int       `json:"total"`
	WithCoords  int       `json:"with_coords"`
	LastUpdated time.Time `json:"last_updated"`
}

// StatsResponse is the visible-count statistic.
type StatsResponse struct {
	locator.VisibleStats
	Directory *DirectoryStats `json:"directory,omitempty"`
}

// Stats handles GET /v1/sessions/{sessionID}/stats.
func (h *SessionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	resp := StatsResponse{VisibleStats: s.Stats()}
	if access.Can(access.PrincipalFrom(r.Context()).Role, access.ViewDirectoryStats) {
		totals := h.catalog.GetStats()
		resp.Directory = &DirectoryStats{
			Total:       totals.Total,
			WithCoords:  totals.WithCoords,
			LastUpdated: h.catalog.GetLastUpdated(),
		}
	}
	RespondWithJSON(w, http.StatusOK, resp)
}

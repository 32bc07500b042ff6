package locator

import (
	"errors"
	"time"

	"github.com/cosmomed/pharmacy-locator/directions"
	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/cosmomed/pharmacy-locator/markers"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
	"github.com/cosmomed/pharmacy-locator/validation"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSuperseded is returned by a fetch whose result was discarded
	// because a newer request or list change happened while it ran.
	ErrSuperseded = errors.New("fetch superseded by a newer request")

	// ErrLocationResolved is returned when the one-shot location lookup has
	// already produced a position or a failure.
	ErrLocationResolved = errors.New("user location already resolved")

	// ErrInvalidLocation is returned for a position outside WGS84 ranges.
	ErrInvalidLocation = errors.New("invalid user location")

	// ErrInvalidRadius is returned for a radius outside the offered choices.
	ErrInvalidRadius = errors.New("invalid radius")

	// ErrInvalidZoom is returned for a zoom level the map cannot show.
	ErrInvalidZoom = errors.New("invalid zoom level")

	// ErrNoSelection is returned when an operation needs a selected pharmacy.
	ErrNoSelection = errors.New("no pharmacy selected")
)

// DefaultCenter is the map centre shown before the user's position is known.
var DefaultCenter = geo.Coordinates{Lat: 7.8731, Lng: 80.7718}

// LocationStatus is the outcome of the one-shot location lookup.
type LocationStatus string

const (
	LocationPending     LocationStatus = "pending"
	LocationAvailable   LocationStatus = "available"
	LocationUnavailable LocationStatus = "unavailable"
)

// FilterState drives which pharmacies are fetched and shown.
type FilterState struct {
	RadiusKm   int    `json:"radius_km"`
	SearchText string `json:"search"`
	District   string `json:"district"`
	MOH        string `json:"moh"`
}

// DefaultFilter is the filter of a new session.
func DefaultFilter() FilterState {
	return FilterState{RadiusKm: validation.DefaultRadiusKm}
}

// Query returns the directory-side part of the filter.
func (f FilterState) Query() pharmacy.Query {
	return pharmacy.Query{Search: f.SearchText, District: f.District, MOH: f.MOH}
}

// Message kinds shown to the user.
const (
	KindLocationUnavailable = "location_unavailable"
	KindFetchFailure        = "fetch_failure"
)

// Message is a user-facing notice. Retry marks failures the user can retry.
type Message struct {
	Kind  string `json:"kind"`
	Text  string `json:"text"`
	Retry bool   `json:"retry"`
}

func routeMessage(kind directions.ErrorKind) *Message {
	return &Message{Kind: kind.String(), Text: kind.Message(), Retry: kind == directions.ProviderUnreachable || kind == directions.NoRouteFound}
}

// VisibleStats is the visible-count statistic next to the map.
type VisibleStats struct {
	Visible    int `json:"visible"`
	Total      int `json:"total"`
	WithCoords int `json:"with_coords"`
}

// Viewport is where the map is centred.
type Viewport struct {
	Center geo.Coordinates `json:"center"`
	Zoom   int             `json:"zoom"`
}

// MapView is everything the client needs to draw the map.
type MapView struct {
	State      string                  `json:"state"`
	Viewport   Viewport                `json:"viewport"`
	Surface    markers.Snapshot        `json:"surface"`
	Selection  *markers.Selection      `json:"selection"`
	Route      *directions.RouteResult `json:"route"`
	RouteError *Message                `json:"route_error,omitempty"`
}

// View is the session summary returned to the client.
type View struct {
	ID             string           `json:"id"`
	Role           string           `json:"role"`
	Capabilities   []string         `json:"capabilities"`
	Location       *geo.Coordinates `json:"location"`
	LocationStatus LocationStatus   `json:"location_status"`
	Filter         FilterState      `json:"filter"`
	Stats          VisibleStats     `json:"stats"`
	Fetching       bool             `json:"fetching"`
	Messages       []Message        `json:"messages"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccess     time.Time        `json:"last_access"`
}

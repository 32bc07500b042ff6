// Package directions requests routes between the user and the selected
// pharmacy from an external routing provider and builds navigation deep links.
package directions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/cosmomed/pharmacy-locator/logging"
	"github.com/peterstace/simplefeatures/geom"
)

// TravelMode is the provider's mode of transport.
type TravelMode string

const (
	Driving   TravelMode = "DRIVING"
	Walking   TravelMode = "WALKING"
	Bicycling TravelMode = "BICYCLING"
	Transit   TravelMode = "TRANSIT"
)

// ParseTravelMode accepts a mode in any case. Empty means Driving.
func ParseTravelMode(s string) (TravelMode, error) {
	switch m := TravelMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case "":
		return Driving, nil
	case Driving, Walking, Bicycling, Transit:
		return m, nil
	}
	return "", fmt.Errorf("unsupported travel mode %q", s)
}

// ErrorKind classifies route failures.
type ErrorKind int

const (
	OriginUnavailable ErrorKind = iota + 1
	DestinationUnavailable
	ProviderUnreachable
	NoRouteFound
)

func (k ErrorKind) String() string {
	switch k {
	case OriginUnavailable:
		return "origin_unavailable"
	case DestinationUnavailable:
		return "destination_unavailable"
	case ProviderUnreachable:
		return "provider_unreachable"
	case NoRouteFound:
		return "no_route_found"
	default:
		return "unknown"
	}
}

// Message is the text shown to the user next to the selected marker.
func (k ErrorKind) Message() string {
	switch k {
	case OriginUnavailable:
		return "Your location is not available, so directions cannot be calculated."
	case DestinationUnavailable:
		return "Select a pharmacy on the map first."
	case ProviderUnreachable:
		return "The directions service could not be reached. Please try again."
	case NoRouteFound:
		return "No route could be found to this pharmacy."
	default:
		return "Directions failed."
	}
}

// RouteError is returned by RequestRoute for every failure.
type RouteError struct {
	Kind   ErrorKind
	Status string
	Err    error
}

func (e *RouteError) Error() string {
	var b strings.Builder
	b.WriteString("route request failed: ")
	b.WriteString(e.Kind.String())
	if e.Status != "" {
		b.WriteString(" (status " + e.Status + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *RouteError) Unwrap() error { return e.Err }

// KindOf returns the kind of a *RouteError in err's chain, or zero.
func KindOf(err error) ErrorKind {
	var re *RouteError
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

// ErrSuperseded is returned when a newer request or a new selection made the
// completed one irrelevant. Its result was discarded.
var ErrSuperseded = errors.New("route request superseded")

// Destination is the selected pharmacy a route leads to.
type Destination struct {
	ID          string
	Name        string
	Coordinates geo.Coordinates
}

// Bounds is the bounding box of a route path.
type Bounds struct {
	SouthWest geo.Coordinates `json:"south_west"`
	NorthEast geo.Coordinates `json:"north_east"`
}

// RouteResult is the best route between the user and the destination.
type RouteResult struct {
	DestinationID   string            `json:"destination_id"`
	Mode            TravelMode        `json:"mode"`
	DistanceText    string            `json:"distance_text"`
	DurationText    string            `json:"duration_text"`
	DistanceMeters  int               `json:"distance_meters"`
	DurationSeconds int               `json:"duration_seconds"`
	Path            []geo.Coordinates `json:"path"`
	Bounds          *Bounds           `json:"bounds,omitempty"`
	WKT             string            `json:"wkt,omitempty"`
}

// setPath stores path, its bounds and its WKT form. The line uses x=lng, y=lat.
func (r *RouteResult) setPath(path []geo.Coordinates) {
	r.Path = path
	r.Bounds = nil
	r.WKT = ""
	if len(path) == 0 {
		return
	}

	b := Bounds{SouthWest: path[0], NorthEast: path[0]}
	flat := make([]float64, 0, len(path)*2)
	for _, c := range path {
		b.SouthWest.Lat = min(b.SouthWest.Lat, c.Lat)
		b.SouthWest.Lng = min(b.SouthWest.Lng, c.Lng)
		b.NorthEast.Lat = max(b.NorthEast.Lat, c.Lat)
		b.NorthEast.Lng = max(b.NorthEast.Lng, c.Lng)
		flat = append(flat, c.Lng, c.Lat)
	}
	r.Bounds = &b

	if !hasDistinctPoints(path) {
		return
	}
	line, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		logging.Warn("Route path is not a valid line", "points", len(path), "error", err)
		return
	}
	r.WKT = line.AsText()
}

// hasDistinctPoints reports whether path holds at least two different points.
func hasDistinctPoints(path []geo.Coordinates) bool {
	for _, c := range path[1:] {
		if c != path[0] {
			return true
		}
	}
	return false
}

// Package markers keeps the map surface in step with the visible pharmacy
// list. The Controller owns every marker, the cluster grouping and the info
// window; nothing else writes to the Surface.
package markers

import (
	"errors"

	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
)

var (
	// ErrSurfaceNotReady rejects interactions that arrive before the map
	// surface reported readiness.
	ErrSurfaceNotReady = errors.New("map surface not ready")

	// ErrUnknownMarker is returned for clicks on markers that are no longer
	// attached, e.g. after a rebuild.
	ErrUnknownMarker = errors.New("unknown marker")
)

// State is the controller's lifecycle state.
type State int

const (
	Uninitialized State = iota
	Idle
	Rendering
	Selected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Rendering:
		return "rendering"
	case Selected:
		return "selected"
	default:
		return "uninitialized"
	}
}

// MarshalText lets State appear as a string in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Marker is one pharmacy pin. IDs are fresh on every rebuild.
type Marker struct {
	ID         string          `json:"id"`
	PharmacyID string          `json:"pharmacy_id"`
	Title      string          `json:"title"`
	Position   geo.Coordinates `json:"position"`
}

// Cluster groups markers that fall in the same grid cell.
type Cluster struct {
	Center    geo.Coordinates `json:"center"`
	Count     int             `json:"count"`
	MarkerIDs []string        `json:"marker_ids"`
}

// InfoWindow is the panel shown for the selected pharmacy.
type InfoWindow struct {
	MarkerID string          `json:"marker_id"`
	Title    string          `json:"title"`
	Address  string          `json:"address"`
	Position geo.Coordinates `json:"position"`
}

// Selection is the pharmacy behind a clicked marker.
type Selection struct {
	MarkerID string          `json:"marker_id"`
	Record   pharmacy.Record `json:"pharmacy"`
}

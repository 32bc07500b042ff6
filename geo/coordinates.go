// Package geo holds the pure geospatial computations of the locator: great-circle
// distance, radius and name filtering of pharmacy records, and the web-mercator
// projection used by the marker clusterer.
package geo

import (
	"fmt"
	"math"
	"strconv"
)

// Coordinates is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite and inside their ranges.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// String formats the pair as "lat,lng", the form map deep links expect.
func (c Coordinates) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// ParseCoordinates parses latitude and longitude given as strings. The
// directory stores them as text, so empty or non-numeric values are common.
func ParseCoordinates(lat, lng string) (Coordinates, error) {
	if lat == "" || lng == "" {
		return Coordinates{}, ErrMissingCoordinates
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid latitude %q: %w", lat, ErrMissingCoordinates)
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid longitude %q: %w", lng, ErrMissingCoordinates)
	}
	c := Coordinates{Lat: la, Lng: ln}
	if !c.Valid() {
		return Coordinates{}, fmt.Errorf("coordinates out of range %s: %w", c, ErrMissingCoordinates)
	}
	return c, nil
}

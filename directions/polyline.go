package directions

import (
	"fmt"

	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/twpayne/go-polyline"
)

// DecodePolyline decodes an encoded polyline with 1e-5 precision.
func DecodePolyline(encoded string) ([]geo.Coordinates, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid polyline: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("invalid polyline: %d trailing bytes", len(rest))
	}

	path := make([]geo.Coordinates, 0, len(coords))
	for _, c := range coords {
		path = append(path, geo.Coordinates{Lat: c[0], Lng: c[1]})
	}
	return path, nil
}

package geo

import (
	"math"

	"github.com/wroge/wgs84"
)

// WorldSizeMeters is the width of the EPSG:3857 plane.
const WorldSizeMeters = 2 * math.Pi * 6378137.0

// tileSize is the pixel width of the world at zoom 0.
const tileSize = 256.0

var toMercator = wgs84.EPSG().Transform(4326, 3857)

// Point is a position on the web-mercator plane, in metres.
type Point struct {
	X float64
	Y float64
}

// ToWebMercator projects c to EPSG:3857.
func ToWebMercator(c Coordinates) Point {
	x, y, _ := toMercator(c.Lng, c.Lat, 0)
	return Point{X: x, Y: y}
}

// MetersPerPixel returns the ground resolution of the mercator plane at zoom.
func MetersPerPixel(zoom int) float64 {
	return WorldSizeMeters / (tileSize * math.Pow(2, float64(zoom)))
}

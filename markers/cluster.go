package markers

import (
	"math"

	"github.com/cosmomed/pharmacy-locator/geo"
)

// DefaultGridPx is the cluster cell size in screen pixels.
const DefaultGridPx = 60

// GridClusterer groups markers the way the classic MarkerClusterer does: a
// marker joins the nearest cluster whose grid-sized square around its centre
// contains it, otherwise it starts a new cluster centred on itself.
type GridClusterer struct {
	gridPx  int
	minSize int
}

// NewGridClusterer returns a clusterer with cells gridPx pixels wide.
// Clusters smaller than two markers are not reported.
func NewGridClusterer(gridPx int) *GridClusterer {
	if gridPx <= 0 {
		gridPx = DefaultGridPx
	}
	return &GridClusterer{gridPx: gridPx, minSize: 2}
}

type pendingCluster struct {
	center geo.Point
	coords geo.Coordinates
	ids    []string
}

// Cluster groups markers at zoom. Only clusters of at least two markers
// are returned; single markers render as plain pins.
func (g *GridClusterer) Cluster(markers []Marker, zoom int) []Cluster {
	half := float64(g.gridPx) * geo.MetersPerPixel(zoom) / 2

	var pending []*pendingCluster
	for _, m := range markers {
		p := geo.ToWebMercator(m.Position)

		var best *pendingCluster
		bestDist := math.Inf(1)
		for _, c := range pending {
			if math.Abs(p.X-c.center.X) > half || math.Abs(p.Y-c.center.Y) > half {
				continue
			}
			if d := geo.DistanceKm(c.coords, m.Position); d < bestDist {
				best, bestDist = c, d
			}
		}

		if best == nil {
			pending = append(pending, &pendingCluster{center: p, coords: m.Position, ids: []string{m.ID}})
			continue
		}
		best.ids = append(best.ids, m.ID)
	}

	out := make([]Cluster, 0, len(pending))
	for _, c := range pending {
		if len(c.ids) < g.minSize {
			continue
		}
		out = append(out, Cluster{Center: c.coords, Count: len(c.ids), MarkerIDs: c.ids})
	}
	return out
}

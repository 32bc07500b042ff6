package directions

import (
	"strings"

	"github.com/cosmomed/pharmacy-locator/geo"
)

const navigationBase = "https://www.google.com/maps/dir/?api=1"

// ExternalNavigationLink builds the deep link that opens turn-by-turn
// navigation in the maps application. Coordinates only contain digits,
// signs, dots and the comma separator, so no escaping is needed.
func ExternalNavigationLink(origin, destination geo.Coordinates, mode TravelMode) string {
	if mode == "" {
		mode = Driving
	}
	return navigationBase +
		"&origin=" + origin.String() +
		"&destination=" + destination.String() +
		"&travelmode=" + strings.ToLower(string(mode))
}

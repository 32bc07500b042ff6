package geo

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

var (
	// ErrLocationUnavailable is returned when a proximity computation is
	// attempted without a user location.
	ErrLocationUnavailable = errors.New("user location unavailable")

	// ErrMissingCoordinates marks a record whose latitude or longitude is absent
	// or unusable.
	ErrMissingCoordinates = errors.New("missing coordinates")
)

// Located is anything with a position on the map.
type Located interface {
	Location() Coordinates
}

// Named is anything with a display name that can be searched.
type Named interface {
	DisplayName() string
}

// FilterByRadius keeps the records within radiusKm of origin, in input order.
// It never returns nil on success so callers can encode an empty list as [].
func FilterByRadius[T Located](origin *Coordinates, records []T, radiusKm float64) ([]T, error) {
	if origin == nil {
		return nil, ErrLocationUnavailable
	}

	out := make([]T, 0, len(records))
	for _, r := range records {
		if DistanceKm(*origin, r.Location()) <= radiusKm {
			out = append(out, r)
		}
	}
	return out, nil
}

// FilterByName keeps the records whose name contains query, ignoring case.
// An empty query returns records as is.
func FilterByName[T Named](records []T, query string) []T {
	query = strings.TrimSpace(query)
	if query == "" {
		return records
	}

	folder := cases.Fold()
	needle := folder.String(query)

	out := make([]T, 0, len(records))
	for _, r := range records {
		if strings.Contains(folder.String(r.DisplayName()), needle) {
			out = append(out, r)
		}
	}
	return out
}

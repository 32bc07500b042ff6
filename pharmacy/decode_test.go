package pharmacy

import (
	"strings"
	"testing"

	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeepsOnlyRecordsWithCoordinates(t *testing.T) {
	body := `[
		{"id": 1, "pharmacy_name": "City Pharmacy", "address": "1 Main St", "district": "Colombo", "moh": "Colombo MOH", "lat": "6.9271", "lng": "79.8612"},
		{"id": "2", "pharmacy_name": "No Coords", "address": "2 Side St", "lat": null, "lng": ""},
		{"id": 3, "pharmacy_name": "Numeric", "address": "3 Hill Rd", "lat": 7.2906, "lng": 80.6337},
		{"pharmacy_name": "Fallback", "address": "4 Lake Rd", "latitude": 7.8731, "longitude": 80.7718},
		{"id": 5, "pharmacy_name": "Broken", "address": "5 Nowhere", "lat": "abc", "lng": "80"}
	]`

	batch, err := Decode(strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, Stats{Total: 5, WithCoords: 3}, batch.Stats)
	require.Len(t, batch.Records, 3)

	assert.Equal(t, "1", batch.Records[0].ID)
	assert.Equal(t, "City Pharmacy", batch.Records[0].Name)
	assert.Equal(t, "Colombo MOH", batch.Records[0].MOH)
	assert.Equal(t, geo.Coordinates{Lat: 6.9271, Lng: 79.8612}, batch.Records[0].Coordinates)

	assert.Equal(t, "3", batch.Records[1].ID)
	assert.Equal(t, geo.Coordinates{Lat: 7.2906, Lng: 80.6337}, batch.Records[1].Coordinates)

	assert.Equal(t, "Fallback", batch.Records[2].Name)
	assert.NotEmpty(t, batch.Records[2].ID)
}

func TestDecodeGeneratedIDsAreStable(t *testing.T) {
	body := `[{"pharmacy_name": "A", "address": "B", "lat": "1", "lng": "2"}]`

	first, err := Decode(strings.NewReader(body))
	require.NoError(t, err)
	second, err := Decode(strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, first.Records[0].ID, second.Records[0].ID)
}

func TestDecodeEmptyList(t *testing.T) {
	batch, err := Decode(strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
	assert.Equal(t, Stats{}, batch.Stats)
}

func TestDecodeRejectsMalformedBody(t *testing.T) {
	for _, body := range []string{`{"error": "x"}`, `not json`, `[{"id": {}}]`} {
		_, err := Decode(strings.NewReader(body))
		assert.Error(t, err, body)
	}
}

func TestFromListingsMatchesDecode(t *testing.T) {
	lat, lng := 7.8731, 80.7718
	listings := []Listing{
		{ID: 1, Name: "City Pharmacy", Address: "1 Main St", Lat: "6.9271", Lng: "79.8612"},
		{ID: 2, Name: "No Coords", Address: "2 Side St"},
		{Name: "Fallback", Address: "4 Lake Rd", Latitude: &lat, Longitude: &lng},
		{ID: 5, Name: "Broken", Address: "5 Nowhere", Lat: "abc", Lng: "80"},
	}

	batch := FromListings(listings)
	assert.Equal(t, Stats{Total: 4, WithCoords: 2}, batch.Stats)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "1", batch.Records[0].ID)
	assert.Equal(t, geo.Coordinates{Lat: 6.9271, Lng: 79.8612}, batch.Records[0].Coordinates)

	// Rows without an id get the same derived id as over the wire.
	wire, err := Decode(strings.NewReader(`[{"pharmacy_name": "Fallback", "address": "4 Lake Rd", "latitude": 7.8731, "longitude": 80.7718}]`))
	require.NoError(t, err)
	require.Len(t, wire.Records, 1)
	assert.Equal(t, wire.Records[0].ID, batch.Records[1].ID)
}

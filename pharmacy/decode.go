package pharmacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cosmomed/pharmacy-locator/geo"
	"github.com/google/uuid"
)

// recordNamespace seeds deterministic ids for directory rows served without one.
var recordNamespace = uuid.MustParse("6f1c0d7e-4b8a-4f55-9a61-2f0f3b6f9c11")

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	*f = flexString(n.String())
	return nil
}

type wireRecord struct {
	ID             flexString `json:"id"`
	Name           string     `json:"pharmacy_name"`
	Address        string     `json:"address"`
	PharmacistName string     `json:"pharmacist_name"`
	District       string     `json:"district"`
	MOH            string     `json:"moh"`
	Lat            flexString `json:"lat"`
	Lng            flexString `json:"lng"`
	Latitude       *float64   `json:"latitude"`
	Longitude      *float64   `json:"longitude"`
}

func (w wireRecord) coordinates() (geo.Coordinates, error) {
	if w.Lat != "" || w.Lng != "" {
		return geo.ParseCoordinates(string(w.Lat), string(w.Lng))
	}
	if w.Latitude != nil && w.Longitude != nil {
		c := geo.Coordinates{Lat: *w.Latitude, Lng: *w.Longitude}
		if c.Valid() {
			return c, nil
		}
	}
	return geo.Coordinates{}, geo.ErrMissingCoordinates
}

func (w wireRecord) id() string {
	if w.ID != "" {
		return string(w.ID)
	}
	return uuid.NewSHA1(recordNamespace, []byte(w.Name+"|"+w.Address)).String()
}

// Decode reads the directory's JSON array and keeps the records that have
// coordinates. Stats counts both.
func Decode(r io.Reader) (*Batch, error) {
	var wire []wireRecord
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode pharmacy list: %w", err)
	}
	return batchOf(wire), nil
}

// FromListings builds a batch from directory rows read in-process, with the
// same filtering as Decode.
func FromListings(listings []Listing) *Batch {
	wire := make([]wireRecord, 0, len(listings))
	for _, l := range listings {
		w := wireRecord{
			Name:           l.Name,
			Address:        l.Address,
			PharmacistName: l.PharmacistName,
			District:       l.District,
			MOH:            l.MOH,
			Lat:            flexString(strings.TrimSpace(l.Lat)),
			Lng:            flexString(strings.TrimSpace(l.Lng)),
			Latitude:       l.Latitude,
			Longitude:      l.Longitude,
		}
		if l.ID != 0 {
			w.ID = flexString(strconv.FormatUint(uint64(l.ID), 10))
		}
		wire = append(wire, w)
	}
	return batchOf(wire)
}

func batchOf(wire []wireRecord) *Batch {
	batch := &Batch{
		Records: make([]Record, 0, len(wire)),
		Stats:   Stats{Total: len(wire)},
	}
	for _, w := range wire {
		coords, err := w.coordinates()
		if err != nil {
			continue
		}
		batch.Records = append(batch.Records, Record{
			ID:             w.id(),
			Name:           w.Name,
			Address:        w.Address,
			PharmacistName: w.PharmacistName,
			District:       w.District,
			MOH:            w.MOH,
			Coordinates:    coords,
		})
	}
	batch.Stats.WithCoords = len(batch.Records)
	return batch
}

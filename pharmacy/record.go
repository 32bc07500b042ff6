// Package pharmacy defines the pharmacy record consumed by the locator and the
// client that fetches the bulk list from the directory collaborator.
package pharmacy

import (
	"time"

	"github.com/cosmomed/pharmacy-locator/geo"
)

// Record is a pharmacy with usable coordinates. Records are read-only once
// decoded; a re-fetch replaces the whole list.
type Record struct {
	ID             string          `json:"id"`
	Name           string          `json:"pharmacy_name"`
	Address        string          `json:"address"`
	PharmacistName string          `json:"pharmacist_name,omitempty"`
	District       string          `json:"district,omitempty"`
	MOH            string          `json:"moh,omitempty"`
	Coordinates    geo.Coordinates `json:"coordinates"`
}

// Location implements geo.Located.
func (r Record) Location() geo.Coordinates { return r.Coordinates }

// DisplayName implements geo.Named.
func (r Record) DisplayName() string { return r.Name }

// Query carries the collaborator-side filters of a bulk fetch.
type Query struct {
	Search   string `json:"search"`
	District string `json:"district"`
	MOH      string `json:"moh"`
}

// Stats mirrors the "total registered" counters shown next to the map.
type Stats struct {
	Total      int `json:"total"`
	WithCoords int `json:"with_coords"`
}

// Batch is the result of one bulk fetch.
type Batch struct {
	Records []Record
	Stats   Stats
}

// Listing is one row of the directory's GET /pharmacies response. Lat and
// Lng are the stored strings; Latitude and Longitude are their parsed values.
type Listing struct {
	ID             uint     `json:"id"`
	Name           string   `json:"pharmacy_name"`
	Address        string   `json:"address"`
	PharmacistName string   `json:"pharmacist_name"`
	District       string   `json:"district"`
	MOH            string   `json:"moh"`
	Lat            string   `json:"lat"`
	Lng            string   `json:"lng"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
}

// SelectionEvent is published when a user opens a pharmacy's info panel.
type SelectionEvent struct {
	SessionID  string          `json:"session_id"`
	PharmacyID string          `json:"pharmacy_id"`
	Name       string          `json:"pharmacy_name"`
	Address    string          `json:"address"`
	Location   geo.Coordinates `json:"location"`
	Role       string          `json:"role"`
	OrderPanel bool            `json:"order_panel"`
	At         time.Time       `json:"at"`
}

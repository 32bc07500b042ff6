// Package directory is the pharmacy register behind GET /pharmacies. Rows
// keep latitude and longitude as the text they were registered with, so
// some have no usable position.
package directory

import (
	"strconv"
	"strings"
	"time"

	"github.com/cosmomed/pharmacy-locator/pharmacy"
)

// PharmacyModel is the GORM model for the pharmacies table.
type PharmacyModel struct {
	ID             uint   `gorm:"primaryKey"`
	FileNo         string `gorm:"size:50;index"`
	PharmacyName   string `gorm:"size:255;not null;index"`
	Address        string `gorm:"size:500"`
	PharmacistName string `gorm:"size:255"`
	SlmcRegNo      string `gorm:"size:50"`
	MOH            string `gorm:"column:moh;size:100;index"`
	District       string `gorm:"size:100;index"`
	Lat            string `gorm:"size:32"`
	Lng            string `gorm:"size:32"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the table name for the GORM model.
func (PharmacyModel) TableName() string {
	return "pharmacies"
}

// parseCoordinate mirrors a numeric check on the stored text.
func parseCoordinate(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// toListing converts a row to its API shape.
func (m PharmacyModel) toListing() pharmacy.Listing {
	return pharmacy.Listing{
		ID:             m.ID,
		Name:           m.PharmacyName,
		Address:        m.Address,
		PharmacistName: m.PharmacistName,
		District:       m.District,
		MOH:            m.MOH,
		Lat:            m.Lat,
		Lng:            m.Lng,
		Latitude:       parseCoordinate(m.Lat),
		Longitude:      parseCoordinate(m.Lng),
	}
}

package directory

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/cosmomed/pharmacy-locator/logging"
	"golang.org/x/text/encoding/charmap"
	"gorm.io/gorm"
)

// ImportResult summarises one CSV import.
type ImportResult struct {
	Rows    int
	Created int
	Updated int
	Skipped int
}

// ImportCSV loads a register export. The first row names the columns; only
// pharmacy_name is required. Rows sharing a file_no with an existing
// pharmacy update it. Exports saved as Latin-1 are decoded transparently.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	var res ImportResult

	raw, err := io.ReadAll(r)
	if err != nil {
		return res, fmt.Errorf("failed to read csv: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	var reader io.Reader
	if utf8.Valid(raw) {
		reader = bytes.NewReader(raw)
	} else {
		reader = charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(raw))
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return res, errors.New("csv is empty")
		}
		return res, fmt.Errorf("failed to read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := index["pharmacy_name"]; !ok {
		return res, errors.New("csv header has no pharmacy_name column")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read csv row %d: %w", res.Rows+2, err)
			}
			res.Rows++

			row := rowToModel(rec, index)
			if row.PharmacyName == "" {
				res.Skipped++
				continue
			}

			created, err := upsert(tx, row)
			if err != nil {
				return err
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		}
	})
	if err != nil {
		return res, err
	}

	logging.Info("Pharmacy register imported",
		"rows", res.Rows, "created", res.Created, "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}

func rowToModel(rec []string, index map[string]int) PharmacyModel {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	return PharmacyModel{
		FileNo:         field("file_no"),
		PharmacyName:   field("pharmacy_name"),
		Address:        field("address"),
		PharmacistName: field("pharmacist_name"),
		SlmcRegNo:      field("slmc_reg_no"),
		MOH:            field("moh"),
		District:       field("district"),
		Lat:            field("lat"),
		Lng:            field("lng"),
	}
}

func upsert(tx *gorm.DB, row PharmacyModel) (bool, error) {
	if row.FileNo == "" {
		if err := tx.Create(&row).Error; err != nil {
			return false, fmt.Errorf("failed to create pharmacy %q: %w", row.PharmacyName, err)
		}
		return true, nil
	}

	var existing PharmacyModel
	err := tx.Where("file_no = ?", row.FileNo).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(&row).Error; err != nil {
			return false, fmt.Errorf("failed to create pharmacy %s: %w", row.FileNo, err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up pharmacy %s: %w", row.FileNo, err)
	}

	updates := map[string]any{
		"pharmacy_name":   row.PharmacyName,
		"address":         row.Address,
		"pharmacist_name": row.PharmacistName,
		"slmc_reg_no":     row.SlmcRegNo,
		"moh":             row.MOH,
		"district":        row.District,
		"lat":             row.Lat,
		"lng":             row.Lng,
	}
	if err := tx.Model(&existing).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("failed to update pharmacy %s: %w", row.FileNo, err)
	}
	return false, nil
}

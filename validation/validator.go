// Package validation checks the free-text and numeric input a locator session
// accepts before it reaches the directory or the routing provider.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/cosmomed/pharmacy-locator/directions"
	"github.com/cosmomed/pharmacy-locator/interfaces"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
)

// DefaultRadiusKm is the radius a new session starts with.
const DefaultRadiusKm = 5

// AllowedRadiiKm are the radius choices offered by the filter.
var AllowedRadiiKm = []int{2, 5, 10, 20}

const (
	maxSearchLength = 100
	maxSearchWords  = 8
)

var (
	// Letters and digits in any script (names are registered in Sinhala,
	// Tamil and English) plus the punctuation found in pharmacy names.
	inputRegex = regexp.MustCompile(`^[\p{L}\p{M}\p{N}\s\-\.\+'&,/]+$`)

	// Substring checks, cheaper than a regex per pattern.
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"onclick=", "onmouseover=", "onfocus=", "onblur=", "onchange=", "onsubmit=",
		"eval(", "expression(", "url(", "@import", "binding(", "behavior(",
		// SQL
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"update set", "--", "/*", "*/", "xp_", "exec(", "execute(",
		// shell
		"; ", "| ", "`", "$(", "${",
		// path traversal
		"../", "..\\", "%2e%2e", "file://",
		// LDAP
		"*)(", "*|(", "*)%",
		// NoSQL
		"{$ne:", "{$gt:", "{$where:", "{$or:", "{$regex:", "{$expr:",
	}
)

// Validator implements interfaces.InputValidator.
type Validator struct{}

// NewValidator creates a new input validator.
func NewValidator() interfaces.InputValidator {
	return &Validator{}
}

// IsAllowedRadius reports whether km is one of AllowedRadiiKm.
func IsAllowedRadius(km int) bool {
	return slices.Contains(AllowedRadiiKm, km)
}

// ValidateSearch checks free text used for the name filter and the
// directory's search, district and moh parameters. Empty input is valid and
// means "no filter".
func (v *Validator) ValidateSearch(input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}

	if utf8.RuneCountInString(trimmed) > maxSearchLength {
		return fmt.Errorf("input too long: maximum %d characters", maxSearchLength)
	}

	if len(strings.Fields(trimmed)) > maxSearchWords {
		return fmt.Errorf("search query too complex: maximum %d words allowed", maxSearchWords)
	}

	lower := strings.ToLower(trimmed)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("input contains potentially dangerous content")
		}
	}

	if !inputRegex.MatchString(trimmed) {
		return fmt.Errorf("input contains invalid characters. Only letters, numbers, spaces and - . + ' & , / are allowed")
	}

	if hasExcessiveRepetition(trimmed) {
		return fmt.Errorf("input contains excessive character repetition")
	}

	return nil
}

// ValidateRadius checks the radius against the offered choices.
func (v *Validator) ValidateRadius(km int) error {
	if !IsAllowedRadius(km) {
		return fmt.Errorf("radius must be one of %v km, got %d", AllowedRadiiKm, km)
	}
	return nil
}

// ValidateCoordinates checks a reported position.
func (v *Validator) ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return fmt.Errorf("coordinates must be finite numbers")
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude out of range: %g", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude out of range: %g", lng)
	}
	return nil
}

// ValidateQuery checks every text field of a directory query.
func (v *Validator) ValidateQuery(q pharmacy.Query) error {
	fields := []struct{ name, value string }{
		{"search", q.Search},
		{"district", q.District},
		{"moh", q.MOH},
	}
	for _, f := range fields {
		if err := v.ValidateSearch(f.value); err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
	}
	return nil
}

// ValidateTravelMode accepts the routing provider's travel modes. Empty
// means the default mode.
func (v *Validator) ValidateTravelMode(mode string) error {
	_, err := directions.ParseTravelMode(mode)
	return err
}

// hasExcessiveRepetition reports the same rune repeated more than ten times in a row.
func hasExcessiveRepetition(input string) bool {
	var prev rune
	run := 0
	for _, r := range input {
		if r == prev {
			run++
			if run > 10 {
				return true
			}
			continue
		}
		prev, run = r, 1
	}
	return false
}

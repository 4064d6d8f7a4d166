package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var brazilianAmount = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})*(,\d+)?$|^-?\d+,\d+$`)

// ParseDecimalFromString parses a currency amount. It accepts plain decimals
// ("1234.56"), Brazilian notation ("1.234,56"), an optional "R$" prefix and
// accounting negatives written in parentheses ("(12,00)").
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	s = strings.ReplaceAll(s, " ", "")

	if brazilianAmount.MatchString(s) && strings.ContainsAny(s, ",") || isThousandsOnly(s) {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// isThousandsOnly matches "1.234.567" which cannot be a plain decimal
func isThousandsOnly(s string) bool {
	return strings.Count(s, ".") > 1 && !strings.Contains(s, ",")
}

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
	"02/01/2006 15:04:05",
	"2006/01/02",
}

// ParseDateWithFormats parses a date in ISO or Brazilian day-first layouts
func ParseDateWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, format := range dateFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// OrPlaceholder returns NotInformed for blank dimension values
func OrPlaceholder(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return NotInformed
	}
	return s
}

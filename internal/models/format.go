package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatBRL renders a money value in Brazilian notation, e.g. "R$ 1.234,56".
// places sets the number of decimal digits.
func FormatBRL(v decimal.Decimal, places int32) string {
	return "R$ " + FormatNumberBR(v, places)
}

// FormatNumberBR renders a number with "." thousands and "," decimal separators
func FormatNumberBR(v decimal.Decimal, places int32) string {
	s := v.StringFixed(places)
	intPart, frac, hasFrac := strings.Cut(s, ".")
	negative := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return b.String()
}

package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"partsuite/internal"
)

var amountPattern = regexp.MustCompile(`^-?[0-9][0-9,]*(?:\.[0-9]+)?$`)

// ParseAmount reads a printed currency amount. Thousands separators are
// dropped and a parenthesized value is negative.
func ParseAmount(input string) (internal.Amount, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "$")
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
		s = strings.TrimPrefix(s, "$")
	}
	if !amountPattern.MatchString(s) {
		return internal.Amount{}, fmt.Errorf("parse amount %q: not a number", input)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return internal.Amount{}, fmt.Errorf("parse amount %q: %w", input, err)
	}
	if negative {
		d = d.Neg()
	}
	return internal.NewAmount(d), nil
}

// Package domain provides the canonical identifiers, money helpers and sentinel errors
// shared by the accrual, consolidation and withdrawal modules.
package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductID is the canonical product identifier (e.g. "funding-3", "mining-s19").
// Ad hoc spellings are normalised by the import collaborator before they reach this core;
// inside the core only values accepted by ParseProductID exist.
type ProductID string

// InvestorID is the stable investor key supplied by the identity collaborator.
type InvestorID string

var productIDPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

const (
	maxProductIDLength  = 64
	maxInvestorIDLength = 128
	maxAmountLength     = 40
)

// ParseProductID validates s as a canonical product identifier.
func ParseProductID(s string) (ProductID, error) {
	if len(s) == 0 || len(s) > maxProductIDLength || !productIDPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidProductID, s)
	}
	return ProductID(s), nil
}

// ParseInvestorID validates s as an investor key. Surrounding whitespace is not accepted
// because the key is used verbatim as a storage key.
func ParseInvestorID(s string) (InvestorID, error) {
	if s == "" || len(s) > maxInvestorIDLength || strings.TrimSpace(s) != s {
		return "", fmt.Errorf("%w: %q", ErrInvalidInvestorID, s)
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: %q", ErrInvalidInvestorID, s)
		}
	}
	return InvestorID(s), nil
}

func (p ProductID) String() string  { return string(p) }
func (i InvestorID) String() string { return string(i) }

// ParseAmount parses a plain decimal amount such as "1000000.50".
// Negative amounts, exponent notation and inputs longer than 40 characters
// are rejected, so the result always has a bounded number of digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if len(s) > maxAmountLength {
		return decimal.Zero, fmt.Errorf("%w: more than %d characters", ErrInvalidAmount, maxAmountLength)
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, fmt.Errorf("%w: exponent notation in %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, s)
	}
	return d, nil
}

// FitsScale reports whether d has no non-zero digits past scale decimal places.
func FitsScale(d decimal.Decimal, scale int32) bool {
	if d.Exponent() >= -scale {
		return true
	}
	if d.Exponent() < -(scale + maxAmountLength) {
		return false
	}
	return d.Equal(d.Truncate(scale))
}

// MustAmount is ParseAmount for literals known to be valid (config defaults, tests).
func MustAmount(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return d
}

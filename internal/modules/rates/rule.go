// Package rates holds the immutable product catalog: the accrual rule of every product and
// the withdrawal eligibility policy that goes with it. Adding a product is a data change in
// the catalog file, not a code change.
package rates

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind tags the accrual rule variant.
type Kind string

const (
	// KindFixedPerUnitPerDay accrues Amount per unit held, per day.
	KindFixedPerUnitPerDay Kind = "fixed_per_unit_per_day"
	// KindPercentPerMonth accrues Rate of principal per 30-day month.
	KindPercentPerMonth Kind = "percent_per_month"
	// KindDisabled never accrues.
	KindDisabled Kind = "disabled"
)

// DaysPerMonth converts a monthly percentage into a daily one.
const DaysPerMonth = 30

var daysPerMonth = decimal.NewFromInt(DaysPerMonth)

// Rule is an accrual rule. Only the field matching Kind is meaningful.
type Rule struct {
	Kind   Kind
	Amount decimal.Decimal // fixed_per_unit_per_day: amount per unit per day
	Rate   decimal.Decimal // percent_per_month: fraction of principal per month (0.05 = 5%)
}

// FixedPerUnitPerDay builds a fixed-amount rule.
func FixedPerUnitPerDay(amount decimal.Decimal) Rule {
	return Rule{Kind: KindFixedPerUnitPerDay, Amount: amount}
}

// PercentPerMonth builds a percentage-of-principal rule.
func PercentPerMonth(rate decimal.Decimal) Rule {
	return Rule{Kind: KindPercentPerMonth, Rate: rate}
}

// Disabled builds a rule that never accrues.
func Disabled() Rule {
	return Rule{Kind: KindDisabled}
}

// Validate checks the rule parameters.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindFixedPerUnitPerDay:
		if r.Amount.IsNegative() {
			return fmt.Errorf("fixed rule amount must not be negative, got %s", r.Amount)
		}
	case KindPercentPerMonth:
		if r.Rate.IsNegative() {
			return fmt.Errorf("percent rule rate must not be negative, got %s", r.Rate)
		}
	case KindDisabled:
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

// Accrues reports whether the rule produces income at all.
func (r Rule) Accrues() bool {
	return r.Kind == KindFixedPerUnitPerDay || r.Kind == KindPercentPerMonth
}

// Daily returns one day's accrual for the given holding, unrounded.
func (r Rule) Daily(principal decimal.Decimal, units int64) decimal.Decimal {
	return r.ForDays(principal, units, 1)
}

// ForDays returns the accrual for a whole number of days, unrounded. Non-positive day
// counts accrue nothing.
func (r Rule) ForDays(principal decimal.Decimal, units int64, days int64) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	d := decimal.NewFromInt(days)
	switch r.Kind {
	case KindFixedPerUnitPerDay:
		return r.Amount.Mul(decimal.NewFromInt(units)).Mul(d)
	case KindPercentPerMonth:
		// Multiply before dividing so multi-day seeds are not compounded rounding errors.
		return principal.Mul(r.Rate).Mul(d).Div(daysPerMonth)
	default:
		return decimal.Zero
	}
}

func (r Rule) String() string {
	switch r.Kind {
	case KindFixedPerUnitPerDay:
		return fmt.Sprintf("fixedPerUnitPerDay(%s)", r.Amount)
	case KindPercentPerMonth:
		return fmt.Sprintf("percentPerMonth(%s)", r.Rate)
	default:
		return string(r.Kind)
	}
}

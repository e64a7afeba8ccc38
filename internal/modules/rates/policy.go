package rates

import "github.com/shopspring/decimal"

// WithdrawalPolicy is the per-product eligibility row.
type WithdrawalPolicy struct {
	Enabled   bool
	MinAmount decimal.Decimal
}

// PolicyDefaults are the minimums applied when a product does not override its policy.
type PolicyDefaults struct {
	FixedMinimum   decimal.Decimal // fixed-daily-unit products, in product units
	PercentMinimum decimal.Decimal // percentage-of-principal products, in minor currency units
}

// StandardPolicyDefaults returns the platform minimums: 1 unit for unit products and
// 500,000 minor units for percentage products.
func StandardPolicyDefaults() PolicyDefaults {
	return PolicyDefaults{
		FixedMinimum:   decimal.NewFromInt(1),
		PercentMinimum: decimal.NewFromInt(500000),
	}
}

// DefaultPolicy derives the eligibility row from the accrual kind.
func DefaultPolicy(kind Kind, defaults PolicyDefaults) WithdrawalPolicy {
	switch kind {
	case KindFixedPerUnitPerDay:
		return WithdrawalPolicy{Enabled: true, MinAmount: defaults.FixedMinimum}
	case KindPercentPerMonth:
		return WithdrawalPolicy{Enabled: true, MinAmount: defaults.PercentMinimum}
	default:
		return WithdrawalPolicy{Enabled: false}
	}
}

package rates

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/aristath/yieldfund/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

//go:embed default_products.toml
var defaultProductsTOML []byte

type catalogFile struct {
	Defaults struct {
		FixedMinWithdrawal   string `toml:"fixed_min_withdrawal"`
		PercentMinWithdrawal string `toml:"percent_min_withdrawal"`
	} `toml:"defaults"`
	Products []productEntry `toml:"products"`
}

type productEntry struct {
	ID         string             `toml:"id"`
	Name       string             `toml:"name"`
	Unit       string             `toml:"unit"`
	Kind       string             `toml:"kind"`
	Amount     string             `toml:"amount"`
	Rate       string             `toml:"rate"`
	Withdrawal *withdrawalSection `toml:"withdrawal"`
}

type withdrawalSection struct {
	Enabled   *bool  `toml:"enabled"`
	MinAmount string `toml:"min_amount"`
}

// LoadFile reads a TOML catalog from disk. An empty path yields the built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read product catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultProductsTOML)
}

// Parse decodes a TOML catalog.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse product catalog: %w", err)
	}

	defaults := StandardPolicyDefaults()
	if file.Defaults.FixedMinWithdrawal != "" {
		d, err := domain.ParseAmount(file.Defaults.FixedMinWithdrawal)
		if err != nil {
			return nil, fmt.Errorf("defaults.fixed_min_withdrawal: %w", err)
		}
		defaults.FixedMinimum = d
	}
	if file.Defaults.PercentMinWithdrawal != "" {
		d, err := domain.ParseAmount(file.Defaults.PercentMinWithdrawal)
		if err != nil {
			return nil, fmt.Errorf("defaults.percent_min_withdrawal: %w", err)
		}
		defaults.PercentMinimum = d
	}

	products := make([]Product, 0, len(file.Products))
	for i, entry := range file.Products {
		p, err := entry.toProduct(defaults)
		if err != nil {
			return nil, fmt.Errorf("products[%d]: %w", i, err)
		}
		products = append(products, p)
	}
	return NewCatalog(products)
}

func (e productEntry) toProduct(defaults PolicyDefaults) (Product, error) {
	id, err := domain.ParseProductID(e.ID)
	if err != nil {
		return Product{}, err
	}

	var rule Rule
	switch Kind(e.Kind) {
	case KindFixedPerUnitPerDay:
		amount, err := parseRequired(e.Amount, "amount")
		if err != nil {
			return Product{}, err
		}
		rule = FixedPerUnitPerDay(amount)
	case KindPercentPerMonth:
		rate, err := parseRequired(e.Rate, "rate")
		if err != nil {
			return Product{}, err
		}
		rule = PercentPerMonth(rate)
	case KindDisabled:
		rule = Disabled()
	default:
		return Product{}, fmt.Errorf("product %s: unknown kind %q", id, e.Kind)
	}

	policy := DefaultPolicy(rule.Kind, defaults)
	if e.Withdrawal != nil {
		if e.Withdrawal.Enabled != nil {
			policy.Enabled = *e.Withdrawal.Enabled
		}
		if e.Withdrawal.MinAmount != "" {
			min, err := domain.ParseAmount(e.Withdrawal.MinAmount)
			if err != nil {
				return Product{}, fmt.Errorf("product %s withdrawal.min_amount: %w", id, err)
			}
			policy.MinAmount = min
		}
	}

	return Product{
		ID:         id,
		Name:       e.Name,
		Unit:       e.Unit,
		Rule:       rule,
		Withdrawal: policy,
	}, nil
}

func parseRequired(value, field string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, fmt.Errorf("%s is required", field)
	}
	return domain.ParseAmount(value)
}

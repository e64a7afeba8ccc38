package rates

import (
	"fmt"

	"github.com/aristath/yieldfund/internal/domain"
)

// Product is one catalog row.
type Product struct {
	ID         domain.ProductID
	Name       string
	Unit       string // currency or unit symbol amounts are expressed in
	Rule       Rule
	Withdrawal WithdrawalPolicy
}

// Catalog is the immutable product table handed to the accrual engine, the consolidation
// service and the withdrawal evaluator. It is safe for concurrent use.
type Catalog struct {
	products map[domain.ProductID]Product
	order    []domain.ProductID
}

// NewCatalog validates and freezes a product list.
func NewCatalog(products []Product) (*Catalog, error) {
	c := &Catalog{
		products: make(map[domain.ProductID]Product, len(products)),
		order:    make([]domain.ProductID, 0, len(products)),
	}
	for _, p := range products {
		if _, err := domain.ParseProductID(string(p.ID)); err != nil {
			return nil, err
		}
		if _, dup := c.products[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product %s", p.ID)
		}
		if err := p.Rule.Validate(); err != nil {
			return nil, fmt.Errorf("product %s: %w", p.ID, err)
		}
		if p.Withdrawal.MinAmount.IsNegative() {
			return nil, fmt.Errorf("product %s: negative withdrawal minimum", p.ID)
		}
		c.products[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

// Product returns the catalog row for id.
func (c *Catalog) Product(id domain.ProductID) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// Rule returns the accrual rule for id.
func (c *Catalog) Rule(id domain.ProductID) (Rule, bool) {
	p, ok := c.products[id]
	return p.Rule, ok
}

// Products returns the rows in catalog order.
func (c *Catalog) Products() []Product {
	out := make([]Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.products[id])
	}
	return out
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	return len(c.order)
}

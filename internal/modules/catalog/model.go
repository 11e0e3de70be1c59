// README: Product catalog read model for the storefront.
package catalog

import (
	"spaeti/internal/types"
)

type Product struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Category string       `json:"category"`
	Price    types.Money  `json:"price"`
	Stock    int          `json:"stock"`
	TaxRate  *types.Money `json:"tax_rate,omitempty"`
}

// InStock reports whether at least one unit can still be ordered.
func (p *Product) InStock() bool {
	return p.Stock > 0
}

package medication

import "github.com/mediguard/order/internal/service/models/currency"

// Medication is the catalog view of a medication as resolved at order time.
type Medication struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	PriceCents    int64             `json:"priceCents"`
	PriceCurrency currency.Currency `json:"priceCurrency"`
	IsAvailable   bool              `json:"isAvailable"`
}

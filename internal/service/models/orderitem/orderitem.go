package orderitem

import (
	"time"

	"github.com/google/uuid"
	"github.com/mediguard/order/internal/service/models/currency"
)

// OrderItem is a single medication line within an order. The unit price is
// captured from the catalog at order time; later catalog price changes do
// not alter historical orders.
type OrderItem struct {
	ID             int64             `json:"id"`
	OrderID        uuid.UUID         `json:"orderId"`
	MedicationID   string            `json:"medicationId"`
	MedicationName string            `json:"medicationName"`
	Quantity       int               `json:"quantity"`
	PriceCents     int64             `json:"priceCents"`
	SubtotalCents  int64             `json:"subtotalCents"`
	PriceCurrency  currency.Currency `json:"priceCurrency"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

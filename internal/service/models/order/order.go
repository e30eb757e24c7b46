package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/mediguard/order/internal/service/models/currency"
	"github.com/mediguard/order/internal/service/models/orderitem"
)

// Order is the aggregate root for a purchase of one or more medications.
// All mutations go through the order service; the total is derived from
// the item subtotals and never set by a caller.
type Order struct {
	ID                   uuid.UUID             `json:"id"`
	UserID               string                `json:"userId"`
	Status               Status                `json:"status"`
	ShippingAddress      string                `json:"shippingAddress"`
	PaymentMethod        string                `json:"paymentMethod"`
	TotalPriceCents      int64                 `json:"totalPriceCents"`
	TotalPriceCurrency   currency.Currency     `json:"totalPriceCurrency"`
	PaymentTransactionID string                `json:"paymentTransactionId,omitempty"`
	ShippedAt            *time.Time            `json:"shippedAt,omitempty"`
	DeliveredAt          *time.Time            `json:"deliveredAt,omitempty"`
	CreatedAt            time.Time             `json:"createdAt"`
	UpdatedAt            time.Time             `json:"updatedAt"`
	OrderItems           []orderitem.OrderItem `json:"orderItems"`
}

// RecalculateTotal recomputes the order total from its item subtotals.
func (o *Order) RecalculateTotal() {
	var total int64
	for _, item := range o.OrderItems {
		total += item.SubtotalCents
	}
	o.TotalPriceCents = total
}

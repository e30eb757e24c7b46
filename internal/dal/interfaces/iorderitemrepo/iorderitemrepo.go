package iorderitemrepo

import (
	"context"

	"github.com/google/uuid"
	"github.com/mediguard/order/internal/service/models/orderitem"
)

// IOrderItemRepository is the persistence port for order line items.
type IOrderItemRepository interface {
	BulkInsert(ctx context.Context, items []orderitem.OrderItem) ([]orderitem.OrderItem, error)
	QueryByOrderIDs(ctx context.Context, orderIDs []uuid.UUID) ([]orderitem.OrderItem, error)
}

package iorderrepo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mediguard/order/internal/service/models/order"
)

// IOrderRepository is the persistence port for order records. The order
// service is the only writer; status changes go through the compare-and-swap
// UpdateStatus so a stale read can never skip transition validation.
type IOrderRepository interface {
	Insert(ctx context.Context, ord order.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
	// GetByIDForUpdate locks the order row for the remainder of the
	// transaction so concurrent transitions on the same order serialize.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error)
	QueryByUser(ctx context.Context, userID string) ([]order.Order, error)
	// UpdateStatus moves the order from the expected current status to the
	// new one. It reports false when the row no longer holds the expected
	// status. Shipped/delivered timestamps are only ever set, never cleared.
	UpdateStatus(
		ctx context.Context,
		id uuid.UUID,
		from, to order.Status,
		shippedAt, deliveredAt *time.Time,
	) (bool, error)
	// SetPaymentTransaction records a successful charge and moves the order
	// from Pending to Processing in one statement.
	SetPaymentTransaction(ctx context.Context, id uuid.UUID, transactionID string) (bool, error)
}

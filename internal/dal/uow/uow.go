package uow

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mediguard/order/internal/dal/interfaces/iorderitemrepo"
	"github.com/mediguard/order/internal/dal/interfaces/iorderrepo"
	"github.com/mediguard/order/internal/dal/postgres"
	orderrepo "github.com/mediguard/order/internal/dal/repositories/order/postgres"
	orderitemrepo "github.com/mediguard/order/internal/dal/repositories/orderitem/postgres"
)

// UnitOfWork binds the order and order item repositories to a single
// transaction. Before Begin the repositories run against the pool, which is
// enough for read-only operations.
type UnitOfWork struct {
	pool          *pgxpool.Pool
	tx            pgx.Tx
	orderRepo     iorderrepo.IOrderRepository
	orderItemRepo iorderitemrepo.IOrderItemRepository
}

// NewUnitOfWork creates a unit of work with repositories bound to the pool.
func NewUnitOfWork(client *postgres.Client) *UnitOfWork {
	return &UnitOfWork{
		pool:          client.Pool(),
		orderRepo:     orderrepo.NewPostgresOrderRepository(client.Pool()),
		orderItemRepo: orderitemrepo.NewPostgresOrderItemRepository(client.Pool()),
	}
}

func (u *UnitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return u.orderRepo
}

func (u *UnitOfWork) OrderItemRepository() iorderitemrepo.IOrderItemRepository {
	return u.orderItemRepo
}

// Begin starts a transaction and rebinds the repositories to it.
func (u *UnitOfWork) Begin(ctx context.Context) error {
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return err
	}

	u.tx = tx
	u.orderRepo = orderrepo.NewPostgresOrderRepository(tx)
	u.orderItemRepo = orderitemrepo.NewPostgresOrderItemRepository(tx)

	return nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	return u.tx.Commit(ctx)
}

// Rollback aborts the transaction. Calling it after a successful Commit is a
// no-op, so it is safe to defer.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}

	return err
}

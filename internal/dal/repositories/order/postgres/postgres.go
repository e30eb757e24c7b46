package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mediguard/order/internal/service/models/currency"
	"github.com/mediguard/order/internal/service/models/order"
	"github.com/mediguard/order/internal/service/models/orderitem"
)

// OrderDal represents the order data access layer model.
type OrderDal struct {
	Id                   uuid.UUID  `db:"id"`
	UserId               string     `db:"user_id"`
	Status               string     `db:"status"`
	ShippingAddress      string     `db:"shipping_address"`
	PaymentMethod        string     `db:"payment_method"`
	TotalPriceCents      int64      `db:"total_price_cents"`
	TotalPriceCurrency   string     `db:"total_price_currency"`
	PaymentTransactionId *string    `db:"payment_transaction_id"`
	ShippedAt            *time.Time `db:"shipped_at"`
	DeliveredAt          *time.Time `db:"delivered_at"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// ToModel converts OrderDal to the service layer Order model.
func (o *OrderDal) ToModel() (*order.Order, error) {
	cur, err := currency.ParseCurrency(o.TotalPriceCurrency)
	if err != nil {
		return nil, err
	}

	status, err := order.ParseStatus(o.Status)
	if err != nil {
		return nil, err
	}

	var transactionID string
	if o.PaymentTransactionId != nil {
		transactionID = *o.PaymentTransactionId
	}

	return &order.Order{
		ID:                   o.Id,
		UserID:               o.UserId,
		Status:               status,
		ShippingAddress:      o.ShippingAddress,
		PaymentMethod:        o.PaymentMethod,
		TotalPriceCents:      o.TotalPriceCents,
		TotalPriceCurrency:   cur,
		PaymentTransactionID: transactionID,
		ShippedAt:            o.ShippedAt,
		DeliveredAt:          o.DeliveredAt,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
		OrderItems:           []orderitem.OrderItem{}, // Populated separately
	}, nil
}

// GenericConn is an interface that works with both pgxpool.Pool and pgx.Tx.
type GenericConn interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresOrderRepository is the Postgres implementation of the order
// persistence port.
type PostgresOrderRepository struct {
	conn GenericConn
	sb   sq.StatementBuilderType
}

// NewPostgresOrderRepository creates a new Postgres order repository.
func NewPostgresOrderRepository(conn GenericConn) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var orderColumns = []string{
	"id",
	"user_id",
	"status",
	"shipping_address",
	"payment_method",
	"total_price_cents",
	"total_price_currency",
	"payment_transaction_id",
	"shipped_at",
	"delivered_at",
	"created_at",
	"updated_at",
}

// Insert persists a new order row.
func (r *PostgresOrderRepository) Insert(ctx context.Context, ord order.Order) error {
	var transactionID *string
	if ord.PaymentTransactionID != "" {
		transactionID = &ord.PaymentTransactionID
	}

	query, args, err := r.sb.Insert("orders").
		Columns(orderColumns...).
		Values(
			ord.ID,
			ord.UserID,
			ord.Status.String(),
			ord.ShippingAddress,
			ord.PaymentMethod,
			ord.TotalPriceCents,
			ord.TotalPriceCurrency.String(),
			transactionID,
			ord.ShippedAt,
			ord.DeliveredAt,
			ord.CreatedAt,
			ord.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert order query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

// GetByID retrieves a single order by its identifier. Returns nil when the
// order does not exist.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.getByID(ctx, id, false)
}

// GetByIDForUpdate retrieves a single order and locks its row until the
// surrounding transaction finishes.
func (r *PostgresOrderRepository) GetByIDForUpdate(
	ctx context.Context,
	id uuid.UUID,
) (*order.Order, error) {
	return r.getByID(ctx, id, true)
}

func (r *PostgresOrderRepository) getByID(
	ctx context.Context,
	id uuid.UUID,
	forUpdate bool,
) (*order.Order, error) {
	builder := r.sb.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id})

	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build get order query: %w", err)
	}

	row := r.conn.QueryRow(ctx, query, args...)

	dal, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	model, err := dal.ToModel()
	if err != nil {
		return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
	}

	return model, nil
}

// QueryByUser retrieves a user's orders, newest first.
func (r *PostgresOrderRepository) QueryByUser(
	ctx context.Context,
	userID string,
) ([]order.Order, error) {
	query, args, err := r.sb.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query orders query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		dal, err := scanOrderRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
		}

		result = append(result, *model)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// UpdateStatus moves an order between statuses with a compare-and-swap on
// the expected current status. Shipped/delivered timestamps are set at most
// once: COALESCE keeps an already-set value.
func (r *PostgresOrderRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to order.Status,
	shippedAt, deliveredAt *time.Time,
) (bool, error) {
	query, args, err := r.sb.Update("orders").
		Set("status", to.String()).
		Set("shipped_at", sq.Expr("COALESCE(shipped_at, ?)", shippedAt)).
		Set("delivered_at", sq.Expr("COALESCE(delivered_at, ?)", deliveredAt)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "status": from.String()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update status query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// SetPaymentTransaction records a successful charge: the transaction id is
// written and the order moves Pending -> Processing in one statement.
func (r *PostgresOrderRepository) SetPaymentTransaction(
	ctx context.Context,
	id uuid.UUID,
	transactionID string,
) (bool, error) {
	query, args, err := r.sb.Update("orders").
		Set("payment_transaction_id", transactionID).
		Set("status", order.StatusProcessing.String()).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "status": order.StatusPending.String()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build set payment transaction query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to set payment transaction: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func scanOrderRow(row pgx.Row) (*OrderDal, error) {
	var dal OrderDal
	var shippedAt, deliveredAt, createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&dal.Id,
		&dal.UserId,
		&dal.Status,
		&dal.ShippingAddress,
		&dal.PaymentMethod,
		&dal.TotalPriceCents,
		&dal.TotalPriceCurrency,
		&dal.PaymentTransactionId,
		&shippedAt,
		&deliveredAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if shippedAt.Valid {
		t := shippedAt.Time
		dal.ShippedAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		dal.DeliveredAt = &t
	}
	dal.CreatedAt = createdAt.Time
	dal.UpdatedAt = updatedAt.Time

	return &dal, nil
}

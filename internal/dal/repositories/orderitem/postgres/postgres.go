package postgresrepo

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mediguard/order/internal/service/models/currency"
	"github.com/mediguard/order/internal/service/models/orderitem"
)

// OrderItemDal represents the order item data access layer model.
type OrderItemDal struct {
	Id             int64     `db:"id"`
	OrderId        uuid.UUID `db:"order_id"`
	MedicationId   string    `db:"medication_id"`
	MedicationName string    `db:"medication_name"`
	Quantity       int       `db:"quantity"`
	PriceCents     int64     `db:"price_cents"`
	SubtotalCents  int64     `db:"subtotal_cents"`
	PriceCurrency  string    `db:"price_currency"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// ToModel converts OrderItemDal to the service layer OrderItem model.
func (oi *OrderItemDal) ToModel() (*orderitem.OrderItem, error) {
	cur, err := currency.ParseCurrency(oi.PriceCurrency)
	if err != nil {
		return nil, err
	}

	return &orderitem.OrderItem{
		ID:             oi.Id,
		OrderID:        oi.OrderId,
		MedicationID:   oi.MedicationId,
		MedicationName: oi.MedicationName,
		Quantity:       oi.Quantity,
		PriceCents:     oi.PriceCents,
		SubtotalCents:  oi.SubtotalCents,
		PriceCurrency:  cur,
		CreatedAt:      oi.CreatedAt,
		UpdatedAt:      oi.UpdatedAt,
	}, nil
}

// GenericConn is an interface that works with both pgxpool.Pool and pgx.Tx.
type GenericConn interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresOrderItemRepository is the Postgres implementation of the order
// item persistence port.
type PostgresOrderItemRepository struct {
	conn GenericConn
	sb   sq.StatementBuilderType
}

// NewPostgresOrderItemRepository creates a new Postgres order item repository.
func NewPostgresOrderItemRepository(conn GenericConn) *PostgresOrderItemRepository {
	return &PostgresOrderItemRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var orderItemColumns = []string{
	"id",
	"order_id",
	"medication_id",
	"medication_name",
	"quantity",
	"price_cents",
	"subtotal_cents",
	"price_currency",
	"created_at",
	"updated_at",
}

// BulkInsert inserts the items of an order and returns them with generated IDs.
func (r *PostgresOrderItemRepository) BulkInsert(
	ctx context.Context,
	items []orderitem.OrderItem,
) ([]orderitem.OrderItem, error) {
	if len(items) == 0 {
		return []orderitem.OrderItem{}, nil
	}

	builder := r.sb.Insert("order_items").
		Columns(
			"order_id",
			"medication_id",
			"medication_name",
			"quantity",
			"price_cents",
			"subtotal_cents",
			"price_currency",
			"created_at",
			"updated_at",
		)

	for _, item := range items {
		builder = builder.Values(
			item.OrderID,
			item.MedicationID,
			item.MedicationName,
			item.Quantity,
			item.PriceCents,
			item.SubtotalCents,
			item.PriceCurrency.String(),
			item.CreatedAt,
			item.UpdatedAt,
		)
	}

	query, args, err := builder.
		Suffix("RETURNING " + strings.Join(orderItemColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build bulk insert query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk insert order items: %w", err)
	}
	defer rows.Close()

	result, err := scanOrderItems(rows)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// QueryByOrderIDs retrieves the items belonging to the given orders.
func (r *PostgresOrderItemRepository) QueryByOrderIDs(
	ctx context.Context,
	orderIDs []uuid.UUID,
) ([]orderitem.OrderItem, error) {
	if len(orderIDs) == 0 {
		return []orderitem.OrderItem{}, nil
	}

	query, args, err := r.sb.Select(orderItemColumns...).
		From("order_items").
		Where(sq.Eq{"order_id": orderIDs}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query order items query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	result, err := scanOrderItems(rows)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func scanOrderItems(rows pgx.Rows) ([]orderitem.OrderItem, error) {
	var result []orderitem.OrderItem
	for rows.Next() {
		var dal OrderItemDal
		var createdAt, updatedAt pgtype.Timestamptz

		err := rows.Scan(
			&dal.Id,
			&dal.OrderId,
			&dal.MedicationId,
			&dal.MedicationName,
			&dal.Quantity,
			&dal.PriceCents,
			&dal.SubtotalCents,
			&dal.PriceCurrency,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		dal.CreatedAt = createdAt.Time
		dal.UpdatedAt = updatedAt.Time

		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order item dal to model: %w", err)
		}

		result = append(result, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

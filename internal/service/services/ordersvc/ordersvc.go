package ordersvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mediguard/order/internal/clients/paymentgw"
	"github.com/mediguard/order/internal/dal/interfaces/iorderitemrepo"
	"github.com/mediguard/order/internal/dal/interfaces/iorderrepo"
	"github.com/mediguard/order/internal/dal/postgres"
	"github.com/mediguard/order/internal/dal/repositories/events"
	"github.com/mediguard/order/internal/dal/uow"
	"github.com/mediguard/order/internal/service/errs"
	"github.com/mediguard/order/internal/service/models/currency"
	"github.com/mediguard/order/internal/service/models/medication"
	"github.com/mediguard/order/internal/service/models/order"
	"github.com/mediguard/order/internal/service/models/orderitem"
)

const defaultPaymentTimeout = 10 * time.Second

// OrderService drives the order lifecycle: creation with pricing and
// payment, status transitions, and cancellation with a compensating refund.
// It is the sole writer of order records.
type OrderService struct {
	pgClient       *postgres.Client
	newUOWFn       func() unitOfWork
	catalog        catalogClient
	gateway        PaymentGateway
	publisher      eventPublisher
	paymentTimeout time.Duration
}

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
	OrderItemRepository() iorderitemrepo.IOrderItemRepository
}

type catalogClient interface {
	Resolve(ctx context.Context, medicationID string) (*medication.Medication, error)
}

type PaymentGateway interface {
	Charge(
		ctx context.Context,
		orderID uuid.UUID,
		amountCents int64,
		paymentMethod string,
	) (*paymentgw.ChargeResult, error)
	Refund(
		ctx context.Context,
		transactionID string,
		amountCents int64,
	) (*paymentgw.RefundResult, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, event events.OrderEvent) error
	PublishAll(ctx context.Context, evts []events.OrderEvent) error
}

func (s *OrderService) newUOW() unitOfWork {
	return s.newUOWFn()
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{paymentTimeout: defaultPaymentTimeout}
	for _, opt := range opts {
		opt(s)
	}

	if s.newUOWFn == nil || s.catalog == nil || s.gateway == nil || s.publisher == nil {
		panic("ordersvc: missing required dependency")
	}

	return s
}

// WithPostgresClient sets the Postgres client for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *OrderService) {
		s.pgClient = pgClient
		s.newUOWFn = func() unitOfWork {
			return uow.NewUnitOfWork(pgClient)
		}
	}
}

// WithUnitOfWorkFactory overrides how units of work are produced.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWorkFactory(fn func() unitOfWork) option {
	return func(s *OrderService) {
		s.newUOWFn = fn
	}
}

// WithCatalogClient sets the medication catalog collaborator.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithCatalogClient(c catalogClient) option {
	return func(s *OrderService) {
		s.catalog = c
	}
}

// WithPaymentGateway sets the payment gateway collaborator.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPaymentGateway(g PaymentGateway) option {
	return func(s *OrderService) {
		s.gateway = g
	}
}

// WithEventPublisher sets the order event publisher.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithEventPublisher(p eventPublisher) option {
	return func(s *OrderService) {
		s.publisher = p
	}
}

// WithPaymentTimeout bounds charge and refund calls.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPaymentTimeout(d time.Duration) option {
	return func(s *OrderService) {
		if d > 0 {
			s.paymentTimeout = d
		}
	}
}

// CreateOrderInput is a validated order creation request.
type CreateOrderInput struct {
	UserID          string
	ShippingAddress string
	PaymentMethod   string
	Items           []CreateOrderItemInput
}

type CreateOrderItemInput struct {
	MedicationID string
	Quantity     int
}

// CreateOrder prices the requested items against the catalog, persists the
// order and its items, charges the payment gateway, and commits everything
// only when the charge succeeds. A failed or timed-out charge rolls the
// whole order back; no paying caller ever observes a half-created order.
func (s *OrderService) CreateOrder(
	ctx context.Context,
	input CreateOrderInput,
) (*order.Order, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	items := make([]orderitem.OrderItem, 0, len(input.Items))
	for _, requested := range input.Items {
		med, err := s.catalog.Resolve(ctx, requested.MedicationID)
		if err != nil {
			if errs.KindOf(err) != errs.KindUnknown {
				return nil, err
			}

			return nil, fmt.Errorf("failed to resolve medication %s: %w", requested.MedicationID, err)
		}

		if !med.IsAvailable {
			return nil, errs.Validation("medication %s is not available", med.Name)
		}

		items = append(items, orderitem.OrderItem{
			MedicationID:   med.ID,
			MedicationName: med.Name,
			Quantity:       requested.Quantity,
			PriceCents:     med.PriceCents,
			SubtotalCents:  med.PriceCents * int64(requested.Quantity),
			PriceCurrency:  med.PriceCurrency,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	ord := order.Order{
		ID:                 uuid.New(),
		UserID:             input.UserID,
		Status:             order.StatusPending,
		ShippingAddress:    input.ShippingAddress,
		PaymentMethod:      input.PaymentMethod,
		TotalPriceCurrency: currency.CurrencyUSD,
		CreatedAt:          now,
		UpdatedAt:          now,
		OrderItems:         items,
	}
	ord.RecalculateTotal()

	for i := range ord.OrderItems {
		ord.OrderItems[i].OrderID = ord.ID
	}

	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := work.Rollback(ctx); err != nil {
			slog.Error("Failed to roll back order creation", "order_id", ord.ID, "error", err)
		}
	}()

	if err := work.OrderRepository().Insert(ctx, ord); err != nil {
		return nil, err
	}

	insertedItems, err := work.OrderItemRepository().BulkInsert(ctx, ord.OrderItems)
	if err != nil {
		return nil, err
	}
	ord.OrderItems = insertedItems

	chargeCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	chargeResult, err := s.gateway.Charge(chargeCtx, ord.ID, ord.TotalPriceCents, ord.PaymentMethod)
	if err != nil {
		return nil, errs.Payment("payment charge failed", err)
	}
	if !chargeResult.Success {
		return nil, errs.Payment("payment declined: "+chargeResult.Message, nil)
	}

	ok, err := work.OrderRepository().SetPaymentTransaction(ctx, ord.ID, chargeResult.TransactionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Conflict("order %s is no longer pending", ord.ID)
	}

	ord.PaymentTransactionID = chargeResult.TransactionID
	ord.Status = order.StatusProcessing

	if err := work.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.OrderEvent{
		Type:          events.TypeOrderCreated,
		OrderID:       ord.ID,
		UserID:        ord.UserID,
		Status:        ord.Status.String(),
		AmountCents:   ord.TotalPriceCents,
		TransactionID: ord.PaymentTransactionID,
		OccurredAt:    time.Now().UTC(),
	}); err != nil {
		slog.Error("Failed to publish order created event", "order_id", ord.ID, "error", err)
	}

	return &ord, nil
}

// GetOrder retrieves a single order with its items on behalf of its owner.
// Orders belonging to another user are reported as absent.
func (s *OrderService) GetOrder(
	ctx context.Context,
	orderID uuid.UUID,
	requestingUserID string,
) (*order.Order, error) {
	work := s.newUOW()

	ord, err := work.OrderRepository().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, errs.NotFound("order %s not found", orderID)
	}

	if ord.UserID != requestingUserID {
		return nil, errs.Unauthorized("order %s does not belong to the requesting user", orderID)
	}

	items, err := work.OrderItemRepository().QueryByOrderIDs(ctx, []uuid.UUID{ord.ID})
	if err != nil {
		return nil, err
	}
	ord.OrderItems = items

	return ord, nil
}

// GetUserOrders retrieves a user's orders, newest first, items attached.
func (s *OrderService) GetUserOrders(ctx context.Context, userID string) ([]order.Order, error) {
	work := s.newUOW()

	orders, err := work.OrderRepository().QueryByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		return []order.Order{}, nil
	}

	orderIDs := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		orderIDs = append(orderIDs, o.ID)
	}

	items, err := work.OrderItemRepository().QueryByOrderIDs(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		for _, item := range items {
			if item.OrderID == orders[i].ID {
				orders[i].OrderItems = append(orders[i].OrderItems, item)
			}
		}
	}

	return orders, nil
}

// UpdateStatus moves an order along the lifecycle transition table. The row
// is locked for the duration of the transaction so concurrent transitions on
// the same order serialize instead of racing past validation.
func (s *OrderService) UpdateStatus(
	ctx context.Context,
	orderID uuid.UUID,
	newStatus order.Status,
) error {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := work.Rollback(ctx); err != nil {
			slog.Error("Failed to roll back status update", "order_id", orderID, "error", err)
		}
	}()

	ord, err := work.OrderRepository().GetByIDForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if ord == nil {
		return errs.NotFound("order %s not found", orderID)
	}

	if !ord.Status.CanTransitionTo(newStatus) {
		return errs.Conflict("invalid status transition from %s to %s", ord.Status, newStatus)
	}

	now := time.Now().UTC()
	var shippedAt, deliveredAt *time.Time
	if newStatus == order.StatusShipped && ord.ShippedAt == nil {
		shippedAt = &now
	}
	if newStatus == order.StatusDelivered && ord.DeliveredAt == nil {
		deliveredAt = &now
	}

	ok, err := work.OrderRepository().UpdateStatus(ctx, orderID, ord.Status, newStatus, shippedAt, deliveredAt)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Conflict("order %s changed status concurrently", orderID)
	}

	if err := work.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.OrderEvent{
		Type:       events.TypeOrderStatusChanged,
		OrderID:    orderID,
		UserID:     ord.UserID,
		Status:     newStatus.String(),
		OccurredAt: now,
	}); err != nil {
		slog.Error("Failed to publish status changed event", "order_id", orderID, "error", err)
	}

	return nil
}

// CancelOrder cancels an order on behalf of its owner and refunds the charge
// if one succeeded. The cancellation commits before the refund is attempted:
// a failed refund is logged and published for follow-up, never used to
// resurrect the order.
func (s *OrderService) CancelOrder(
	ctx context.Context,
	orderID uuid.UUID,
	requestingUserID string,
) error {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := work.Rollback(ctx); err != nil {
			slog.Error("Failed to roll back cancellation", "order_id", orderID, "error", err)
		}
	}()

	ord, err := work.OrderRepository().GetByIDForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if ord == nil {
		return errs.NotFound("order %s not found", orderID)
	}

	if ord.UserID != requestingUserID {
		return errs.Unauthorized("order %s does not belong to the requesting user", orderID)
	}

	if !ord.Status.IsCancellable() {
		return errs.Conflict("cannot cancel order with status %s", ord.Status)
	}

	ok, err := work.OrderRepository().UpdateStatus(
		ctx, orderID, ord.Status, order.StatusCancelled, nil, nil,
	)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Conflict("order %s changed status concurrently", orderID)
	}

	if err := work.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}

	now := time.Now().UTC()
	evts := []events.OrderEvent{{
		Type:       events.TypeOrderCancelled,
		OrderID:    orderID,
		UserID:     ord.UserID,
		Status:     order.StatusCancelled.String(),
		OccurredAt: now,
	}}

	if ord.PaymentTransactionID != "" {
		refundCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
		defer cancel()

		refundResult, err := s.gateway.Refund(refundCtx, ord.PaymentTransactionID, ord.TotalPriceCents)
		if err != nil || !refundResult.Success {
			slog.Warn("Refund failed after cancellation",
				"order_id", orderID,
				"transaction_id", ord.PaymentTransactionID,
				"amount_cents", ord.TotalPriceCents,
				"error", err,
			)
			evts = append(evts, events.OrderEvent{
				Type:          events.TypeOrderRefundFailed,
				OrderID:       orderID,
				UserID:        ord.UserID,
				Status:        order.StatusCancelled.String(),
				AmountCents:   ord.TotalPriceCents,
				TransactionID: ord.PaymentTransactionID,
				OccurredAt:    now,
			})
		}
	}

	if err := s.publisher.PublishAll(ctx, evts); err != nil {
		slog.Error("Failed to publish cancellation events", "order_id", orderID, "error", err)
	}

	return nil
}

func validateCreateInput(input CreateOrderInput) error {
	if input.UserID == "" {
		return errs.Validation("user id is required")
	}

	if len(input.Items) == 0 {
		return errs.Validation("order must contain at least one item")
	}

	for _, item := range input.Items {
		if item.MedicationID == "" {
			return errs.Validation("medication id is required for every item")
		}
		if item.Quantity <= 0 {
			return errs.Validation("quantity must be a positive integer")
		}
	}

	return nil
}

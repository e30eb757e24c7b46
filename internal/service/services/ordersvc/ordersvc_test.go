package ordersvc

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mediguard/order/internal/clients/paymentgw"
	"github.com/mediguard/order/internal/dal/interfaces/iorderitemrepo"
	"github.com/mediguard/order/internal/dal/interfaces/iorderrepo"
	"github.com/mediguard/order/internal/dal/repositories/events"
	"github.com/mediguard/order/internal/service/errs"
	"github.com/mediguard/order/internal/service/models/currency"
	"github.com/mediguard/order/internal/service/models/medication"
	"github.com/mediguard/order/internal/service/models/order"
	"github.com/mediguard/order/internal/service/models/orderitem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is the committed state shared by all units of work in a test.
type memStore struct {
	orders     map[uuid.UUID]order.Order
	items      map[uuid.UUID][]orderitem.OrderItem
	nextItemID int64
}

func newMemStore() *memStore {
	return &memStore{
		orders:     make(map[uuid.UUID]order.Order),
		items:      make(map[uuid.UUID][]orderitem.OrderItem),
		nextItemID: 1,
	}
}

func (s *memStore) clone() *memStore {
	c := newMemStore()
	c.nextItemID = s.nextItemID
	for id, o := range s.orders {
		c.orders[id] = o
	}
	for id, items := range s.items {
		c.items[id] = append([]orderitem.OrderItem(nil), items...)
	}

	return c
}

// memUOW stages writes on Begin and applies them on Commit, so a rolled-back
// creation is never visible to later reads. beforeCAS runs right before a
// status compare-and-set, letting a test interleave a concurrent writer
// between the locked read and the update.
type memUOW struct {
	store      *memStore
	staged     *memStore
	beforeCAS  func(*memStore)
	committed  bool
	rolledBack bool
}

func (u *memUOW) view() *memStore {
	if u.staged != nil {
		return u.staged
	}

	return u.store
}

func (u *memUOW) Begin(_ context.Context) error {
	u.staged = u.store.clone()

	return nil
}

func (u *memUOW) Commit(_ context.Context) error {
	if u.staged != nil {
		*u.store = *u.staged
		u.staged = nil
		u.committed = true
	}

	return nil
}

func (u *memUOW) Rollback(_ context.Context) error {
	if u.staged != nil {
		u.staged = nil
		u.rolledBack = true
	}

	return nil
}

func (u *memUOW) OrderRepository() iorderrepo.IOrderRepository {
	return &memOrderRepo{uow: u}
}

func (u *memUOW) OrderItemRepository() iorderitemrepo.IOrderItemRepository {
	return &memOrderItemRepo{uow: u}
}

type memOrderRepo struct {
	uow *memUOW
}

func (r *memOrderRepo) Insert(_ context.Context, ord order.Order) error {
	ord.OrderItems = nil
	r.uow.view().orders[ord.ID] = ord

	return nil
}

func (r *memOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	o, ok := r.uow.view().orders[id]
	if !ok {
		return nil, nil
	}
	c := o

	return &c, nil
}

func (r *memOrderRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *memOrderRepo) QueryByUser(_ context.Context, userID string) ([]order.Order, error) {
	var result []order.Order
	for _, o := range r.uow.view().orders {
		if o.UserID == userID {
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (r *memOrderRepo) UpdateStatus(
	_ context.Context,
	id uuid.UUID,
	from, to order.Status,
	shippedAt, deliveredAt *time.Time,
) (bool, error) {
	v := r.uow.view()
	if r.uow.beforeCAS != nil {
		r.uow.beforeCAS(v)
	}

	o, ok := v.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}

	o.Status = to
	if o.ShippedAt == nil && shippedAt != nil {
		o.ShippedAt = shippedAt
	}
	if o.DeliveredAt == nil && deliveredAt != nil {
		o.DeliveredAt = deliveredAt
	}
	o.UpdatedAt = time.Now().UTC()
	v.orders[id] = o

	return true, nil
}

func (r *memOrderRepo) SetPaymentTransaction(
	_ context.Context,
	id uuid.UUID,
	transactionID string,
) (bool, error) {
	v := r.uow.view()
	o, ok := v.orders[id]
	if !ok || o.Status != order.StatusPending {
		return false, nil
	}

	o.PaymentTransactionID = transactionID
	o.Status = order.StatusProcessing
	v.orders[id] = o

	return true, nil
}

type memOrderItemRepo struct {
	uow *memUOW
}

func (r *memOrderItemRepo) BulkInsert(
	_ context.Context,
	items []orderitem.OrderItem,
) ([]orderitem.OrderItem, error) {
	v := r.uow.view()
	result := make([]orderitem.OrderItem, 0, len(items))
	for _, item := range items {
		item.ID = v.nextItemID
		v.nextItemID++
		v.items[item.OrderID] = append(v.items[item.OrderID], item)
		result = append(result, item)
	}

	return result, nil
}

func (r *memOrderItemRepo) QueryByOrderIDs(
	_ context.Context,
	orderIDs []uuid.UUID,
) ([]orderitem.OrderItem, error) {
	v := r.uow.view()
	var result []orderitem.OrderItem
	for _, id := range orderIDs {
		result = append(result, v.items[id]...)
	}

	return result, nil
}

type uowFactory struct {
	store     *memStore
	beforeCAS func(*memStore)
	created   []*memUOW
}

func (f *uowFactory) new() unitOfWork {
	u := &memUOW{store: f.store, beforeCAS: f.beforeCAS}
	f.created = append(f.created, u)

	return u
}

type stubCatalog struct {
	meds map[string]medication.Medication
}

func (c *stubCatalog) Resolve(_ context.Context, medicationID string) (*medication.Medication, error) {
	med, ok := c.meds[medicationID]
	if !ok {
		return nil, errs.NotFound("medication %s not found", medicationID)
	}
	m := med

	return &m, nil
}

type chargeCall struct {
	orderID     uuid.UUID
	amountCents int64
	method      string
}

type refundCall struct {
	transactionID string
	amountCents   int64
}

type stubGateway struct {
	chargeResult *paymentgw.ChargeResult
	chargeErr    error
	refundResult *paymentgw.RefundResult
	refundErr    error
	chargeCalls  []chargeCall
	refundCalls  []refundCall
}

func (g *stubGateway) Charge(
	_ context.Context,
	orderID uuid.UUID,
	amountCents int64,
	paymentMethod string,
) (*paymentgw.ChargeResult, error) {
	g.chargeCalls = append(g.chargeCalls, chargeCall{orderID, amountCents, paymentMethod})

	return g.chargeResult, g.chargeErr
}

func (g *stubGateway) Refund(
	_ context.Context,
	transactionID string,
	amountCents int64,
) (*paymentgw.RefundResult, error) {
	g.refundCalls = append(g.refundCalls, refundCall{transactionID, amountCents})

	return g.refundResult, g.refundErr
}

type stubPublisher struct {
	published []events.OrderEvent
}

func (p *stubPublisher) Publish(_ context.Context, event events.OrderEvent) error {
	p.published = append(p.published, event)

	return nil
}

func (p *stubPublisher) PublishAll(_ context.Context, evts []events.OrderEvent) error {
	p.published = append(p.published, evts...)

	return nil
}

func (p *stubPublisher) types() []string {
	var result []string
	for _, e := range p.published {
		result = append(result, e.Type)
	}

	return result
}

type testEnv struct {
	store     *memStore
	factory   *uowFactory
	catalog   *stubCatalog
	gateway   *stubGateway
	publisher *stubPublisher
	svc       *OrderService
}

func newTestEnv() *testEnv {
	store := newMemStore()
	factory := &uowFactory{store: store}
	cat := &stubCatalog{meds: map[string]medication.Medication{
		"A": {ID: "A", Name: "Aspirin", PriceCents: 599, PriceCurrency: currency.CurrencyUSD, IsAvailable: true},
		"B": {ID: "B", Name: "Benadryl", PriceCents: 399, PriceCurrency: currency.CurrencyUSD, IsAvailable: true},
		"C": {ID: "C", Name: "Codeine", PriceCents: 1299, PriceCurrency: currency.CurrencyUSD, IsAvailable: false},
	}}
	gw := &stubGateway{
		chargeResult: &paymentgw.ChargeResult{Success: true, TransactionID: "TXN-1"},
		refundResult: &paymentgw.RefundResult{Success: true},
	}
	pub := &stubPublisher{}

	svc := MustNewOrderService(
		WithUnitOfWorkFactory(factory.new),
		WithCatalogClient(cat),
		WithPaymentGateway(gw),
		WithEventPublisher(pub),
		WithPaymentTimeout(time.Second),
	)

	return &testEnv{
		store:     store,
		factory:   factory,
		catalog:   cat,
		gateway:   gw,
		publisher: pub,
		svc:       svc,
	}
}

func validInput() CreateOrderInput {
	return CreateOrderInput{
		UserID:          "user-1",
		ShippingAddress: "221B Baker Street",
		PaymentMethod:   "Credit Card",
		Items: []CreateOrderItemInput{
			{MedicationID: "A", Quantity: 2},
			{MedicationID: "B", Quantity: 1},
		},
	}
}

func TestCreateOrder_Success(t *testing.T) {
	env := newTestEnv()

	ord, err := env.svc.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, int64(1597), ord.TotalPriceCents)
	assert.Equal(t, order.StatusProcessing, ord.Status)
	assert.Equal(t, "TXN-1", ord.PaymentTransactionID)
	require.Len(t, ord.OrderItems, 2)
	assert.Equal(t, int64(1198), ord.OrderItems[0].SubtotalCents)
	assert.Equal(t, int64(399), ord.OrderItems[1].SubtotalCents)
	assert.Equal(t, "Aspirin", ord.OrderItems[0].MedicationName)

	// Charged exactly once, for the full total.
	require.Len(t, env.gateway.chargeCalls, 1)
	assert.Equal(t, int64(1597), env.gateway.chargeCalls[0].amountCents)
	assert.Equal(t, ord.ID, env.gateway.chargeCalls[0].orderID)

	// Durably visible after commit.
	orders, err := env.svc.GetUserOrders(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.StatusProcessing, orders[0].Status)
	require.Len(t, orders[0].OrderItems, 2)

	assert.Equal(t, []string{events.TypeOrderCreated}, env.publisher.types())
}

func TestCreateOrder_PaymentDeclined(t *testing.T) {
	env := newTestEnv()
	env.gateway.chargeResult = &paymentgw.ChargeResult{Success: false, Message: "card declined"}

	_, err := env.svc.CreateOrder(context.Background(), validInput())
	require.Error(t, err)
	assert.Equal(t, errs.KindPayment, errs.KindOf(err))

	// The whole transaction rolled back: no order is visible.
	orders, err := env.svc.GetUserOrders(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, orders)

	require.Len(t, env.factory.created, 2)
	assert.True(t, env.factory.created[0].rolledBack)
	assert.False(t, env.factory.created[0].committed)
	assert.Empty(t, env.publisher.published)
}

func TestCreateOrder_PaymentTimeout(t *testing.T) {
	env := newTestEnv()
	env.gateway.chargeResult = nil
	env.gateway.chargeErr = context.DeadlineExceeded

	_, err := env.svc.CreateOrder(context.Background(), validInput())
	require.Error(t, err)
	assert.Equal(t, errs.KindPayment, errs.KindOf(err))

	orders, err := env.svc.GetUserOrders(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrder_UnknownMedication(t *testing.T) {
	env := newTestEnv()

	input := validInput()
	input.Items = append(input.Items, CreateOrderItemInput{MedicationID: "nope", Quantity: 1})

	_, err := env.svc.CreateOrder(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	// Failed before any write or charge.
	assert.Empty(t, env.gateway.chargeCalls)
	orders, err := env.svc.GetUserOrders(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrder_UnavailableMedication(t *testing.T) {
	env := newTestEnv()

	input := validInput()
	input.Items = []CreateOrderItemInput{{MedicationID: "C", Quantity: 1}}

	_, err := env.svc.CreateOrder(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Empty(t, env.gateway.chargeCalls)
}

func TestCreateOrder_Validation(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		name  string
		input CreateOrderInput
	}{
		{
			name: "empty items",
			input: CreateOrderInput{
				UserID: "user-1",
			},
		},
		{
			name: "missing user",
			input: CreateOrderInput{
				Items: []CreateOrderItemInput{{MedicationID: "A", Quantity: 1}},
			},
		},
		{
			name: "zero quantity",
			input: CreateOrderInput{
				UserID: "user-1",
				Items:  []CreateOrderItemInput{{MedicationID: "A", Quantity: 0}},
			},
		},
		{
			name: "negative quantity",
			input: CreateOrderInput{
				UserID: "user-1",
				Items:  []CreateOrderItemInput{{MedicationID: "A", Quantity: -2}},
			},
		},
		{
			name: "missing medication id",
			input: CreateOrderInput{
				UserID: "user-1",
				Items:  []CreateOrderItemInput{{Quantity: 1}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateOrder(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
		})
	}

	assert.Empty(t, env.gateway.chargeCalls)
}

func createProcessingOrder(t *testing.T, env *testEnv) *order.Order {
	t.Helper()

	ord, err := env.svc.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)
	env.publisher.published = nil

	return ord
}

func TestUpdateStatus_ShippedThenDelivered(t *testing.T) {
	env := newTestEnv()
	ord := createProcessingOrder(t, env)

	require.NoError(t, env.svc.UpdateStatus(context.Background(), ord.ID, order.StatusShipped))

	shipped, err := env.svc.GetOrder(context.Background(), ord.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, shipped.Status)
	require.NotNil(t, shipped.ShippedAt)
	assert.Nil(t, shipped.DeliveredAt)
	shippedAt := *shipped.ShippedAt

	require.NoError(t, env.svc.UpdateStatus(context.Background(), ord.ID, order.StatusDelivered))

	delivered, err := env.svc.GetOrder(context.Background(), ord.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)
	// The shipped timestamp was set exactly once.
	assert.Equal(t, shippedAt, *delivered.ShippedAt)

	assert.Equal(t,
		[]string{events.TypeOrderStatusChanged, events.TypeOrderStatusChanged},
		env.publisher.types(),
	)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	env := newTestEnv()
	ord := createProcessingOrder(t, env)

	require.NoError(t, env.svc.UpdateStatus(context.Background(), ord.ID, order.StatusShipped))
	require.NoError(t, env.svc.UpdateStatus(context.Background(), ord.ID, order.StatusDelivered))

	err := env.svc.UpdateStatus(context.Background(), ord.ID, order.StatusProcessing)
	require.Error(t, err)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))

	// State unchanged.
	got, err := env.svc.GetOrder(context.Background(), ord.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, got.Status)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	env := newTestEnv()

	err := env.svc.UpdateStatus(context.Background(), uuid.New(), order.StatusShipped)
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestUpdateStatus_ConcurrentTransitionLoses(t *testing.T) {
	env := newTestEnv()
	ord := createProcessingOrder(t, env)

	// Another writer cancels the order between the locked read and the
	// compare-and-set, so this transition's CAS must miss.
	env.factory.beforeCAS = func(v *memStore) {
		o := v.orders[ord.ID]
		o.Status = order.StatusCancelled
		v.orders[ord.ID] = o
	}

	err := env.svc.UpdateStatus(context.Background(), ord.ID, order.StatusShipped)
	require.Error(t, err)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))

	// The loser committed nothing and published nothing.
	env.factory.beforeCAS = nil
	got, err := env.svc.GetOrder(context.Background(), ord.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
	assert.Nil(t, got.ShippedAt)
	assert.Empty(t, env.publisher.published)
}

func TestCancelOrder_ConcurrentTransitionLoses(t *testing.T) {
	env := newTestEnv()
	ord := createProcessingOrder(t, env)

	env.factory.beforeCAS = func(v *memStore) {
		o := v.orders[ord.ID]
		o.Status = order.StatusShipped
		v.orders[ord.ID] = o
	}

	err := env.svc.CancelOrder(context.Background(), ord.ID, "user-1")
	require.Error(t, err)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))

	// No refund and no events for a cancellation that never committed.
	assert.Empty(t, env.gateway.refundCalls)
	assert.Empty(t, env.publisher.published)

	env.factory.beforeCAS = nil
	got, err := env.svc.GetOrder(context.Background(), ord.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
}

func TestCancelOrder_RefundsCharge(t *testing.T) {
	env := newTestEnv()
	ord := createProcessingOrder(t, env)

	require.NoError(t, env.svc.CancelOrder(context.Background(), ord.ID, "user-1"))

	got, err := env.svc.GetOrder(context.Background(), ord.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	// The transaction id stays as the audit record of the original charge.
	assert.Equal(t, "TXN-1", got.PaymentTransactionID)

	require.Len(t, env.gateway.refundCalls, 1)
	assert.Equal(t, "TXN-1", env.gateway.refundCalls[0].transactionID)
	assert.Equal(t, int64(1597), env.gateway.refundCalls[0].amountCents)

	assert.Equal(t, []string{events.TypeOrderCancelled}, env.publisher.types())
}

func TestCancelOrder_RefundFailureKeepsCancellation(t *testing.T) {
	env := newTestEnv()
	ord := createProcessingOrder(t, env)
	env.gateway.refundResult = nil
	env.gateway.refundErr = errors.New("gateway unavailable")

	// Refund failure is not surfaced to the caller.
	require.NoError(t, env.svc.CancelOrder(context.Background(), ord.ID, "user-1"))

	got, err := env.svc.GetOrder(context.Background(), ord.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)

	assert.Equal(t,
		[]string{events.TypeOrderCancelled, events.TypeOrderRefundFailed},
		env.publisher.types(),
	)
}

func TestCancelOrder_Twice(t *testing.T) {
	env := newTestEnv()
	ord := createProcessingOrder(t, env)

	require.NoError(t, env.svc.CancelOrder(context.Background(), ord.ID, "user-1"))

	err := env.svc.CancelOrder(context.Background(), ord.ID, "user-1")
	require.Error(t, err)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))

	// Only the first cancellation refunded.
	assert.Len(t, env.gateway.refundCalls, 1)

	got, err := env.svc.GetOrder(context.Background(), ord.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
}

func TestCancelOrder_NotOwner(t *testing.T) {
	env := newTestEnv()
	ord := createProcessingOrder(t, env)

	err := env.svc.CancelOrder(context.Background(), ord.ID, "somebody-else")
	require.Error(t, err)
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))

	assert.Empty(t, env.gateway.refundCalls)

	got, err := env.svc.GetOrder(context.Background(), ord.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
}

func TestCancelOrder_ShippedNotCancellable(t *testing.T) {
	env := newTestEnv()
	ord := createProcessingOrder(t, env)
	require.NoError(t, env.svc.UpdateStatus(context.Background(), ord.ID, order.StatusShipped))

	err := env.svc.CancelOrder(context.Background(), ord.ID, "user-1")
	require.Error(t, err)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
	assert.Empty(t, env.gateway.refundCalls)
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.GetOrder(context.Background(), uuid.New(), "user-1")
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestGetOrder_NotOwner(t *testing.T) {
	env := newTestEnv()
	ord := createProcessingOrder(t, env)

	_, err := env.svc.GetOrder(context.Background(), ord.ID, "somebody-else")
	require.Error(t, err)
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))

	_, err = env.svc.GetOrder(context.Background(), ord.ID, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindUnauthorized, errs.KindOf(err))
}

func TestGetUserOrders_NewestFirst(t *testing.T) {
	env := newTestEnv()

	first, err := env.svc.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)

	// Force distinct creation times.
	stored := env.store.orders[first.ID]
	stored.CreatedAt = stored.CreatedAt.Add(-time.Hour)
	env.store.orders[first.ID] = stored

	second, err := env.svc.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)

	orders, err := env.svc.GetUserOrders(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
}

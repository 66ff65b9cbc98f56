package commands_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dejobratic/storefront/internal/cart"
	cartmemory "github.com/dejobratic/storefront/internal/cart/adapters/memory"
	"github.com/dejobratic/storefront/internal/catalog"
	catalogmemory "github.com/dejobratic/storefront/internal/catalog/adapters/memory"
	couponmemory "github.com/dejobratic/storefront/internal/coupons/adapters/memory"
	couponapp "github.com/dejobratic/storefront/internal/coupons/app"
	"github.com/dejobratic/storefront/internal/database"
	loyaltymemory "github.com/dejobratic/storefront/internal/loyalty/adapters/memory"
	loyaltyapp "github.com/dejobratic/storefront/internal/loyalty/app"
	"github.com/dejobratic/storefront/internal/orders/adapters/memory"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/payments"
)

const gatewaySecret = "test-gateway-secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockEventBus struct {
	mu                   sync.Mutex
	placed               []string
	statusChanges        []string
	publishOrderPlacedFn func(ctx context.Context, order domain.Order) error
}

func (m *mockEventBus) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	if m.publishOrderPlacedFn != nil {
		if err := m.publishOrderPlacedFn(ctx, order); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed = append(m.placed, order.Number)
	return nil
}

func (m *mockEventBus) PublishOrderStatusChanged(_ context.Context, number string, from, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusChanges = append(m.statusChanges, number+":"+string(from)+"->"+string(to))
	return nil
}

func (m *mockEventBus) PublishShipmentCreated(context.Context, string, domain.Shipment) error {
	return nil
}

type mockDispatcher struct {
	mu         sync.Mutex
	dispatched []string
	dispatchFn func(ctx context.Context, order domain.Order) (*domain.Shipment, error)
}

func (m *mockDispatcher) Dispatch(ctx context.Context, order domain.Order) (*domain.Shipment, error) {
	if m.dispatchFn != nil {
		return m.dispatchFn(ctx, order)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched = append(m.dispatched, order.Number)
	return &domain.Shipment{Waybill: "WB-" + order.Number}, nil
}

type recordingQueue struct {
	mu        sync.Mutex
	followups []domain.Followup
	enqueueFn func(ctx context.Context, followup domain.Followup) error
}

func (q *recordingQueue) Enqueue(ctx context.Context, followup domain.Followup) error {
	if q.enqueueFn != nil {
		return q.enqueueFn(ctx, followup)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.followups = append(q.followups, followup)
	return nil
}

func (q *recordingQueue) all() []domain.Followup {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.Followup(nil), q.followups...)
}

type verifierFunc func(ctx context.Context, orderID, paymentID, signature string) error

func (f verifierFunc) Verify(ctx context.Context, orderID, paymentID, signature string) error {
	return f(ctx, orderID, paymentID, signature)
}

// checkoutFixture wires the checkout handler to in-memory adapters.
type checkoutFixture struct {
	handler    *commands.PlaceOrderHandler
	runner     *commands.PostCommitRunner
	repo       *memory.Repository
	coupons    *couponapp.Service
	loyalty    *loyaltyapp.Service
	carts      *cartmemory.Store
	products   *catalogmemory.Store
	events     *mockEventBus
	dispatcher *mockDispatcher
	followups  *recordingQueue
	verifier   *payments.Verifier
}

type fixtureOption func(*commands.CheckoutDeps)

func withPayments(v ports.PaymentVerifier) fixtureOption {
	return func(d *commands.CheckoutDeps) { d.Payments = v }
}

func newCheckoutFixture(t *testing.T, cfg commands.CheckoutConfig, opts ...fixtureOption) *checkoutFixture {
	t.Helper()

	logger := discardLogger()
	f := &checkoutFixture{
		repo:       memory.NewRepository(),
		coupons:    couponapp.NewService(couponmemory.NewRepository(), logger),
		loyalty:    loyaltyapp.NewService(loyaltymemory.NewLedger(), logger),
		carts:      cartmemory.NewStore(),
		events:     &mockEventBus{},
		dispatcher: &mockDispatcher{},
		followups:  &recordingQueue{},
		verifier:   payments.NewVerifier(gatewaySecret),
	}

	f.runner = commands.NewPostCommitRunner(commands.PostCommitDeps{
		Cart:       f.carts,
		Loyalty:    f.loyalty,
		Events:     f.events,
		Dispatcher: f.dispatcher,
		Followups:  f.followups,
		Logger:     logger,
	})

	f.products = catalogmemory.NewStore(
		catalog.Product{ID: "kurta", Name: "Cotton Kurta", PriceMinor: 100000, LoyaltyPoints: 10, WeightGrams: 400, Active: true},
		catalog.Product{ID: "scarf", Name: "Silk Scarf", PriceMinor: 25000, LoyaltyPoints: 2, WeightGrams: 100, Active: true},
		catalog.Product{ID: "retired", Name: "Old Stock", PriceMinor: 1000, Active: false},
	)

	deps := commands.CheckoutDeps{
		Repo:       f.repo,
		Tx:         database.NewMemoryTxManager(),
		Payments:   f.verifier,
		Catalog:    f.products,
		Coupons:    f.coupons,
		Usage:      f.coupons,
		Loyalty:    f.loyalty,
		PostCommit: f.runner,
		Logger:     logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	f.handler = commands.NewPlaceOrderHandler(deps, cfg)
	return f
}

func (f *checkoutFixture) seedPoints(t *testing.T, customerID string, points int64) {
	t.Helper()
	if _, err := f.loyalty.Earn(context.Background(), customerID, points, "seed:"+customerID, "opening balance"); err != nil {
		t.Fatalf("failed to seed points: %v", err)
	}
}

func (f *checkoutFixture) seedCart(t *testing.T, customerID string) {
	t.Helper()
	c := cart.Cart{CustomerID: customerID, Items: []cart.Item{{ProductID: "kurta", Quantity: 1}}}
	if err := f.carts.Replace(context.Background(), c); err != nil {
		t.Fatalf("failed to seed cart: %v", err)
	}
}

func testAddress() domain.Address {
	return domain.Address{
		Name:       "Asha Rao",
		Phone:      "9876543210",
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      "Karnataka",
		PostalCode: "560001",
		Country:    "IN",
	}
}

func codCommand(customerID string) commands.PlaceOrderCommand {
	return commands.PlaceOrderCommand{
		CustomerID:      customerID,
		Items:           []commands.CartLine{{ProductID: "kurta", Quantity: 1}},
		ShippingAddress: testAddress(),
		Payment:         commands.PaymentInput{Mode: "cod"},
	}
}

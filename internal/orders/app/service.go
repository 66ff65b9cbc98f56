package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/app/queries"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/pkg/retry"
)

// Dependencies are the collaborators of the order use cases.
type Dependencies struct {
	Repo       ports.OrderRepository
	Tx         ports.TxManager
	Events     ports.EventBus
	Payments   ports.PaymentVerifier
	Catalog    ports.Catalog
	Coupons    ports.CouponValidator
	Usage      ports.CouponUsageTracker
	Loyalty    ports.Loyalty
	Cart       ports.CartStore
	Dispatcher ports.ShipmentDispatcher
	Followups  ports.FollowupQueue
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Options tune checkout and followup handling.
type Options struct {
	Checkout           commands.CheckoutConfig
	ShipmentTimeout    time.Duration
	FollowupBackoff    retry.BackoffStrategy
	FollowupMaxAttempt int
}

// Service bundles use cases for handling orders via the API and the reconciler.
type Service struct {
	repo       ports.OrderRepository
	dispatcher ports.ShipmentDispatcher

	checkout  commands.CheckoutCommandHandler
	status    *commands.UpdateStatusHandler
	tracking  *commands.UpdateTrackingHandler
	followups *commands.FollowupRetrier
	get       *queries.GetOrderQueryHandler
	list      *queries.ListOrdersQueryHandler
}

// NewService wires required dependencies.
func NewService(deps Dependencies, opts Options) *Service {
	runner := commands.NewPostCommitRunner(commands.PostCommitDeps{
		Cart:            deps.Cart,
		Loyalty:         deps.Loyalty,
		Events:          deps.Events,
		Dispatcher:      deps.Dispatcher,
		Followups:       deps.Followups,
		Logger:          deps.Logger,
		Metrics:         deps.Metrics,
		ShipmentTimeout: opts.ShipmentTimeout,
	})

	coreHandler := commands.NewPlaceOrderHandler(commands.CheckoutDeps{
		Repo:       deps.Repo,
		Tx:         deps.Tx,
		Payments:   deps.Payments,
		Catalog:    deps.Catalog,
		Coupons:    deps.Coupons,
		Usage:      deps.Usage,
		Loyalty:    deps.Loyalty,
		PostCommit: runner,
		Logger:     deps.Logger,
	}, opts.Checkout)
	var checkout commands.CheckoutCommandHandler = coreHandler
	if deps.Metrics != nil {
		checkout = commands.NewObservableCheckoutHandler(coreHandler, deps.Logger, deps.Metrics)
	}

	status := commands.NewUpdateStatusHandler(deps.Repo, deps.Events, deps.Logger, deps.Metrics)

	return &Service{
		repo:       deps.Repo,
		dispatcher: deps.Dispatcher,
		checkout:   checkout,
		status:     status,
		tracking:   commands.NewUpdateTrackingHandler(deps.Repo, status, deps.Logger),
		followups:  commands.NewFollowupRetrier(deps.Repo, runner, deps.Followups, opts.FollowupBackoff, opts.FollowupMaxAttempt, deps.Logger),
		get:        queries.NewGetOrderQueryHandler(deps.Repo),
		list:       queries.NewListOrdersQueryHandler(deps.Repo),
	}
}

// Checkout places an order, or replays the one placed under the same idempotency key.
func (s *Service) Checkout(ctx context.Context, cmd commands.PlaceOrderCommand) (*commands.CheckoutResult, error) {
	return s.checkout.Handle(ctx, cmd)
}

// GetOrder retrieves an order by number. An empty customerID is an admin lookup.
func (s *Service) GetOrder(ctx context.Context, number, customerID string) (*domain.Order, error) {
	return s.get.Handle(ctx, queries.GetOrderQuery{OrderNumber: number, CustomerID: customerID})
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, query queries.ListOrdersQuery) ([]domain.Order, error) {
	return s.list.Handle(ctx, query)
}

// CancelOrder cancels a customer's own order while it is not yet being fulfilled.
func (s *Service) CancelOrder(ctx context.Context, number, customerID string) (*domain.Order, error) {
	return s.status.Handle(ctx, commands.UpdateStatusCommand{
		OrderNumber:     number,
		Status:          domain.StatusCancelled,
		ActorCustomerID: customerID,
	})
}

// UpdateStatus applies an admin status change.
func (s *Service) UpdateStatus(ctx context.Context, number string, status domain.OrderStatus) (*domain.Order, error) {
	return s.status.Handle(ctx, commands.UpdateStatusCommand{
		OrderNumber: number,
		Status:      status,
		Admin:       true,
	})
}

// RecordTracking stores a tracking update from an admin or a carrier poll.
func (s *Service) RecordTracking(ctx context.Context, number string, update commands.TrackingUpdate) (*domain.Order, error) {
	return s.tracking.Record(ctx, number, update)
}

// RetryShipment requests a waybill for an order that has none yet.
func (s *Service) RetryShipment(ctx context.Context, number string) (*domain.Order, error) {
	order, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.StatusCancelled {
		return nil, fmt.Errorf("%w: order %s is cancelled", commands.ErrInvalidTransition, number)
	}
	if order.Shipment.Waybill != "" {
		return order, nil
	}

	if s.dispatcher == nil {
		return nil, ports.ErrNoCarrier
	}

	shipment, err := s.dispatcher.Dispatch(ctx, *order)
	if err != nil {
		return nil, fmt.Errorf("dispatch shipment: %w", err)
	}
	order.Shipment = *shipment
	return order, nil
}

// HandleFollowup retries one failed post-commit task.
func (s *Service) HandleFollowup(ctx context.Context, followup domain.Followup) error {
	return s.followups.Handle(ctx, followup)
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

const maxStatusAttempts = 3

var (
	// ErrInvalidTransition is returned when the lifecycle forbids the move.
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrNotCancellable is returned when a customer tries to cancel an order
	// that is already being fulfilled.
	ErrNotCancellable = errors.New("order can no longer be cancelled")
)

// UpdateStatusCommand moves an order to Status. Admin commands may apply any
// lifecycle move; customers may only cancel their own orders.
type UpdateStatusCommand struct {
	OrderNumber     string
	Status          domain.OrderStatus
	ActorCustomerID string
	Admin           bool
}

type UpdateStatusHandler struct {
	repo    ports.OrderRepository
	events  ports.EventBus
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewUpdateStatusHandler(repo ports.OrderRepository, events ports.EventBus, logger *slog.Logger, metrics *metrics.Metrics) *UpdateStatusHandler {
	return &UpdateStatusHandler{
		repo:    repo,
		events:  events,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (h *UpdateStatusHandler) Handle(ctx context.Context, cmd UpdateStatusCommand) (*domain.Order, error) {
	if !cmd.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, cmd.Status)
	}

	for attempt := 1; ; attempt++ {
		order, err := h.repo.GetByNumber(ctx, cmd.OrderNumber)
		if err != nil {
			return nil, err
		}
		if !cmd.Admin {
			if order.CustomerID != cmd.ActorCustomerID {
				return nil, ports.ErrNotFound
			}
			if cmd.Status != domain.StatusCancelled {
				return nil, ErrInvalidTransition
			}
			if order.Status != domain.StatusCancelled &&
				order.Status != domain.StatusPending && order.Status != domain.StatusConfirmed {
				return nil, ErrNotCancellable
			}
		}

		if order.Status == cmd.Status {
			return order, nil
		}
		if !order.Status.CanTransitionTo(cmd.Status) {
			return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, cmd.Status)
		}

		err = h.apply(ctx, order, cmd.Status)
		if errors.Is(err, ports.ErrConflict) && attempt < maxStatusAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}
		return order, nil
	}
}

// Advance moves the order forward to status if the lifecycle allows it and
// reports whether anything changed. Stale or backward moves are ignored so
// that carrier updates arriving out of order are harmless.
func (h *UpdateStatusHandler) Advance(ctx context.Context, number string, status domain.OrderStatus) (bool, error) {
	for attempt := 1; ; attempt++ {
		order, err := h.repo.GetByNumber(ctx, number)
		if err != nil {
			return false, err
		}
		if status == domain.StatusCancelled || !order.Status.CanTransitionTo(status) {
			return false, nil
		}

		err = h.apply(ctx, order, status)
		if errors.Is(err, ports.ErrConflict) && attempt < maxStatusAttempts {
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}

// apply performs the compare-and-set and updates order in place on success.
func (h *UpdateStatusHandler) apply(ctx context.Context, order *domain.Order, to domain.OrderStatus) error {
	from := order.Status
	at := h.now().UTC()
	if err := h.repo.UpdateStatus(ctx, order.Number, from, to, at); err != nil {
		return err
	}
	order.Status = to
	order.UpdatedAt = at

	if h.metrics != nil {
		h.metrics.RecordStatusTransition(ctx, string(from), string(to))
	}
	h.logger.InfoContext(ctx, "order status changed",
		"order_number", order.Number,
		"from", string(from),
		"to", string(to),
	)

	if err := h.events.PublishOrderStatusChanged(ctx, order.Number, from, to); err != nil {
		h.logger.ErrorContext(ctx, "failed to publish status change",
			"order_number", order.Number,
			"error", err,
		)
	}
	return nil
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/validation"
)

// TrackingUpdate is a new carrier view of a shipment, from an admin or from
// a carrier poll. Empty fields keep their stored value. A non-nil History
// replaces the stored scan history; otherwise a single event is appended.
type TrackingUpdate struct {
	Waybill     string                 `json:"waybill,omitempty" validate:"max=64"`
	TrackingURL string                 `json:"tracking_url,omitempty" validate:"omitempty,url,max=512"`
	Status      domain.TrackingStatus  `json:"tracking_status" validate:"required,oneof=pending picked in_transit delivered failed"`
	Location    string                 `json:"location,omitempty" validate:"max=200"`
	Description string                 `json:"description,omitempty" validate:"max=500"`
	History     []domain.TrackingEvent `json:"-"`
}

// statusAdvancer is the part of UpdateStatusHandler tracking needs.
type statusAdvancer interface {
	Advance(ctx context.Context, number string, status domain.OrderStatus) (bool, error)
}

type UpdateTrackingHandler struct {
	repo     ports.OrderRepository
	advancer statusAdvancer
	logger   *slog.Logger
	now      func() time.Time
}

func NewUpdateTrackingHandler(repo ports.OrderRepository, advancer *UpdateStatusHandler, logger *slog.Logger) *UpdateTrackingHandler {
	return &UpdateTrackingHandler{repo: repo, advancer: advancer, logger: logger, now: time.Now}
}

// Record stores the tracking update and advances the order status when the
// tracking status implies a later lifecycle stage.
func (h *UpdateTrackingHandler) Record(ctx context.Context, number string, update TrackingUpdate) (*domain.Order, error) {
	if err := validation.Struct(update); err != nil {
		return nil, err
	}

	order, err := h.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.StatusCancelled {
		return nil, fmt.Errorf("%w: order %s is cancelled", ErrInvalidTransition, number)
	}

	at := h.now().UTC()
	shipment := order.Shipment
	if update.Waybill != "" {
		shipment.Waybill = update.Waybill
	}
	if shipment.Waybill == "" {
		return nil, validation.Field("waybill", "is required until a shipment exists")
	}
	if update.TrackingURL != "" {
		shipment.TrackingURL = update.TrackingURL
	}
	if update.Location != "" {
		shipment.LastLocation = update.Location
	}
	shipment.TrackingStatus = update.Status
	if update.History != nil {
		shipment.History = update.History
	} else {
		shipment.History = append(shipment.History, domain.TrackingEvent{
			Status:      string(update.Status),
			Location:    update.Location,
			Description: update.Description,
			At:          at,
		})
	}

	if err := h.repo.UpdateShipment(ctx, number, shipment, at); err != nil {
		return nil, err
	}
	order.Shipment = shipment
	order.UpdatedAt = at

	if status, ok := update.Status.OrderStatus(); ok {
		changed, err := h.advancer.Advance(ctx, number, status)
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("advance order status: %w", err)
		}
		if changed {
			order.Status = status
		}
	}

	h.logger.InfoContext(ctx, "tracking updated",
		"order_number", number,
		"waybill", shipment.Waybill,
		"tracking_status", string(update.Status),
	)
	return order, nil
}

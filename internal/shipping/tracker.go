package shipping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// TrackingRecorder stores a tracking update on an order.
type TrackingRecorder interface {
	RecordTracking(ctx context.Context, number string, update commands.TrackingUpdate) (*domain.Order, error)
}

// Tracker polls the carrier for an order's waybill and records the result.
type Tracker struct {
	carrier  Carrier
	repo     ports.OrderRepository
	recorder TrackingRecorder
	logger   *slog.Logger
}

func NewTracker(carrier Carrier, repo ports.OrderRepository, recorder TrackingRecorder, logger *slog.Logger) *Tracker {
	return &Tracker{carrier: carrier, repo: repo, recorder: recorder, logger: logger}
}

// Sync pulls the carrier status for the order and replaces its scan history.
func (t *Tracker) Sync(ctx context.Context, number string) (*domain.Order, error) {
	order, err := t.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if order.Shipment.Waybill == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoShipment, number)
	}

	result, err := t.carrier.Track(ctx, order.Shipment.Waybill)
	if err != nil {
		return nil, fmt.Errorf("track waybill %s: %w", order.Shipment.Waybill, err)
	}

	history := make([]domain.TrackingEvent, 0, len(result.Scans))
	for _, scan := range result.Scans {
		history = append(history, domain.TrackingEvent{
			Status:      string(MapStatus(scan.Status)),
			Location:    scan.Location,
			Description: firstNonEmpty(scan.Description, scan.Status),
			At:          scan.At.UTC(),
		})
	}

	status := MapStatus(result.Status)
	t.logger.DebugContext(ctx, "carrier tracking fetched",
		"order_number", number,
		"carrier_status", result.Status,
		"tracking_status", string(status),
		"scans", len(history),
	)

	return t.recorder.RecordTracking(ctx, number, commands.TrackingUpdate{
		Status:   status,
		Location: result.Location,
		History:  history,
	})
}

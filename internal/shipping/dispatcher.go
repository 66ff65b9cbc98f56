package shipping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// Carrier is the outbound carrier API.
type Carrier interface {
	CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error)
	Track(ctx context.Context, waybill string) (*TrackingResult, error)
}

// Dispatcher creates a waybill for a committed order and records it on the order.
type Dispatcher struct {
	carrier            Carrier
	repo               ports.OrderRepository
	events             ports.EventBus
	logger             *slog.Logger
	defaultParcelGrams int
	now                func() time.Time
}

func NewDispatcher(carrier Carrier, repo ports.OrderRepository, events ports.EventBus, defaultParcelGrams int, logger *slog.Logger) *Dispatcher {
	if defaultParcelGrams <= 0 {
		defaultParcelGrams = 500
	}
	return &Dispatcher{
		carrier:            carrier,
		repo:               repo,
		events:             events,
		logger:             logger,
		defaultParcelGrams: defaultParcelGrams,
		now:                time.Now,
	}
}

// Dispatch returns the existing shipment when the order already has a
// waybill; otherwise it asks the carrier for one. A carrier failure is
// recorded on the order so operators can see why it has no waybill.
func (d *Dispatcher) Dispatch(ctx context.Context, order domain.Order) (*domain.Shipment, error) {
	if order.Shipment.Waybill != "" {
		shipment := order.Shipment
		return &shipment, nil
	}

	result, err := d.carrier.CreateShipment(ctx, d.request(order))
	if err != nil {
		failed := order.Shipment
		failed.LastError = err.Error()
		if uerr := d.repo.UpdateShipment(context.WithoutCancel(ctx), order.Number, failed, d.now().UTC()); uerr != nil {
			d.logger.WarnContext(ctx, "failed to record shipment error", "order_number", order.Number, "error", uerr)
		}
		var cerr *CarrierError
		if errors.As(err, &cerr) && cerr.Code == CodePickupLocationNotReady {
			d.logger.ErrorContext(ctx, "carrier pickup location is not ready", "order_number", order.Number)
		}
		return nil, fmt.Errorf("create shipment: %w", err)
	}

	at := d.now().UTC()
	shipment := domain.Shipment{
		Waybill:        result.Waybill,
		TrackingURL:    result.TrackingURL,
		TrackingStatus: domain.TrackingPending,
		History: []domain.TrackingEvent{{
			Status:      string(domain.TrackingPending),
			Description: "Shipment created",
			At:          at,
		}},
	}
	if err := d.repo.UpdateShipment(ctx, order.Number, shipment, at); err != nil {
		return nil, fmt.Errorf("record waybill %s: %w", shipment.Waybill, err)
	}

	d.logger.InfoContext(ctx, "shipment created",
		"order_number", order.Number,
		"waybill", shipment.Waybill,
	)
	if err := d.events.PublishShipmentCreated(ctx, order.Number, shipment); err != nil {
		d.logger.WarnContext(ctx, "failed to publish shipment created", "order_number", order.Number, "error", err)
	}
	return &shipment, nil
}

func (d *Dispatcher) request(order domain.Order) ShipmentRequest {
	addr := order.ShippingAddress
	street := addr.Line1
	if addr.Line2 != "" {
		street += ", " + addr.Line2
	}

	var (
		grams    int
		quantity int
		names    = make([]string, 0, len(order.Items))
	)
	for _, item := range order.Items {
		weight := item.WeightGrams
		if weight <= 0 {
			weight = d.defaultParcelGrams
		}
		grams += weight * item.Quantity
		quantity += item.Quantity
		names = append(names, item.Name)
	}
	if grams == 0 {
		grams = d.defaultParcelGrams
	}

	cod := order.Payment.Mode == domain.PaymentCOD
	req := ShipmentRequest{
		OrderNumber: order.Number,
		Name:        addr.Name,
		Phone:       addr.Phone,
		Email:       addr.Email,
		Address:     street,
		City:        addr.City,
		State:       addr.State,
		PostalCode:  addr.PostalCode,
		Country:     addr.Country,
		WeightGrams: grams,
		COD:         cod,
		TotalMinor:  order.Total,
		Description: strings.Join(names, ", "),
		Quantity:    quantity,
	}
	if cod {
		req.CODAmountMinor = order.Total
	}
	return req
}

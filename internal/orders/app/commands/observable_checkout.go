package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableCheckoutHandler struct {
	handler CheckoutCommandHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCheckoutHandler(handler CheckoutCommandHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCheckoutHandler {
	return &ObservableCheckoutHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCheckoutHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (result *CheckoutResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "PlaceOrderCommand.Handle",
		attribute.String("customer.id", cmd.CustomerID),
		attribute.Int("checkout.items", len(cmd.Items)),
		attribute.String("payment.mode", cmd.Payment.Mode),
	)

	start := time.Now()
	outcome := metrics.OutcomeError
	defer func() {
		o.metrics.RecordCheckout(ctx, outcome, time.Since(start).Seconds())
		telemetry.FinishSpan(span, err)
	}()

	o.logger.InfoContext(ctx, "placing order",
		"customer_id", cmd.CustomerID,
		"items", len(cmd.Items),
		"payment_mode", cmd.Payment.Mode,
		"coupon_code", cmd.CouponCode,
		"loyalty_points", cmd.LoyaltyPoints,
	)

	result, err = o.handler.Handle(ctx, cmd)
	if err != nil {
		var cerr *CheckoutError
		if errors.As(err, &cerr) {
			switch cerr.Kind {
			case KindInvalidInput:
				outcome = metrics.OutcomeInvalidInput
			case KindRejected:
				outcome = metrics.OutcomeRejected
				o.metrics.RecordRejection(ctx, cerr.Reason)
			case KindPaymentNotAuthentic:
				outcome = metrics.OutcomeNotAuthentic
			}
			o.logger.WarnContext(ctx, "checkout refused",
				"customer_id", cmd.CustomerID,
				"kind", string(cerr.Kind),
				"reason", cerr.Reason,
			)
			return nil, err
		}

		o.logger.ErrorContext(ctx, "checkout failed",
			"customer_id", cmd.CustomerID,
			"error", err,
		)
		return nil, err
	}

	outcome = metrics.OutcomePlaced
	if result.Replayed {
		outcome = metrics.OutcomeReplayed
	}

	span.SetAttributes(
		attribute.String("order.number", result.Order.OrderNumber),
		attribute.String("order.status", string(result.Order.Status)),
		attribute.Int64("order.total", result.Order.Total),
		attribute.Bool("checkout.replayed", result.Replayed),
	)

	o.logger.InfoContext(ctx, "order placed",
		"order_number", result.Order.OrderNumber,
		"customer_id", cmd.CustomerID,
		"total", result.Order.Total,
		"replayed", result.Replayed,
	)

	return result, nil
}

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// PostCommitRunner performs the side effects of a committed order. A failed
// task is logged, counted and queued as a followup; it never fails checkout.
type PostCommitRunner struct {
	cart            ports.CartStore
	loyalty         ports.Loyalty
	events          ports.EventBus
	dispatcher      ports.ShipmentDispatcher
	followups       ports.FollowupQueue
	logger          *slog.Logger
	metrics         *metrics.Metrics
	shipmentTimeout time.Duration
	now             func() time.Time
}

type PostCommitDeps struct {
	Cart            ports.CartStore
	Loyalty         ports.Loyalty
	Events          ports.EventBus
	Dispatcher      ports.ShipmentDispatcher
	Followups       ports.FollowupQueue
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	ShipmentTimeout time.Duration
}

func NewPostCommitRunner(deps PostCommitDeps) *PostCommitRunner {
	return &PostCommitRunner{
		cart:            deps.Cart,
		loyalty:         deps.Loyalty,
		events:          deps.Events,
		dispatcher:      deps.Dispatcher,
		followups:       deps.Followups,
		logger:          deps.Logger,
		metrics:         deps.Metrics,
		shipmentTimeout: deps.ShipmentTimeout,
		now:             time.Now,
	}
}

// Run executes every post-commit task and returns the ones that failed.
// The caller's cancellation does not abort the tasks.
func (r *PostCommitRunner) Run(ctx context.Context, order domain.Order) []domain.Task {
	ctx = context.WithoutCancel(ctx)

	var failed []domain.Task
	for _, task := range domain.PostCommitTasks {
		err := r.RunTask(ctx, task, order)
		if err == nil {
			continue
		}
		failed = append(failed, task)
		r.logger.ErrorContext(ctx, "post-commit task failed",
			"order_number", order.Number,
			"customer_id", order.CustomerID,
			"task", string(task),
			"error", err,
		)
		if r.metrics != nil {
			r.metrics.RecordPostCommitFailure(ctx, string(task))
		}
		r.enqueue(ctx, domain.Followup{
			Task:        task,
			OrderNumber: order.Number,
			CustomerID:  order.CustomerID,
			Attempt:     1,
			LastError:   err.Error(),
			CreatedAt:   r.now().UTC(),
		})
	}
	return failed
}

// RunTask executes a single task. Every task is safe to repeat.
func (r *PostCommitRunner) RunTask(ctx context.Context, task domain.Task, order domain.Order) error {
	switch task {
	case domain.TaskClearCart:
		return r.cart.Clear(ctx, order.CustomerID)

	case domain.TaskEarnLoyalty:
		points := order.EarnedPoints()
		if points == 0 {
			return nil
		}
		_, err := r.loyalty.Earn(ctx, order.CustomerID, points, order.Number, "Earned on order "+order.Number)
		return err

	case domain.TaskPublishPlaced:
		return r.events.PublishOrderPlaced(ctx, order)

	case domain.TaskDispatchShipment:
		if order.Shipment.Waybill != "" || r.dispatcher == nil {
			return nil
		}
		dctx := ctx
		if r.shipmentTimeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, r.shipmentTimeout)
			defer cancel()
		}
		_, err := r.dispatcher.Dispatch(dctx, order)
		return err

	default:
		return fmt.Errorf("unknown post-commit task %q", task)
	}
}

func (r *PostCommitRunner) enqueue(ctx context.Context, followup domain.Followup) {
	if r.followups == nil {
		return
	}
	if err := r.followups.Enqueue(ctx, followup); err != nil {
		r.logger.ErrorContext(ctx, "failed to enqueue followup",
			"order_number", followup.OrderNumber,
			"task", string(followup.Task),
			"task_error", followup.LastError,
			"error", err,
		)
	}
}

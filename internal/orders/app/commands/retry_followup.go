package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/pkg/retry"
)

// FollowupRetrier re-runs failed post-commit tasks handed over by the
// reconciler. Failures are requeued with backoff until MaxAttempts.
type FollowupRetrier struct {
	repo        ports.OrderRepository
	runner      *PostCommitRunner
	queue       ports.FollowupQueue
	backoff     retry.BackoffStrategy
	maxAttempts int
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewFollowupRetrier(
	repo ports.OrderRepository,
	runner *PostCommitRunner,
	queue ports.FollowupQueue,
	backoff retry.BackoffStrategy,
	maxAttempts int,
	logger *slog.Logger,
) *FollowupRetrier {
	if backoff == nil {
		backoff = retry.NewDefaultExponentialBackoff()
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &FollowupRetrier{
		repo:        repo,
		runner:      runner,
		queue:       queue,
		backoff:     backoff,
		maxAttempts: maxAttempts,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Handle runs one followup. It returns an error only when the followup could
// neither be completed nor requeued, so the caller should not acknowledge it.
func (r *FollowupRetrier) Handle(ctx context.Context, followup domain.Followup) error {
	order, err := r.repo.GetByNumber(ctx, followup.OrderNumber)
	if errors.Is(err, ports.ErrNotFound) {
		r.logger.WarnContext(ctx, "dropping followup for unknown order",
			"order_number", followup.OrderNumber,
			"task", string(followup.Task),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order %s: %w", followup.OrderNumber, err)
	}

	if followup.Task == domain.TaskDispatchShipment && order.Status == domain.StatusCancelled {
		r.logger.InfoContext(ctx, "skipping shipment for cancelled order", "order_number", order.Number)
		return nil
	}

	taskErr := r.runner.RunTask(ctx, followup.Task, *order)
	if taskErr == nil {
		r.logger.InfoContext(ctx, "followup completed",
			"order_number", order.Number,
			"task", string(followup.Task),
			"attempt", followup.Attempt,
		)
		return nil
	}

	if followup.Attempt >= r.maxAttempts {
		r.logger.ErrorContext(ctx, "giving up on followup",
			"order_number", order.Number,
			"customer_id", order.CustomerID,
			"task", string(followup.Task),
			"attempt", followup.Attempt,
			"error", taskErr,
		)
		return nil
	}

	if err := r.sleep(ctx, r.backoff.NextBackoff(followup.Attempt)); err != nil {
		return err
	}

	next := followup
	next.Attempt++
	next.LastError = taskErr.Error()
	r.logger.WarnContext(ctx, "requeueing followup",
		"order_number", order.Number,
		"task", string(followup.Task),
		"attempt", next.Attempt,
		"error", taskErr,
	)
	if err := r.queue.Enqueue(ctx, next); err != nil {
		return fmt.Errorf("requeue followup: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// ErrQueueFull is returned by Enqueue when the buffer has no room left.
var ErrQueueFull = errors.New("followup queue is full")

const (
	defaultRedeliveryDelay = time.Second
	defaultMaxRedeliveries = 5
)

type queuedFollowup struct {
	followup     domain.Followup
	redeliveries int
}

// FollowupQueue is an in-process followup buffer used when no broker is
// configured. Followups are lost on restart.
//
// A followup whose handler fails is redelivered after a delay. Once it has
// been redelivered maxRedeliveries times, or cannot be put back, it is kept
// in a bounded dead-letter list instead.
type FollowupQueue struct {
	items           chan queuedFollowup
	logger          *slog.Logger
	redeliveryDelay time.Duration
	maxRedeliveries int

	mu          sync.Mutex
	deadLetters []domain.Followup
}

type FollowupQueueOption func(*FollowupQueue)

func WithRedeliveryDelay(d time.Duration) FollowupQueueOption {
	return func(q *FollowupQueue) { q.redeliveryDelay = d }
}

func WithMaxRedeliveries(n int) FollowupQueueOption {
	return func(q *FollowupQueue) { q.maxRedeliveries = n }
}

func NewFollowupQueue(capacity int, logger *slog.Logger, opts ...FollowupQueueOption) *FollowupQueue {
	if capacity <= 0 {
		capacity = 256
	}
	q := &FollowupQueue{
		items:           make(chan queuedFollowup, capacity),
		logger:          logger,
		redeliveryDelay: defaultRedeliveryDelay,
		maxRedeliveries: defaultMaxRedeliveries,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *FollowupQueue) Enqueue(ctx context.Context, followup domain.Followup) error {
	return q.push(ctx, queuedFollowup{followup: followup})
}

func (q *FollowupQueue) push(ctx context.Context, item queuedFollowup) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len reports how many followups are waiting.
func (q *FollowupQueue) Len() int {
	return len(q.items)
}

// DeadLetters returns the followups that were given up on, oldest first.
func (q *FollowupQueue) DeadLetters() []domain.Followup {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.Followup, len(q.deadLetters))
	copy(out, q.deadLetters)
	return out
}

// Consume hands queued followups to handler until ctx is done.
func (q *FollowupQueue) Consume(ctx context.Context, handler func(ctx context.Context, followup domain.Followup) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-q.items:
			err := handler(ctx, item.followup)
			if err == nil {
				continue
			}
			q.logger.ErrorContext(ctx, "followup handler failed",
				"order_number", item.followup.OrderNumber,
				"task", string(item.followup.Task),
				"attempt", item.followup.Attempt,
				"redeliveries", item.redeliveries,
				"error", err,
			)
			q.redeliver(ctx, item)
		}
	}
}

func (q *FollowupQueue) redeliver(ctx context.Context, item queuedFollowup) {
	if item.redeliveries >= q.maxRedeliveries {
		q.deadLetter(ctx, item.followup, errors.New("redelivery limit reached"))
		return
	}
	if q.redeliveryDelay > 0 {
		t := time.NewTimer(q.redeliveryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			q.deadLetter(ctx, item.followup, ctx.Err())
			return
		case <-t.C:
		}
	}
	item.redeliveries++
	if err := q.push(context.WithoutCancel(ctx), item); err != nil {
		q.deadLetter(ctx, item.followup, err)
	}
}

func (q *FollowupQueue) deadLetter(ctx context.Context, followup domain.Followup, reason error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	// Bounded by the queue capacity; the oldest entry goes first.
	if len(q.deadLetters) == cap(q.items) {
		q.deadLetters = q.deadLetters[1:]
	}
	q.deadLetters = append(q.deadLetters, followup)
	q.logger.ErrorContext(ctx, "followup dead-lettered",
		"order_number", followup.OrderNumber,
		"customer_id", followup.CustomerID,
		"task", string(followup.Task),
		"attempt", followup.Attempt,
		"reason", reason,
	)
}

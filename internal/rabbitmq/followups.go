// Package rabbitmq carries failed post-commit tasks from the API to the
// reconciler over a durable RabbitMQ queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	amqp "github.com/streadway/amqp"
)

// Config holds RabbitMQ connection details.
type Config struct {
	URL      string
	Queue    string
	Prefetch int
}

// FollowupQueue publishes and consumes followups as persistent JSON messages.
type FollowupQueue struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	prefetch int
	logger   *slog.Logger

	// amqp channels are not safe for concurrent publishing.
	mu sync.Mutex
}

// NewFollowupQueue connects and declares the durable queue.
func NewFollowupQueue(cfg Config, logger *slog.Logger) (*FollowupQueue, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}

	logger.Info("rabbitmq followup queue ready", "queue", cfg.Queue)
	return &FollowupQueue{
		conn:     conn,
		channel:  ch,
		queue:    cfg.Queue,
		prefetch: prefetch,
		logger:   logger,
	}, nil
}

func (q *FollowupQueue) Enqueue(ctx context.Context, followup domain.Followup) error {
	body, err := json.Marshal(followup)
	if err != nil {
		return fmt.Errorf("marshal followup: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	err = q.channel.Publish("", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(followup.Task),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish followup: %w", err)
	}
	return nil
}

// Handler processes one followup. Returning an error requeues the message.
type Handler func(ctx context.Context, followup domain.Followup) error

// Consume delivers followups to handler until ctx is cancelled or the
// channel closes. Messages are acknowledged only after handler returns.
func (q *FollowupQueue) Consume(ctx context.Context, handler Handler) error {
	if err := q.channel.Qos(q.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	q.logger.InfoContext(ctx, "consuming followups", "queue", q.queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			handleDelivery(ctx, d, handler, q.logger)
		}
	}
}

func handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler, logger *slog.Logger) {
	var followup domain.Followup
	if err := json.Unmarshal(d.Body, &followup); err != nil {
		logger.ErrorContext(ctx, "discarding malformed followup", "delivery_tag", d.DeliveryTag, "error", err)
		if err := d.Reject(false); err != nil {
			logger.ErrorContext(ctx, "failed to reject followup", "delivery_tag", d.DeliveryTag, "error", err)
		}
		return
	}

	if err := handler(ctx, followup); err != nil {
		logger.WarnContext(ctx, "followup handler failed, requeueing",
			"order_number", followup.OrderNumber,
			"task", string(followup.Task),
			"error", err,
		)
		if err := d.Nack(false, true); err != nil {
			logger.ErrorContext(ctx, "failed to nack followup", "delivery_tag", d.DeliveryTag, "error", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		logger.ErrorContext(ctx, "failed to ack followup", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

// Close closes the channel and the connection.
func (q *FollowupQueue) Close() error {
	var errs []error
	if q.channel != nil {
		if err := q.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

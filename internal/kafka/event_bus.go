package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shopify/sarama"
	"github.com/dejobratic/storefront/internal/orders/domain"
)

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventShipmentCreated    = "order.shipment_created"
)

// Event is the envelope of every message on the order topic. Messages are
// keyed by order number so one order's events stay in sequence.
type Event struct {
	Type        string          `json:"type"`
	OrderNumber string          `json:"order_number"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

type StatusChange struct {
	From domain.OrderStatus `json:"from"`
	To   domain.OrderStatus `json:"to"`
}

// EventBus publishes order lifecycle events to Kafka.
type EventBus struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
	now      func() time.Time
}

// NewEventBus connects a synchronous producer that waits for all in-sync replicas.
func NewEventBus(brokers []string, topic string, logger *slog.Logger) (*EventBus, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Retry.Backoff = 250 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewEventBusWithProducer(producer, topic, logger), nil
}

func NewEventBusWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *EventBus {
	return &EventBus{producer: producer, topic: topic, logger: logger, now: time.Now}
}

func (b *EventBus) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	return b.send(ctx, EventOrderPlaced, order.Number, order)
}

func (b *EventBus) PublishOrderStatusChanged(ctx context.Context, number string, from, to domain.OrderStatus) error {
	return b.send(ctx, EventOrderStatusChanged, number, StatusChange{From: from, To: to})
}

func (b *EventBus) PublishShipmentCreated(ctx context.Context, number string, shipment domain.Shipment) error {
	return b.send(ctx, EventShipmentCreated, number, shipment)
}

func (b *EventBus) send(ctx context.Context, eventType, orderNumber string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	value, err := json.Marshal(Event{
		Type:        eventType,
		OrderNumber: orderNumber,
		OccurredAt:  b.now().UTC(),
		Payload:     raw,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(orderNumber),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
		},
	}

	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s for %s: %w", eventType, orderNumber, err)
	}

	b.logger.DebugContext(ctx, "event published",
		"event_type", eventType,
		"order_number", orderNumber,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

func (b *EventBus) Close() error {
	return b.producer.Close()
}

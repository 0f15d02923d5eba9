// Package events fans order changes out to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"restaurant-fulfillment/internal/domain"
	"restaurant-fulfillment/internal/outbox"
)

type Publisher interface {
	Publish(ctx context.Context, ev domain.OrderEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per event, keyed order-<status>-<orderId>.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaWriter builds the writer used by NewKafkaPublisher.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

func NewKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

func Key(ev domain.OrderEvent) string {
	return fmt.Sprintf("order-%s-%s", ev.Status, ev.OrderID)
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.OrderEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(Key(ev)),
		Value: value,
		Time:  ev.OccurredAt,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// LogPublisher stands in when no brokers are configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev domain.OrderEvent) error {
	p.logger.Info().
		Str("key", Key(ev)).
		Str("order_number", ev.OrderNumber).
		Str("status", string(ev.Status)).
		Str("payment_status", string(ev.PaymentStatus)).
		Msg("events: order event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// TaskHandler runs publish_order_event outbox tasks.
type TaskHandler struct {
	pub Publisher
}

func NewTaskHandler(pub Publisher) *TaskHandler {
	return &TaskHandler{pub: pub}
}

func (h *TaskHandler) Handle(ctx context.Context, task domain.Task) error {
	var ev domain.OrderEvent
	if err := json.Unmarshal(task.Payload, &ev); err != nil {
		return outbox.Permanent(fmt.Errorf("decode order event: %w", err))
	}
	// Events queued at creation are built before the order id exists.
	if ev.OrderID == "" {
		ev.OrderID = task.OrderID
	}
	if ev.Order != nil && ev.Order.ID == "" {
		ev.Order.ID = task.OrderID
	}
	return h.pub.Publish(ctx, ev)
}

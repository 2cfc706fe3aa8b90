// Package events публикует события жизненного цикла заказа в Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderStatusChanged EventType = "order.status_changed"
	EventOrderCancelled     EventType = "order.cancelled"
)

// OrderEvent: конверт события
type OrderEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	OrderID   int64           `json:"order_id"`
	Customer  int64           `json:"customer_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher: то, что нужно сервисам заказов
type Publisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
	PublishOrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher пишет события в топик заказов, ключ сообщения: id заказа,
// чтобы события одного заказа попадали в одну партицию.
type KafkaPublisher struct {
	writer messageWriter
	log    *slog.Logger
	now    func() time.Time
}

func NewKafkaPublisher(log *slog.Logger, brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	return newPublisher(log, writer)
}

func newPublisher(log *slog.Logger, w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log, now: time.Now}
}

func (p *KafkaPublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	return p.publish(ctx, EventOrderCreated, order, order)
}

func (p *KafkaPublisher) PublishOrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	payload := struct {
		Order          *models.Order      `json:"order"`
		PreviousStatus models.OrderStatus `json:"previous_status"`
		NewStatus      models.OrderStatus `json:"new_status"`
	}{Order: order, PreviousStatus: previous, NewStatus: order.Status}

	eventType := EventOrderStatusChanged
	if order.Status == models.StatusCancelled {
		eventType = EventOrderCancelled
	}
	return p.publish(ctx, eventType, order, payload)
}

func (p *KafkaPublisher) publish(ctx context.Context, eventType EventType, order *models.Order, payload any) error {
	const op = "events.KafkaPublisher.publish"

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", op, err)
	}
	event := OrderEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		OrderID:   order.ID,
		Customer:  order.CustomerID,
		Data:      data,
		Timestamp: p.now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: marshal event: %w", op, err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(order.ID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish event",
			slog.String("op", op),
			slog.String("type", string(eventType)),
			slog.Int64("orderID", order.ID),
			slog.Any("error", err),
		)
		return fmt.Errorf("%s: %w", op, err)
	}
	p.log.Debug("event published", slog.String("type", string(eventType)), slog.Int64("orderID", order.ID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher используется, когда брокеры не настроены
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderCreated(context.Context, *models.Order) error { return nil }

func (NoopPublisher) PublishOrderStatusChanged(context.Context, *models.Order, models.OrderStatus) error {
	return nil
}

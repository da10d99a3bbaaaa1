// Package kafka streams order lifecycle events for downstream consumers
// (notifications, analytics). Publishing is best-effort: the checkout and
// settlement flows never fail because the broker is down.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/forfit/storefront/internal/models"
)

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

type orderEvent struct {
	Type      string       `json:"type"`
	Order     models.Order `json:"order"`
	Timestamp time.Time    `json:"timestamp"`
}

func (p *Producer) publish(eventType string, order models.Order) error {
	msg, err := json.Marshal(orderEvent{
		Type:      eventType,
		Order:     order,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(order.ID),
		Value: msg,
	})
}

func (p *Producer) PublishOrderCreated(order models.Order) error {
	return p.publish("order.created", order)
}

func (p *Producer) PublishOrderPaid(order models.Order) error {
	return p.publish("order.paid", order)
}

func (p *Producer) PublishOrderCancelled(order models.Order) error {
	return p.publish("order.cancelled", order)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

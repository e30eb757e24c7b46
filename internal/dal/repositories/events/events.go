package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mediguard/order/internal/dal/interfaces/ioutboxrepo"
	"github.com/mediguard/order/internal/dal/rabbitmq"
	"github.com/mediguard/order/internal/service/models/outbox"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
	TypeOrderCancelled     = "order.cancelled"
	TypeOrderRefundFailed  = "order.refund_failed"
)

// OrderEvent is the payload published to RabbitMQ for every order lifecycle
// change.
type OrderEvent struct {
	Type          string    `json:"type"`
	OrderID       uuid.UUID `json:"orderId"`
	UserID        string    `json:"userId"`
	Status        string    `json:"status"`
	AmountCents   int64     `json:"amountCents,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// RabbitMQPublisher publishes order events. A failed publish is parked in
// the outbox table and retried by the outbox worker instead of failing the
// request that produced it.
type RabbitMQPublisher struct {
	client     *rabbitmq.Client
	queue      amqp.Queue
	outboxRepo ioutboxrepo.IOutboxRepository
	maxRetries int
}

// MustNewRabbitMQPublisher declares the order events queue and creates a
// publisher, panicking when the declare fails.
func MustNewRabbitMQPublisher(
	client *rabbitmq.Client,
	outboxRepo ioutboxrepo.IOutboxRepository,
) *RabbitMQPublisher {
	queueName := viper.GetString("rabbitmq.events.queue")
	if queueName == "" {
		queueName = "oms.order.events"
	}

	queue, err := client.DeclareQueue(rabbitmq.DeclareQueueConfig{
		Name:       queueName,
		Durable:    true,
		Exclusive:  false,
		AutoDelete: false,
	})
	if err != nil {
		panic(err)
	}

	maxRetries := viper.GetInt("rabbitmq.outbox.max_retries")
	if maxRetries == 0 {
		maxRetries = 5
	}

	return &RabbitMQPublisher{
		client:     client,
		queue:      queue,
		outboxRepo: outboxRepo,
		maxRetries: maxRetries,
	}
}

// Publish sends one order event, falling back to the outbox on failure.
func (r *RabbitMQPublisher) Publish(ctx context.Context, event OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	err = r.client.Channel().Publish(
		"",
		r.queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        payload,
		},
	)
	if err == nil {
		return nil
	}

	slog.Warn("Failed to publish order event, parking in outbox",
		"type", event.Type,
		"order_id", event.OrderID,
		"error", err,
	)

	now := time.Now().UTC()
	if outboxErr := r.outboxRepo.Insert(ctx, outbox.Message{
		QueueName:   r.queue.Name,
		RoutingKey:  r.queue.Name,
		Payload:     payload,
		ContentType: "application/json",
		MaxRetries:  r.maxRetries,
		LastError:   err.Error(),
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now,
	}); outboxErr != nil {
		return fmt.Errorf("failed to park order event in outbox: %w", outboxErr)
	}

	return nil
}

// PublishAll publishes a batch of events with bounded parallelism.
func (r *RabbitMQPublisher) PublishAll(ctx context.Context, events []OrderEvent) error {
	publishCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	g, publishCtx := errgroup.WithContext(publishCtx)
	g.SetLimit(3)

	for _, event := range events {
		event := event
		g.Go(func() error {
			return r.Publish(publishCtx, event)
		})
	}

	return g.Wait()
}

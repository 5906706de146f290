package orders

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/pasalhub/pasalmart-backend/pkg/enums"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
	"github.com/pasalhub/pasalmart-backend/pkg/outbox"
	"github.com/pasalhub/pasalmart-backend/pkg/outbox/payloads"
)

const orderConsumerName = "order-forwarding"

type forwarder interface {
	Forward(ctx context.Context, orderID uuid.UUID) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer forwards orders to suppliers when they become actionable:
// order_paid always, order_created only for cash-on-delivery (online orders
// wait for settlement). The dispatcher re-checks order state under lock, so
// redelivered or racing events are harmless.
type Consumer struct {
	dispatcher   forwarder
	subscription *pubsub.Subscriber
	manager      idempotencyChecker
	logg         *logger.Logger
}

// NewConsumer builds the order event consumer.
func NewConsumer(dispatcher forwarder, subscription *pubsub.Subscriber, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("forwarding dispatcher required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		dispatcher:   dispatcher,
		subscription: subscription,
		manager:      manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("order subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		eventType := enums.OutboxEventType(msg.Attributes["event_type"])

		var envelope outbox.PayloadEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			c.logg.Error(ctx, "failed to decode envelope", err)
			msg.Ack()
			return
		}

		if err := c.Process(ctx, eventType, envelope); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process handles one decoded outbox envelope. Returned errors mean the
// message should be redelivered.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	orderID, ok, err := c.extractOrderID(eventType, envelope)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse order event", err)
		return nil
	}
	if !ok {
		c.logg.Info(logCtx, "event not handled by order consumer")
		return nil
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return nil
	}

	already, err := c.manager.CheckAndMarkProcessed(ctx, orderConsumerName, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	if err := c.dispatcher.Forward(ctx, orderID); err != nil {
		c.logg.Error(logCtx, "supplier forwarding failed", err)
		_ = c.manager.Delete(ctx, orderConsumerName, eventID)
		return err
	}
	return nil
}

// extractOrderID returns (orderID, handled, err). Malformed payloads are
// reported as errors; unhandled event types as handled=false.
func (c *Consumer) extractOrderID(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (uuid.UUID, bool, error) {
	switch eventType {
	case enums.EventOrderPaid:
		var payload payloads.OrderPaidEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return uuid.Nil, false, err
		}
		return payload.OrderID, true, nil
	case enums.EventOrderCreated:
		var payload payloads.OrderCreatedEvent
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return uuid.Nil, false, err
		}
		// Online orders only ship after settlement; the paid event covers them.
		if payload.Provider != enums.ProviderCOD {
			return uuid.Nil, false, nil
		}
		return payload.OrderID, true, nil
	default:
		return uuid.Nil, false, nil
	}
}

package notifications

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/pubsub/v2"

	"github.com/milletlink/milletlink-backend/pkg/enums"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/logger"
	"github.com/milletlink/milletlink-backend/pkg/outbox"
)

// Consumer pulls published domain events and feeds them to the notification
// service. Poison messages are acked and logged; transient failures are
// nacked for redelivery.
type Consumer struct {
	sub  *pubsub.Subscriber
	svc  *Service
	logg *logger.Logger
}

func NewConsumer(sub *pubsub.Subscriber, svc *Service, logg *logger.Logger) *Consumer {
	return &Consumer{sub: sub, svc: svc, logg: logg}
}

// Run blocks until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		if c.process(msgCtx, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns whether the message should be acked.
func (c *Consumer) process(ctx context.Context, attributes map[string]string, data []byte) bool {
	eventType, err := enums.ParseOutboxEventType(attributes["event_type"])
	if err != nil {
		c.warn(ctx, "unknown event type, dropping message")
		return true
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.warn(ctx, "undecodable event payload, dropping message")
		return true
	}

	if err := c.svc.Handle(ctx, eventType, envelope); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			c.warn(ctx, "invalid event payload, dropping message")
			return true
		}
		if c.logg != nil {
			c.logg.Error(ctx, "notification handling failed, retrying", err)
		}
		return false
	}
	return true
}

func (c *Consumer) warn(ctx context.Context, msg string) {
	if c.logg != nil {
		c.logg.Warn(ctx, msg)
	}
}

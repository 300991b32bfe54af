package consumer

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/eventvault/common/messaging"
	"github.com/telhawk-systems/eventvault/common/messaging/nats"
	"github.com/telhawk-systems/eventvault/common/middleware"
)

// DurableName is the JetStream consumer shared by every pipeline instance.
const DurableName = "eventvault-ingest"

// MessageHandler adapts the handler to JetStream delivery. Messages are
// acknowledged once stored or dead-lettered; only cancellation asks for
// redelivery.
func (h *Handler) MessageHandler() messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		if id := msg.Metadata[messaging.HeaderRequestID]; id != "" {
			ctx = middleware.WithRequestID(ctx, id)
		}
		h.Handle(ctx, msg.Data)
		return ctx.Err()
	}
}

// SubscribeJetStream ensures the envelope stream and durable consumer exist
// and starts consuming. The returned function stops consumption.
func SubscribeJetStream(ctx context.Context, js *nats.JetStreamClient, h *Handler) (func(), error) {
	if _, err := js.CreateOrUpdateStream(ctx, nats.EnvelopeStream); err != nil {
		return nil, fmt.Errorf("create envelope stream: %w", err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, nats.FailureStream); err != nil {
		return nil, fmt.Errorf("create failure stream: %w", err)
	}

	cfg := nats.DefaultConsumerConfig(DurableName, messaging.SubjectIngestEvents)
	if _, err := js.CreateOrUpdateConsumer(ctx, nats.EnvelopeStream.Name, cfg); err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	stop, err := js.ConsumeMessages(ctx, nats.EnvelopeStream.Name, DurableName, h.MessageHandler())
	if err != nil {
		return nil, err
	}
	h.logger.Info("consuming anchored envelopes from jetstream", "stream", nats.EnvelopeStream.Name, "consumer", DurableName)
	return stop, nil
}

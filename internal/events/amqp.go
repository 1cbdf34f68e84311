package events

import (
	"context"
	"fmt"
)

// BrokerPublisher is the subset of the RabbitMQ client used to emit events
type BrokerPublisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// AMQPPublisher publishes events with the event type as routing key
type AMQPPublisher struct {
	client BrokerPublisher
}

// NewAMQPPublisher wraps a broker client
func NewAMQPPublisher(client BrokerPublisher) *AMQPPublisher {
	return &AMQPPublisher{client: client}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := Encode(e)
	if err != nil {
		return err
	}
	if err := p.client.PublishWithRetry(ctx, string(e.Type), body, ContentType); err != nil {
		return fmt.Errorf("failed to publish %s for job %s: %w", e.Type, e.JobID, err)
	}
	return nil
}

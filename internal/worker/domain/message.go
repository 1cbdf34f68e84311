package domain

import (
	"github.com/cuongbtq/sensei-scan/internal/events"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventMessage pairs a decoded event with the delivery to acknowledge
type EventMessage struct {
	Event    events.Event
	Delivery amqp.Delivery
}

package events

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queues lists the queues taskchat declares.
var Queues = []string{ChatMessagesQueue, ChatRepliesQueue, TaskEventsQueue}

// Peeked is a message read without consuming it.
type Peeked struct {
	Body        []byte
	Redelivered bool
	Remaining   int
}

// getter is the part of *amqp.Channel Peek uses.
type getter interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
}

// Peek reads up to count messages from queue and puts them back.
func Peek(url, queue string, count int) ([]Peeked, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	return peek(ch, queue, count)
}

func peek(ch getter, queue string, count int) ([]Peeked, error) {
	var out []Peeked
	var last amqp.Delivery
	for len(out) < count {
		d, ok, err := ch.Get(queue, false)
		if err != nil {
			return nil, fmt.Errorf("failed to get from %s: %w", queue, err)
		}
		if !ok {
			break
		}
		last = d
		out = append(out, Peeked{Body: d.Body, Redelivered: d.Redelivered, Remaining: int(d.MessageCount)})
	}
	if len(out) > 0 {
		// requeue everything read so far
		if err := last.Nack(true, true); err != nil {
			return nil, fmt.Errorf("failed to requeue %s messages: %w", queue, err)
		}
	}
	return out, nil
}

// Package events connects the chat engine to RabbitMQ: task events and chat
// replies go out, chat messages come in.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"hound-taskchat/internal/chat"
)

const (
	// Queue names
	TaskEventsQueue   = "task.events"
	ChatMessagesQueue = "chat.messages"
	ChatRepliesQueue  = "chat.replies"

	publishTimeout = 5 * time.Second
)

// ChatReply is the answer to a queued ChatMessage.
type ChatReply struct {
	UserID             string      `json:"user_id"`
	ConversationID     string      `json:"conversation_id,omitempty"`
	MessageID          string      `json:"message_id,omitempty"`
	Reply              string      `json:"reply"`
	NeedsClarification bool        `json:"needs_clarification"`
	Actions            interface{} `json:"actions"`
}

// publishChannel is the part of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher handles RabbitMQ message publishing
type Publisher struct {
	conn    *amqp.Connection
	channel publishChannel
}

// NewPublisher connects to RabbitMQ and declares the outgoing queues.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p := &Publisher{conn: conn, channel: ch}

	for _, q := range []string{TaskEventsQueue, ChatRepliesQueue} {
		_, err = ch.QueueDeclare(
			q,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to declare queue %s: %w", q, err)
		}
	}

	return p, nil
}

// PublishTaskEvent implements chat.EventSink.
func (p *Publisher) PublishTaskEvent(ctx context.Context, ev chat.TaskEvent) error {
	return p.publish(ctx, TaskEventsQueue, ev)
}

// PublishReply publishes the answer to a queued chat message.
func (p *Publisher) PublishReply(ctx context.Context, reply *ChatReply) error {
	return p.publish(ctx, ChatRepliesQueue, reply)
}

func (p *Publisher) publish(ctx context.Context, queue string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", queue, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		"",    // exchange (default)
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

// Close gracefully shuts down the publisher
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

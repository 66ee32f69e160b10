package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"hound-taskchat/internal/chat"
	apperrors "hound-taskchat/shared/errors"
	"hound-taskchat/shared/idempotency"
	"hound-taskchat/shared/logging"
)

// ChatMessage is one chat turn submitted through the queue.
type ChatMessage struct {
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Dialect        string `json:"dialect"`
	Timezone       string `json:"timezone"`
	MessageID      string `json:"message_id"`
}

// Handler is called for each message received. A returned error requeues
// the delivery.
type Handler func(ctx context.Context, msg *ChatMessage) error

// Consumer consumes chat messages from RabbitMQ
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *logging.Logger
}

// NewConsumer connects to RabbitMQ and declares the chat message queue.
func NewConsumer(rabbitMQURL string, logger *logging.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(rabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		ChatMessagesQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// one unacked message at a time keeps a conversation's turns in order
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Consumer{conn: conn, channel: ch, logger: logger}, nil
}

// Start consumes until ctx is done or the channel closes.
func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	msgs, err := c.channel.Consume(
		ChatMessagesQueue,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Waiting for messages on queue: %s", ChatMessagesQueue)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer shutting down")
			return ctx.Err()

		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("channel closed")
			}
			process(ctx, c.logger, delivery, handler)
		}
	}
}

// process handles one delivery: malformed bodies are dropped, handler
// failures are requeued.
func process(ctx context.Context, logger *logging.Logger, delivery amqp.Delivery, handler Handler) {
	var msg ChatMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		logger.Error("Failed to parse message: %v", err)
		delivery.Nack(false, false)
		return
	}

	logger.Info("Received message %s from %s", msg.MessageID, msg.UserID)

	if err := handler(ctx, &msg); err != nil {
		logger.Error("Failed to process message %s: %v", msg.MessageID, err)
		delivery.Nack(false, true)
		return
	}
	delivery.Ack(false)
}

// Close cleanly shuts down the consumer
func (c *Consumer) Close() error {
	if err := c.channel.Close(); err != nil {
		return err
	}
	return c.conn.Close()
}

// Chatter runs one chat turn.
type Chatter interface {
	Handle(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// ReplyPublisher sends chat replies.
type ReplyPublisher interface {
	PublishReply(ctx context.Context, reply *ChatReply) error
}

// ChatHandler answers queued messages through c and publishes the replies.
// A message with a message_id is idempotent, so a requeued delivery replays
// its stored response instead of running the turn twice.
func ChatHandler(c Chatter, replies ReplyPublisher, logger *logging.Logger) Handler {
	return func(ctx context.Context, msg *ChatMessage) error {
		req := chat.Request{
			UserID:         msg.UserID,
			Message:        msg.Message,
			ConversationID: msg.ConversationID,
			Dialect:        msg.Dialect,
			Timezone:       msg.Timezone,
			RequestID:      msg.MessageID,
		}
		if id := strings.TrimSpace(msg.MessageID); id != "" {
			req.IdempotencyKey = idempotency.GenerateKey("queue", msg.UserID, id)
		}

		resp, err := c.Handle(ctx, req)
		if err != nil {
			var verr *apperrors.ValidationError
			if errors.As(err, &verr) {
				// retrying cannot fix the message
				logger.Warn("Dropping invalid message %s: %v", msg.MessageID, err)
				return nil
			}
			return fmt.Errorf("chat turn failed: %w", err)
		}

		return replies.PublishReply(ctx, &ChatReply{
			UserID:             msg.UserID,
			ConversationID:     msg.ConversationID,
			MessageID:          msg.MessageID,
			Reply:              resp.Reply,
			NeedsClarification: resp.NeedsClarification,
			Actions:            resp.Actions,
		})
	}
}

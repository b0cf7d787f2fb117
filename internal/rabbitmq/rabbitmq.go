package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrChannelClosed = errors.New("delivery channel closed")
	ErrBadMessage    = errors.New("malformed message")
)

type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

func New(urlForConn string, queueName string) (*RabbitMQClient, error) {
	const op = "rabbitmq.New"

	conn, err := amqp.Dial(urlForConn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	q, err := ch.QueueDeclare(
		queueName, true, false, false, false, nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: ch,
		queue:   q,
	}, nil
}

func (r *RabbitMQClient) SendMessage(ctx context.Context, msg models.Message) error {
	const op = "rabbitmq.SendMessage"

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		"",
		r.queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: deliveryMode(msg),
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// deliveryMode keeps messages carrying a one-time link out of the broker's
// disk store.
func deliveryMode(msg models.Message) uint8 {
	if msg.Link != "" {
		return amqp.Transient
	}

	return amqp.Persistent
}

// Handler processes one mail job. A returned error requeues the delivery
// unless the body could not be decoded.
type Handler func(ctx context.Context, msg models.Message) error

// StartReading consumes the queue until ctx is done.
func (r *RabbitMQClient) StartReading(ctx context.Context, handle Handler) error {
	const op = "rabbitmq.StartReading"

	if err := r.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	deliveries, err := r.channel.ConsumeWithContext(ctx, r.queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%s: %w", op, ErrChannelClosed)
			}

			if err := Dispatch(ctx, d.Body, handle); err != nil {
				_ = d.Nack(false, !errors.Is(err, ErrBadMessage))
				continue
			}

			_ = d.Ack(false)
		}
	}
}

// Dispatch decodes body and hands it to handle. Bodies that can never be
// handled fail with ErrBadMessage and are dropped instead of requeued.
func Dispatch(ctx context.Context, body []byte, handle Handler) error {
	var msg models.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMessage, err)
	}

	if msg.Email == "" || msg.Purpose == "" {
		return fmt.Errorf("%w: missing recipient or purpose", ErrBadMessage)
	}

	if !msg.Purpose.Known() {
		return fmt.Errorf("%w: unknown purpose %q", ErrBadMessage, msg.Purpose)
	}

	return handle(ctx, msg)
}

func (r *RabbitMQClient) Close() {
	_ = r.channel.Close()
	_ = r.conn.Close()
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue names consumed by the mailer
const (
	InviteQueue        = "homestead.invite"
	PasswordResetQueue = "homestead.password_reset"
)

// Publisher is the subset of an AMQP channel used for publishing
type Publisher interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notices as persistent JSON messages
type AMQPNotifier struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel Publisher
	now     func() time.Time
}

// DialAMQP connects to the broker and declares the notice queues
func DialAMQP(url string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	n, err := NewAMQPNotifier(ch)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	n.conn = conn
	return n, nil
}

// NewAMQPNotifier uses an open channel and declares the notice queues
func NewAMQPNotifier(ch Publisher) (*AMQPNotifier, error) {
	for _, queue := range []string{InviteQueue, PasswordResetQueue} {
		// Durable so notices survive broker restarts
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
	}
	return &AMQPNotifier{
		channel: ch,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// SendInvite implements Notifier
func (n *AMQPNotifier) SendInvite(ctx context.Context, msg InviteMessage) error {
	return n.publish(ctx, InviteQueue, msg)
}

// SendPasswordResetNotice implements Notifier
func (n *AMQPNotifier) SendPasswordResetNotice(ctx context.Context, msg PasswordResetMessage) error {
	return n.publish(ctx, PasswordResetQueue, msg)
}

func (n *AMQPNotifier) publish(ctx context.Context, queue string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.now(),
		Body:         body,
	}

	// Channels are not safe for concurrent publishing
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.channel.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

// Close closes the channel and connection
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	err := n.channel.Close()
	if n.conn != nil {
		if cerr := n.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

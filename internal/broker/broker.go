package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"incentive-ledger-go/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 10 * time.Second

// Publisher publishes committed ledger entries to a topic exchange, one
// persistent JSON message per entry, routed by <routing key>.<kind>.
type Publisher struct {
	cfg models.AMQPConfig

	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

func NewPublisher(cfg models.AMQPConfig) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("amqp config requires URL")
	}
	if cfg.Exchange == "" {
		return nil, fmt.Errorf("amqp config requires Exchange")
	}

	p := &Publisher{cfg: cfg}
	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.cfg.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = ch

	zap.L().Info("Connected to RabbitMQ", zap.String("exchange", p.cfg.Exchange))
	return nil
}

func (p *Publisher) Name() string { return "amqp" }

// Publish sends one entry. A closed connection is re-dialled once; the
// relay retries anything still failing on its next poll.
func (p *Publisher) Publish(ctx context.Context, entry models.LedgerEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", entry.Id, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		p.closeLocked()
		zap.L().Warn("RabbitMQ channel closed, reconnecting")
		if err := p.connect(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		p.cfg.Exchange,
		RoutingKey(p.cfg.RoutingKey, entry.Kind),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    entry.Id,
			Timestamp:    entry.CreatedAt,
			Type:         string(entry.Kind),
			Headers: amqp.Table{
				"user_id":    entry.UserId,
				"related_id": entry.RelatedId,
			},
			Body: body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish entry %s: %w", entry.Id, err)
	}

	zap.L().Debug("Entry published to RabbitMQ",
		zap.String("entry_id", entry.Id),
		zap.String("kind", string(entry.Kind)))
	return nil
}

// RoutingKey appends the entry kind so consumers can bind to e.g. ledger.entry.commission
func RoutingKey(prefix string, kind models.EntryKind) string {
	if prefix == "" {
		return string(kind)
	}
	return prefix + "." + string(kind)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	zap.L().Info("RabbitMQ publisher closed")
}

func (p *Publisher) closeLocked() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

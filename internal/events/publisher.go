// Package events publishes analysis notifications to RabbitMQ.
package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-insights/internal/domain"
)

const publishTimeout = 5 * time.Second

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends insights.generated messages to a topic exchange.
type Publisher struct {
	conn       *amqp.Connection
	ch         channel
	exchange   string
	routingKey string
	now        func() time.Time
	log        zerolog.Logger
}

// NewPublisher dials url and declares a durable topic exchange.
func NewPublisher(url, exchange, routingKey string, log zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("NewPublisher: dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewPublisher: open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("NewPublisher: declare exchange: %w", err)
	}

	p := newPublisher(ch, exchange, routingKey, log)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange, routingKey string, log zerolog.Logger) *Publisher {
	return &Publisher{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		now:        time.Now,
		log:        log.With().Str("component", "events").Logger(),
	}
}

// PublishInsightsGenerated implements advisor.Publisher.
func (p *Publisher) PublishInsightsGenerated(ctx context.Context, a *domain.Analysis) error {
	msg := NewInsightsGeneratedMessage(a, p.now())
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("PublishInsightsGenerated: marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(
		ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    a.ID,
			Timestamp:    msg.Timestamp,
			Type:         p.routingKey,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("PublishInsightsGenerated: publish: %w", err)
	}

	p.log.Info().
		Str("analysis_id", a.ID).
		Str("exchange", p.exchange).
		Str("routing_key", p.routingKey).
		Msg("published insights.generated")
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

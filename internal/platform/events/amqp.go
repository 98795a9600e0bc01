package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQPPublisher publishes events to a durable topic exchange. The channel is
// reopened once if the broker closed it.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

func NewAMQPPublisher(url, exchange string, logger zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	p := &AMQPPublisher{conn: conn, exchange: exchange, logger: logger}
	if err := p.openChannel(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.ch = ch
	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	msg, err := publishing(evt)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, evt.RoutingKey(), false, false, msg)
	if errors.Is(err, amqp.ErrClosed) && !p.conn.IsClosed() {
		p.logger.Warn().Str("exchange", p.exchange).Msg("amqp channel closed, reopening")
		if err := p.openChannel(); err != nil {
			return err
		}
		err = p.ch.PublishWithContext(ctx, p.exchange, evt.RoutingKey(), false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.RoutingKey(), err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	return p.conn.Close()
}

func publishing(evt Event) (amqp.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Timestamp:    evt.OccurredAt,
		Type:         evt.RoutingKey(),
		Body:         body,
	}, nil
}

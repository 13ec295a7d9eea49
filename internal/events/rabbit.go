package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
)

// RabbitPublisher sends events to a durable topic exchange named
// <prefix>_hotspot, routed by event kind.
type RabbitPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewRabbitPublisher dials url and declares the exchange and its queue.
func NewRabbitPublisher(url, prefix string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, eris.Wrap(err, "events: dial rabbit")
	}
	p := &RabbitPublisher{conn: conn, exchange: ExchangeName(prefix)}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "events: open channel")
	}
	if err := declare(ch, p.exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	p.ch = ch
	return p, nil
}

// ExchangeName returns the exchange used for prefix.
func ExchangeName(prefix string) string {
	if prefix == "" {
		prefix = "global"
	}
	return fmt.Sprintf("%s_%s", prefix, "hotspot")
}

func declare(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-delete
		false,   // internal
		false,   // noWait
		nil,     // arguments
	); err != nil {
		return eris.Wrapf(err, "events: declare exchange %s", name)
	}
	if _, err := ch.QueueDeclare(
		name,  // name of the queue
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // noWait
		nil,   // arguments
	); err != nil {
		return eris.Wrapf(err, "events: declare queue %s", name)
	}
	if err := ch.QueueBind(name, "#", name, false, nil); err != nil {
		return eris.Wrapf(err, "events: bind queue %s", name)
	}
	return nil
}

// Publish sends ev with its kind as routing key.
func (p *RabbitPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := sonic.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "events: marshal")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.conn.Channel()
		if err != nil {
			return eris.Wrap(err, "events: reopen channel")
		}
		p.ch = ch
	}
	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		string(ev.Kind),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.At,
			Body:         body,
		},
	)
	return eris.Wrapf(err, "events: publish %s", ev.Kind)
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	return eris.Wrap(p.conn.Close(), "events: close connection")
}

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/possync/internal/notify"
)

const Exchange = "notifications_fanout"

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher fans notices out to every listener bound to the notifications
// exchange. It is a notify.Notifier; publish errors are logged only.
type Publisher struct {
	conn    *amqp.Connection
	ch      Channel
	source  string
	timeout time.Duration
	log     logrus.FieldLogger
}

func Dial(url, source string, log logrus.FieldLogger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := NewPublisher(ch, source, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func NewPublisher(ch Channel, source string, log logrus.FieldLogger) (*Publisher, error) {
	if err := ch.ExchangeDeclare(Exchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare %s: %w", Exchange, err)
	}
	return &Publisher{ch: ch, source: source, timeout: 2 * time.Second, log: log}, nil
}

func (p *Publisher) Notify(n notify.Notice) {
	if err := p.Publish(context.Background(), n); err != nil {
		p.log.WithError(err).WithField("notice_id", n.ID.String()).Warn("notice publish failed")
	}
}

func (p *Publisher) Publish(ctx context.Context, n notify.Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.ch.PublishWithContext(ctx, Exchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    n.ID.String(),
		Timestamp:    n.Time,
		Headers: amqp.Table{
			"x-source": p.source,
			"x-level":  string(n.Level),
		},
		Body: body,
	})
}

func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

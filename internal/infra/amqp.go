// README: RabbitMQ connection and channel setup for outbound notifications.
package infra

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	NotificationsQueue    = "notifications"
	PaymentReversalsQueue = "payment.reversals"
)

type AMQP struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

func ConnectAMQP(url string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	for _, q := range []string{NotificationsQueue, PaymentReversalsQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	return &AMQP{Conn: conn, Channel: ch}, nil
}

func (a *AMQP) Close() {
	if a.Channel != nil {
		_ = a.Channel.Close()
	}
	if a.Conn != nil {
		_ = a.Conn.Close()
	}
}

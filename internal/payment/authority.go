// README: Seam to the external payment authority. Capture happens outside
// this repository; orders are confirmed only via the authority's callback.
package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"spaeti/internal/infra"
	"spaeti/internal/types"
)

// Session is an initiated payment flow at the external authority. Ref is the
// correlation key the authority echoes back in its capture callback.
type Session struct {
	Ref string
}

type Authority interface {
	// CreateSession initiates a payment flow. A rejection here must abort
	// order creation.
	CreateSession(ctx context.Context) (*Session, error)
	// RequestReversal asks the authority to refund a prepaid order. The
	// request is retryable and must never block the caller's transaction.
	RequestReversal(ctx context.Context, orderID int64, amount types.Money) error
}

// Broker talks to the authority over the message broker: reversal requests
// are queued durably so a flaky authority cannot lose them. Session refs are
// minted locally; the hosted-checkout redirect is assembled by the web tier.
type Broker struct {
	ch  *amqp.Channel
	log zerolog.Logger
}

func NewBroker(ch *amqp.Channel, log zerolog.Logger) *Broker {
	return &Broker{ch: ch, log: log}
}

func (b *Broker) CreateSession(ctx context.Context) (*Session, error) {
	return &Session{Ref: uuid.NewString()}, nil
}

type reversalRequest struct {
	OrderID     int64     `json:"order_id"`
	Amount      string    `json:"amount"`
	RequestedAt time.Time `json:"requested_at"`
}

func (b *Broker) RequestReversal(ctx context.Context, orderID int64, amount types.Money) error {
	body, err := json.Marshal(reversalRequest{
		OrderID:     orderID,
		Amount:      amount.StringFixed(2),
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	err = b.ch.PublishWithContext(ctx, "", infra.PaymentReversalsQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Body:         body,
	})
	if err != nil {
		b.log.Error().Err(err).Int64("order_id", orderID).Msg("queue payment reversal")
	}
	return err
}

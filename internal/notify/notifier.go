// README: Fire-and-forget notifier publishing transactional messages to the
// notifications queue. Delivery mechanics (email/push) live in a separate
// consumer; a broker outage is logged and swallowed, never surfaced to the
// order path.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"spaeti/internal/infra"
	"spaeti/internal/modules/order"
)

// Message is the wire format consumed by the delivery worker.
type Message struct {
	ID          string    `json:"id"`
	Template    string    `json:"template"`
	CustomerID  int64     `json:"customer_id,omitempty"`
	Email       string    `json:"email,omitempty"`
	OrderNumber string    `json:"order_number,omitempty"`
	Status      string    `json:"status,omitempty"`
	Link        string    `json:"link,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

var statusTemplates = map[order.Status]string{
	order.StatusPending:    "order_received",
	order.StatusConfirmed:  "order_confirmed",
	order.StatusPicking:    "order_picking",
	order.StatusPicked:     "order_picked",
	order.StatusDelivering: "order_on_the_way",
	order.StatusDelivered:  "order_delivered",
	order.StatusCancelled:  "order_cancelled",
}

type AMQPNotifier struct {
	ch  *amqp.Channel
	log zerolog.Logger
}

func NewAMQPNotifier(ch *amqp.Channel, log zerolog.Logger) *AMQPNotifier {
	return &AMQPNotifier{ch: ch, log: log}
}

// OrderStatus queues a status-specific customer notification.
func (n *AMQPNotifier) OrderStatus(ctx context.Context, o *order.Order, to order.Status) {
	tmpl, ok := statusTemplates[to]
	if !ok {
		return
	}
	n.send(ctx, Message{
		ID:          uuid.NewString(),
		Template:    tmpl,
		CustomerID:  o.CustomerID,
		OrderNumber: o.OrderNumber,
		Status:      string(to),
		CreatedAt:   time.Now().UTC(),
	})
}

// TrackingLink mails a fresh tokenized tracking link. Callers must have
// verified the address match already; this method does no checking.
func (n *AMQPNotifier) TrackingLink(ctx context.Context, email, orderNumber, link string) {
	n.send(ctx, Message{
		ID:          uuid.NewString(),
		Template:    "tracking_link",
		Email:       email,
		OrderNumber: orderNumber,
		Link:        link,
		CreatedAt:   time.Now().UTC(),
	})
}

// TicketReceived queues the automated support acknowledgment.
func (n *AMQPNotifier) TicketReceived(ctx context.Context, customerID int64) {
	n.send(ctx, Message{
		ID:         uuid.NewString(),
		Template:   "ticket_received",
		CustomerID: customerID,
		CreatedAt:  time.Now().UTC(),
	})
}

// InvoiceReady queues the invoice document mail.
func (n *AMQPNotifier) InvoiceReady(ctx context.Context, customerID int64, orderNumber, invoiceNumber string) {
	n.send(ctx, Message{
		ID:          uuid.NewString(),
		Template:    "invoice_ready",
		CustomerID:  customerID,
		OrderNumber: orderNumber,
		Link:        invoiceNumber,
		CreatedAt:   time.Now().UTC(),
	})
}

func (n *AMQPNotifier) send(ctx context.Context, m Message) {
	body, err := json.Marshal(m)
	if err != nil {
		n.log.Error().Err(err).Str("template", m.Template).Msg("marshal notification")
		return
	}
	err = n.ch.PublishWithContext(ctx, "", infra.NotificationsQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    m.ID,
		Body:         body,
	})
	if err != nil {
		n.log.Warn().Err(err).Str("template", m.Template).Msg("notification publish failed")
	}
}

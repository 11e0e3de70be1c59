// README: Realtime event bus backed by Redis pub/sub. The bus is a latency
// optimization only: publishing never blocks on subscriber delivery, and a
// disconnected subscriber re-fetches authoritative state from the ledger.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"spaeti/internal/modules/order"
)

const (
	orderChannelPrefix = "orders:%d"
	globalChannel      = "orders:all"
	ticketChannel      = "tickets:all"
)

// Event is the wire payload. Clients treat it as a wake-up call and re-fetch
// full detail rather than trusting the payload as authoritative.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	OrderID int64     `json:"order_id,omitempty"`
	Ticket  int64     `json:"ticket_id,omitempty"`
	Status  string    `json:"status"`
	At      time.Time `json:"at"`
}

type Bus struct {
	redis *redis.Client
	log   zerolog.Logger
}

func NewBus(r *redis.Client, log zerolog.Logger) *Bus {
	return &Bus{redis: r, log: log}
}

// PublishOrderUpdate fans an order-update out to the per-order channel and
// the global admin channel. Errors are logged and dropped.
func (b *Bus) PublishOrderUpdate(ctx context.Context, orderID int64, status order.Status) {
	b.publish(ctx, Event{
		ID:      uuid.NewString(),
		Type:    "order-update",
		OrderID: orderID,
		Status:  string(status),
		At:      time.Now().UTC(),
	}, fmt.Sprintf(orderChannelPrefix, orderID), globalChannel)
}

// PublishTicketUpdate announces support-ticket changes on the admin channel.
func (b *Bus) PublishTicketUpdate(ctx context.Context, ticketID int64, status string) {
	b.publish(ctx, Event{
		ID:     uuid.NewString(),
		Type:   "ticket-update",
		Ticket: ticketID,
		Status: status,
		At:     time.Now().UTC(),
	}, ticketChannel, globalChannel)
}

func (b *Bus) publish(ctx context.Context, e Event, channels ...string) {
	body, err := json.Marshal(e)
	if err != nil {
		b.log.Error().Err(err).Msg("marshal bus event")
		return
	}
	for _, ch := range channels {
		if err := b.redis.Publish(ctx, ch, body).Err(); err != nil {
			b.log.Warn().Err(err).Str("channel", ch).Msg("bus publish failed")
		}
	}
}

// SubscribeOrder subscribes to one order's channel. The caller owns the
// returned PubSub and must Close it.
func (b *Bus) SubscribeOrder(ctx context.Context, orderID int64) *redis.PubSub {
	return b.redis.Subscribe(ctx, fmt.Sprintf(orderChannelPrefix, orderID))
}

// SubscribeGlobal subscribes to every order and ticket event (admin feed).
func (b *Bus) SubscribeGlobal(ctx context.Context) *redis.PubSub {
	return b.redis.Subscribe(ctx, globalChannel)
}

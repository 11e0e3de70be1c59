// README: SSE bridge from the Redis event bus to client sessions. Clients
// re-fetch full order detail on receipt; missed events while disconnected
// are recovered the same way.
package handlers

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"spaeti/internal/auth"
	"spaeti/internal/modules/order"
	"spaeti/internal/modules/realtime"
	"spaeti/internal/modules/tracking"
)

type EventsHandler struct {
	bus       *realtime.Bus
	order     *order.Service
	tracking  *tracking.Service
	jwtSecret string
}

func NewEventsHandler(bus *realtime.Bus, svc *order.Service, trk *tracking.Service, jwtSecret string) *EventsHandler {
	return &EventsHandler{bus: bus, order: svc, tracking: trk, jwtSecret: jwtSecret}
}

// OrderEvents streams one order's updates. Access is granted either to a
// session that may see the order or to a tracking-token bearer, so the
// anonymous tracking page can subscribe too.
func (h *EventsHandler) OrderEvents(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeOrderError(c, order.ErrNotFound)
		return
	}

	if token := c.Query("token"); token != "" {
		if _, err := h.tracking.Lookup(c.Request.Context(), order.FormatOrderNumber(id), token); err != nil {
			writeOrderError(c, err)
			return
		}
	} else {
		p, err := auth.ParseBearer(c.GetHeader("Authorization"), h.jwtSecret)
		if err != nil {
			writeOrderError(c, tracking.ErrDenied)
			return
		}
		if _, err := h.order.GetFor(c.Request.Context(), id, *p); err != nil {
			writeOrderError(c, err)
			return
		}
	}

	sub := h.bus.SubscribeOrder(c.Request.Context(), id)
	h.stream(c, sub)
}

// GlobalEvents streams every order and ticket event to admin sessions.
func (h *EventsHandler) GlobalEvents(c *gin.Context) {
	sub := h.bus.SubscribeGlobal(c.Request.Context())
	h.stream(c, sub)
}

func (h *EventsHandler) stream(c *gin.Context, sub *redis.PubSub) {
	defer sub.Close()
	ch := sub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("order-update", msg.Payload)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

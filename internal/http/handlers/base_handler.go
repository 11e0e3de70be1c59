// README: Base handler utilities (JSON views, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"spaeti/internal/modules/order"
	"spaeti/internal/modules/support"
	"spaeti/internal/modules/tracking"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Line    *int   `json:"line,omitempty"`
}

// writeOrderError maps module sentinels to HTTP responses. State conflicts
// name the violated guard so callers can act on it; unexpected errors render
// the generic support message.
func writeOrderError(c *gin.Context, err error) {
	var unavailable *order.ProductUnavailableError
	switch {
	case errors.As(err, &unavailable):
		line := unavailable.Line
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: "ProductUnavailable", Message: unavailable.Error(), Line: &line,
		})
	case errors.Is(err, order.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "EmptyCart", Message: err.Error()})
	case errors.Is(err, order.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "InvalidAddress", Message: err.Error()})
	case errors.Is(err, order.ErrBadRequest):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: err.Error()})
	case errors.Is(err, order.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "NotFound"})
	case errors.Is(err, order.ErrForbidden):
		c.JSON(http.StatusForbidden, errorResponse{Error: "Forbidden"})
	case errors.Is(err, order.ErrInvalidTransition):
		c.JSON(http.StatusConflict, errorResponse{Error: "InvalidTransition", Message: err.Error()})
	case errors.Is(err, order.ErrItemsNotPicked):
		c.JSON(http.StatusConflict, errorResponse{Error: "ItemsNotPicked", Message: err.Error()})
	case errors.Is(err, order.ErrAlreadyClaimed):
		c.JSON(http.StatusConflict, errorResponse{Error: "AlreadyClaimed", Message: err.Error()})
	case errors.Is(err, order.ErrOrderNotClaimable):
		c.JSON(http.StatusConflict, errorResponse{Error: "OrderNotClaimable", Message: err.Error()})
	case errors.Is(err, order.ErrAlreadyRated):
		c.JSON(http.StatusConflict, errorResponse{Error: "AlreadyRated", Message: err.Error()})
	case errors.Is(err, order.ErrConflict):
		c.JSON(http.StatusConflict, errorResponse{Error: "Conflict", Message: err.Error()})
	case errors.Is(err, order.ErrPaymentInit):
		c.JSON(http.StatusBadGateway, errorResponse{Error: "PaymentInitiationFailed", Message: err.Error()})
	case errors.Is(err, tracking.ErrDenied):
		c.JSON(http.StatusNotFound, errorResponse{Error: "NotFound"})
	case errors.Is(err, tracking.ErrInvalidRating):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: err.Error()})
	case errors.Is(err, support.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "NotFound"})
	case errors.Is(err, support.ErrAlreadyClosed):
		c.JSON(http.StatusConflict, errorResponse{Error: "TicketClosed", Message: err.Error()})
	case errors.Is(err, support.ErrBadRequest):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: err.Error()})
	default:
		// Integrity violations must never leak detail to end users.
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal", Message: "please contact support"})
	}
}

type orderItemView struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Picked    bool   `json:"picked"`
}

type orderView struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"order_number"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	PaymentStatus string          `json:"payment_status"`
	DriverID      *int64          `json:"driver_id,omitempty"`
	Subtotal      string          `json:"subtotal"`
	DeliveryFee   string          `json:"delivery_fee"`
	Total         string          `json:"total"`
	Notes         string          `json:"notes,omitempty"`
	Rating        *int            `json:"rating,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	PickedAt      *time.Time      `json:"picked_at,omitempty"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason  *string         `json:"cancel_reason,omitempty"`
	Items         []orderItemView `json:"items,omitempty"`
}

func viewOrder(o *order.Order) orderView {
	v := orderView{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		DriverID:      o.DriverID,
		Subtotal:      o.Subtotal.StringFixed(2),
		DeliveryFee:   o.DeliveryFee.StringFixed(2),
		Total:         o.Total.StringFixed(2),
		Notes:         o.Notes,
		Rating:        o.Rating,
		CreatedAt:     o.CreatedAt,
		PickedAt:      o.PickedAt,
		DeliveredAt:   o.DeliveredAt,
		CancelledAt:   o.CancelledAt,
		CancelReason:  o.CancelReason,
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, orderItemView{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Quantity:  it.Quantity,
			Picked:    it.Picked,
		})
	}
	return v
}

type timelineView struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorRole string    `json:"actor_role"`
	Note      string    `json:"note,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

func viewTimeline(entries []order.LogEntry) []timelineView {
	out := make([]timelineView, 0, len(entries))
	for _, e := range entries {
		out = append(out, timelineView{
			From:      string(e.FromStatus),
			To:        string(e.ToStatus),
			ActorRole: string(e.ActorRole),
			Note:      e.Note,
			ChangedAt: e.ChangedAt,
		})
	}
	return out
}

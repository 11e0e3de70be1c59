// README: Driver handlers: open-order feed, claim, item picking.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"spaeti/internal/auth"
	"spaeti/internal/modules/order"
)

type DriverHandler struct {
	order *order.Service
}

func NewDriverHandler(svc *order.Service) *DriverHandler {
	return &DriverHandler{order: svc}
}

// ListAvailable returns confirmed, unclaimed orders.
func (h *DriverHandler) ListAvailable(c *gin.Context) {
	orders, err := h.order.ListOpen(c.Request.Context())
	if err != nil {
		writeOrderError(c, err)
		return
	}
	out := make([]orderView, 0, len(orders))
	for i := range orders {
		out = append(out, viewOrder(&orders[i]))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

// Claim races this driver against everyone else holding the same broadcast.
func (h *DriverHandler) Claim(c *gin.Context) {
	p, _ := auth.FromContext(c.Request.Context())
	id, err := pathID(c, "id")
	if err != nil {
		writeOrderError(c, order.ErrNotFound)
		return
	}
	o, err := h.order.Claim(c.Request.Context(), order.ClaimCommand{
		OrderID:  id,
		DriverID: p.ID,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOrder(o))
}

func (h *DriverHandler) MarkItemPicked(c *gin.Context) {
	p, _ := auth.FromContext(c.Request.Context())
	orderID, err := pathID(c, "id")
	if err != nil {
		writeOrderError(c, order.ErrNotFound)
		return
	}
	itemID, err := pathID(c, "itemID")
	if err != nil {
		writeOrderError(c, order.ErrNotFound)
		return
	}
	err = h.order.MarkItemPicked(c.Request.Context(), order.PickItemCommand{
		OrderID:  orderID,
		ItemID:   itemID,
		DriverID: p.ID,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"picked": true})
}

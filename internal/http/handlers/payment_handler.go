// README: Payment-capture callback from the external authority.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"spaeti/internal/modules/order"
)

type PaymentHandler struct {
	order         *order.Service
	webhookSecret string
}

func NewPaymentHandler(svc *order.Service, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{order: svc, webhookSecret: webhookSecret}
}

type captureReq struct {
	Ref    string `json:"ref" binding:"required"`
	Status string `json:"status" binding:"required"`
}

// Callback confirms a pending order once the authority reports capture.
// Orders are confirmed only here, never optimistically at creation time.
func (h *PaymentHandler) Callback(c *gin.Context) {
	if h.webhookSecret != "" && c.GetHeader("X-Webhook-Secret") != h.webhookSecret {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return
	}
	var req captureReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "invalid json"})
		return
	}
	if req.Status != "captured" {
		// Declined/aborted sessions leave the order pending; expiry is
		// handled by the authority re-notifying or the customer retrying.
		c.JSON(http.StatusOK, gin.H{"acknowledged": true})
		return
	}
	o, err := h.order.ConfirmPayment(c.Request.Context(), req.Ref)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": viewOrder(o)})
}

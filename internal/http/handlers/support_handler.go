// README: Support ticket handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"spaeti/internal/auth"
	"spaeti/internal/modules/support"
)

type SupportHandler struct {
	support *support.Service
}

func NewSupportHandler(svc *support.Service) *SupportHandler {
	return &SupportHandler{support: svc}
}

type createTicketReq struct {
	OrderID *int64 `json:"order_id"`
	Subject string `json:"subject" binding:"required"`
	Body    string `json:"body" binding:"required"`
}

func (h *SupportHandler) Create(c *gin.Context) {
	p, _ := auth.FromContext(c.Request.Context())
	var req createTicketReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "invalid json"})
		return
	}
	t, err := h.support.Create(c.Request.Context(), support.CreateCommand{
		CustomerID: p.ID,
		OrderID:    req.OrderID,
		Subject:    req.Subject,
		Body:       req.Body,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewTicket(t))
}

func (h *SupportHandler) Close(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeOrderError(c, support.ErrNotFound)
		return
	}
	t, err := h.support.Close(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTicket(t))
}

func (h *SupportHandler) Escalate(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeOrderError(c, support.ErrNotFound)
		return
	}
	t, err := h.support.Escalate(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTicket(t))
}

func viewTicket(t *support.Ticket) gin.H {
	return gin.H{
		"id":         t.ID,
		"order_id":   t.OrderID,
		"subject":    t.Subject,
		"status":     string(t.Status),
		"escalated":  t.Escalated,
		"created_at": t.CreatedAt,
		"closed_at":  t.ClosedAt,
	}
}

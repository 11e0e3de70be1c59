// README: Public tracking endpoints; token- or email-gated, no session.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"spaeti/internal/modules/order"
	"spaeti/internal/modules/tracking"
)

type TrackingHandler struct {
	tracking *tracking.Service
}

func NewTrackingHandler(svc *tracking.Service) *TrackingHandler {
	return &TrackingHandler{tracking: svc}
}

type trackReq struct {
	OrderNumber string `json:"order_number" binding:"required"`
	Token       string `json:"token"`
	Email       string `json:"email"`
}

// Track serves both access modes. With a token it returns full detail; with
// an email it always answers with the same generic acknowledgment, matching
// or not.
func (h *TrackingHandler) Track(c *gin.Context) {
	var req trackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "invalid json"})
		return
	}
	if req.Token != "" {
		d, err := h.tracking.Lookup(c.Request.Context(), req.OrderNumber, req.Token)
		if err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"order":    viewOrder(d.Order),
			"timeline": viewTimeline(d.Timeline),
		})
		return
	}
	if req.Email == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "token or email required"})
		return
	}
	h.tracking.RequestLink(c.Request.Context(), req.OrderNumber, req.Email)
	c.JSON(http.StatusOK, gin.H{"message": "check your inbox"})
}

type trackCancelReq struct {
	OrderNumber string `json:"order_number" binding:"required"`
	Token       string `json:"token" binding:"required"`
	Reason      string `json:"reason"`
}

func (h *TrackingHandler) Cancel(c *gin.Context) {
	var req trackCancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "invalid json"})
		return
	}
	o, err := h.tracking.CancelByToken(c.Request.Context(), req.OrderNumber, req.Token, req.Reason)
	if errors.Is(err, order.ErrSupportNeeded) {
		c.JSON(http.StatusConflict, gin.H{
			"supportNeeded": true,
			"message":       "picking has started; please contact support to cancel this order",
		})
		return
	}
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOrder(o))
}

type reviewReq struct {
	OrderNumber string `json:"order_number" binding:"required"`
	Token       string `json:"token" binding:"required"`
	Rating      int    `json:"rating" binding:"required"`
}

func (h *TrackingHandler) Review(c *gin.Context) {
	var req reviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "invalid json"})
		return
	}
	if err := h.tracking.Review(c.Request.Context(), req.OrderNumber, req.Token, req.Rating); err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "thanks for your rating"})
}

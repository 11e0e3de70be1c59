// README: Order handlers for create/get/cancel/status transitions.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"spaeti/internal/auth"
	"spaeti/internal/modules/order"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type createOrderReq struct {
	AddressID     int64  `json:"address_id" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required"`
	Notes         string `json:"notes"`
	Lines         []struct {
		ProductID int64 `json:"product_id" binding:"required"`
		Quantity  int   `json:"quantity" binding:"required"`
	} `json:"lines" binding:"required"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	p, _ := auth.FromContext(c.Request.Context())
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "invalid json"})
		return
	}
	cmd := order.CreateCommand{
		CustomerID:    p.ID,
		AddressID:     req.AddressID,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		Notes:         req.Notes,
	}
	for _, l := range req.Lines {
		cmd.Lines = append(cmd.Lines, order.Line{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	o, err := h.order.Create(c.Request.Context(), cmd)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	v := viewOrder(o)
	c.JSON(http.StatusCreated, gin.H{"order": v, "tracking_token": o.TrackingToken})
}

func (h *OrderHandler) Get(c *gin.Context) {
	p, _ := auth.FromContext(c.Request.Context())
	id, err := pathID(c, "id")
	if err != nil {
		writeOrderError(c, order.ErrNotFound)
		return
	}
	o, err := h.order.GetFor(c.Request.Context(), id, *p)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOrder(o))
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	p, _ := auth.FromContext(c.Request.Context())
	id, err := pathID(c, "id")
	if err != nil {
		writeOrderError(c, order.ErrNotFound)
		return
	}
	var req cancelReq
	_ = c.ShouldBindJSON(&req)

	o, err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID: id,
		Actor:   *p,
		Reason:  req.Reason,
	})
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

type statusReq struct {
	Status   string `json:"status" binding:"required"`
	DriverID *int64 `json:"driver_id"`
	Note     string `json:"note"`
}

func (h *OrderHandler) SetStatus(c *gin.Context) {
	p, _ := auth.FromContext(c.Request.Context())
	id, err := pathID(c, "id")
	if err != nil {
		writeOrderError(c, order.ErrNotFound)
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "invalid json"})
		return
	}
	o, err := h.order.RequestTransition(c.Request.Context(), order.TransitionCommand{
		OrderID:      id,
		To:           order.Status(req.Status),
		Actor:        *p,
		AssignDriver: req.DriverID,
		Note:         req.Note,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOrder(o))
}

func (h *OrderHandler) Timeline(c *gin.Context) {
	p, _ := auth.FromContext(c.Request.Context())
	id, err := pathID(c, "id")
	if err != nil {
		writeOrderError(c, order.ErrNotFound)
		return
	}
	if _, err := h.order.GetFor(c.Request.Context(), id, *p); err != nil {
		writeOrderError(c, err)
		return
	}
	entries, err := h.order.Timeline(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeline": viewTimeline(entries)})
}

func pathID(c *gin.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

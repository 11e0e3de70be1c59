package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"spaeti/internal/modules/catalog"
)

type CatalogHandler struct {
	store *catalog.Store
}

func NewCatalogHandler(store *catalog.Store) *CatalogHandler {
	return &CatalogHandler{store: store}
}

func (h *CatalogHandler) List(c *gin.Context) {
	products, err := h.store.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal", Message: "please contact support"})
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *CatalogHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid product id"})
		return
	}
	p, err := h.store.Get(c.Request.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: "product not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal", Message: "please contact support"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": p})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"food_ordering/services"
)

type CartHandler struct {
	carts *services.CartService
}

func NewCartHandler(carts *services.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type couponRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *CartHandler) GetCart(c *gin.Context) {
	view, err := h.carts.GetCart(c.Request.Context(), requestContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var in services.AddItemInput
	if !bindJSON(c, &in) {
		return
	}
	item, err := h.carts.AddItem(c.Request.Context(), requestContext(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in quantityRequest
	if !bindJSON(c, &in) {
		return
	}
	if err := h.carts.UpdateItem(c.Request.Context(), requestContext(c), id, in.Quantity); err != nil {
		respondError(c, err)
		return
	}
	h.GetCart(c)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.carts.RemoveItem(c.Request.Context(), requestContext(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CartHandler) ApplyCoupon(c *gin.Context) {
	var in couponRequest
	if !bindJSON(c, &in) {
		return
	}
	applied, err := h.carts.ApplyCoupon(c.Request.Context(), requestContext(c), in.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, applied)
}

func (h *CartHandler) RemoveCoupon(c *gin.Context) {
	if err := h.carts.RemoveCoupon(c.Request.Context(), requestContext(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

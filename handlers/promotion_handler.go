package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"food_ordering/models"
	"food_ordering/services"
)

type PromotionHandler struct {
	promotions *services.PromotionService
	carts      *services.CartService
}

func NewPromotionHandler(promotions *services.PromotionService, carts *services.CartService) *PromotionHandler {
	return &PromotionHandler{promotions: promotions, carts: carts}
}

type promotionRequest struct {
	models.Promotion
	ProductIDs  []int64 `json:"product_ids"`
	CategoryIDs []int64 `json:"category_ids"`
}

func (h *PromotionHandler) CreatePromotion(c *gin.Context) {
	var req promotionRequest
	if !bindJSON(c, &req) {
		return
	}
	promo := req.Promotion
	if err := h.promotions.CreatePromotion(c.Request.Context(), &promo, req.ProductIDs, req.CategoryIDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, promo)
}

func (h *PromotionHandler) UpdatePromotion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req promotionRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.promotions.UpdatePromotion(c.Request.Context(), id, &req.Promotion, req.ProductIDs, req.CategoryIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *PromotionHandler) DeletePromotion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.promotions.DeletePromotion(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PromotionHandler) GetPromotion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	detail, err := h.promotions.GetPromotion(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListPromotions hides reward vouchers unless vouchers=true.
func (h *PromotionHandler) ListPromotions(c *gin.Context) {
	promos, err := h.promotions.ListPromotions(c.Request.Context(), c.Query("vouchers") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, promos)
}

func (h *PromotionHandler) GetAvailablePromotions(c *gin.Context) {
	promos, err := h.carts.AvailablePromotions(c.Request.Context(), requestContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, promos)
}

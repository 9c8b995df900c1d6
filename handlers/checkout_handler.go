package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"food_ordering/services"
)

type CheckoutHandler struct {
	pricing  *services.PricingService
	orders   *services.OrderService
	payments *services.PaymentService
}

func NewCheckoutHandler(pricing *services.PricingService, orders *services.OrderService, payments *services.PaymentService) *CheckoutHandler {
	return &CheckoutHandler{pricing: pricing, orders: orders, payments: payments}
}

func (h *CheckoutHandler) Options(c *gin.Context) {
	opts, err := h.pricing.CheckoutOptions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (h *CheckoutHandler) Quote(c *gin.Context) {
	var in services.QuoteInput
	if !bindJSON(c, &in) {
		return
	}
	quote, err := h.pricing.Quote(c.Request.Context(), requestContext(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// Checkout places the order. Orders paid online also get the gateway URL
// the client should redirect to.
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var in services.CheckoutInput
	if !bindJSON(c, &in) {
		return
	}
	ctx := c.Request.Context()
	rc := requestContext(c)
	order, err := h.orders.CreateOrder(ctx, rc, in)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"order": order}
	online, err := h.payments.RequiresRedirect(ctx, order)
	if err != nil {
		loggerFrom(c).ErrorContext(ctx, "payment method lookup failed", "order_code", order.Code, "err", err)
	} else if online {
		payURL, err := h.payments.BuildRedirectURL(ctx, rc, order.ID)
		if err != nil {
			loggerFrom(c).ErrorContext(ctx, "payment url failed", "order_code", order.Code, "err", err)
		} else {
			resp["payment_url"] = payURL
		}
	}
	c.JSON(http.StatusCreated, resp)
}

// PayURL issues a fresh gateway URL for an unpaid online order.
func (h *CheckoutHandler) PayURL(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	payURL, err := h.payments.BuildRedirectURL(c.Request.Context(), requestContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_url": payURL})
}

func (h *CheckoutHandler) PaymentCallback(c *gin.Context) {
	order, err := h.payments.HandleCallback(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_code":     order.Code,
		"payment_status": order.PaymentStatus,
	})
}

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"food_ordering/services"
)

// Deps is everything the HTTP layer needs. Idempotency may be nil.
type Deps struct {
	Log         *slog.Logger
	Auth        *services.AuthService
	Catalog     *services.CatalogService
	Carts       *services.CartService
	Promotions  *services.PromotionService
	Pricing     *services.PricingService
	Orders      *services.OrderService
	Rewards     *services.RewardService
	Payments    *services.PaymentService
	Idempotency IdempotencyGuard
	TokenTTL    time.Duration
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Trace(), RequestLogger(d.Log), Session(d.Auth))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authH := NewAuthHandler(d.Auth, d.Carts, d.Rewards, d.TokenTTL)
	catalogH := NewCatalogHandler(d.Catalog)
	cartH := NewCartHandler(d.Carts)
	promoH := NewPromotionHandler(d.Promotions, d.Carts)
	checkoutH := NewCheckoutHandler(d.Pricing, d.Orders, d.Payments)
	orderH := NewOrderHandler(d.Orders)
	rewardH := NewRewardHandler(d.Rewards)

	api := r.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)
		auth.POST("/logout", authH.Logout)
		auth.GET("/me", RequireUser(), authH.Me)
		auth.POST("/addresses", RequireUser(), authH.AddAddress)
	}

	catalog := api.Group("/catalog")
	{
		catalog.GET("/categories", catalogH.ListCategories)
		catalog.GET("/products", catalogH.ListProducts)
		catalog.GET("/products/:id", catalogH.GetProduct)
		catalog.GET("/products/:id/configuration", catalogH.GetProductConfiguration)
	}

	cart := api.Group("/cart")
	{
		cart.GET("", cartH.GetCart)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:id", cartH.UpdateItem)
		cart.DELETE("/items/:id", cartH.RemoveItem)
		cart.POST("/coupon", cartH.ApplyCoupon)
		cart.DELETE("/coupon", cartH.RemoveCoupon)
	}

	api.GET("/coupons/available", promoH.GetAvailablePromotions)

	checkout := api.Group("/checkout")
	{
		checkout.GET("/options", checkoutH.Options)
		checkout.POST("/quote", checkoutH.Quote)
		checkout.POST("", Idempotent(d.Idempotency, "checkout"), checkoutH.Checkout)
	}

	orders := api.Group("/orders")
	{
		orders.GET("", orderH.ListMine)
		orders.GET("/:id", orderH.Get)
		orders.GET("/:id/history", orderH.History)
		orders.POST("/:id/cancel", orderH.Cancel)
		orders.GET("/:id/pay", checkoutH.PayURL)
	}

	api.GET("/rewards/progress", RequireUser(), rewardH.Progress)
	api.GET("/payments/callback", checkoutH.PaymentCallback)

	admin := api.Group("/admin", RequireAdmin())
	{
		admin.POST("/categories", catalogH.CreateCategory)
		admin.PUT("/categories/:id", catalogH.UpdateCategory)

		admin.POST("/products", catalogH.CreateProduct)
		admin.PUT("/products/:id", catalogH.UpdateProduct)
		admin.DELETE("/products/:id", catalogH.DeleteProduct)
		admin.POST("/products/:id/variants", catalogH.CreateVariant)
		admin.POST("/products/:id/groups", catalogH.CreateGroup)
		admin.DELETE("/groups/:id", catalogH.DeleteGroup)
		admin.POST("/groups/:id/options", catalogH.CreateOption)
		admin.DELETE("/options/:id", catalogH.DeleteOption)

		admin.GET("/promotions", promoH.ListPromotions)
		admin.POST("/promotions", promoH.CreatePromotion)
		admin.GET("/promotions/:id", promoH.GetPromotion)
		admin.PUT("/promotions/:id", promoH.UpdatePromotion)
		admin.DELETE("/promotions/:id", promoH.DeletePromotion)

		admin.GET("/orders", orderH.ListAll)
		admin.PATCH("/orders/:id/status", orderH.UpdateStatus)
	}

	return r
}

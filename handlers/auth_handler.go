package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"food_ordering/services"
)

type AuthHandler struct {
	auth     *services.AuthService
	carts    *services.CartService
	rewards  *services.RewardService
	tokenTTL time.Duration
}

func NewAuthHandler(auth *services.AuthService, carts *services.CartService, rewards *services.RewardService, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{auth: auth, carts: carts, rewards: rewards, tokenTTL: tokenTTL}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type addressRequest struct {
	Line string `json:"line"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var in services.RegisterInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := h.auth.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Login signs the user in, moves the anonymous cart into the user's cart
// and checks for newly earned reward vouchers.
func (h *AuthHandler) Login(c *gin.Context) {
	var in loginRequest
	if !bindJSON(c, &in) {
		return
	}
	ctx := c.Request.Context()
	user, token, err := h.auth.Login(ctx, in.Email, in.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	log := loggerFrom(c)
	rc := requestContext(c)
	if err := h.carts.MergeOnLogin(ctx, rc.SessionKey, user.ID); err != nil {
		log.ErrorContext(ctx, "cart merge failed", "user_id", user.ID, "err", err)
	}
	reward, err := h.rewards.Evaluate(ctx, user.ID)
	if err != nil {
		log.ErrorContext(ctx, "reward evaluation failed", "user_id", user.ID, "err", err)
	}

	c.SetCookie(sessionCookie, token, int(h.tokenTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user, "reward": reward})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	rc := requestContext(c)
	user, err := h.auth.GetUser(c.Request.Context(), rc.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	addrs, err := h.auth.ListAddresses(c.Request.Context(), rc.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "addresses": addrs})
}

func (h *AuthHandler) AddAddress(c *gin.Context) {
	var in addressRequest
	if !bindJSON(c, &in) {
		return
	}
	addr, err := h.auth.AddAddress(c.Request.Context(), requestContext(c).UserID, in.Line)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, addr)
}

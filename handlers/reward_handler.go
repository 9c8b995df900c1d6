package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"food_ordering/services"
)

type RewardHandler struct {
	rewards *services.RewardService
}

func NewRewardHandler(rewards *services.RewardService) *RewardHandler {
	return &RewardHandler{rewards: rewards}
}

func (h *RewardHandler) Progress(c *gin.Context) {
	result, err := h.rewards.Progress(c.Request.Context(), requestContext(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"food_ordering/services"
)

const loggerKey = "logger"

func loggerFrom(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if log, ok := v.(*slog.Logger); ok {
			return log
		}
	}
	return slog.Default()
}

func ruleStatus(code string) int {
	switch code {
	case services.ReasonInvalidCredentials:
		return http.StatusUnauthorized
	case services.ReasonEmailTaken, services.ReasonInvalidTransition,
		services.ReasonUsageCapReached, services.ReasonUserUsageCapReached:
		return http.StatusConflict
	case services.ReasonInvalidSignature:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

// respondError writes the response for err. Errors that are not part of
// the service vocabulary are logged and reported as 500.
func respondError(c *gin.Context, err error) {
	if ve, ok := services.AsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": ve})
		return
	}
	if re, ok := services.AsRule(err); ok {
		c.JSON(ruleStatus(re.Code), gin.H{"error": re.Message, "code": re.Code})
		return
	}
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, services.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	default:
		loggerFrom(c).ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/screenlens/demo-gateway/internal/upstream"
)

// Handles operational endpoints for the upstream link
type SystemHandler struct {
	upstream *upstream.Client
}

func NewSystemHandler(upstream *upstream.Client) *SystemHandler {
	return &SystemHandler{upstream: upstream}
}

// Returns the upstream circuit breaker state
func (h *SystemHandler) BreakerStatus(c *gin.Context) {
	metrics := h.upstream.BreakerMetrics()

	c.JSON(http.StatusOK, gin.H{
		"state":             metrics.State.String(),
		"failure_count":     metrics.FailureCount,
		"success_count":     metrics.SuccessCount,
		"last_failure_time": metrics.LastFailureTime,
		"last_state_change": metrics.LastStateChange,
	})
}

// Manually resets the upstream circuit breaker
func (h *SystemHandler) ResetBreaker(c *gin.Context) {
	h.upstream.ResetBreaker()

	c.JSON(http.StatusOK, gin.H{
		"message": "Circuit breaker reset successfully",
	})
}

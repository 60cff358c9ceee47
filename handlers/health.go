package handlers

import (
	"net/http"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/types"

	"github.com/gin-gonic/gin"
)

// HealthCheck returns a simple health status for uptime monitoring and load balancers.
// It is unauthenticated and not wrapped in the API envelope.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

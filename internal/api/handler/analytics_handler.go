package handler

import (
	"net/http"

	"parking_iot/internal/service"

	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	spotService *service.SpotService
}

func NewAnalyticsHandler(spotService *service.SpotService) *AnalyticsHandler {
	return &AnalyticsHandler{spotService: spotService}
}

// GET /api/v1/analytics/occupancy
func (h *AnalyticsHandler) GetOccupancyAnalytics(c *gin.Context) {
	analytics, err := h.spotService.GetOccupancyAnalytics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể tổng hợp analytics", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, analytics)
}

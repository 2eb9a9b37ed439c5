package handlers

import (
	"net/http"

	"github.com/ArowuTest/bulkcomms-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the dashboard overview
type DashboardHandler struct {
	dashboardService services.DashboardService
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(dashboardService services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// GetStats handles GET /dashboard/stats
func (h *DashboardHandler) GetStats(c *gin.Context) {
	stats, err := h.dashboardService.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, "compute dashboard stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

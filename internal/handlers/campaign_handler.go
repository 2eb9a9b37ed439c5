package handlers

import (
	"net/http"

	"github.com/ArowuTest/bulkcomms-backend/internal/middleware"
	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/services"
	"github.com/ArowuTest/bulkcomms-backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	campaignService services.CampaignService
}

// NewCampaignHandler creates a new CampaignHandler
func NewCampaignHandler(campaignService services.CampaignService) *CampaignHandler {
	return &CampaignHandler{campaignService: campaignService}
}

// Submit handles POST /campaigns
func (h *CampaignHandler) Submit(c *gin.Context) {
	var req services.SubmitCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.CreatedBy = c.GetString(middleware.UserEmailKey)

	campaign, err := h.campaignService.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, "submit campaign", err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

// List handles GET /campaigns
func (h *CampaignHandler) List(c *gin.Context) {
	page, limit := utils.ParsePagination(c.Query("page"), c.Query("limit"))
	campaigns, total, err := h.campaignService.List(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, "list campaigns", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"campaigns": campaigns,
		"total":     total,
		"page":      page,
		"limit":     limit,
	})
}

// Get handles GET /campaigns/:id
func (h *CampaignHandler) Get(c *gin.Context) {
	campaign, err := h.campaignService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "retrieve campaign", err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// Batches handles GET /campaigns/:id/batches
func (h *CampaignHandler) Batches(c *gin.Context) {
	batches, err := h.campaignService.Batches(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "retrieve batches", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

// Messages handles GET /campaigns/:id/messages
func (h *CampaignHandler) Messages(c *gin.Context) {
	page, limit := utils.ParsePagination(c.Query("page"), c.Query("limit"))
	messages, err := h.campaignService.Messages(c.Request.Context(), c.Param("id"), page, limit)
	if err != nil {
		respondError(c, "retrieve messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "page": page, "limit": limit})
}

// Events handles GET /campaigns/:id/events?kind=open|click
func (h *CampaignHandler) Events(c *gin.Context) {
	page, limit := utils.ParsePagination(c.Query("page"), c.Query("limit"))
	kind := models.InteractionKind(c.DefaultQuery("kind", string(models.InteractionOpen)))
	events, err := h.campaignService.Events(c.Request.Context(), c.Param("id"), kind, page, limit)
	if err != nil {
		respondError(c, "retrieve events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "page": page, "limit": limit})
}

// Pause handles POST /campaigns/:id/pause
func (h *CampaignHandler) Pause(c *gin.Context) {
	campaign, err := h.campaignService.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "pause campaign", err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// Resume handles POST /campaigns/:id/resume
func (h *CampaignHandler) Resume(c *gin.Context) {
	campaign, err := h.campaignService.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "resume campaign", err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrMalformedID), errors.Is(err, services.ErrInvalidCampaign):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrCampaignNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrNoRecipients):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body. Internal errors are prefixed with the failed action.
func respondError(c *gin.Context, action string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "Failed to " + action + ": " + err.Error()})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

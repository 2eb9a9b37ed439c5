package handlers

import (
	"net/http"

	"github.com/ArowuTest/bulkcomms-backend/internal/middleware"
	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// transparentGIF is a 1x1 transparent GIF
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingHandler serves the open pixel and click redirects. Recipients always get a
// normal response whatever happens to the event.
type TrackingHandler struct {
	reconciler services.EventReconciler
	signer     *services.LinkSigner
	log        logrus.FieldLogger
}

// NewTrackingHandler creates a new TrackingHandler
func NewTrackingHandler(reconciler services.EventReconciler, signer *services.LinkSigner, log logrus.FieldLogger) *TrackingHandler {
	return &TrackingHandler{reconciler: reconciler, signer: signer, log: log}
}

// Open handles GET /track/open
func (h *TrackingHandler) Open(c *gin.Context) {
	if !middleware.IsRateLimited(c) {
		h.reconciler.RecordOpen(c.Request.Context(), c.Query("campaignId"), c.Query("recipientId"), models.EventMeta{
			UserAgent: c.Request.UserAgent(),
			IP:        c.ClientIP(),
		})
	}
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Data(http.StatusOK, "image/gif", transparentGIF)
}

// Click handles GET /track/click. Only signed targets are redirected to.
func (h *TrackingHandler) Click(c *gin.Context) {
	campaignID := c.Query("campaignId")
	recipientID := c.Query("recipientId")
	target := c.Query("url")

	if !h.signer.Verify(campaignID, recipientID, target, c.Query("sig")) {
		h.log.WithFields(logrus.Fields{"campaignId": campaignID, "url": target}).Warn("Rejected unsigned click target")
		c.Status(http.StatusNoContent)
		return
	}

	if !middleware.IsRateLimited(c) {
		h.reconciler.RecordClick(c.Request.Context(), campaignID, recipientID, models.EventMeta{
			UserAgent: c.Request.UserAgent(),
			IP:        c.ClientIP(),
			URL:       target,
		})
	}
	c.Redirect(http.StatusFound, target)
}

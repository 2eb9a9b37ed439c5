package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	emailProvider    = string(models.ChannelEmail)
	whatsAppProvider = string(models.ChannelWhatsApp)
)

// EmailEvent is one delivery event posted by the mail relay
type EmailEvent struct {
	Event     string `json:"event"`
	MessageID string `json:"messageId"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// WhatsAppWebhook is the Cloud API callback envelope. Only status updates are read.
type WhatsAppWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Statuses []WhatsAppStatus `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// WhatsAppStatus is one message status in a Cloud API callback
type WhatsAppStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code  int    `json:"code"`
		Title string `json:"title"`
	} `json:"errors,omitempty"`
}

// WebhookHandler receives provider delivery callbacks. Providers retry on non-2xx, so
// anything unusable is logged and acknowledged.
type WebhookHandler struct {
	reconciler  services.EventReconciler
	emailToken  string
	verifyToken string
	log         logrus.FieldLogger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(reconciler services.EventReconciler, emailToken, verifyToken string, log logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{
		reconciler:  reconciler,
		emailToken:  emailToken,
		verifyToken: verifyToken,
		log:         log,
	}
}

// EmailEvents handles POST /webhooks/email
func (h *WebhookHandler) EmailEvents(c *gin.Context) {
	if h.emailToken != "" {
		token := c.GetHeader("X-Webhook-Token")
		if token == "" {
			token = c.Query("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.emailToken)) != 1 {
			h.log.WithField("clientIp", c.ClientIP()).Warn("Ignoring email webhook with bad token")
			c.JSON(http.StatusOK, gin.H{"received": 0, "applied": 0})
			return
		}
	}

	var events []EmailEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		h.log.WithError(err).Warn("Ignoring malformed email webhook")
		c.JSON(http.StatusOK, gin.H{"received": 0, "applied": 0})
		return
	}

	var tally statusTally
	for _, e := range events {
		update := services.ProviderStatus{
			Provider:          emailProvider,
			ExternalMessageID: strings.Trim(strings.TrimSpace(e.MessageID), "<>"),
			Status:            e.Event,
			Reason:            e.Reason,
		}
		if e.Timestamp > 0 {
			update.Timestamp = time.Unix(e.Timestamp, 0)
		}
		tally.add(h.reconciler.ApplyProviderStatus(c.Request.Context(), update))
	}
	h.respondTally(c, emailProvider, tally)
}

// VerifyWhatsApp handles GET /webhooks/whatsapp, the Cloud API subscription check
func (h *WebhookHandler) VerifyWhatsApp(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	if mode != "subscribe" || h.verifyToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		h.log.WithField("mode", mode).Warn("WhatsApp webhook verification failed")
		c.Status(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// WhatsAppEvents handles POST /webhooks/whatsapp
func (h *WebhookHandler) WhatsAppEvents(c *gin.Context) {
	var payload WhatsAppWebhook
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.log.WithError(err).Warn("Ignoring malformed WhatsApp webhook")
		c.JSON(http.StatusOK, gin.H{"received": 0, "applied": 0})
		return
	}

	var tally statusTally
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, s := range change.Value.Statuses {
				update := services.ProviderStatus{
					Provider:          whatsAppProvider,
					ExternalMessageID: s.ID,
					Status:            s.Status,
				}
				if sec, err := strconv.ParseInt(s.Timestamp, 10, 64); err == nil {
					update.Timestamp = time.Unix(sec, 0)
				}
				if len(s.Errors) > 0 {
					update.Reason = s.Errors[0].Title
				}
				tally.add(h.reconciler.ApplyProviderStatus(c.Request.Context(), update))
			}
		}
	}
	h.respondTally(c, whatsAppProvider, tally)
}

type statusTally struct {
	received, applied, retry int
}

func (t *statusTally) add(res services.StatusResult) {
	t.received++
	if res.Applied {
		t.applied++
	}
	if res.Retry {
		t.retry++
	}
}

// respondTally answers 503 when any status could not be stored, so the provider resends
// the payload. Statuses that did apply are no-ops on the resend.
func (h *WebhookHandler) respondTally(c *gin.Context, provider string, t statusTally) {
	body := gin.H{"received": t.received, "applied": t.applied}
	if t.retry > 0 {
		h.log.WithFields(logrus.Fields{"provider": provider, "retry": t.retry}).Warn("Provider statuses not stored, asking for resend")
		body["retry"] = t.retry
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

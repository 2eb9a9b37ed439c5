package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/queue"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories/memory"
	"github.com/ArowuTest/bulkcomms-backend/internal/services"
	"github.com/ArowuTest/bulkcomms-backend/pkg/logger"
	"github.com/ArowuTest/bulkcomms-backend/pkg/sendadapter"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, job queue.BatchJob) error { return nil }

type testEnv struct {
	store      *memory.Store
	email      *sendadapter.MockAdapter
	signer     *services.LinkSigner
	campaigns  *services.CampaignServiceImpl
	processor  *services.BatchProcessorImpl
	reconciler *services.EventReconcilerImpl
	router     *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.Discard()
	store := memory.NewStore()
	env := &testEnv{
		store:  store,
		email:  sendadapter.NewMockAdapter("email"),
		signer: services.NewLinkSigner("key"),
	}
	links := services.NewTrackingLinks("https://t.example.com", env.signer)
	batcher := services.NewRecipientBatcher(store.Campaigns(), store.Batches(), 10, log)
	env.processor = services.NewBatchProcessor(
		store.Campaigns(), store.Batches(), store.Messages(), store.Templates(),
		sendadapter.Registry{string(models.ChannelEmail): env.email}, links,
		services.ProcessorOptions{Concurrency: 1, SendTimeout: time.Second, MaxAttempts: 1}, log,
	)
	env.reconciler = services.NewEventReconciler(store.Campaigns(), store.Messages(), store.Tracking(), store.Dedup(), time.Hour, log)
	env.campaigns = services.NewCampaignService(
		store.Campaigns(), store.Batches(), store.Messages(), store.Tracking(),
		services.NewRecipientResolver(""), batcher, nopPublisher{}, log,
	)

	campaignHandler := NewCampaignHandler(env.campaigns)
	dashboardHandler := NewDashboardHandler(services.NewDashboardService(store.Campaigns(), time.UTC))
	trackingHandler := NewTrackingHandler(env.reconciler, env.signer, log)
	webhookHandler := NewWebhookHandler(env.reconciler, "relay-token", "verify-me", log)

	r := gin.New()
	r.POST("/campaigns", campaignHandler.Submit)
	r.GET("/campaigns", campaignHandler.List)
	r.GET("/campaigns/:id", campaignHandler.Get)
	r.GET("/campaigns/:id/batches", campaignHandler.Batches)
	r.GET("/campaigns/:id/messages", campaignHandler.Messages)
	r.GET("/campaigns/:id/events", campaignHandler.Events)
	r.POST("/campaigns/:id/pause", campaignHandler.Pause)
	r.POST("/campaigns/:id/resume", campaignHandler.Resume)
	r.GET("/dashboard/stats", dashboardHandler.GetStats)
	r.GET("/track/open", trackingHandler.Open)
	r.GET("/track/click", trackingHandler.Click)
	r.POST("/webhooks/email", webhookHandler.EmailEvents)
	r.GET("/webhooks/whatsapp", webhookHandler.VerifyWhatsApp)
	r.POST("/webhooks/whatsapp", webhookHandler.WhatsAppEvents)
	env.router = r
	return env
}

func (e *testEnv) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// sentCampaign submits a campaign and processes its batches
func (e *testEnv) sentCampaign(t *testing.T, n int) *models.Campaign {
	t.Helper()
	recipients := make([]models.Recipient, n)
	for i := range recipients {
		recipients[i] = models.Recipient{ID: "r" + string(rune('1'+i)), Name: "User", Email: "u" + string(rune('1'+i)) + "@example.com"}
	}
	campaign, err := e.campaigns.Submit(context.Background(), services.SubmitCampaignRequest{
		Name:     "Launch",
		Channel:  models.ChannelEmail,
		Email:    &models.EmailContent{Subject: "Hi", HTML: "<body>Hi</body>"},
		Audience: services.RecipientCriteria{Recipients: recipients},
	})
	require.NoError(t, err)
	batches, err := e.store.Batches().FindByCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	for _, b := range batches {
		_, err := e.processor.Process(context.Background(), b.ID)
		require.NoError(t, err)
	}
	got, err := e.store.Campaigns().FindByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	return got
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestSubmitCampaignEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/campaigns", map[string]interface{}{
		"name":     "Launch",
		"channel":  "email",
		"email":    map[string]string{"subject": "Hi", "html": "<p>Hi</p>"},
		"audience": map[string]interface{}{"recipients": []map[string]string{{"email": "a@example.com"}, {"email": "b@example.com"}}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var campaign models.Campaign
	decode(t, w, &campaign)
	assert.Equal(t, models.CampaignStatusQueued, campaign.Status)
	assert.Equal(t, 2, campaign.TotalRecipients)

	w = env.do(http.MethodGet, "/campaigns/"+campaign.ID.Hex(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/campaigns/"+campaign.ID.Hex()+"/batches", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"batchNumber":1`)

	w = env.do(http.MethodGet, "/campaigns?page=1&limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Total int `json:"total"`
		Limit int `json:"limit"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 5, list.Limit)
}

func TestSubmitCampaignErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/campaigns", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/campaigns", map[string]interface{}{"name": "x", "channel": "fax"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/campaigns", map[string]interface{}{
		"name":    "Launch",
		"channel": "email",
		"email":   map[string]string{"subject": "Hi", "html": "<p>Hi</p>"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCampaignLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/campaigns/xyz", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/campaigns/"+primitive.NewObjectID().Hex(), nil).Code)

	campaign := env.sentCampaign(t, 2)
	id := campaign.ID.Hex()
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/campaigns/"+id+"/pause", nil).Code)
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/campaigns/"+id+"/resume", nil).Code)

	w := env.do(http.MethodGet, "/campaigns/"+id+"/messages", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, w, &page)
	assert.Len(t, page.Messages, 2)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/campaigns/"+id+"/events?kind=bounce", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/campaigns/"+id+"/events?kind=click", nil).Code)
}

func TestDashboardEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.sentCampaign(t, 3)

	w := env.do(http.MethodGet, "/dashboard/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.DashboardStats
	decode(t, w, &stats)
	assert.Len(t, stats.Trend, services.TrendDays)
	assert.Equal(t, 3, stats.RecipientsThisMonth)
	assert.Equal(t, 3, stats.Trend[services.TrendDays-1].Sent)
}

func TestTrackOpenAlwaysServesPixel(t *testing.T) {
	env := newTestEnv(t)
	campaign := env.sentCampaign(t, 1)

	for _, target := range []string{
		"/track/open?campaignId=" + campaign.ID.Hex() + "&recipientId=r1",
		"/track/open?campaignId=bogus&recipientId=r1",
		"/track/open",
	} {
		w := env.do(http.MethodGet, target, nil)
		assert.Equal(t, http.StatusOK, w.Code, target)
		assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
		assert.Equal(t, transparentGIF, w.Body.Bytes())
	}

	got, err := env.store.Campaigns().FindByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.OpensCount)
}

func TestTrackClickRedirectsSignedTargets(t *testing.T) {
	env := newTestEnv(t)
	campaign := env.sentCampaign(t, 1)
	id := campaign.ID.Hex()
	target := "https://shop.example.com/sale"

	q := url.Values{}
	q.Set("campaignId", id)
	q.Set("recipientId", "r1")
	q.Set("url", target)
	q.Set("sig", env.signer.Sign(id, "r1", target))
	w := env.do(http.MethodGet, "/track/click?"+q.Encode(), nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, target, w.Header().Get("Location"))

	q.Set("url", "https://evil.example.com")
	w = env.do(http.MethodGet, "/track/click?"+q.Encode(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	got, err := env.store.Campaigns().FindByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ClicksCount)
}

func TestEmailWebhook(t *testing.T) {
	env := newTestEnv(t)
	campaign := env.sentCampaign(t, 2)
	extID := env.email.Sent()[0].ExternalMessageID

	events := []EmailEvent{
		{Event: "delivered", MessageID: "<" + extID + ">", Timestamp: time.Now().Unix()},
		{Event: "delivered", MessageID: extID},
		{Event: "spamreport", MessageID: extID},
		{Event: "bounce", MessageID: "unknown-id"},
	}
	w := env.do(http.MethodPost, "/webhooks/email?token=relay-token", events)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":4,"applied":1}`, w.Body.String())

	w = env.do(http.MethodPost, "/webhooks/email?token=wrong", events)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":0,"applied":0}`, w.Body.String())

	w = env.do(http.MethodPost, "/webhooks/email?token=relay-token", "garbage")
	assert.Equal(t, http.StatusOK, w.Code)

	got, err := env.store.Campaigns().FindByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DeliveredCount)
}

func TestEmailWebhookAsksForResendOnStorageError(t *testing.T) {
	env := newTestEnv(t)
	campaign := env.sentCampaign(t, 1)
	extID := env.email.Sent()[0].ExternalMessageID
	env.store.FailTimes(memory.OpMessageTransition, 1, errors.New("write conflict"))

	events := []EmailEvent{{Event: "delivered", MessageID: extID, Timestamp: time.Now().Unix()}}
	w := env.do(http.MethodPost, "/webhooks/email?token=relay-token", events)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"received":1,"applied":0,"retry":1}`, w.Body.String())

	w = env.do(http.MethodPost, "/webhooks/email?token=relay-token", events)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":1,"applied":1}`, w.Body.String())

	got, err := env.store.Campaigns().FindByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DeliveredCount)
}

func TestWhatsAppWebhookVerification(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())

	w = env.do(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWhatsAppStatusWebhook(t *testing.T) {
	env := newTestEnv(t)
	campaign := env.sentCampaign(t, 1)
	extID := env.email.Sent()[0].ExternalMessageID

	body := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"statuses":[
		{"id":"` + extID + `","status":"failed","timestamp":"1700000000","errors":[{"code":131026,"title":"Message undeliverable"}]}
	]}}]}]}`
	w := env.do(http.MethodPost, "/webhooks/whatsapp", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":1,"applied":1}`, w.Body.String())

	msg, err := env.store.Messages().FindByExternalID(context.Background(), extID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusFailed, msg.Status)
	assert.Equal(t, "Message undeliverable", msg.ErrorMessage)

	got, err := env.store.Campaigns().FindByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailedCount)
}

type brokenDashboard struct{}

func (brokenDashboard) GetStats(ctx context.Context) (*models.DashboardStats, error) {
	return nil, errors.New("mongo down")
}

func TestInternalErrorsArePrefixed(t *testing.T) {
	r := gin.New()
	r.GET("/stats", NewDashboardHandler(brokenDashboard{}).GetStats)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "Failed to compute dashboard stats: mongo down"))
}

package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/queue"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories/memory"
	"github.com/ArowuTest/bulkcomms-backend/pkg/sendadapter"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store      *memory.Store
	email      *sendadapter.MockAdapter
	whatsapp   *sendadapter.MockAdapter
	adapters   sendadapter.Registry
	links      *TrackingLinks
	batcher    *RecipientBatcher
	processor  *BatchProcessorImpl
	reconciler *EventReconcilerImpl
	publisher  *recordingPublisher
	campaigns  *CampaignServiceImpl
	log        *logrus.Logger
	hook       *test.Hook
}

func defaultProcessorOptions() ProcessorOptions {
	return ProcessorOptions{
		Concurrency:  1,
		SendTimeout:  time.Second,
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	}
}

func newFixture(t *testing.T, opts ProcessorOptions) *fixture {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	f := &fixture{
		store:     memory.NewStore(),
		email:     sendadapter.NewMockAdapter("email"),
		whatsapp:  sendadapter.NewMockAdapter("whatsapp"),
		publisher: &recordingPublisher{},
		log:       log,
		hook:      hook,
	}
	f.adapters = sendadapter.Registry{
		string(models.ChannelEmail):    f.email,
		string(models.ChannelWhatsApp): f.whatsapp,
	}
	f.links = NewTrackingLinks("https://track.example.com", NewLinkSigner("test-key"))
	f.batcher = NewRecipientBatcher(f.store.Campaigns(), f.store.Batches(), 10, log)
	f.processor = NewBatchProcessor(
		f.store.Campaigns(), f.store.Batches(), f.store.Messages(), f.store.Templates(),
		f.adapters, f.links, opts, log,
	)
	f.reconciler = NewEventReconciler(
		f.store.Campaigns(), f.store.Messages(), f.store.Tracking(), nil, time.Hour, log,
	)
	f.reconciler.counterBackoff = time.Millisecond
	f.campaigns = NewCampaignService(
		f.store.Campaigns(), f.store.Batches(), f.store.Messages(), f.store.Tracking(),
		NewRecipientResolver(""), f.batcher, f.publisher, log,
	)
	return f
}

// seedCampaign stores a draft email campaign and batches its recipients
func (f *fixture) seedCampaign(t *testing.T, channel models.Channel, recipients []models.Recipient, batchSize int) (*models.Campaign, []*models.CampaignBatch) {
	t.Helper()
	ctx := context.Background()
	campaign := &models.Campaign{
		Name:    "Spring sale",
		Channel: channel,
		Status:  models.CampaignStatusDraft,
	}
	switch channel {
	case models.ChannelEmail:
		campaign.Email = &models.EmailContent{
			Subject: "Hello {{name}}",
			HTML:    `<html><body><p>Hi {{name}}</p><a href="https://shop.example.com/sale">Shop</a></body></html>`,
		}
	case models.ChannelWhatsApp:
		campaign.WhatsApp = &models.WhatsAppContent{
			TemplateName:   "order_update",
			Language:       "en_US",
			VariableValues: map[string]string{"name": "{{name}}", "code": "SPRING24"},
		}
	}
	require.NoError(t, f.store.Campaigns().Create(ctx, campaign))
	batches, err := f.batcher.CreateBatches(ctx, campaign, recipients, batchSize)
	require.NoError(t, err)
	return campaign, batches
}

func (f *fixture) campaign(t *testing.T, c *models.Campaign) *models.Campaign {
	t.Helper()
	got, err := f.store.Campaigns().FindByID(context.Background(), c.ID)
	require.NoError(t, err)
	return got
}

func (f *fixture) batch(t *testing.T, b *models.CampaignBatch) *models.CampaignBatch {
	t.Helper()
	got, err := f.store.Batches().FindByID(context.Background(), b.ID)
	require.NoError(t, err)
	return got
}

func (f *fixture) message(t *testing.T, c *models.Campaign, recipientID string) *models.Message {
	t.Helper()
	got, err := f.store.Messages().FindByRecipient(context.Background(), c.ID, recipientID)
	require.NoError(t, err)
	return got
}

func makeRecipients(n int) []models.Recipient {
	out := make([]models.Recipient, n)
	for i := range out {
		out[i] = models.Recipient{
			ID:    fmt.Sprintf("r%d", i+1),
			Name:  fmt.Sprintf("User %d", i+1),
			Email: fmt.Sprintf("user%d@example.com", i+1),
			Phone: fmt.Sprintf("23480000000%02d", i+1),
		}
	}
	return out
}

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []queue.BatchJob
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, job queue.BatchJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingPublisher) Jobs() []queue.BatchJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]queue.BatchJob, len(p.jobs))
	copy(out, p.jobs)
	return out
}

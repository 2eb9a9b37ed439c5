package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/queue"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Compile-time check to ensure CampaignServiceImpl implements CampaignService
var _ CampaignService = (*CampaignServiceImpl)(nil)

const defaultWhatsAppLanguage = "en_US"

// SubmitCampaignRequest is a new campaign with its audience
type SubmitCampaignRequest struct {
	Name      string                  `json:"name" binding:"required"`
	Channel   models.Channel          `json:"channel" binding:"required"`
	Email     *models.EmailContent    `json:"email,omitempty"`
	WhatsApp  *models.WhatsAppContent `json:"whatsapp,omitempty"`
	Audience  RecipientCriteria       `json:"audience"`
	BatchSize int                     `json:"batchSize,omitempty"`
	CreatedBy string                  `json:"-"`
}

// Validate checks the channel payload of the request
func (r *SubmitCampaignRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCampaign)
	}
	if !r.Channel.Valid() {
		return fmt.Errorf("%w: unsupported channel %q", ErrInvalidCampaign, r.Channel)
	}
	if r.BatchSize < 0 || r.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batchSize must be between 1 and %d", ErrInvalidCampaign, MaxBatchSize)
	}
	switch r.Channel {
	case models.ChannelEmail:
		if r.Email == nil || strings.TrimSpace(r.Email.Subject) == "" || strings.TrimSpace(r.Email.HTML) == "" {
			return fmt.Errorf("%w: email campaigns need a subject and html body", ErrInvalidCampaign)
		}
	case models.ChannelWhatsApp:
		if r.WhatsApp == nil || strings.TrimSpace(r.WhatsApp.TemplateName) == "" {
			return fmt.Errorf("%w: whatsapp campaigns need a template name", ErrInvalidCampaign)
		}
	}
	return nil
}

// CampaignServiceImpl handles campaign submission and lifecycle
type CampaignServiceImpl struct {
	campaigns repositories.CampaignRepository
	batches   repositories.BatchRepository
	messages  repositories.MessageRepository
	tracking  repositories.TrackingRepository
	resolver  RecipientResolver
	batcher   *RecipientBatcher
	publisher JobPublisher
	log       logrus.FieldLogger
}

// NewCampaignService creates a new CampaignServiceImpl
func NewCampaignService(
	campaigns repositories.CampaignRepository,
	batches repositories.BatchRepository,
	messages repositories.MessageRepository,
	tracking repositories.TrackingRepository,
	resolver RecipientResolver,
	batcher *RecipientBatcher,
	publisher JobPublisher,
	log logrus.FieldLogger,
) *CampaignServiceImpl {
	return &CampaignServiceImpl{
		campaigns: campaigns,
		batches:   batches,
		messages:  messages,
		tracking:  tracking,
		resolver:  resolver,
		batcher:   batcher,
		publisher: publisher,
		log:       log,
	}
}

// Submit validates and stores a campaign, splits its audience into batches and queues them.
// Nothing is stored when the audience cannot be resolved or is empty.
func (s *CampaignServiceImpl) Submit(ctx context.Context, req SubmitCampaignRequest) (*models.Campaign, error) {
	// 1. Validate
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// 2. Resolve the audience before anything is written
	recipients, err := s.resolver.Resolve(ctx, req.Audience)
	if err != nil {
		s.log.WithError(err).Warn("Failed to resolve campaign recipients")
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	// 3. Store the draft
	now := time.Now()
	campaign := &models.Campaign{
		Name:      strings.TrimSpace(req.Name),
		Channel:   req.Channel,
		Status:    models.CampaignStatusDraft,
		Email:     req.Email,
		WhatsApp:  req.WhatsApp,
		CreatedBy: req.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if campaign.WhatsApp != nil && campaign.WhatsApp.Language == "" {
		campaign.WhatsApp.Language = defaultWhatsAppLanguage
	}
	if err := s.campaigns.Create(ctx, campaign); err != nil {
		s.log.WithError(err).Error("Failed to create campaign")
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	// 4. Batch it
	batches, err := s.batcher.CreateBatches(ctx, campaign, recipients, req.BatchSize)
	if err != nil {
		return campaign, err
	}

	// 5. Hand the batches to the workers. Anything not enqueued is picked up by the sweeper.
	s.enqueue(ctx, batches)

	s.log.WithFields(logrus.Fields{
		"campaignId": campaign.ID.Hex(),
		"channel":    campaign.Channel,
		"recipients": campaign.TotalRecipients,
		"batches":    campaign.TotalBatches,
	}).Info("Campaign submitted")
	return campaign, nil
}

// Get returns one campaign
func (s *CampaignServiceImpl) Get(ctx context.Context, id string) (*models.Campaign, error) {
	campaignID, err := models.ParseEntityID(id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, campaignID)
}

// List returns a page of campaigns and the total count
func (s *CampaignServiceImpl) List(ctx context.Context, page, limit int) ([]models.Campaign, int64, error) {
	campaigns, err := s.campaigns.FindAll(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	total, err := s.campaigns.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}
	return campaigns, total, nil
}

// Batches returns every batch of a campaign in batch order
func (s *CampaignServiceImpl) Batches(ctx context.Context, id string) ([]*models.CampaignBatch, error) {
	campaign, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	batches, err := s.batches.FindByCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

// Messages returns a page of a campaign's message ledger
func (s *CampaignServiceImpl) Messages(ctx context.Context, id string, page, limit int) ([]*models.Message, error) {
	campaign, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.FindByCampaign(ctx, campaign.ID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Events returns a page of a campaign's open or click events, newest first
func (s *CampaignServiceImpl) Events(ctx context.Context, id string, kind models.InteractionKind, page, limit int) ([]*models.TrackingEvent, error) {
	if kind != models.InteractionOpen && kind != models.InteractionClick {
		return nil, fmt.Errorf("%w: unknown event kind %q", ErrInvalidCampaign, kind)
	}
	campaign, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.tracking.FindByCampaign(ctx, campaign.ID, kind, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// Pause blocks the next batches of a campaign. A batch already sending runs to its end.
func (s *CampaignServiceImpl) Pause(ctx context.Context, id string) (*models.Campaign, error) {
	return s.transition(ctx, id,
		[]models.CampaignStatus{models.CampaignStatusQueued, models.CampaignStatusProcessing},
		models.CampaignStatusPaused,
	)
}

// Resume moves a paused campaign back to processing and re-queues its pending batches
func (s *CampaignServiceImpl) Resume(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := s.transition(ctx, id,
		[]models.CampaignStatus{models.CampaignStatusPaused},
		models.CampaignStatusProcessing,
	)
	if err != nil {
		return nil, err
	}

	pending, err := s.batches.FindByCampaignAndStatus(ctx, campaign.ID, models.BatchStatusPending)
	if err != nil {
		// the sweeper re-queues them later
		s.log.WithError(err).WithField("campaignId", campaign.ID.Hex()).Error("Failed to load pending batches on resume")
		return campaign, nil
	}
	s.enqueue(ctx, pending)
	return campaign, nil
}

func (s *CampaignServiceImpl) transition(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (*models.Campaign, error) {
	campaignID, err := models.ParseEntityID(id)
	if err != nil {
		return nil, err
	}
	ok, err := s.campaigns.TransitionStatus(ctx, campaignID, from, to, "")
	if err != nil {
		return nil, fmt.Errorf("failed to update campaign status: %w", err)
	}
	campaign, err := s.load(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return campaign, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, campaign.Status, to)
	}
	s.log.WithFields(logrus.Fields{"campaignId": campaign.ID.Hex(), "status": to}).Info("Campaign status changed")
	return campaign, nil
}

func (s *CampaignServiceImpl) load(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error) {
	campaign, err := s.campaigns.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	return campaign, nil
}

func (s *CampaignServiceImpl) enqueue(ctx context.Context, batches []*models.CampaignBatch) {
	for _, b := range batches {
		job := queue.BatchJob{CampaignID: b.CampaignID.Hex(), BatchID: b.ID.Hex(), BatchNumber: b.BatchNumber}
		if err := s.publisher.Publish(ctx, job); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"campaignId": job.CampaignID,
				"batchId":    job.BatchID,
			}).Warn("Failed to enqueue batch, leaving it to the sweeper")
		}
	}
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxBatchSize bounds a per-request batch size override
const MaxBatchSize = 1000

// Partition splits recipients into ceil(N/size) contiguous slices, preserving order.
// Every slice but the last has exactly size elements.
func Partition(recipients []models.Recipient, size int) [][]models.Recipient {
	if size < 1 {
		size = 1
	}
	chunks := make([][]models.Recipient, 0, (len(recipients)+size-1)/size)
	for start := 0; start < len(recipients); start += size {
		end := start + size
		if end > len(recipients) {
			end = len(recipients)
		}
		chunks = append(chunks, recipients[start:end:end])
	}
	return chunks
}

// RecipientBatcher persists a campaign's recipients as pending batches
type RecipientBatcher struct {
	campaigns repositories.CampaignRepository
	batches   repositories.BatchRepository
	batchSize int
	log       logrus.FieldLogger
}

// NewRecipientBatcher creates a new RecipientBatcher
func NewRecipientBatcher(
	campaigns repositories.CampaignRepository,
	batches repositories.BatchRepository,
	batchSize int,
	log logrus.FieldLogger,
) *RecipientBatcher {
	return &RecipientBatcher{
		campaigns: campaigns,
		batches:   batches,
		batchSize: batchSize,
		log:       log,
	}
}

// EffectiveBatchSize returns the batch size to use for a request override
func (b *RecipientBatcher) EffectiveBatchSize(override int) int {
	size := b.batchSize
	if override > 0 {
		size = override
	}
	if size < 1 {
		size = 1
	}
	if size > MaxBatchSize {
		size = MaxBatchSize
	}
	return size
}

// CreateBatches stores the recipients of a draft campaign as pending batches and moves the
// campaign to queued. Either every batch is stored or none is; on failure the campaign is
// marked failed.
func (b *RecipientBatcher) CreateBatches(ctx context.Context, campaign *models.Campaign, recipients []models.Recipient, batchSize int) ([]*models.CampaignBatch, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	// 1. Split into contiguous chunks
	chunks := Partition(recipients, b.EffectiveBatchSize(batchSize))
	total := len(chunks)

	// 2. Build pending batches, numbered from 1
	now := time.Now()
	batches := make([]*models.CampaignBatch, total)
	for i, chunk := range chunks {
		batches[i] = &models.CampaignBatch{
			ID:           primitive.NewObjectID(),
			CampaignID:   campaign.ID,
			BatchNumber:  i + 1,
			TotalBatches: total,
			Status:       models.BatchStatusPending,
			Recipients:   chunk,
			CreatedAt:    now,
		}
	}

	logger := b.log.WithFields(logrus.Fields{
		"campaignId": campaign.ID.Hex(),
		"recipients": len(recipients),
		"batches":    total,
	})

	// 3. Store them all at once
	if err := b.batches.CreateMany(ctx, batches); err != nil {
		logger.WithError(err).Error("Failed to create campaign batches")
		b.fail(ctx, campaign, err)
		return nil, fmt.Errorf("failed to create batches: %w", err)
	}

	// 4. Record totals and queue the campaign
	if err := b.campaigns.MarkQueued(ctx, campaign.ID, len(recipients), total); err != nil {
		logger.WithError(err).Error("Failed to queue campaign")
		if delErr := b.batches.DeleteByCampaign(ctx, campaign.ID); delErr != nil {
			logger.WithError(delErr).Error("Failed to remove batches of unqueued campaign")
		}
		b.fail(ctx, campaign, err)
		return nil, fmt.Errorf("failed to queue campaign: %w", err)
	}

	campaign.Status = models.CampaignStatusQueued
	campaign.TotalRecipients = len(recipients)
	campaign.TotalBatches = total
	campaign.CurrentBatch = 0

	logger.Info("Campaign batches created")
	return batches, nil
}

func (b *RecipientBatcher) fail(ctx context.Context, campaign *models.Campaign, cause error) {
	msg := fmt.Sprintf("batch creation failed: %v", cause)
	if _, err := b.campaigns.TransitionStatus(ctx, campaign.ID,
		[]models.CampaignStatus{models.CampaignStatusDraft},
		models.CampaignStatusFailed, msg,
	); err != nil {
		b.log.WithError(err).WithField("campaignId", campaign.ID.Hex()).Error("Failed to mark campaign failed")
		return
	}
	campaign.Status = models.CampaignStatusFailed
	campaign.ErrorMessage = msg
}

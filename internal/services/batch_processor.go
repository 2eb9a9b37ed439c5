package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"github.com/ArowuTest/bulkcomms-backend/pkg/sendadapter"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// Compile-time check to ensure BatchProcessorImpl implements BatchProcessor
var _ BatchProcessor = (*BatchProcessorImpl)(nil)

// ProcessorOptions tune sending within a batch
type ProcessorOptions struct {
	// Concurrency is the number of recipients sent in parallel. 1 keeps list order.
	Concurrency  int
	SendTimeout  time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// BatchResult summarises one processed batch
type BatchResult struct {
	BatchID        string                `json:"batchId"`
	CampaignID     string                `json:"campaignId"`
	BatchNumber    int                   `json:"batchNumber"`
	Status         models.BatchStatus    `json:"status"`
	Success        int                   `json:"success"`
	Failed         int                   `json:"failed"`
	Error          string                `json:"error,omitempty"`
	CampaignStatus models.CampaignStatus `json:"campaignStatus"`
}

// BatchProcessorImpl sends the messages of one batch and folds the outcome into the
// campaign counters
type BatchProcessorImpl struct {
	campaigns repositories.CampaignRepository
	batches   repositories.BatchRepository
	messages  repositories.MessageRepository
	templates repositories.TemplateRepository
	adapters  sendadapter.Registry
	links     *TrackingLinks
	opts      ProcessorOptions
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewBatchProcessor creates a new BatchProcessorImpl
func NewBatchProcessor(
	campaigns repositories.CampaignRepository,
	batches repositories.BatchRepository,
	messages repositories.MessageRepository,
	templates repositories.TemplateRepository,
	adapters sendadapter.Registry,
	links *TrackingLinks,
	opts ProcessorOptions,
	log logrus.FieldLogger,
) *BatchProcessorImpl {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &BatchProcessorImpl{
		campaigns: campaigns,
		batches:   batches,
		messages:  messages,
		templates: templates,
		adapters:  adapters,
		links:     links,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// Process runs one pending batch to completion. A batch that is no longer pending is left
// alone and ErrBatchNotPending is returned; a batch of a paused campaign stays pending and
// ErrCampaignPaused is returned. Systemic failures end the batch as failed and are reported
// in the result rather than as an error.
func (p *BatchProcessorImpl) Process(ctx context.Context, batchID primitive.ObjectID) (*BatchResult, error) {
	// 1. Load the batch and its campaign
	batch, err := p.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID.Hex(), err)
	}
	if batch.Status != models.BatchStatusPending {
		return nil, ErrBatchNotPending
	}
	campaign, err := p.campaigns.FindByID(ctx, batch.CampaignID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, batch.CampaignID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign.Status == models.CampaignStatusPaused {
		return nil, ErrCampaignPaused
	}

	logger := p.log.WithFields(logrus.Fields{
		"campaignId":  campaign.ID.Hex(),
		"batchId":     batch.ID.Hex(),
		"batchNumber": batch.BatchNumber,
	})

	// 2. Claim it. Only one worker wins.
	claimed, err := p.batches.Claim(ctx, batch.ID, p.now())
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrBatchNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}

	// A pause may have landed since the campaign was read. Once the claim is held,
	// a pause that is not visible here applies from the next batch on.
	campaign, err = p.campaigns.FindByID(ctx, batch.CampaignID)
	if err != nil {
		if relErr := p.batches.Release(ctx, claimed.ID); relErr != nil {
			logger.WithError(relErr).Error("Failed to release batch")
		}
		return nil, fmt.Errorf("failed to reload campaign: %w", err)
	}
	if campaign.Status == models.CampaignStatusPaused {
		if err := p.batches.Release(ctx, claimed.ID); err != nil {
			return nil, fmt.Errorf("failed to release batch of paused campaign: %w", err)
		}
		logger.Debug("Campaign paused after claim, batch released")
		return nil, ErrCampaignPaused
	}

	if campaign.Status.IsTerminal() {
		msg := fmt.Sprintf("campaign is %s", campaign.Status)
		logger.WithField("status", campaign.Status).Warn("Batch belongs to a finished campaign, skipping")
		if err := p.batches.Finish(ctx, claimed.ID, models.BatchStatusFailed, msg, p.now()); err != nil {
			return nil, fmt.Errorf("failed to finish batch: %w", err)
		}
		return &BatchResult{
			BatchID:        claimed.ID.Hex(),
			CampaignID:     campaign.ID.Hex(),
			BatchNumber:    claimed.BatchNumber,
			Status:         models.BatchStatusFailed,
			Error:          msg,
			CampaignStatus: campaign.Status,
		}, nil
	}

	// 3. Campaign is now being processed
	if _, err := p.campaigns.TransitionStatus(ctx, campaign.ID,
		[]models.CampaignStatus{models.CampaignStatusQueued},
		models.CampaignStatusProcessing, "",
	); err != nil {
		return p.finish(ctx, logger, claimed, campaign, 0, 0, fmt.Errorf("failed to start campaign: %w", err))
	}

	// 4. Prepare rendering and the transport
	build, err := newPayloadBuilder(ctx, campaign, p.templates, p.links)
	if err != nil {
		return p.finish(ctx, logger, claimed, campaign, 0, 0, err)
	}
	adapter, ok := p.adapters.For(string(campaign.Channel))
	if !ok {
		return p.finish(ctx, logger, claimed, campaign, 0, 0, fmt.Errorf("no send adapter for channel %s", campaign.Channel))
	}

	// 5. One queued message per recipient, in a single write
	now := p.now()
	msgs := make([]*models.Message, len(claimed.Recipients))
	for i, rec := range claimed.Recipients {
		msgs[i] = &models.Message{
			CampaignID:  campaign.ID,
			RecipientID: rec.ID,
			Channel:     campaign.Channel,
			Status:      models.MessageStatusQueued,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	if _, err := p.messages.InsertMany(ctx, msgs); err != nil {
		return p.finish(ctx, logger, claimed, campaign, 0, 0, fmt.Errorf("failed to create messages: %w", err))
	}

	// 6. Send
	success, failed, sendErr := p.sendAll(ctx, logger, campaign, claimed, adapter, build)

	// 7. Fold the outcome into the campaign
	return p.finish(ctx, logger, claimed, campaign, success, failed, sendErr)
}

// sendAll delivers to every recipient of the batch. It stops early only on a systemic error.
func (p *BatchProcessorImpl) sendAll(
	ctx context.Context,
	logger logrus.FieldLogger,
	campaign *models.Campaign,
	batch *models.CampaignBatch,
	adapter sendadapter.Adapter,
	build payloadBuilder,
) (int, int, error) {
	var (
		mu      sync.Mutex
		success int
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for _, rec := range batch.Recipients {
		rec := rec
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ok, err := p.deliver(gctx, logger, campaign, batch.ID, adapter, build, rec)
			if err != nil {
				return err
			}
			mu.Lock()
			if ok {
				success++
			} else {
				failed++
			}
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return success, failed, err
}

// deliver sends to one recipient and records the outcome. The bool reports success; an
// error is systemic and stops the batch.
func (p *BatchProcessorImpl) deliver(
	ctx context.Context,
	logger logrus.FieldLogger,
	campaign *models.Campaign,
	batchID primitive.ObjectID,
	adapter sendadapter.Adapter,
	build payloadBuilder,
	rec models.Recipient,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var (
		result  sendadapter.Result
		sendErr error
	)
	if rec.Address(campaign.Channel) == "" {
		sendErr = fmt.Errorf("recipient has no %s address", campaign.Channel)
	} else {
		to := sendadapter.Recipient{ID: rec.ID, Name: rec.Name, Email: rec.Email, Phone: rec.Phone}
		payload := build(rec)
		payload.IdempotencyKey = uuid.NewString()
		result, sendErr = p.sendWithRetry(ctx, adapter, to, payload)
		if errors.Is(sendErr, sendadapter.ErrUnavailable) {
			return false, sendErr
		}
		if sendErr != nil && ctx.Err() != nil {
			return false, ctx.Err()
		}
	}

	update := models.MessageUpdate{At: p.now()}
	if sendErr != nil {
		update.Status = models.MessageStatusFailed
		update.ErrorMessage = sendErr.Error()
		logger.WithError(sendErr).WithField("recipientId", rec.ID).Warn("Send failed")
	} else {
		update.Status = models.MessageStatusSent
		update.ExternalMessageID = result.ExternalMessageID
	}

	if _, err := p.messages.UpdateByRecipient(ctx, campaign.ID, rec.ID, update); err != nil {
		return false, fmt.Errorf("failed to update message: %w", err)
	}

	ok := sendErr == nil
	s, f := 0, 1
	if ok {
		s, f = 1, 0
	}
	if err := p.batches.IncrementProgress(ctx, batchID, s, f); err != nil {
		return false, fmt.Errorf("failed to update batch progress: %w", err)
	}
	return ok, nil
}

// sendWithRetry tries a send up to MaxAttempts times, each bounded by SendTimeout, doubling
// the wait between attempts. Permanent and unavailable errors are not retried.
func (p *BatchProcessorImpl) sendWithRetry(ctx context.Context, adapter sendadapter.Adapter, to sendadapter.Recipient, payload sendadapter.Payload) (sendadapter.Result, error) {
	for attempt := 1; ; attempt++ {
		res, err := p.sendOnce(ctx, adapter, to, payload)
		if err == nil {
			return res, nil
		}
		if attempt >= p.opts.MaxAttempts ||
			sendadapter.IsPermanent(err) ||
			errors.Is(err, sendadapter.ErrUnavailable) ||
			ctx.Err() != nil {
			return res, err
		}

		backoff := p.opts.RetryBackoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return sendadapter.Result{}, err
		case <-time.After(backoff):
		}
	}
}

func (p *BatchProcessorImpl) sendOnce(ctx context.Context, adapter sendadapter.Adapter, to sendadapter.Recipient, payload sendadapter.Payload) (sendadapter.Result, error) {
	if p.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.SendTimeout)
		defer cancel()
	}
	return adapter.Send(ctx, to, payload)
}

// finish records the batch outcome, advances the campaign and completes it after its last batch
func (p *BatchProcessorImpl) finish(
	ctx context.Context,
	logger logrus.FieldLogger,
	batch *models.CampaignBatch,
	campaign *models.Campaign,
	success, failed int,
	systemErr error,
) (*BatchResult, error) {
	// sentCount counts every attempted recipient so that delivered + failed never exceeds it
	if success+failed > 0 {
		if err := p.campaigns.IncrementCounters(ctx, campaign.ID, models.CounterDelta{Sent: success + failed, Failed: failed}); err != nil {
			logger.WithError(err).Error("Failed to update campaign counters")
			if systemErr == nil {
				systemErr = fmt.Errorf("failed to update campaign counters: %w", err)
			}
		}
	}

	result := &BatchResult{
		BatchID:     batch.ID.Hex(),
		CampaignID:  campaign.ID.Hex(),
		BatchNumber: batch.BatchNumber,
		Status:      models.BatchStatusCompleted,
		Success:     success,
		Failed:      failed,
	}
	if systemErr != nil {
		result.Status = models.BatchStatusFailed
		result.Error = systemErr.Error()
		logger.WithError(systemErr).Error("Batch failed")
	}

	if err := p.batches.Finish(ctx, batch.ID, result.Status, result.Error, p.now()); err != nil {
		return nil, fmt.Errorf("failed to finish batch: %w", err)
	}

	updated, err := p.campaigns.AdvanceBatch(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to advance campaign: %w", err)
	}
	result.CampaignStatus = updated.Status

	if updated.CurrentBatch >= updated.TotalBatches {
		ok, err := p.campaigns.TransitionStatus(ctx, campaign.ID,
			[]models.CampaignStatus{models.CampaignStatusQueued, models.CampaignStatusProcessing, models.CampaignStatusPaused},
			models.CampaignStatusCompleted, "",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to complete campaign: %w", err)
		}
		if ok {
			result.CampaignStatus = models.CampaignStatusCompleted
			logger.Info("Campaign completed")
		}
	}

	logger.WithFields(logrus.Fields{
		"status":  result.Status,
		"success": success,
		"failed":  failed,
	}).Info("Batch processed")
	return result, nil
}

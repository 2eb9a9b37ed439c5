package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Compile-time check to ensure EventReconcilerImpl implements EventReconciler
var _ EventReconciler = (*EventReconcilerImpl)(nil)

// ProviderStatus is one delivery status reported by a provider webhook
type ProviderStatus struct {
	Provider          string
	ExternalMessageID string
	Status            string
	Reason            string
	Timestamp         time.Time
}

// InteractionResult reports what happened to an open or click
type InteractionResult struct {
	Recorded bool   `json:"recorded"`
	Unique   bool   `json:"unique"`
	Reason   string `json:"reason,omitempty"`
}

// StatusResult reports what happened to a provider status update
type StatusResult struct {
	Applied   bool                 `json:"applied"`
	Duplicate bool                 `json:"duplicate"`
	Status    models.MessageStatus `json:"status,omitempty"`
	Reason    string               `json:"reason,omitempty"`
	// Retry is set when storage failed and nothing was kept, so the provider should resend
	Retry bool `json:"retry,omitempty"`
}

const (
	defaultCounterAttempts = 3
	defaultCounterBackoff  = 50 * time.Millisecond
)

// EventReconcilerImpl applies opens, clicks and provider status callbacks to the message
// ledger and the campaign counters. None of its entry points fail towards the caller.
type EventReconcilerImpl struct {
	campaigns repositories.CampaignRepository
	messages  repositories.MessageRepository
	tracking  repositories.TrackingRepository
	dedup     repositories.WebhookDedupRepository
	dedupTTL  time.Duration
	log       logrus.FieldLogger
	now       func() time.Time

	counterAttempts int
	counterBackoff  time.Duration
}

// NewEventReconciler creates a new EventReconcilerImpl. dedup may be nil.
func NewEventReconciler(
	campaigns repositories.CampaignRepository,
	messages repositories.MessageRepository,
	tracking repositories.TrackingRepository,
	dedup repositories.WebhookDedupRepository,
	dedupTTL time.Duration,
	log logrus.FieldLogger,
) *EventReconcilerImpl {
	return &EventReconcilerImpl{
		campaigns: campaigns,
		messages:  messages,
		tracking:  tracking,
		dedup:     dedup,
		dedupTTL:  dedupTTL,
		log:       log,
		now:       time.Now,

		counterAttempts: defaultCounterAttempts,
		counterBackoff:  defaultCounterBackoff,
	}
}

// RecordOpen records an open of a campaign by a recipient
func (r *EventReconcilerImpl) RecordOpen(ctx context.Context, rawCampaignID, recipientID string, meta models.EventMeta) InteractionResult {
	return r.record(ctx, models.InteractionOpen, rawCampaignID, recipientID, meta)
}

// RecordClick records a click on a campaign link by a recipient
func (r *EventReconcilerImpl) RecordClick(ctx context.Context, rawCampaignID, recipientID string, meta models.EventMeta) InteractionResult {
	return r.record(ctx, models.InteractionClick, rawCampaignID, recipientID, meta)
}

// record logs every interaction and increments the campaign counter for the first one only.
// The first-interaction marker is a unique insert, so concurrent firsts count once.
func (r *EventReconcilerImpl) record(ctx context.Context, kind models.InteractionKind, rawCampaignID, recipientID string, meta models.EventMeta) InteractionResult {
	logger := r.log.WithFields(logrus.Fields{"kind": kind, "campaignId": rawCampaignID, "recipientId": recipientID})

	// 1. Validate the untrusted input
	campaignID, err := models.ParseEntityID(rawCampaignID)
	if err != nil {
		logger.WithError(err).Warn("Discarding tracking event with malformed campaign id")
		return InteractionResult{Reason: "malformed campaign id"}
	}
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		logger.Warn("Discarding tracking event without recipient id")
		return InteractionResult{Reason: "missing recipient id"}
	}
	if _, err := r.campaigns.FindByID(ctx, campaignID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("Discarding tracking event for unknown campaign")
			return InteractionResult{Reason: "unknown campaign"}
		}
		logger.WithError(err).Error("Failed to load campaign for tracking event")
		return InteractionResult{Reason: "storage error"}
	}

	// 2. First interaction of this kind?
	now := r.now()
	first, err := r.tracking.MarkFirst(ctx, kind, campaignID, recipientID, now)
	if err != nil {
		logger.WithError(err).Error("Failed to mark first interaction")
		first = false
	}

	// 3. Every interaction is logged
	event := &models.TrackingEvent{
		Kind:        kind,
		CampaignID:  campaignID,
		RecipientID: recipientID,
		URL:         meta.URL,
		UserAgent:   meta.UserAgent,
		IP:          meta.IP,
		Unique:      first,
		Timestamp:   now,
	}
	if err := r.tracking.Append(ctx, event); err != nil {
		logger.WithError(err).Error("Failed to append tracking event")
	}

	// 4. Count the first one. If the counter cannot move, drop the marker so the next
	// interaction gets counted instead.
	if first {
		delta := models.CounterDelta{Opens: 1}
		if kind == models.InteractionClick {
			delta = models.CounterDelta{Clicks: 1}
		}
		if err := r.incrementCounters(ctx, campaignID, delta); err != nil {
			logger.WithError(err).Error("Failed to increment interaction counter")
			if err := r.tracking.UnmarkFirst(ctx, kind, campaignID, recipientID); err != nil {
				logger.WithError(err).Error("Failed to release first interaction marker")
			}
			return InteractionResult{Recorded: true, Reason: "storage error"}
		}
	}

	return InteractionResult{Recorded: true, Unique: first}
}

// ApplyProviderStatus moves the message with the provider's id to the reported status.
// Replays and unknown ids are no-ops. Each message adds to deliveredCount or failedCount at
// most once, on its first transition out of queued/sent.
func (r *EventReconcilerImpl) ApplyProviderStatus(ctx context.Context, u ProviderStatus) StatusResult {
	logger := r.log.WithFields(logrus.Fields{
		"provider":          u.Provider,
		"externalMessageId": u.ExternalMessageID,
		"status":            u.Status,
	})

	status, isRead, ok := MapProviderStatus(u.Status)
	if !ok {
		logger.Debug("Ignoring unmapped provider status")
		return StatusResult{Reason: "unmapped status"}
	}
	if strings.TrimSpace(u.ExternalMessageID) == "" {
		logger.Warn("Ignoring provider status without message id")
		return StatusResult{Reason: "missing message id"}
	}

	// 1. Cheap replay filter. The key is forgotten again if the update cannot be stored.
	dedupKey := ""
	if r.dedup != nil {
		key := u.Provider + ":" + u.ExternalMessageID + ":" + strings.ToLower(u.Status)
		firstSeen, err := r.dedup.FirstSeen(ctx, key, r.dedupTTL)
		if err != nil {
			logger.WithError(err).Warn("Webhook dedupe unavailable, relying on conditional update")
		} else if !firstSeen {
			logger.Debug("Duplicate provider status")
			return StatusResult{Duplicate: true, Status: status}
		} else {
			dedupKey = key
		}
	}
	retry := func() StatusResult {
		if dedupKey != "" {
			if err := r.dedup.Forget(ctx, dedupKey); err != nil {
				logger.WithError(err).Error("Failed to forget webhook dedupe key")
			}
		}
		return StatusResult{Status: status, Reason: "storage error", Retry: true}
	}

	at := u.Timestamp
	if at.IsZero() {
		at = r.now()
	}
	update := models.MessageUpdate{Status: status, At: at}
	if status == models.MessageStatusFailed {
		update.ErrorMessage = u.Reason
		if update.ErrorMessage == "" {
			update.ErrorMessage = "provider reported " + strings.ToLower(u.Status)
		}
	}

	// 2. Conditional transition, returning the state before it
	prev, err := r.messages.TransitionByExternalID(ctx, u.ExternalMessageID, update)
	if err != nil {
		logger.WithError(err).Error("Failed to apply provider status")
		return retry()
	}

	result := StatusResult{Applied: prev != nil, Status: status}
	if prev == nil {
		logger.Debug("Provider status matched no pending change")
		result.Reason = "no change"
	} else {
		// 3. Fold the first terminal outcome into the campaign
		// If the counters cannot move, undo the transition and have the provider resend.
		if delta := terminalDelta(prev.Status, status); !delta.IsZero() {
			if err := r.incrementCounters(ctx, prev.CampaignID, delta); err != nil {
				logger.WithError(err).Error("Failed to increment delivery counters")
				restored, rErr := r.messages.Restore(ctx, prev, status)
				if rErr != nil || !restored {
					logger.WithError(rErr).WithField("restored", restored).Error("Failed to undo provider status, campaign counters are short")
					return StatusResult{Applied: true, Status: status, Reason: "counter update failed"}
				}
				return retry()
			}
		}
	}

	// 4. A read receipt is also an open
	if isRead {
		msg := prev
		if msg == nil {
			msg, err = r.messages.FindByExternalID(ctx, u.ExternalMessageID)
			if err != nil {
				if !errors.Is(err, repositories.ErrNotFound) {
					logger.WithError(err).Error("Failed to look up message for read receipt")
				}
				msg = nil
			}
		}
		if msg != nil {
			r.record(ctx, models.InteractionOpen, msg.CampaignID.Hex(), msg.RecipientID, models.EventMeta{UserAgent: u.Provider})
		}
	}

	return result
}

// incrementCounters retries a counter update a few times, doubling the wait
func (r *EventReconcilerImpl) incrementCounters(ctx context.Context, campaignID primitive.ObjectID, delta models.CounterDelta) error {
	backoff := r.counterBackoff
	for attempt := 1; ; attempt++ {
		err := r.campaigns.IncrementCounters(ctx, campaignID, delta)
		if err == nil || attempt >= r.counterAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// terminalDelta counts a message's first move into delivered or failed
func terminalDelta(previous, next models.MessageStatus) models.CounterDelta {
	if previous.IsFinal() {
		return models.CounterDelta{}
	}
	switch next {
	case models.MessageStatusDelivered:
		return models.CounterDelta{Delivered: 1}
	case models.MessageStatusFailed:
		return models.CounterDelta{Failed: 1}
	}
	return models.CounterDelta{}
}

// MapProviderStatus maps a provider status name to a message status. isRead is set for
// read receipts, which also count as opens.
func MapProviderStatus(raw string) (status models.MessageStatus, isRead bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sent", "accepted", "processed":
		return models.MessageStatusSent, false, true
	case "delivered", "delivery":
		return models.MessageStatusDelivered, false, true
	case "read", "open", "opened":
		return models.MessageStatusDelivered, true, true
	case "failed", "bounce", "bounced", "dropped", "rejected", "undelivered", "deferred_failed":
		return models.MessageStatusFailed, false, true
	}
	return "", false, false
}

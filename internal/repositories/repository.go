package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned by Find and Claim operations when no document matches
var ErrNotFound = errors.New("not found")

// CampaignRepository defines the interface for campaign data operations.
// Counters change only through IncrementCounters and AdvanceBatch.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error)
	FindAll(ctx context.Context, page, limit int) ([]models.Campaign, error)
	ListAll(ctx context.Context) ([]models.Campaign, error)
	Count(ctx context.Context) (int64, error)
	// MarkQueued records the batching result and moves a draft campaign to queued
	MarkQueued(ctx context.Context, id primitive.ObjectID, totalRecipients, totalBatches int) error
	// TransitionStatus sets status to `to` only when the current status is one of `from`
	TransitionStatus(ctx context.Context, id primitive.ObjectID, from []models.CampaignStatus, to models.CampaignStatus, errorMessage string) (bool, error)
	IncrementCounters(ctx context.Context, id primitive.ObjectID, delta models.CounterDelta) error
	// AdvanceBatch increments currentBatch and returns the updated campaign
	AdvanceBatch(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error)
}

// BatchRepository defines the interface for campaign batch operations
type BatchRepository interface {
	// CreateMany inserts all batches or none of them
	CreateMany(ctx context.Context, batches []*models.CampaignBatch) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.CampaignBatch, error)
	FindByCampaign(ctx context.Context, campaignID primitive.ObjectID) ([]*models.CampaignBatch, error)
	FindByCampaignAndStatus(ctx context.Context, campaignID primitive.ObjectID, status models.BatchStatus) ([]*models.CampaignBatch, error)
	FindPendingBefore(ctx context.Context, createdBefore time.Time, limit int) ([]*models.CampaignBatch, error)
	// Claim moves a pending batch to processing. ErrNotFound means it was not pending.
	Claim(ctx context.Context, id primitive.ObjectID, startedAt time.Time) (*models.CampaignBatch, error)
	// Release hands a claimed batch that has not started sending back to pending
	Release(ctx context.Context, id primitive.ObjectID) error
	IncrementProgress(ctx context.Context, id primitive.ObjectID, success, failed int) error
	Finish(ctx context.Context, id primitive.ObjectID, status models.BatchStatus, errorMessage string, completedAt time.Time) error
	DeleteByCampaign(ctx context.Context, campaignID primitive.ObjectID) error
}

// MessageRepository is the message ledger. Update misses are reported, never errors.
type MessageRepository interface {
	// InsertMany writes messages in one bulk call, skipping (campaignId, recipientId) duplicates
	InsertMany(ctx context.Context, messages []*models.Message) (int, error)
	UpdateByRecipient(ctx context.Context, campaignID primitive.ObjectID, recipientID string, update models.MessageUpdate) (bool, error)
	// TransitionByExternalID applies update when the status differs and returns the previous state,
	// or nil when nothing matched. sent never replaces delivered or failed.
	TransitionByExternalID(ctx context.Context, externalID string, update models.MessageUpdate) (*models.Message, error)
	// Restore puts back the state returned by TransitionByExternalID while the message is
	// still in status current. It reports whether the message was restored.
	Restore(ctx context.Context, previous *models.Message, current models.MessageStatus) (bool, error)
	FindByRecipient(ctx context.Context, campaignID primitive.ObjectID, recipientID string) (*models.Message, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Message, error)
	FindByCampaign(ctx context.Context, campaignID primitive.ObjectID, page, limit int) ([]*models.Message, error)
}

// TrackingRepository stores open and click events
type TrackingRepository interface {
	// MarkFirst records the first interaction of a kind. It returns false if one already exists.
	MarkFirst(ctx context.Context, kind models.InteractionKind, campaignID primitive.ObjectID, recipientID string, at time.Time) (bool, error)
	// UnmarkFirst removes the marker so the next interaction of the kind counts again
	UnmarkFirst(ctx context.Context, kind models.InteractionKind, campaignID primitive.ObjectID, recipientID string) error
	Append(ctx context.Context, event *models.TrackingEvent) error
	FindByCampaign(ctx context.Context, campaignID primitive.ObjectID, kind models.InteractionKind, page, limit int) ([]*models.TrackingEvent, error)
}

// TemplateRepository looks up WhatsApp templates
type TemplateRepository interface {
	FindByName(ctx context.Context, name, language string) (*models.WhatsAppTemplate, error)
}

// WebhookDedupRepository remembers webhook deliveries already handled
type WebhookDedupRepository interface {
	// FirstSeen reports whether key is new, remembering it for ttl
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget drops key so a redelivery is handled again
	Forget(ctx context.Context, key string) error
}

package services

import (
	"context"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/queue"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CampaignService defines the interface for campaign submission and lifecycle operations.
// Campaign ids are taken as raw strings and validated with models.ParseEntityID.
type CampaignService interface {
	// Submit resolves recipients, stores the campaign with its batches and queues them
	Submit(ctx context.Context, req SubmitCampaignRequest) (*models.Campaign, error)

	Get(ctx context.Context, id string) (*models.Campaign, error)

	// List returns a page of campaigns, newest first, and the total count
	List(ctx context.Context, page, limit int) ([]models.Campaign, int64, error)

	Batches(ctx context.Context, id string) ([]*models.CampaignBatch, error)

	Messages(ctx context.Context, id string, page, limit int) ([]*models.Message, error)

	Events(ctx context.Context, id string, kind models.InteractionKind, page, limit int) ([]*models.TrackingEvent, error)

	// Pause stops further batches of a queued or processing campaign from starting
	Pause(ctx context.Context, id string) (*models.Campaign, error)

	// Resume restarts a paused campaign and re-queues its pending batches
	Resume(ctx context.Context, id string) (*models.Campaign, error)
}

// BatchProcessor defines the interface for running one campaign batch
type BatchProcessor interface {
	Process(ctx context.Context, batchID primitive.ObjectID) (*BatchResult, error)
}

// EventReconciler defines the entry points for inbound tracking and delivery events.
// They never return errors; outcomes are reported for logging and tests.
type EventReconciler interface {
	RecordOpen(ctx context.Context, rawCampaignID, recipientID string, meta models.EventMeta) InteractionResult
	RecordClick(ctx context.Context, rawCampaignID, recipientID string, meta models.EventMeta) InteractionResult
	ApplyProviderStatus(ctx context.Context, update ProviderStatus) StatusResult
}

// DashboardService defines the interface for dashboard statistics
type DashboardService interface {
	GetStats(ctx context.Context) (*models.DashboardStats, error)
}

// JobPublisher hands batch jobs to the dispatcher
type JobPublisher interface {
	Publish(ctx context.Context, job queue.BatchJob) error
}

package mongodb

import (
	"context"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// TrackingRepository implements the repositories.TrackingRepository interface
type TrackingRepository struct {
	events *mongo.Collection
	firsts *mongo.Collection
}

// NewTrackingRepository creates a new TrackingRepository
func NewTrackingRepository(db *mongo.Database) repositories.TrackingRepository {
	return &TrackingRepository{
		events: db.Collection(TrackingEventsCollection),
		firsts: db.Collection(FirstInteractionsCollection),
	}
}

// MarkFirst inserts the first-interaction marker. The unique index makes exactly one
// concurrent caller win.
func (r *TrackingRepository) MarkFirst(ctx context.Context, kind models.InteractionKind, campaignID primitive.ObjectID, recipientID string, at time.Time) (bool, error) {
	_, err := r.firsts.InsertOne(ctx, models.FirstInteraction{
		CampaignID:  campaignID,
		RecipientID: recipientID,
		Kind:        kind,
		CreatedAt:   at,
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UnmarkFirst deletes the first-interaction marker
func (r *TrackingRepository) UnmarkFirst(ctx context.Context, kind models.InteractionKind, campaignID primitive.ObjectID, recipientID string) error {
	_, err := r.firsts.DeleteOne(ctx, bson.M{"campaignId": campaignID, "recipientId": recipientID, "kind": kind})
	return err
}

// Append adds an event to the log
func (r *TrackingRepository) Append(ctx context.Context, event *models.TrackingEvent) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	_, err := r.events.InsertOne(ctx, event)
	return err
}

// FindByCampaign lists a campaign's events of one kind, newest first
func (r *TrackingRepository) FindByCampaign(ctx context.Context, campaignID primitive.ObjectID, kind models.InteractionKind, page, limit int) ([]*models.TrackingEvent, error) {
	cursor, err := r.events.Find(ctx,
		bson.M{"campaignId": campaignID, "kind": kind},
		pageOptions(page, limit).SetSort(bson.M{"timestamp": -1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []*models.TrackingEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	if events == nil {
		events = []*models.TrackingEvent{}
	}
	return events, nil
}

package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	CampaignsCollection         = "campaigns"
	BatchesCollection           = "campaign_batches"
	MessagesCollection          = "messages"
	TrackingEventsCollection    = "tracking_events"
	FirstInteractionsCollection = "first_interactions"
	TemplatesCollection         = "whatsapp_templates"
)

const duplicateKeyCode = 11000

// EnsureIndexes creates the indexes the repositories rely on for uniqueness and lookups
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		MessagesCollection: {
			{
				Keys:    bson.D{{Key: "campaignId", Value: 1}, {Key: "recipientId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "externalMessageId", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
		BatchesCollection: {
			{Keys: bson.D{{Key: "campaignId", Value: 1}, {Key: "status", Value: 1}}},
			{
				Keys:    bson.D{{Key: "campaignId", Value: 1}, {Key: "batchNumber", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		FirstInteractionsCollection: {
			{
				Keys:    bson.D{{Key: "campaignId", Value: 1}, {Key: "recipientId", Value: 1}, {Key: "kind", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		TrackingEventsCollection: {
			{Keys: bson.D{{Key: "campaignId", Value: 1}, {Key: "kind", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		CampaignsCollection: {
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		TemplatesCollection: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}, {Key: "language", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for collection, idx := range indexes {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", collection, err)
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repositories.ErrNotFound
	}
	return err
}

func pageOptions(page, limit int) *options.FindOptions {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return options.Find().
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
}

// onlyDuplicateKeyErrors reports whether err is a bulk write failure made up of duplicate keys,
// and how many documents were rejected
func onlyDuplicateKeyErrors(err error) (int, bool) {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return 0, false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != duplicateKeyCode {
			return 0, false
		}
	}
	return len(bwe.WriteErrors), true
}

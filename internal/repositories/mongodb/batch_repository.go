package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BatchRepository implements the repositories.BatchRepository interface
type BatchRepository struct {
	collection *mongo.Collection
}

// NewBatchRepository creates a new BatchRepository
func NewBatchRepository(db *mongo.Database) repositories.BatchRepository {
	return &BatchRepository{
		collection: db.Collection(BatchesCollection),
	}
}

// CreateMany inserts all batches in one ordered write. On failure the batches that
// made it in are removed again so the campaign never has a partial batch set.
func (r *BatchRepository) CreateMany(ctx context.Context, batches []*models.CampaignBatch) error {
	if len(batches) == 0 {
		return nil
	}
	now := time.Now()
	docs := make([]interface{}, len(batches))
	ids := make([]primitive.ObjectID, len(batches))
	for i, b := range batches {
		if b.ID.IsZero() {
			b.ID = primitive.NewObjectID()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		ids[i] = b.ID
		docs[i] = b
	}

	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return nil
	}
	if _, delErr := r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); delErr != nil {
		return fmt.Errorf("insert batches: %w (rollback failed: %v)", err, delErr)
	}
	return fmt.Errorf("insert batches: %w", err)
}

// FindByID finds a batch by ID
func (r *BatchRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.CampaignBatch, error) {
	var batch models.CampaignBatch
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&batch); err != nil {
		return nil, notFound(err)
	}
	return &batch, nil
}

// FindByCampaign finds all batches of a campaign ordered by batch number
func (r *BatchRepository) FindByCampaign(ctx context.Context, campaignID primitive.ObjectID) ([]*models.CampaignBatch, error) {
	return r.find(ctx, bson.M{"campaignId": campaignID}, options.Find().SetSort(bson.M{"batchNumber": 1}))
}

// FindByCampaignAndStatus finds a campaign's batches in the given status
func (r *BatchRepository) FindByCampaignAndStatus(ctx context.Context, campaignID primitive.ObjectID, status models.BatchStatus) ([]*models.CampaignBatch, error) {
	return r.find(ctx,
		bson.M{"campaignId": campaignID, "status": status},
		options.Find().SetSort(bson.M{"batchNumber": 1}),
	)
}

// FindPendingBefore finds pending batches created before the given time, oldest first
func (r *BatchRepository) FindPendingBefore(ctx context.Context, createdBefore time.Time, limit int) ([]*models.CampaignBatch, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "batchNumber", Value: 1}}).
		SetLimit(int64(limit))
	return r.find(ctx,
		bson.M{"status": models.BatchStatusPending, "createdAt": bson.M{"$lt": createdBefore}},
		opts,
	)
}

// Claim atomically moves a pending batch to processing
func (r *BatchRepository) Claim(ctx context.Context, id primitive.ObjectID, startedAt time.Time) (*models.CampaignBatch, error) {
	var batch models.CampaignBatch
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.BatchStatusPending},
		bson.M{"$set": bson.M{"status": models.BatchStatusProcessing, "startedAt": startedAt}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&batch)
	if err != nil {
		return nil, notFound(err)
	}
	return &batch, nil
}

// Release moves a processing batch back to pending
func (r *BatchRepository) Release(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.BatchStatusProcessing},
		bson.M{
			"$set":   bson.M{"status": models.BatchStatusPending},
			"$unset": bson.M{"startedAt": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// IncrementProgress adds per-recipient outcomes to the batch counters
func (r *BatchRepository) IncrementProgress(ctx context.Context, id primitive.ObjectID, success, failed int) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{
			"processedCount": success + failed,
			"successCount":   success,
			"failedCount":    failed,
		}},
	)
	return err
}

// Finish records the final status of a batch
func (r *BatchRepository) Finish(ctx context.Context, id primitive.ObjectID, status models.BatchStatus, errorMessage string, completedAt time.Time) error {
	set := bson.M{"status": status, "completedAt": completedAt}
	if errorMessage != "" {
		set["errorMessage"] = errorMessage
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return err
}

// DeleteByCampaign removes every batch of a campaign
func (r *BatchRepository) DeleteByCampaign(ctx context.Context, campaignID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"campaignId": campaignID})
	return err
}

func (r *BatchRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.CampaignBatch, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var batches []*models.CampaignBatch
	if err := cursor.All(ctx, &batches); err != nil {
		return nil, err
	}
	if batches == nil {
		batches = []*models.CampaignBatch{}
	}
	return batches, nil
}

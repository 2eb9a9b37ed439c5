package mongodb

import (
	"context"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/models"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CampaignRepository implements the repositories.CampaignRepository interface
type CampaignRepository struct {
	collection *mongo.Collection
}

// NewCampaignRepository creates a new CampaignRepository
func NewCampaignRepository(db *mongo.Database) repositories.CampaignRepository {
	return &CampaignRepository{
		collection: db.Collection(CampaignsCollection),
	}
}

// Create creates a new campaign
func (r *CampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	if campaign.ID.IsZero() {
		campaign.ID = primitive.NewObjectID()
	}
	now := time.Now()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, campaign)
	return err
}

// FindByID finds a campaign by ID
func (r *CampaignRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&campaign); err != nil {
		return nil, notFound(err)
	}
	return &campaign, nil
}

// FindAll finds campaigns with pagination, newest first
func (r *CampaignRepository) FindAll(ctx context.Context, page, limit int) ([]models.Campaign, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, pageOptions(page, limit).SetSort(bson.M{"createdAt": -1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var campaigns []models.Campaign
	if err := cursor.All(ctx, &campaigns); err != nil {
		return nil, err
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	return campaigns, nil
}

// ListAll returns every campaign, newest first
func (r *CampaignRepository) ListAll(ctx context.Context) ([]models.Campaign, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"createdAt": -1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var campaigns []models.Campaign
	if err := cursor.All(ctx, &campaigns); err != nil {
		return nil, err
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	return campaigns, nil
}

// Count counts all campaigns
func (r *CampaignRepository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}

// MarkQueued stores the batching totals and moves a draft campaign to queued
func (r *CampaignRepository) MarkQueued(ctx context.Context, id primitive.ObjectID, totalRecipients, totalBatches int) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.CampaignStatusDraft},
		bson.M{"$set": bson.M{
			"status":          models.CampaignStatusQueued,
			"totalRecipients": totalRecipients,
			"totalBatches":    totalBatches,
			"currentBatch":    0,
			"updatedAt":       time.Now(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// TransitionStatus changes the status only if the current one is in from
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, from []models.CampaignStatus, to models.CampaignStatus, errorMessage string) (bool, error) {
	set := bson.M{"status": to, "updatedAt": time.Now()}
	if errorMessage != "" {
		set["errorMessage"] = errorMessage
	}
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// IncrementCounters applies delta atomically with $inc
func (r *CampaignRepository) IncrementCounters(ctx context.Context, id primitive.ObjectID, delta models.CounterDelta) error {
	if delta.IsZero() {
		return nil
	}
	inc := bson.M{}
	addInc(inc, "sentCount", delta.Sent)
	addInc(inc, "deliveredCount", delta.Delivered)
	addInc(inc, "failedCount", delta.Failed)
	addInc(inc, "opensCount", delta.Opens)
	addInc(inc, "clicksCount", delta.Clicks)

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": inc, "$set": bson.M{"updatedAt": time.Now()}},
	)
	return err
}

// AdvanceBatch increments currentBatch and returns the updated campaign
func (r *CampaignRepository) AdvanceBatch(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var campaign models.Campaign
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"currentBatch": 1}, "$set": bson.M{"updatedAt": time.Now()}},
		opts,
	).Decode(&campaign)
	if err != nil {
		return nil, notFound(err)
	}
	return &campaign, nil
}

func addInc(inc bson.M, field string, n int) {
	if n > 0 {
		inc[field] = n
	}
}
